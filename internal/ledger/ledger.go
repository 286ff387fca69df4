// Package ledger charges message credits against user balances. Every debit
// is conditional: a charge either lands in full against a sufficient balance
// or has no effect at all.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/synchearts/relay/internal/store"
)

// ErrInsufficientFunds is returned when a debit would take the balance
// below zero. The balance is left untouched.
var ErrInsufficientFunds = errors.New("insufficient funds")

// DefaultMessageCost is the charge for one routed user message.
const DefaultMessageCost int64 = 1

// Ledger is the single entry point for balance mutations. Callers never
// touch the user store's credit columns directly.
type Ledger struct {
	users store.UserStore
}

func New(users store.UserStore) *Ledger {
	return &Ledger{users: users}
}

// Debit charges amount against the user's balance. Returns
// ErrInsufficientFunds when the balance cannot cover it, with no partial
// charge applied.
func (l *Ledger) Debit(ctx context.Context, userID int64, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	ok, err := l.users.TryDebit(ctx, userID, amount)
	if err != nil {
		return fmt.Errorf("debit user %d: %w", userID, err)
	}
	if !ok {
		return ErrInsufficientFunds
	}
	slog.Debug("ledger debit", "user_id", userID, "amount", amount)
	return nil
}

// Grant adds credits to the user's balance.
func (l *Ledger) Grant(ctx context.Context, userID int64, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	if err := l.users.Credit(ctx, userID, amount); err != nil {
		return fmt.Errorf("grant user %d: %w", userID, err)
	}
	slog.Info("ledger grant", "user_id", userID, "amount", amount)
	return nil
}

// Balance reports the user's current credits.
func (l *Ledger) Balance(ctx context.Context, userID int64) (int64, error) {
	u, err := l.users.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.Credits, nil
}
