package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/synchearts/relay/internal/store"
)

type fakeUsers struct {
	credits map[int64]int64
}

func (f *fakeUsers) GetOrCreate(_ context.Context, id int64, _, _ string, starting int64) (*store.User, error) {
	if _, ok := f.credits[id]; !ok {
		f.credits[id] = starting
	}
	return &store.User{ID: id, Credits: f.credits[id], CreatedAt: time.Now()}, nil
}

func (f *fakeUsers) Get(_ context.Context, id int64) (*store.User, error) {
	c, ok := f.credits[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &store.User{ID: id, Credits: c}, nil
}

func (f *fakeUsers) TryDebit(_ context.Context, id int64, amount int64) (bool, error) {
	if f.credits[id] < amount {
		return false, nil
	}
	f.credits[id] -= amount
	return true, nil
}

func (f *fakeUsers) Credit(_ context.Context, id int64, amount int64) error {
	if _, ok := f.credits[id]; !ok {
		return store.ErrUserNotFound
	}
	f.credits[id] += amount
	return nil
}

func (f *fakeUsers) SetCurrentAgent(context.Context, int64, string) error { return nil }

func TestDebit(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		amount  int64
		wantErr error
		want    int64
	}{
		{"covers exactly", 1, 1, nil, 0},
		{"covers with remainder", 50, 1, nil, 49},
		{"insufficient", 0, 1, ErrInsufficientFunds, 0},
		{"partial never applied", 3, 5, ErrInsufficientFunds, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &fakeUsers{credits: map[int64]int64{1: tt.balance}}
			l := New(users)

			err := l.Debit(context.Background(), 1, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Debit err = %v, want %v", err, tt.wantErr)
			}
			if users.credits[1] != tt.want {
				t.Errorf("balance = %d, want %d", users.credits[1], tt.want)
			}
		})
	}
}

func TestDebitRejectsNonPositive(t *testing.T) {
	l := New(&fakeUsers{credits: map[int64]int64{1: 10}})
	for _, amount := range []int64{0, -1} {
		if err := l.Debit(context.Background(), 1, amount); err == nil {
			t.Errorf("Debit(%d): expected error", amount)
		}
	}
}

func TestGrantAndBalance(t *testing.T) {
	users := &fakeUsers{credits: map[int64]int64{1: 5}}
	l := New(users)
	ctx := context.Background()

	if err := l.Grant(ctx, 1, 20); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	b, err := l.Balance(ctx, 1)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if b != 25 {
		t.Errorf("balance = %d, want 25", b)
	}

	if _, err := l.Balance(ctx, 99); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("Balance missing user: err = %v, want ErrUserNotFound", err)
	}
}
