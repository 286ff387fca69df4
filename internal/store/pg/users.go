package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/synchearts/relay/internal/store"
)

// PGUserStore implements store.UserStore backed by Postgres.
type PGUserStore struct {
	db *sql.DB
}

func NewPGUserStore(db *sql.DB) *PGUserStore {
	return &PGUserStore{db: db}
}

func (s *PGUserStore) GetOrCreate(ctx context.Context, id int64, firstName, username string, startingCredits int64) (*store.User, error) {
	var u store.User
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (user_id, first_name, username, credits, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE SET
			first_name = CASE WHEN EXCLUDED.first_name != '' THEN EXCLUDED.first_name ELSE users.first_name END,
			username   = CASE WHEN EXCLUDED.username != '' THEN EXCLUDED.username ELSE users.username END
		 RETURNING user_id, first_name, username, credits, current_agent, created_at`,
		id, firstName, username, startingCredits, time.Now().UTC(),
	).Scan(&u.ID, &u.FirstName, &u.Username, &u.Credits, &u.CurrentAgent, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &u, nil
}

func (s *PGUserStore) Get(ctx context.Context, id int64) (*store.User, error) {
	var u store.User
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, first_name, username, credits, current_agent, created_at
		 FROM users WHERE user_id = $1`, id,
	).Scan(&u.ID, &u.FirstName, &u.Username, &u.Credits, &u.CurrentAgent, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

// TryDebit commits the balance check and decrement in one statement. Two
// relay consumers racing on the same user cannot both win the last credit.
func (s *PGUserStore) TryDebit(ctx context.Context, id int64, amount int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET credits = credits - $2 WHERE user_id = $1 AND credits >= $2`,
		id, amount,
	)
	if err != nil {
		return false, fmt.Errorf("debit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("debit rows: %w", err)
	}
	return n == 1, nil
}

func (s *PGUserStore) Credit(ctx context.Context, id int64, amount int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET credits = credits + $2 WHERE user_id = $1`, id, amount,
	)
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

func (s *PGUserStore) SetCurrentAgent(ctx context.Context, id int64, agentName string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET current_agent = $2 WHERE user_id = $1`, id, agentName,
	)
	if err != nil {
		return fmt.Errorf("set current agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrUserNotFound
	}
	return nil
}
