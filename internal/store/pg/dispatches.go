package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/synchearts/relay/internal/store"
)

// PGDispatchStore implements store.DispatchStore backed by Postgres.
type PGDispatchStore struct {
	db *sql.DB
}

func NewPGDispatchStore(db *sql.DB) *PGDispatchStore {
	return &PGDispatchStore{db: db}
}

func (s *PGDispatchStore) Record(ctx context.Context, d *store.Dispatch) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatches (message_id, user_id, agent_name, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (message_id) DO UPDATE SET
			user_id = EXCLUDED.user_id, agent_name = EXCLUDED.agent_name`,
		d.MessageID, d.UserID, d.AgentName, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	return nil
}

func (s *PGDispatchStore) Lookup(ctx context.Context, messageID int) (*store.Dispatch, error) {
	var d store.Dispatch
	err := s.db.QueryRowContext(ctx,
		`SELECT message_id, user_id, agent_name, created_at FROM dispatches
		 WHERE message_id = $1`, messageID,
	).Scan(&d.MessageID, &d.UserID, &d.AgentName, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select dispatch: %w", err)
	}
	return &d, nil
}

func (s *PGDispatchStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dispatches WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune dispatches: %w", err)
	}
	return res.RowsAffected()
}
