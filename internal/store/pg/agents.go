package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/synchearts/relay/internal/store"
)

// PGAgentStore implements store.AgentStore backed by Postgres.
type PGAgentStore struct {
	db *sql.DB
}

func NewPGAgentStore(db *sql.DB) *PGAgentStore {
	return &PGAgentStore{db: db}
}

func (s *PGAgentStore) Get(ctx context.Context, name string) (*store.Agent, error) {
	var a store.Agent
	err := s.db.QueryRowContext(ctx,
		`SELECT name, mode, operator_chat_id, image_url, photo_file_ids, created_at, updated_at
		 FROM agents WHERE name = $1`, name,
	).Scan(&a.Name, &a.Mode, &a.OperatorChatID, &a.ImageURL, pq.Array(&a.PhotoFileIDs), &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select agent: %w", err)
	}
	return &a, nil
}

func (s *PGAgentStore) Upsert(ctx context.Context, agent *store.Agent) error {
	now := time.Now().UTC()
	mode := agent.Mode
	if mode == "" {
		mode = store.ModeAuto
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (name, mode, operator_chat_id, image_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (name) DO UPDATE SET
			mode = EXCLUDED.mode,
			operator_chat_id = CASE WHEN EXCLUDED.operator_chat_id != 0 THEN EXCLUDED.operator_chat_id ELSE agents.operator_chat_id END,
			updated_at = EXCLUDED.updated_at`,
		agent.Name, mode, agent.OperatorChatID, agent.ImageURL, now,
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

func (s *PGAgentStore) SetMode(ctx context.Context, name, mode string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET mode = $2, updated_at = $3 WHERE name = $1`,
		name, mode, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrAgentNotFound
	}
	return nil
}

func (s *PGAgentStore) SetImageURL(ctx context.Context, name, url string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET image_url = $2, updated_at = $3 WHERE name = $1`,
		name, url, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set image url: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrAgentNotFound
	}
	return nil
}

func (s *PGAgentStore) SetPhotoFileIDs(ctx context.Context, name string, fileIDs []string) error {
	if fileIDs == nil {
		fileIDs = []string{}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET photo_file_ids = $2, updated_at = $3 WHERE name = $1`,
		name, pq.Array(fileIDs), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set photos: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrAgentNotFound
	}
	return nil
}

func (s *PGAgentStore) List(ctx context.Context) ([]store.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, mode, operator_chat_id, image_url, photo_file_ids, created_at, updated_at
		 FROM agents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var result []store.Agent
	for rows.Next() {
		var a store.Agent
		if err := rows.Scan(&a.Name, &a.Mode, &a.OperatorChatID, &a.ImageURL, pq.Array(&a.PhotoFileIDs), &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
