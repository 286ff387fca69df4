package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/synchearts/relay/internal/store"
)

// PGRoomStore implements store.RoomStore backed by Postgres.
type PGRoomStore struct {
	db *sql.DB
}

func NewPGRoomStore(db *sql.DB) *PGRoomStore {
	return &PGRoomStore{db: db}
}

func (s *PGRoomStore) Ensure(ctx context.Context, userID int64, agentName string) (*store.Room, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, user_id, agent_name, created_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT (user_id, agent_name) DO NOTHING`,
		uuid.Must(uuid.NewV7()), userID, agentName, time.Now().UTC(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert room: %w", err)
	}
	n, _ := res.RowsAffected()

	room, err := s.Get(ctx, userID, agentName)
	if err != nil {
		return nil, false, err
	}
	return room, n == 1, nil
}

func (s *PGRoomStore) Get(ctx context.Context, userID int64, agentName string) (*store.Room, error) {
	var r store.Room
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, agent_name, created_at FROM rooms
		 WHERE user_id = $1 AND agent_name = $2`, userID, agentName,
	).Scan(&r.ID, &r.UserID, &r.AgentName, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select room: %w", err)
	}
	return &r, nil
}

func (s *PGRoomStore) ListByUser(ctx context.Context, userID int64) ([]store.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, agent_name, created_at FROM rooms
		 WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var result []store.Room
	for rows.Next() {
		var r store.Room
		if err := rows.Scan(&r.ID, &r.UserID, &r.AgentName, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *PGRoomStore) CountByAgent(ctx context.Context, agentName string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rooms WHERE agent_name = $1`, agentName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rooms: %w", err)
	}
	return n, nil
}
