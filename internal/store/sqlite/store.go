// Package sqlite implements the relay stores on a single-file SQLite
// database (standalone mode). The schema is created on open, matching the
// zero-setup behavior the relay had before managed mode existed.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/synchearts/relay/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id       INTEGER PRIMARY KEY,
	first_name    TEXT NOT NULL DEFAULT '',
	username      TEXT NOT NULL DEFAULT '',
	credits       INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
	current_agent TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
	name             TEXT PRIMARY KEY,
	mode             TEXT NOT NULL DEFAULT 'auto',
	operator_chat_id INTEGER NOT NULL DEFAULT 0,
	image_url        TEXT NOT NULL DEFAULT '',
	photo_file_ids   TEXT NOT NULL DEFAULT '[]',
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	user_id    INTEGER NOT NULL,
	agent_name TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (user_id, agent_name)
);

CREATE TABLE IF NOT EXISTS dispatches (
	message_id INTEGER PRIMARY KEY,
	user_id    INTEGER NOT NULL,
	agent_name TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

// Open creates (if needed) and opens the standalone database and returns the
// store container. The connection pool is capped at one writer: SQLite
// serializes writes anyway, and a single conn avoids SQLITE_BUSY churn under
// concurrent debits.
func Open(path string) (*store.Stores, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &store.Stores{
		Users:      &userStore{db: db},
		Agents:     &agentStore{db: db},
		Rooms:      &roomStore{db: db},
		Dispatches: &dispatchStore{db: db},
		Close:      db.Close,
	}, nil
}

// --- users ---

type userStore struct {
	db *sql.DB
}

func (s *userStore) GetOrCreate(ctx context.Context, id int64, firstName, username string, startingCredits int64) (*store.User, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, first_name, username, credits, created_at)
		 VALUES (?, ?, ?, ?, ?) ON CONFLICT (user_id) DO NOTHING`,
		id, firstName, username, startingCredits, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	// Refresh display fields when the transport provides them.
	if firstName != "" || username != "" {
		_, err = s.db.ExecContext(ctx,
			`UPDATE users SET
				first_name = CASE WHEN ? != '' THEN ? ELSE first_name END,
				username   = CASE WHEN ? != '' THEN ? ELSE username END
			 WHERE user_id = ?`,
			firstName, firstName, username, username, id,
		)
		if err != nil {
			return nil, fmt.Errorf("refresh user names: %w", err)
		}
	}

	return s.Get(ctx, id)
}

func (s *userStore) Get(ctx context.Context, id int64) (*store.User, error) {
	var u store.User
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, first_name, username, credits, current_agent, created_at
		 FROM users WHERE user_id = ?`, id,
	).Scan(&u.ID, &u.FirstName, &u.Username, &u.Credits, &u.CurrentAgent, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

// TryDebit is a single conditional UPDATE: the balance check and the
// decrement commit together, so concurrent debits for the same user cannot
// both observe a stale balance.
func (s *userStore) TryDebit(ctx context.Context, id int64, amount int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET credits = credits - ? WHERE user_id = ? AND credits >= ?`,
		amount, id, amount,
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

func (s *userStore) Credit(ctx context.Context, id int64, amount int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET credits = credits + ? WHERE user_id = ?`, amount, id,
	)
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

func (s *userStore) SetCurrentAgent(ctx context.Context, id int64, agentName string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET current_agent = ? WHERE user_id = ?`, agentName, id,
	)
	if err != nil {
		return fmt.Errorf("set current agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

// --- agents ---

type agentStore struct {
	db *sql.DB
}

func (s *agentStore) Get(ctx context.Context, name string) (*store.Agent, error) {
	var a store.Agent
	var photosJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, mode, operator_chat_id, image_url, photo_file_ids, created_at, updated_at
		 FROM agents WHERE name = ?`, name,
	).Scan(&a.Name, &a.Mode, &a.OperatorChatID, &a.ImageURL, &photosJSON, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select agent: %w", err)
	}
	if err := json.Unmarshal([]byte(photosJSON), &a.PhotoFileIDs); err != nil {
		a.PhotoFileIDs = nil
	}
	return &a, nil
}

func (s *agentStore) Upsert(ctx context.Context, agent *store.Agent) error {
	now := time.Now().UTC()
	mode := agent.Mode
	if mode == "" {
		mode = store.ModeAuto
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (name, mode, operator_chat_id, image_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET
			mode = excluded.mode,
			operator_chat_id = CASE WHEN excluded.operator_chat_id != 0 THEN excluded.operator_chat_id ELSE agents.operator_chat_id END,
			updated_at = excluded.updated_at`,
		agent.Name, mode, agent.OperatorChatID, agent.ImageURL, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

func (s *agentStore) SetMode(ctx context.Context, name, mode string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET mode = ?, updated_at = ? WHERE name = ?`,
		mode, time.Now().UTC(), name,
	)
	if err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrAgentNotFound
	}
	return nil
}

func (s *agentStore) SetImageURL(ctx context.Context, name, url string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET image_url = ?, updated_at = ? WHERE name = ?`,
		url, time.Now().UTC(), name,
	)
	if err != nil {
		return fmt.Errorf("set image url: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrAgentNotFound
	}
	return nil
}

func (s *agentStore) SetPhotoFileIDs(ctx context.Context, name string, fileIDs []string) error {
	if fileIDs == nil {
		fileIDs = []string{}
	}
	photosJSON, err := json.Marshal(fileIDs)
	if err != nil {
		return fmt.Errorf("encode photos: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET photo_file_ids = ?, updated_at = ? WHERE name = ?`,
		string(photosJSON), time.Now().UTC(), name,
	)
	if err != nil {
		return fmt.Errorf("set photos: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrAgentNotFound
	}
	return nil
}

func (s *agentStore) List(ctx context.Context) ([]store.Agent, error) {
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
		var photosJSON string
		if err := rows.Scan(&a.Name, &a.Mode, &a.OperatorChatID, &a.ImageURL, &photosJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		if err := json.Unmarshal([]byte(photosJSON), &a.PhotoFileIDs); err != nil {
			a.PhotoFileIDs = nil
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// --- rooms ---

type roomStore struct {
	db *sql.DB
}

func (s *roomStore) Ensure(ctx context.Context, userID int64, agentName string) (*store.Room, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, user_id, agent_name, created_at)
		 VALUES (?, ?, ?, ?) ON CONFLICT (user_id, agent_name) DO NOTHING`,
		uuid.Must(uuid.NewV7()).String(), userID, agentName, time.Now().UTC(),
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

func (s *roomStore) Get(ctx context.Context, userID int64, agentName string) (*store.Room, error) {
	var r store.Room
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, agent_name, created_at FROM rooms
		 WHERE user_id = ? AND agent_name = ?`, userID, agentName,
	).Scan(&id, &r.UserID, &r.AgentName, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select room: %w", err)
	}
	r.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse room id: %w", err)
	}
	return &r, nil
}

func (s *roomStore) ListByUser(ctx context.Context, userID int64) ([]store.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, agent_name, created_at FROM rooms
		 WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var result []store.Room
	for rows.Next() {
		var r store.Room
		var id string
		if err := rows.Scan(&id, &r.UserID, &r.AgentName, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse room id: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *roomStore) CountByAgent(ctx context.Context, agentName string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rooms WHERE agent_name = ?`, agentName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rooms: %w", err)
	}
	return n, nil
}

// --- dispatches ---

type dispatchStore struct {
	db *sql.DB
}

func (s *dispatchStore) Record(ctx context.Context, d *store.Dispatch) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatches (message_id, user_id, agent_name, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (message_id) DO UPDATE SET
			user_id = excluded.user_id, agent_name = excluded.agent_name`,
		d.MessageID, d.UserID, d.AgentName, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	return nil
}

func (s *dispatchStore) Lookup(ctx context.Context, messageID int) (*store.Dispatch, error) {
	var d store.Dispatch
	err := s.db.QueryRowContext(ctx,
		`SELECT message_id, user_id, agent_name, created_at FROM dispatches
		 WHERE message_id = ?`, messageID,
	).Scan(&d.MessageID, &d.UserID, &d.AgentName, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select dispatch: %w", err)
	}
	return &d, nil
}

func (s *dispatchStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dispatches WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune dispatches: %w", err)
	}
	return res.RowsAffected()
}
