// Package store defines the persistence contracts for the relay: users and
// their credit balances, the agent directory, durable user↔agent rooms, and
// the forward-dispatch records used for operator reply correlation.
//
// Two backends implement these contracts: store/sqlite (standalone mode,
// single-file database) and store/pg (managed mode, Postgres via migrations).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Agent modes.
const (
	ModeAuto     = "auto"     // automated responder answers
	ModeAssisted = "assisted" // messages forward to the operator channel
	ModeRetired  = "retired"  // terminal; rejects selection, rooms preserved
)

// Sentinel errors shared by all backends.
var (
	ErrAgentNotFound = errors.New("agent not found")
	ErrUserNotFound  = errors.New("user not found")
)

// User is an end user of the relay. Balance is credits; CurrentAgent is the
// active binding ("" = none).
type User struct {
	ID           int64
	FirstName    string
	Username     string
	Credits      int64
	CurrentAgent string
	CreatedAt    time.Time
}

// Agent is a persona users converse with. OperatorChatID is where assisted
// forwards go. PhotoFileIDs is the transport-side profile gallery.
type Agent struct {
	Name           string
	Mode           string
	OperatorChatID int64
	ImageURL       string
	PhotoFileIDs   []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Room is the durable pairing of one user and one agent, created lazily on
// first selection and never auto-deleted.
type Room struct {
	ID        uuid.UUID
	UserID    int64
	AgentName string
	CreatedAt time.Time
}

// Dispatch records one forwarded-to-operator message, keyed by the
// transport's message id in the operator chat. It is the mechanism of record
// for operator reply correlation; the text marker is the fallback.
type Dispatch struct {
	MessageID int
	UserID    int64
	AgentName string
	CreatedAt time.Time
}

// UserStore owns user records and the credit ledger.
type UserStore interface {
	// GetOrCreate materializes the user on first contact with the given
	// starting balance. Existing users are returned unchanged (name fields
	// refreshed when non-empty).
	GetOrCreate(ctx context.Context, id int64, firstName, username string, startingCredits int64) (*User, error)
	// Get returns ErrUserNotFound for unknown ids.
	Get(ctx context.Context, id int64) (*User, error)
	// TryDebit atomically decrements credits iff the balance covers amount.
	// Returns false (and leaves the balance unchanged) on insufficient funds.
	TryDebit(ctx context.Context, id int64, amount int64) (bool, error)
	// Credit unconditionally increments the balance.
	Credit(ctx context.Context, id int64, amount int64) error
	// SetCurrentAgent binds the user's active agent ("" clears the binding).
	SetCurrentAgent(ctx context.Context, id int64, agentName string) error
}

// AgentStore owns the agent directory.
type AgentStore interface {
	Get(ctx context.Context, name string) (*Agent, error)
	// Upsert creates the agent if missing, otherwise updates mode and
	// operator chat. Used by SetMode's create-on-first-online policy.
	Upsert(ctx context.Context, agent *Agent) error
	// SetMode updates an existing agent's mode. ErrAgentNotFound if missing.
	SetMode(ctx context.Context, name, mode string) error
	SetImageURL(ctx context.Context, name, url string) error
	SetPhotoFileIDs(ctx context.Context, name string, fileIDs []string) error
	// List returns all agents ordered by name.
	List(ctx context.Context) ([]Agent, error)
}

// RoomStore owns durable user↔agent rooms.
type RoomStore interface {
	// Ensure creates the (user, agent) room when absent and reports whether
	// it was created. Idempotent: repeated calls return the same room.
	Ensure(ctx context.Context, userID int64, agentName string) (*Room, bool, error)
	Get(ctx context.Context, userID int64, agentName string) (*Room, error)
	ListByUser(ctx context.Context, userID int64) ([]Room, error)
	// CountByAgent reports how many rooms an agent has across all users.
	CountByAgent(ctx context.Context, agentName string) (int, error)
}

// DispatchStore owns forward-dispatch records.
type DispatchStore interface {
	Record(ctx context.Context, d *Dispatch) error
	// Lookup returns nil (no error) when the message id is unknown.
	Lookup(ctx context.Context, messageID int) (*Dispatch, error)
	// Prune removes records older than the cutoff; returns the count removed.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Users      UserStore
	Agents     AgentStore
	Rooms      RoomStore
	Dispatches DispatchStore

	// Close releases the underlying database handle.
	Close func() error
}

// Config selects and parameterizes a backend.
type Config struct {
	// Mode is "standalone" (sqlite, default) or "managed" (postgres).
	Mode string
	// SQLitePath is the database file for standalone mode.
	SQLitePath string
	// PostgresDSN comes from env only (secret, never in the config file).
	PostgresDSN string
}
