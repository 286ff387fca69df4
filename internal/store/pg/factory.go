package pg

import (
	"fmt"

	"github.com/synchearts/relay/internal/store"
)

// NewPGStores creates all stores backed by Postgres (managed mode).
func NewPGStores(cfg store.Config) (*store.Stores, error) {
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	return &store.Stores{
		Users:      NewPGUserStore(db),
		Agents:     NewPGAgentStore(db),
		Rooms:      NewPGRoomStore(db),
		Dispatches: NewPGDispatchStore(db),
		Close:      db.Close,
	}, nil
}
