// Package bootstrap seeds first-run state: the default agent roster a fresh
// install starts with.
package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/synchearts/relay/internal/store"
)

// defaultAgents is the starter roster. Seeding never overwrites agents that
// already exist.
var defaultAgents = []store.Agent{
	{Name: "Sophia", Mode: store.ModeAuto, ImageURL: "https://cdn.synchearts.app/agents/sophia.jpg"},
	{Name: "Elena", Mode: store.ModeAuto, ImageURL: "https://cdn.synchearts.app/agents/elena.jpg"},
}

// SeedAgents creates the default agents that don't exist yet and returns the
// names it created.
func SeedAgents(ctx context.Context, agents store.AgentStore) ([]string, error) {
	var created []string
	for _, a := range defaultAgents {
		_, err := agents.Get(ctx, a.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrAgentNotFound) {
			return created, err
		}
		agent := a
		if err := agents.Upsert(ctx, &agent); err != nil {
			return created, err
		}
		created = append(created, a.Name)
	}
	if len(created) > 0 {
		slog.Info("seeded default agents", "agents", created)
	}
	return created, nil
}
