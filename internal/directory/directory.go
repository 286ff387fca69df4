// Package directory manages the roster of relay agents: the personas users
// chat with, each bound to a routing mode and optionally an operator chat.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/synchearts/relay/internal/store"
)

var ErrInvalidMode = errors.New("invalid agent mode")

// Directory wraps the agent store with the roster operations the router and
// operator commands need.
type Directory struct {
	agents store.AgentStore
}

func New(agents store.AgentStore) *Directory {
	return &Directory{agents: agents}
}

// Get returns the agent, or store.ErrAgentNotFound.
func (d *Directory) Get(ctx context.Context, name string) (*store.Agent, error) {
	return d.agents.Get(ctx, name)
}

// List returns all agents ordered by name, retired included.
func (d *Directory) List(ctx context.Context) ([]store.Agent, error) {
	return d.agents.List(ctx)
}

// Active returns agents that can still receive traffic.
func (d *Directory) Active(ctx context.Context) ([]store.Agent, error) {
	all, err := d.agents.List(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, a := range all {
		if a.Mode != store.ModeRetired {
			active = append(active, a)
		}
	}
	return active, nil
}

// SetMode switches an agent to assisted or auto routing. An unknown name is
// created on the spot in the requested mode, bound to operatorChatID, so the
// first "/online Sophia" from an operator both registers and activates her.
func (d *Directory) SetMode(ctx context.Context, name, mode string, operatorChatID int64) (*store.Agent, error) {
	if mode != store.ModeAuto && mode != store.ModeAssisted {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	name = strings.TrimSpace(name)

	err := d.agents.SetMode(ctx, name, mode)
	if errors.Is(err, store.ErrAgentNotFound) {
		if mode == store.ModeAuto {
			return nil, store.ErrAgentNotFound
		}
		if err := d.agents.Upsert(ctx, &store.Agent{Name: name, Mode: mode, OperatorChatID: operatorChatID}); err != nil {
			return nil, err
		}
		slog.Info("agent registered", "agent", name, "mode", mode)
		return d.agents.Get(ctx, name)
	}
	if err != nil {
		return nil, err
	}

	if operatorChatID != 0 {
		if err := d.agents.Upsert(ctx, &store.Agent{Name: name, Mode: mode, OperatorChatID: operatorChatID}); err != nil {
			return nil, err
		}
	}
	slog.Info("agent mode changed", "agent", name, "mode", mode)
	return d.agents.Get(ctx, name)
}

// Register creates or refreshes an agent entry.
func (d *Directory) Register(ctx context.Context, agent *store.Agent) error {
	if strings.TrimSpace(agent.Name) == "" {
		return errors.New("agent name is empty")
	}
	return d.agents.Upsert(ctx, agent)
}

// Retire takes an agent out of rotation without deleting it. Existing rooms
// and dispatch records keep resolving against the name.
func (d *Directory) Retire(ctx context.Context, name string) error {
	if err := d.agents.SetMode(ctx, name, store.ModeRetired); err != nil {
		return err
	}
	slog.Info("agent retired", "agent", name)
	return nil
}

// SetImageURL updates the profile image shown on the selection card.
func (d *Directory) SetImageURL(ctx context.Context, name, url string) error {
	return d.agents.SetImageURL(ctx, name, url)
}

// SetPhotos replaces the agent's stored photo file IDs.
func (d *Directory) SetPhotos(ctx context.Context, name string, fileIDs []string) error {
	return d.agents.SetPhotoFileIDs(ctx, name, fileIDs)
}
