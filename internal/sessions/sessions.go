// Package sessions binds users to agents. A user talks to at most one agent
// at a time; each user/agent pair owns a durable room that survives
// switching away and back.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/synchearts/relay/internal/store"
)

// ErrNoActiveAgent is returned when a user sends a message without having
// selected an agent first.
var ErrNoActiveAgent = errors.New("no active agent")

// Manager resolves and mutates the user-to-agent binding.
type Manager struct {
	users  store.UserStore
	agents store.AgentStore
	rooms  store.RoomStore
}

func NewManager(users store.UserStore, agents store.AgentStore, rooms store.RoomStore) *Manager {
	return &Manager{users: users, agents: agents, rooms: rooms}
}

// SelectAgent points the user at agentName and ensures the pair's room
// exists. Selecting the already-selected agent is a no-op that returns the
// same room. Retired agents cannot be selected.
func (m *Manager) SelectAgent(ctx context.Context, userID int64, agentName string) (*store.Room, error) {
	agentName = strings.TrimSpace(agentName)
	agent, err := m.agents.Get(ctx, agentName)
	if err != nil {
		return nil, err
	}
	if agent.Mode == store.ModeRetired {
		return nil, store.ErrAgentNotFound
	}

	room, created, err := m.rooms.Ensure(ctx, userID, agentName)
	if err != nil {
		return nil, fmt.Errorf("ensure room: %w", err)
	}
	if err := m.users.SetCurrentAgent(ctx, userID, agentName); err != nil {
		return nil, fmt.Errorf("bind agent: %w", err)
	}
	if created {
		slog.Info("room created", "user_id", userID, "agent", agentName, "room_id", room.ID)
	}
	return room, nil
}

// ActiveRoom returns the room the user's messages currently route through,
// or ErrNoActiveAgent when no agent is selected.
func (m *Manager) ActiveRoom(ctx context.Context, userID int64) (*store.Room, *store.Agent, error) {
	u, err := m.users.Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if u.CurrentAgent == "" {
		return nil, nil, ErrNoActiveAgent
	}

	agent, err := m.agents.Get(ctx, u.CurrentAgent)
	if errors.Is(err, store.ErrAgentNotFound) {
		// Binding points at an agent that no longer exists. Clear it so the
		// user gets the selection prompt instead of a hard error.
		_ = m.users.SetCurrentAgent(ctx, userID, "")
		return nil, nil, ErrNoActiveAgent
	}
	if err != nil {
		return nil, nil, err
	}

	room, err := m.rooms.Get(ctx, userID, u.CurrentAgent)
	if err != nil {
		return nil, nil, err
	}
	if room == nil {
		room, _, err = m.rooms.Ensure(ctx, userID, u.CurrentAgent)
		if err != nil {
			return nil, nil, err
		}
	}
	return room, agent, nil
}

// Clear removes the user's agent binding. Rooms are kept.
func (m *Manager) Clear(ctx context.Context, userID int64) error {
	return m.users.SetCurrentAgent(ctx, userID, "")
}

// History lists the rooms a user has ever opened, oldest first.
func (m *Manager) History(ctx context.Context, userID int64) ([]store.Room, error) {
	return m.rooms.ListByUser(ctx, userID)
}
