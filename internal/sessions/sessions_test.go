package sessions

import (
	"context"
	"errors"
	"testing"

	"github.com/synchearts/relay/internal/store"
	"github.com/synchearts/relay/internal/store/memory"
)

func setup(t *testing.T) (*Manager, *store.Stores) {
	t.Helper()
	stores := memory.NewStores()
	ctx := context.Background()
	if _, err := stores.Users.GetOrCreate(ctx, 1, "Alice", "alice", 50); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	for _, name := range []string{"Sophia", "Elena"} {
		if err := stores.Agents.Upsert(ctx, &store.Agent{Name: name, Mode: store.ModeAuto}); err != nil {
			t.Fatalf("seed agent: %v", err)
		}
	}
	return NewManager(stores.Users, stores.Agents, stores.Rooms), stores
}

func TestSelectAgentIdempotent(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()

	r1, err := m.SelectAgent(ctx, 1, "Sophia")
	if err != nil {
		t.Fatalf("SelectAgent: %v", err)
	}
	r2, err := m.SelectAgent(ctx, 1, "Sophia")
	if err != nil {
		t.Fatalf("SelectAgent again: %v", err)
	}
	if r1.ID != r2.ID {
		t.Errorf("room id changed on reselect: %s != %s", r1.ID, r2.ID)
	}
}

func TestSwitchingPreservesRooms(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()

	r1, err := m.SelectAgent(ctx, 1, "Sophia")
	if err != nil {
		t.Fatalf("select Sophia: %v", err)
	}
	if _, err := m.SelectAgent(ctx, 1, "Elena"); err != nil {
		t.Fatalf("select Elena: %v", err)
	}

	// Back to the first agent: same room as before.
	r3, err := m.SelectAgent(ctx, 1, "Sophia")
	if err != nil {
		t.Fatalf("reselect Sophia: %v", err)
	}
	if r1.ID != r3.ID {
		t.Errorf("room not preserved across switch: %s != %s", r1.ID, r3.ID)
	}

	rooms, err := m.History(ctx, 1)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(rooms) != 2 {
		t.Errorf("rooms = %d, want 2", len(rooms))
	}
}

func TestActiveRoom(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()

	if _, _, err := m.ActiveRoom(ctx, 1); !errors.Is(err, ErrNoActiveAgent) {
		t.Errorf("before select: err = %v, want ErrNoActiveAgent", err)
	}

	if _, err := m.SelectAgent(ctx, 1, "Sophia"); err != nil {
		t.Fatalf("SelectAgent: %v", err)
	}
	room, agent, err := m.ActiveRoom(ctx, 1)
	if err != nil {
		t.Fatalf("ActiveRoom: %v", err)
	}
	if room.AgentName != "Sophia" || agent.Name != "Sophia" {
		t.Errorf("active = %q/%q, want Sophia", room.AgentName, agent.Name)
	}

	if err := m.Clear(ctx, 1); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, _, err := m.ActiveRoom(ctx, 1); !errors.Is(err, ErrNoActiveAgent) {
		t.Errorf("after clear: err = %v, want ErrNoActiveAgent", err)
	}
}

func TestSelectRetiredAgent(t *testing.T) {
	m, stores := setup(t)
	ctx := context.Background()

	if err := stores.Agents.SetMode(ctx, "Elena", store.ModeRetired); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if _, err := m.SelectAgent(ctx, 1, "Elena"); !errors.Is(err, store.ErrAgentNotFound) {
		t.Errorf("err = %v, want ErrAgentNotFound", err)
	}
}

func TestSelectUnknownAgent(t *testing.T) {
	m, _ := setup(t)

	if _, err := m.SelectAgent(context.Background(), 1, "Nobody"); !errors.Is(err, store.ErrAgentNotFound) {
		t.Errorf("err = %v, want ErrAgentNotFound", err)
	}
}
