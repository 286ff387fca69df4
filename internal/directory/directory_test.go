package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/synchearts/relay/internal/store"
)

type fakeAgents struct {
	agents map[string]*store.Agent
}

func newFakeAgents() *fakeAgents {
	return &fakeAgents{agents: make(map[string]*store.Agent)}
}

func (f *fakeAgents) Get(_ context.Context, name string) (*store.Agent, error) {
	a, ok := f.agents[name]
	if !ok {
		return nil, store.ErrAgentNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAgents) Upsert(_ context.Context, agent *store.Agent) error {
	existing, ok := f.agents[agent.Name]
	if !ok {
		cp := *agent
		if cp.Mode == "" {
			cp.Mode = store.ModeAuto
		}
		cp.CreatedAt = time.Now()
		f.agents[agent.Name] = &cp
		return nil
	}
	existing.Mode = agent.Mode
	if agent.OperatorChatID != 0 {
		existing.OperatorChatID = agent.OperatorChatID
	}
	return nil
}

func (f *fakeAgents) SetMode(_ context.Context, name, mode string) error {
	a, ok := f.agents[name]
	if !ok {
		return store.ErrAgentNotFound
	}
	a.Mode = mode
	return nil
}

func (f *fakeAgents) SetImageURL(_ context.Context, name, url string) error {
	a, ok := f.agents[name]
	if !ok {
		return store.ErrAgentNotFound
	}
	a.ImageURL = url
	return nil
}

func (f *fakeAgents) SetPhotoFileIDs(_ context.Context, name string, ids []string) error {
	a, ok := f.agents[name]
	if !ok {
		return store.ErrAgentNotFound
	}
	a.PhotoFileIDs = ids
	return nil
}

func (f *fakeAgents) List(_ context.Context) ([]store.Agent, error) {
	var result []store.Agent
	for _, a := range f.agents {
		result = append(result, *a)
	}
	return result, nil
}

func TestSetModeCreatesOnAssisted(t *testing.T) {
	agents := newFakeAgents()
	d := New(agents)
	ctx := context.Background()

	a, err := d.SetMode(ctx, "Sophia", store.ModeAssisted, 777)
	if err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if a.Mode != store.ModeAssisted {
		t.Errorf("mode = %q, want assisted", a.Mode)
	}
	if a.OperatorChatID != 777 {
		t.Errorf("operator chat = %d, want 777", a.OperatorChatID)
	}
}

func TestSetModeAutoOnMissingFails(t *testing.T) {
	d := New(newFakeAgents())

	_, err := d.SetMode(context.Background(), "Nobody", store.ModeAuto, 0)
	if !errors.Is(err, store.ErrAgentNotFound) {
		t.Errorf("err = %v, want ErrAgentNotFound", err)
	}
}

func TestSetModeRejectsInvalid(t *testing.T) {
	d := New(newFakeAgents())

	_, err := d.SetMode(context.Background(), "Sophia", "turbo", 0)
	if !errors.Is(err, ErrInvalidMode) {
		t.Errorf("err = %v, want ErrInvalidMode", err)
	}
}

func TestRetireKeepsAgentListed(t *testing.T) {
	agents := newFakeAgents()
	d := New(agents)
	ctx := context.Background()

	if err := d.Register(ctx, &store.Agent{Name: "Elena", Mode: store.ModeAuto}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := d.Retire(ctx, "Elena"); err != nil {
		t.Fatalf("Retire: %v", err)
	}

	a, err := d.Get(ctx, "Elena")
	if err != nil {
		t.Fatalf("Get after retire: %v", err)
	}
	if a.Mode != store.ModeRetired {
		t.Errorf("mode = %q, want retired", a.Mode)
	}

	active, err := d.Active(ctx)
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	for _, a := range active {
		if a.Name == "Elena" {
			t.Error("retired agent still listed as active")
		}
	}
}
