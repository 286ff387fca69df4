// Package memory holds an in-memory implementation of the relay stores.
// Used by tests and by ephemeral runs where no persistence is wanted.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/synchearts/relay/internal/store"
)

// NewStores returns a fully in-memory store container.
func NewStores() *store.Stores {
	return &store.Stores{
		Users:      NewUserStore(),
		Agents:     NewAgentStore(),
		Rooms:      NewRoomStore(),
		Dispatches: NewDispatchStore(),
		Close:      func() error { return nil },
	}
}

// --- users ---

type UserStore struct {
	mu    sync.Mutex
	users map[int64]*store.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[int64]*store.User)}
}

func (s *UserStore) GetOrCreate(_ context.Context, id int64, firstName, username string, startingCredits int64) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		u = &store.User{ID: id, FirstName: firstName, Username: username, Credits: startingCredits, CreatedAt: time.Now()}
		s.users[id] = u
	} else {
		if firstName != "" {
			u.FirstName = firstName
		}
		if username != "" {
			u.Username = username
		}
	}
	cp := *u
	return &cp, nil
}

func (s *UserStore) Get(_ context.Context, id int64) (*store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *UserStore) TryDebit(_ context.Context, id int64, amount int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.Credits < amount {
		return false, nil
	}
	u.Credits -= amount
	return true, nil
}

func (s *UserStore) Credit(_ context.Context, id int64, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrUserNotFound
	}
	u.Credits += amount
	return nil
}

func (s *UserStore) SetCurrentAgent(_ context.Context, id int64, agentName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrUserNotFound
	}
	u.CurrentAgent = agentName
	return nil
}

// --- agents ---

type AgentStore struct {
	mu     sync.Mutex
	agents map[string]*store.Agent
}

func NewAgentStore() *AgentStore {
	return &AgentStore{agents: make(map[string]*store.Agent)}
}

func (s *AgentStore) Get(_ context.Context, name string) (*store.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[name]
	if !ok {
		return nil, store.ErrAgentNotFound
	}
	cp := *a
	cp.PhotoFileIDs = append([]string(nil), a.PhotoFileIDs...)
	return &cp, nil
}

func (s *AgentStore) Upsert(_ context.Context, agent *store.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	existing, ok := s.agents[agent.Name]
	if !ok {
		cp := *agent
		if cp.Mode == "" {
			cp.Mode = store.ModeAuto
		}
		cp.CreatedAt = now
		cp.UpdatedAt = now
		s.agents[agent.Name] = &cp
		return nil
	}
	existing.Mode = agent.Mode
	if agent.OperatorChatID != 0 {
		existing.OperatorChatID = agent.OperatorChatID
	}
	existing.UpdatedAt = now
	return nil
}

func (s *AgentStore) SetMode(_ context.Context, name, mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[name]
	if !ok {
		return store.ErrAgentNotFound
	}
	a.Mode = mode
	a.UpdatedAt = time.Now()
	return nil
}

func (s *AgentStore) SetImageURL(_ context.Context, name, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[name]
	if !ok {
		return store.ErrAgentNotFound
	}
	a.ImageURL = url
	a.UpdatedAt = time.Now()
	return nil
}

func (s *AgentStore) SetPhotoFileIDs(_ context.Context, name string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[name]
	if !ok {
		return store.ErrAgentNotFound
	}
	a.PhotoFileIDs = append([]string(nil), ids...)
	a.UpdatedAt = time.Now()
	return nil
}

func (s *AgentStore) List(_ context.Context) ([]store.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]store.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// --- rooms ---

type roomKey struct {
	userID int64
	agent  string
}

type RoomStore struct {
	mu    sync.Mutex
	rooms map[roomKey]*store.Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[roomKey]*store.Room)}
}

func (s *RoomStore) Ensure(_ context.Context, userID int64, agentName string) (*store.Room, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := roomKey{userID, agentName}
	if r, ok := s.rooms[key]; ok {
		cp := *r
		return &cp, false, nil
	}
	r := &store.Room{
		ID:        uuid.Must(uuid.NewV7()),
		UserID:    userID,
		AgentName: agentName,
		CreatedAt: time.Now(),
	}
	s.rooms[key] = r
	cp := *r
	return &cp, true, nil
}

func (s *RoomStore) Get(_ context.Context, userID int64, agentName string) (*store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomKey{userID, agentName}]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *RoomStore) ListByUser(_ context.Context, userID int64) ([]store.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []store.Room
	for _, r := range s.rooms {
		if r.UserID == userID {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *RoomStore) CountByAgent(_ context.Context, agentName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rooms {
		if r.AgentName == agentName {
			n++
		}
	}
	return n, nil
}

// --- dispatches ---

type DispatchStore struct {
	mu         sync.Mutex
	dispatches map[int]*store.Dispatch
}

func NewDispatchStore() *DispatchStore {
	return &DispatchStore{dispatches: make(map[int]*store.Dispatch)}
}

func (s *DispatchStore) Record(_ context.Context, d *store.Dispatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.dispatches[d.MessageID] = &cp
	return nil
}

func (s *DispatchStore) Lookup(_ context.Context, messageID int) (*store.Dispatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dispatches[messageID]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (s *DispatchStore) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, d := range s.dispatches {
		if d.CreatedAt.Before(olderThan) {
			delete(s.dispatches, id)
			n++
		}
	}
	return n, nil
}
