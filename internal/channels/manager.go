package channels

import (
	"context"
	"log/slog"
	"sync"

	"github.com/synchearts/relay/internal/bus"
)

// Manager owns the registered channels: lifecycle plus routing of outbound
// messages to the right transport.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus

	mu           sync.RWMutex
	dispatchStop context.CancelFunc
}

// NewManager creates a channel manager. Channels are registered externally
// via RegisterChannel.
func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      msgBus,
	}
}

// RegisterChannel adds a channel to the manager.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

// GetChannel returns a channel by name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	channel, ok := m.channels[name]
	return channel, ok
}

// StartAll starts the outbound dispatch loop and every registered channel.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.dispatchStop = cancel
	go m.dispatchOutbound(dispatchCtx)

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	for name, channel := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := channel.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
		}
	}
	return nil
}

// StopAll gracefully stops the dispatcher and all channels.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dispatchStop != nil {
		m.dispatchStop()
		m.dispatchStop = nil
	}

	for name, channel := range m.channels {
		slog.Info("stopping channel", "channel", name)
		if err := channel.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
	return nil
}

// dispatchOutbound consumes outbound messages from the bus and routes them
// to the owning channel. A failed send is reported as a delivery-failure
// event; any debit tied to the message stands.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	slog.Info("outbound dispatcher started")
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			slog.Info("outbound dispatcher stopped")
			return
		}

		m.mu.RLock()
		channel, exists := m.channels[msg.Channel]
		m.mu.RUnlock()

		if !exists {
			slog.Warn("unknown channel for outbound message", "channel", msg.Channel)
			continue
		}

		if err := channel.Send(ctx, msg); err != nil {
			slog.Error("send failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
			// Operator notices opt out of failure reporting so a dead
			// operator chat cannot feed itself.
			if msg.Metadata["suppress_failure_report"] == "" {
				m.bus.Broadcast(bus.Event{
					Name:    bus.EventDeliveryFailed,
					Payload: bus.DeliveryFailed{ChatID: msg.ChatID, Reason: err.Error()},
				})
			}
		}
	}
}
