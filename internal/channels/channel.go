// Package channels provides the transport abstraction layer. Channels
// connect external messaging platforms to the relay core via the message
// bus.
package channels

import (
	"context"

	"github.com/synchearts/relay/internal/bus"
)

// Channel defines the interface that all transport implementations must
// satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g. "telegram").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning reports whether the channel is actively processing messages.
	IsRunning() bool
}

// BaseChannel provides shared state for channel implementations, which
// should embed it.
type BaseChannel struct {
	name    string
	bus     *bus.MessageBus
	running bool
}

func NewBaseChannel(name string, msgBus *bus.MessageBus) *BaseChannel {
	return &BaseChannel{name: name, bus: msgBus}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning reports whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// Bus returns the message bus reference.
func (c *BaseChannel) Bus() *bus.MessageBus { return c.bus }

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
