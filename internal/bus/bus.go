package bus

import (
	"context"
	"log/slog"
	"sync"
)

const defaultQueueSize = 256

// MessageBus is the in-process hub connecting transport channels to the
// relay core. Inbound and outbound streams are buffered channels; events
// fan out to named subscribers.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu       sync.RWMutex
	handlers map[string]EventHandler
}

// New creates a message bus with default queue sizes.
func New() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, defaultQueueSize),
		outbound: make(chan OutboundMessage, defaultQueueSize),
		handlers: make(map[string]EventHandler),
	}
}

// PublishInbound enqueues a message received from a channel. Drops with a
// warning when the queue is full rather than blocking the transport's
// polling goroutine.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
		slog.Warn("inbound queue full, dropping message",
			"channel", msg.Channel, "sender_id", msg.SenderID)
	}
}

// ConsumeInbound blocks until an inbound message is available or ctx is done.
// The second return is false when ctx was cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}

// PublishOutbound enqueues a message for delivery to a channel.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case b.outbound <- msg:
	default:
		slog.Warn("outbound queue full, dropping message",
			"channel", msg.Channel, "chat_id", msg.ChatID)
	}
}

// SubscribeOutbound blocks until an outbound message is available or ctx is
// done. The second return is false when ctx was cancelled.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case msg := <-b.outbound:
		return msg, true
	}
}

// Subscribe registers an event handler under an id, replacing any previous
// handler with the same id.
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = handler
}

// Unsubscribe removes an event handler.
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Broadcast delivers an event to all subscribers. Handlers must be
// non-blocking; long work belongs in a goroutine on the handler side.
func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
