package bus

import "context"

// Kind distinguishes the inbound event streams carried by the bus.
type Kind string

const (
	// KindUserText is a plain text message from an end user.
	KindUserText Kind = "user_text"
	// KindUserStart is the first-contact command (/start) from a user.
	KindUserStart Kind = "user_start"
	// KindInteraction is a structured request from the selection web app
	// (select_agent, paid interaction, wallet/chats navigation, register).
	KindInteraction Kind = "interaction"
	// KindOperatorReply is an operator message that replies to a previously
	// forwarded message. ReplyToMessageID and ReplyToText identify the forward.
	KindOperatorReply Kind = "operator_reply"
	// KindOperatorCommand is an administrative command arriving on the
	// operator channel (/online, /offline, /credits, ...). The router
	// validates the sender before executing anything.
	KindOperatorCommand Kind = "operator_command"
	// KindOperatorPhoto is a photo upload on the operator channel, consumed
	// by the new-agent admin flow.
	KindOperatorPhoto Kind = "operator_photo"
)

// InboundMessage is an event received from a transport channel.
type InboundMessage struct {
	Channel          string            `json:"channel"`
	Kind             Kind              `json:"kind"`
	SenderID         int64             `json:"sender_id"`
	ChatID           int64             `json:"chat_id"`
	FirstName        string            `json:"first_name,omitempty"`
	Username         string            `json:"username,omitempty"`
	Text             string            `json:"text,omitempty"`
	MessageID        int               `json:"message_id,omitempty"`
	ReplyToMessageID int               `json:"reply_to_message_id,omitempty"`
	ReplyToText      string            `json:"reply_to_text,omitempty"`
	PhotoFileID      string            `json:"photo_file_id,omitempty"`
	Interaction      *Interaction      `json:"interaction,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Interaction is the payload the selection surface sends through the
// transport's web-app data channel.
type Interaction struct {
	Action    string `json:"action"`               // select_agent | interaction | open_wallet | open_chats | register
	AgentName string `json:"agent_name,omitempty"` // target agent persona
	SubType   string `json:"sub_type,omitempty"`   // text | gift | pic | video
	Cost      int64  `json:"cost,omitempty"`       // credits; 0 for free actions
}

// OutboundMessage is a message to be delivered by a transport channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   int64             `json:"chat_id"`
	Content  string            `json:"content"`
	Typing   bool              `json:"typing,omitempty"` // show a typing indicator before delivery
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Event is a server-side event broadcast to subscribers.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
}

// Event names.
const (
	EventForwardSent     = "relay.forward_sent"      // payload: ForwardSent
	EventDeliveryFailed  = "relay.delivery_failed"   // payload: DeliveryFailed
	EventAgentModeChange = "relay.agent_mode_change" // payload: agent name string
)

// ForwardSent reports a user message forwarded to an operator channel,
// carrying the transport message id the dispatch store keys on.
type ForwardSent struct {
	MessageID int    `json:"message_id"`
	UserID    int64  `json:"user_id"`
	Agent     string `json:"agent"`
}

// DeliveryFailed reports an outbound send that failed after any debit had
// already been applied. Credits pay for the attempt; this is operator-facing
// remediation data, not a refund trigger.
type DeliveryFailed struct {
	ChatID int64  `json:"chat_id"`
	Reason string `json:"reason"`
}

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// MessageRouter abstracts inbound/outbound routing between transport
// channels and the relay core.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
