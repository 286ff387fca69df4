package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/synchearts/relay/internal/bus"
	"github.com/synchearts/relay/internal/replies"
)

// handleOperatorReply relays an operator's reply-to-a-forward back to the
// origin user, attributed to the bound agent. Resolution order: the dispatch
// record keyed by the replied-to message id, then the text marker in the
// quoted forward. An unresolvable reply notifies the operator and sends
// nothing.
func (r *Router) handleOperatorReply(ctx context.Context, msg bus.InboundMessage) error {
	if msg.SenderID != r.cfg.OperatorID {
		slog.Debug("reply from non-operator ignored", "sender_id", msg.SenderID)
		return nil
	}
	if msg.ReplyToMessageID == 0 || msg.Text == "" {
		return nil
	}

	userID, agentName, err := r.resolveForward(ctx, msg)
	if err != nil {
		slog.Warn("operator reply unresolvable",
			"reply_to_message_id", msg.ReplyToMessageID, "error", err)
		r.send(msg, msgReplyNoMatch)
		return nil
	}

	user, err := r.users.Get(ctx, userID)
	if err != nil {
		r.send(msg, msgReplyNoMatch)
		return fmt.Errorf("resolve reply target %d: %w", userID, err)
	}

	if agentName == "" {
		agentName = user.CurrentAgent
	}

	// Deliver verbatim to the user; the chat already presents as the agent.
	r.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  user.ID,
		Content: msg.Text,
	})
	r.send(msg, fmt.Sprintf(msgSentAs, agentName))
	slog.Info("operator reply relayed", "user_id", user.ID, "agent", agentName)
	return nil
}

// resolveForward recovers (user, agent) for a replied-to forward.
func (r *Router) resolveForward(ctx context.Context, msg bus.InboundMessage) (int64, string, error) {
	d, err := r.disp.Lookup(ctx, msg.ReplyToMessageID)
	if err != nil {
		return 0, "", fmt.Errorf("dispatch lookup: %w", err)
	}
	if d != nil {
		return d.UserID, d.AgentName, nil
	}

	// No dispatch record (pruned, or the forward predates this process).
	// Fall back to the marker embedded in the quoted text.
	userID, err := replies.ParseForwardUserID(msg.ReplyToText)
	if errors.Is(err, replies.ErrNoMarker) {
		return 0, "", ErrUnresolvableReply
	}
	if err != nil {
		return 0, "", err
	}
	return userID, "", nil
}
