package telegram

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/synchearts/relay/internal/bus"
)

// handleMessage classifies a Telegram message into the bus's inbound kinds.
// Operator and user traffic split on the configured operator chat; the
// router re-validates the sender before executing anything privileged.
func (c *Channel) handleMessage(ctx context.Context, m *telego.Message) {
	if m.From == nil {
		return
	}
	sender := m.From

	if !c.allowMessage(sender.ID) {
		slog.Debug("rate limited", "user_id", sender.ID)
		return
	}

	inbound := bus.InboundMessage{
		Channel:   c.Name(),
		SenderID:  sender.ID,
		ChatID:    m.Chat.ID,
		FirstName: sender.FirstName,
		Username:  sender.Username,
		Text:      m.Text,
		MessageID: m.MessageID,
	}

	// Web-app payloads carry the structured interaction requests from the
	// selection surface.
	if m.WebAppData != nil {
		interaction, err := parseInteraction(m.WebAppData.Data)
		if err != nil {
			slog.Warn("bad web app payload", "user_id", sender.ID, "error", err)
			return
		}
		inbound.Kind = bus.KindInteraction
		inbound.Interaction = interaction
		c.Bus().PublishInbound(inbound)
		return
	}

	if c.isOperatorChat(m.Chat.ID) {
		c.handleOperatorMessage(ctx, m, inbound)
		return
	}

	switch {
	case strings.HasPrefix(m.Text, "/start"):
		inbound.Kind = bus.KindUserStart
	case m.Text != "":
		inbound.Kind = bus.KindUserText
	default:
		// Media from users has no routing meaning yet.
		slog.Debug("non-text user message skipped", "user_id", sender.ID)
		return
	}
	c.Bus().PublishInbound(inbound)
}

func (c *Channel) handleOperatorMessage(_ context.Context, m *telego.Message, inbound bus.InboundMessage) {
	if len(m.Photo) > 0 {
		// Highest resolution is last.
		photo := m.Photo[len(m.Photo)-1]
		inbound.Kind = bus.KindOperatorPhoto
		inbound.PhotoFileID = photo.FileID
		go c.archiveProfilePhoto(photo.FileID)
		c.Bus().PublishInbound(inbound)
		return
	}

	if m.ReplyToMessage != nil && m.Text != "" {
		inbound.Kind = bus.KindOperatorReply
		inbound.ReplyToMessageID = m.ReplyToMessage.MessageID
		inbound.ReplyToText = m.ReplyToMessage.Text
		c.Bus().PublishInbound(inbound)
		return
	}

	if m.Text == "" {
		return
	}
	inbound.Kind = bus.KindOperatorCommand
	c.Bus().PublishInbound(inbound)
}

func (c *Channel) isOperatorChat(chatID int64) bool {
	return c.config.OperatorID != 0 && chatID == c.config.OperatorID
}

// parseInteraction decodes the web-app JSON payload.
func parseInteraction(data string) (*bus.Interaction, error) {
	var in bus.Interaction
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, err
	}
	return &in, nil
}
