// Package telegram connects the relay to Telegram via the Bot API using
// long polling. It classifies updates into the bus's inbound kinds and
// delivers outbound messages, reporting forward message ids back to the
// core for reply correlation.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/synchearts/relay/internal/bus"
	"github.com/synchearts/relay/internal/channels"
	"github.com/synchearts/relay/internal/config"
)

// Channel is the Telegram transport.
type Channel struct {
	*channels.BaseChannel
	bot    *telego.Bot
	config config.TelegramConfig

	limiters   sync.Map // userID int64 → *rate.Limiter
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a Telegram channel from config.
func New(cfg config.TelegramConfig, msgBus *bus.MessageBus) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", msgBus),
		bot:         bot,
		config:      cfg,
	}, nil
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()
	return nil
}

// Stop cancels the long polling context and waits for the polling goroutine
// to exit so Telegram releases the getUpdates lock.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
			slog.Info("telegram bot stopped")
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// Send delivers an outbound message. A typing-only message sends a chat
// action and nothing else. Forwards report their Telegram message id back
// on the bus so the dispatch store can record them.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID := tu.ID(msg.ChatID)

	if msg.Typing {
		if err := c.bot.SendChatAction(ctx, tu.ChatAction(chatID, telego.ChatActionTyping)); err != nil {
			slog.Debug("chat action failed", "chat_id", msg.ChatID, "error", err)
		}
		if msg.Content == "" {
			return nil
		}
	}
	if msg.Content == "" {
		return nil
	}

	params := tu.Message(chatID, msg.Content)
	if msg.Metadata["keyboard"] == "webapp" && c.config.WebAppURL != "" {
		params = params.WithReplyMarkup(tu.Keyboard(
			tu.KeyboardRow(
				tu.KeyboardButton("\U0001F498 Browse agents").WithWebApp(&telego.WebAppInfo{URL: c.config.WebAppURL}),
			),
		).WithResizeKeyboard())
	}

	sent, err := c.bot.SendMessage(ctx, params)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	if userIDStr := msg.Metadata["forward_user_id"]; userIDStr != "" {
		userID, err := strconv.ParseInt(userIDStr, 10, 64)
		if err == nil {
			c.Bus().Broadcast(bus.Event{Name: bus.EventForwardSent, Payload: bus.ForwardSent{
				MessageID: sent.MessageID,
				UserID:    userID,
				Agent:     msg.Metadata["forward_agent"],
			}})
		}
	}
	return nil
}

// allowMessage applies the per-user inbound rate limit.
func (c *Channel) allowMessage(userID int64) bool {
	if c.config.RateLimitPerMin <= 0 {
		return true
	}
	v, _ := c.limiters.LoadOrStore(userID,
		rate.NewLimiter(rate.Limit(float64(c.config.RateLimitPerMin)/60.0), 5))
	return v.(*rate.Limiter).Allow()
}
