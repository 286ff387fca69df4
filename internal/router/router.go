// Package router is the relay's decision engine. It drains the inbound bus
// and, per message, decides between rejection notices, automated replies,
// and operator forwards, debiting the ledger atomically with the decision.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/synchearts/relay/internal/bus"
	"github.com/synchearts/relay/internal/directory"
	"github.com/synchearts/relay/internal/ledger"
	"github.com/synchearts/relay/internal/replies"
	"github.com/synchearts/relay/internal/responder"
	"github.com/synchearts/relay/internal/sessions"
	"github.com/synchearts/relay/internal/store"
)

// User- and operator-facing notice texts.
const (
	msgSelectFirst   = "Please select an agent first! Tap the button below to browse who's online \U0001F447"
	msgOutOfCredits  = "You're out of credits! \U0001F4B3 Top up your wallet to keep chatting."
	msgWelcome       = "Welcome to Sync Hearts! \U0001F498 You've received %d free credits. Pick someone to chat with below."
	msgConnected     = "You are now connected with %s \U0001F4AC Say hi!"
	msgAgentGone     = "That agent isn't available right now. Pick someone else \U0001F447"
	msgWalletBalance = "Your balance: %d credits \U0001F4B0"
	msgNoChats       = "You haven't chatted with anyone yet. Pick an agent to start!"
	msgSentAs        = "Sent as %s ✅"
	msgReplyNoMatch  = "Couldn't match that reply to a user. Reply directly to a forwarded message."
)

// Config carries the router's policy knobs.
type Config struct {
	// OperatorID is the fixed privileged identity for administrative
	// commands and reply relaying.
	OperatorID int64
	// StartingCredits is granted to a user on first contact.
	StartingCredits int64
	// TextCost is the charge for one auto-mode text message.
	TextCost int64
	// MeterAssisted debits assisted-mode messages identically to auto mode.
	// Off by default: assisted turns are metered by the business, not the
	// relay.
	MeterAssisted bool
}

// Router consumes inbound bus messages and publishes outbound ones.
type Router struct {
	bus    *bus.MessageBus
	ledger *ledger.Ledger
	dir    *directory.Directory
	sess   *sessions.Manager
	users  store.UserStore
	disp   store.DispatchStore
	resp   *responder.Responder
	cfg    Config
	tracer trace.Tracer

	flows *flowTable
}

func New(b *bus.MessageBus, stores *store.Stores, resp *responder.Responder, cfg Config) *Router {
	if cfg.TextCost <= 0 {
		cfg.TextCost = ledger.DefaultMessageCost
	}
	return &Router{
		bus:    b,
		ledger: ledger.New(stores.Users),
		dir:    directory.New(stores.Agents),
		sess:   sessions.NewManager(stores.Users, stores.Agents, stores.Rooms),
		users:  stores.Users,
		disp:   stores.Dispatches,
		resp:   resp,
		cfg:    cfg,
		tracer: otel.Tracer("relay/router"),
		flows:  newFlowTable(),
	}
}

// Run drains the inbound bus until ctx is cancelled. A single consumer
// keeps per-user arrival order for debit decisions; slow work (presence
// delay, outbound delivery) runs in per-message goroutines.
func (r *Router) Run(ctx context.Context) {
	r.bus.Subscribe("router", func(ev bus.Event) { r.handleEvent(ctx, ev) })
	defer r.bus.Unsubscribe("router")

	slog.Info("router started", "operator_id", r.cfg.OperatorID, "meter_assisted", r.cfg.MeterAssisted)
	for {
		msg, ok := r.bus.ConsumeInbound(ctx)
		if !ok {
			slog.Info("router stopped")
			return
		}
		r.handle(ctx, msg)
	}
}

func (r *Router) handle(ctx context.Context, msg bus.InboundMessage) {
	ctx, span := r.tracer.Start(ctx, "router.handle",
		trace.WithAttributes(
			attribute.String("relay.kind", string(msg.Kind)),
			attribute.String("relay.channel", msg.Channel),
			attribute.Int64("relay.sender_id", msg.SenderID),
		))
	defer span.End()

	var err error
	switch msg.Kind {
	case bus.KindUserStart:
		err = r.handleStart(ctx, msg)
	case bus.KindUserText:
		err = r.handleUserText(ctx, msg)
	case bus.KindInteraction:
		err = r.handleInteraction(ctx, msg)
	case bus.KindOperatorReply:
		err = r.handleOperatorReply(ctx, msg)
	case bus.KindOperatorCommand:
		err = r.handleOperatorCommand(ctx, msg)
	case bus.KindOperatorPhoto:
		err = r.handleOperatorPhoto(ctx, msg)
	default:
		slog.Warn("unknown inbound kind", "kind", msg.Kind)
	}
	if err != nil {
		span.RecordError(err)
		slog.Error("handler failed", "kind", msg.Kind, "sender_id", msg.SenderID, "error", err)
	}
}

func (r *Router) handleEvent(ctx context.Context, ev bus.Event) {
	switch ev.Name {
	case bus.EventForwardSent:
		fwd, ok := ev.Payload.(bus.ForwardSent)
		if !ok {
			return
		}
		if err := r.disp.Record(ctx, &store.Dispatch{
			MessageID: fwd.MessageID,
			UserID:    fwd.UserID,
			AgentName: fwd.Agent,
		}); err != nil {
			slog.Error("record dispatch failed", "message_id", fwd.MessageID, "error", err)
		}
	case bus.EventDeliveryFailed:
		df, ok := ev.Payload.(bus.DeliveryFailed)
		if !ok {
			return
		}
		// Credits pay for the attempt; surface the failure to the operator
		// for manual remediation instead of refunding.
		r.notifyOperator(fmt.Sprintf("Delivery to chat %d failed: %s", df.ChatID, df.Reason))
	}
}

func (r *Router) handleStart(ctx context.Context, msg bus.InboundMessage) error {
	u, err := r.users.GetOrCreate(ctx, msg.SenderID, msg.FirstName, msg.Username, r.cfg.StartingCredits)
	if err != nil {
		return fmt.Errorf("materialize user: %w", err)
	}
	slog.Info("user started", "user_id", u.ID, "credits", u.Credits)
	r.sendWithPicker(msg, fmt.Sprintf(msgWelcome, r.cfg.StartingCredits))
	return nil
}

// handleUserText runs the per-message state machine: no session, then
// assisted forward, then auto debit-and-respond. First match wins.
func (r *Router) handleUserText(ctx context.Context, msg bus.InboundMessage) error {
	user, err := r.users.GetOrCreate(ctx, msg.SenderID, msg.FirstName, msg.Username, r.cfg.StartingCredits)
	if err != nil {
		return fmt.Errorf("materialize user: %w", err)
	}

	_, agent, err := r.sess.ActiveRoom(ctx, user.ID)
	if errors.Is(err, sessions.ErrNoActiveAgent) {
		r.sendWithPicker(msg, msgSelectFirst)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}

	if agent.Mode == store.ModeAssisted {
		if r.cfg.MeterAssisted {
			if err := r.ledger.Debit(ctx, user.ID, r.cfg.TextCost); err != nil {
				if errors.Is(err, ledger.ErrInsufficientFunds) {
					r.send(msg, msgOutOfCredits)
					return nil
				}
				return err
			}
		}
		r.forward(msg, user, agent, msg.Text)
		return nil
	}

	// auto mode
	if err := r.ledger.Debit(ctx, user.ID, r.cfg.TextCost); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			r.send(msg, msgOutOfCredits)
			return nil
		}
		return err
	}
	r.respondLater(ctx, msg, agent.Name)
	return nil
}

func (r *Router) handleInteraction(ctx context.Context, msg bus.InboundMessage) error {
	if msg.Interaction == nil {
		return nil
	}
	user, err := r.users.GetOrCreate(ctx, msg.SenderID, msg.FirstName, msg.Username, r.cfg.StartingCredits)
	if err != nil {
		return fmt.Errorf("materialize user: %w", err)
	}

	in := msg.Interaction
	switch in.Action {
	case "register":
		// Materialized above; nothing else to do.
		return nil

	case "open_wallet":
		balance, err := r.ledger.Balance(ctx, user.ID)
		if err != nil {
			return err
		}
		r.send(msg, fmt.Sprintf(msgWalletBalance, balance))
		return nil

	case "open_chats":
		rooms, err := r.sess.History(ctx, user.ID)
		if err != nil {
			return err
		}
		if len(rooms) == 0 {
			r.send(msg, msgNoChats)
			return nil
		}
		content := "Your chats:\n"
		for _, room := range rooms {
			content += "• " + room.AgentName + "\n"
		}
		r.send(msg, content)
		return nil

	case "select_agent":
		_, err := r.sess.SelectAgent(ctx, user.ID, in.AgentName)
		if errors.Is(err, store.ErrAgentNotFound) {
			r.send(msg, msgAgentGone)
			return nil
		}
		if err != nil {
			return err
		}
		r.send(msg, fmt.Sprintf(msgConnected, in.AgentName))
		return nil

	case "interaction":
		return r.handlePaidInteraction(ctx, msg, user)

	default:
		slog.Warn("unknown interaction action", "action", in.Action, "user_id", user.ID)
		return nil
	}
}

// handlePaidInteraction charges the declared cost before any other effect.
// A cost the balance cannot cover leaves binding and rooms untouched.
func (r *Router) handlePaidInteraction(ctx context.Context, msg bus.InboundMessage, user *store.User) error {
	in := msg.Interaction
	cost := in.Cost
	if cost <= 0 {
		cost = r.cfg.TextCost
	}

	target := in.AgentName
	if target == "" {
		target = user.CurrentAgent
	}
	if target == "" {
		r.sendWithPicker(msg, msgSelectFirst)
		return nil
	}
	agent, err := r.dir.Get(ctx, target)
	if errors.Is(err, store.ErrAgentNotFound) {
		r.send(msg, msgAgentGone)
		return nil
	}
	if err != nil {
		return err
	}
	if agent.Mode == store.ModeRetired {
		r.send(msg, msgAgentGone)
		return nil
	}

	if err := r.ledger.Debit(ctx, user.ID, cost); err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			r.send(msg, msgOutOfCredits)
			return nil
		}
		return err
	}

	// Debit landed; only now may the binding change.
	if _, err := r.sess.SelectAgent(ctx, user.ID, target); err != nil {
		return err
	}

	desc := in.SubType
	if desc == "" {
		desc = "text"
	}
	if agent.Mode == store.ModeAssisted {
		r.forward(msg, user, agent, fmt.Sprintf("[%s request, %d credits]", desc, cost))
		return nil
	}
	r.respondLater(ctx, msg, agent.Name)
	return nil
}

// forward relays a user message to the agent's operator channel with the
// addressing marker on the first line. The transport reports the resulting
// message id back as a ForwardSent event for the dispatch store.
func (r *Router) forward(msg bus.InboundMessage, user *store.User, agent *store.Agent, text string) {
	chatID := agent.OperatorChatID
	if chatID == 0 {
		chatID = r.cfg.OperatorID
	}
	r.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  chatID,
		Content: replies.BuildForward(user.ID, user.FirstName, user.Username, agent.Name, text),
		Metadata: map[string]string{
			"forward_user_id": fmt.Sprintf("%d", user.ID),
			"forward_agent":   agent.Name,
		},
	})
	slog.Info("message forwarded", "user_id", user.ID, "agent", agent.Name)
}

// respondLater delivers an automated reply after the presence delay. The
// delay runs off the consumer goroutine so other users are not held up.
func (r *Router) respondLater(ctx context.Context, msg bus.InboundMessage, agentName string) {
	r.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Typing:  true,
	})
	reply := r.resp.Reply(agentName)
	delay := r.resp.Delay()
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		r.bus.PublishOutbound(bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: reply,
		})
	}()
}

// sendWithPicker attaches the agent-browser keyboard when the transport has
// a web app configured.
func (r *Router) sendWithPicker(msg bus.InboundMessage, content string) {
	r.bus.PublishOutbound(bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		Content:  content,
		Metadata: map[string]string{"keyboard": "webapp"},
	})
}

// send publishes a plain notice back to the message's chat.
func (r *Router) send(msg bus.InboundMessage, content string) {
	r.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: content,
	})
}

func (r *Router) notifyOperator(content string) {
	if r.cfg.OperatorID == 0 {
		return
	}
	r.bus.PublishOutbound(bus.OutboundMessage{
		Channel:  "telegram",
		ChatID:   r.cfg.OperatorID,
		Content:  content,
		Metadata: map[string]string{"suppress_failure_report": "1"},
	})
}
