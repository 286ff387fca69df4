package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/synchearts/relay/internal/bus"
	"github.com/synchearts/relay/internal/store"
)

const adminHelp = `Admin commands:
/online <name> - put an agent in assisted mode (creates it if new)
/offline <name> - put an agent back in auto mode
/setimage <name> <url> - set an agent's profile image
/credits <user_id> <amount> - grant credits to a user
/newagent - create an agent (guided: name, then photos)
/retire <name> - retire an agent permanently
/cancel - abort the current guided flow`

// handleOperatorCommand executes administrative commands. A command from
// any identity other than the configured operator is a no-op: nothing
// mutates and nothing is sent back.
func (r *Router) handleOperatorCommand(ctx context.Context, msg bus.InboundMessage) error {
	if msg.SenderID != r.cfg.OperatorID {
		slog.Debug("admin command from non-operator ignored",
			"sender_id", msg.SenderID, "text", msg.Text)
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		// Free-form operator text feeds the guided flow when one is active.
		if r.flows.active(msg.SenderID) {
			return r.flowText(ctx, msg)
		}
		return nil
	}

	fields := strings.Fields(text)
	command := strings.ToLower(fields[0])
	args := fields[1:]

	switch command {
	case "/admin":
		r.send(msg, adminHelp)
		return nil

	case "/online":
		return r.cmdSetMode(ctx, msg, args, store.ModeAssisted)

	case "/offline":
		return r.cmdSetMode(ctx, msg, args, store.ModeAuto)

	case "/setimage":
		if len(args) < 2 {
			r.send(msg, "Usage: /setimage <name> <url>")
			return nil
		}
		if err := r.dir.SetImageURL(ctx, args[0], args[1]); err != nil {
			if errors.Is(err, store.ErrAgentNotFound) {
				r.send(msg, fmt.Sprintf("Agent %q not found.", args[0]))
				return nil
			}
			return err
		}
		r.send(msg, fmt.Sprintf("Image updated for %s.", args[0]))
		return nil

	case "/credits":
		return r.cmdGrantCredits(ctx, msg, args)

	case "/newagent":
		r.flows.start(msg.SenderID)
		r.send(msg, "Creating a new agent. What's her name?")
		return nil

	case "/retire":
		if len(args) < 1 {
			r.send(msg, "Usage: /retire <name>")
			return nil
		}
		if err := r.dir.Retire(ctx, args[0]); err != nil {
			if errors.Is(err, store.ErrAgentNotFound) {
				r.send(msg, fmt.Sprintf("Agent %q not found.", args[0]))
				return nil
			}
			return err
		}
		r.send(msg, fmt.Sprintf("%s retired. Existing chats are preserved.", args[0]))
		return nil

	case "/cancel":
		if r.flows.cancel(msg.SenderID) {
			r.send(msg, "Flow cancelled.")
		}
		return nil

	default:
		slog.Debug("unknown admin command", "command", command)
		return nil
	}
}

func (r *Router) cmdSetMode(ctx context.Context, msg bus.InboundMessage, args []string, mode string) error {
	if len(args) < 1 {
		r.send(msg, "Usage: "+map[string]string{
			store.ModeAssisted: "/online <name>",
			store.ModeAuto:     "/offline <name>",
		}[mode])
		return nil
	}
	name := args[0]

	agent, err := r.dir.SetMode(ctx, name, mode, msg.ChatID)
	if errors.Is(err, store.ErrAgentNotFound) {
		r.send(msg, fmt.Sprintf("Agent %q not found.", name))
		return nil
	}
	if err != nil {
		return err
	}

	r.bus.Broadcast(bus.Event{Name: bus.EventAgentModeChange, Payload: agent.Name})
	if mode == store.ModeAssisted {
		r.send(msg, fmt.Sprintf("%s is now ONLINE. Her messages come to you.", agent.Name))
	} else {
		r.send(msg, fmt.Sprintf("%s is now OFFLINE. Auto replies take over.", agent.Name))
	}
	return nil
}

func (r *Router) cmdGrantCredits(ctx context.Context, msg bus.InboundMessage, args []string) error {
	if len(args) < 2 {
		r.send(msg, "Usage: /credits <user_id> <amount>")
		return nil
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		r.send(msg, "Invalid user id.")
		return nil
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount <= 0 {
		r.send(msg, "Invalid amount.")
		return nil
	}

	if err := r.ledger.Grant(ctx, userID, amount); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			r.send(msg, fmt.Sprintf("User %d not found.", userID))
			return nil
		}
		return err
	}
	balance, err := r.ledger.Balance(ctx, userID)
	if err != nil {
		return err
	}
	r.send(msg, fmt.Sprintf("Granted %d credits to %d. New balance: %d.", amount, userID, balance))
	return nil
}
