package router

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/synchearts/relay/internal/bus"
	"github.com/synchearts/relay/internal/store"
)

// The guided agent-creation flow is an explicit per-operator state machine:
// /newagent starts it, the next text message names the agent, photo uploads
// accumulate until the operator says "done" or cancels. State lives only for
// the duration of the flow.

type flowState int

const (
	flowAwaitingName flowState = iota
	flowAwaitingPhotos
)

const maxFlowPhotos = 5

type newAgentFlow struct {
	state  flowState
	name   string
	photos []string
}

type flowTable struct {
	mu    sync.Mutex
	flows map[int64]*newAgentFlow
}

func newFlowTable() *flowTable {
	return &flowTable{flows: make(map[int64]*newAgentFlow)}
}

func (t *flowTable) start(operatorID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flows[operatorID] = &newAgentFlow{state: flowAwaitingName}
}

func (t *flowTable) active(operatorID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.flows[operatorID]
	return ok
}

func (t *flowTable) get(operatorID int64) *newAgentFlow {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flows[operatorID]
}

func (t *flowTable) cancel(operatorID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.flows[operatorID]
	delete(t.flows, operatorID)
	return ok
}

// flowText advances the flow with a text message from the operator.
func (r *Router) flowText(ctx context.Context, msg bus.InboundMessage) error {
	flow := r.flows.get(msg.SenderID)
	if flow == nil {
		return nil
	}

	switch flow.state {
	case flowAwaitingName:
		name := strings.TrimSpace(msg.Text)
		if name == "" || strings.HasPrefix(name, "/") {
			r.send(msg, "Send the agent's name as plain text.")
			return nil
		}
		if _, err := r.dir.Get(ctx, name); err == nil {
			r.send(msg, fmt.Sprintf("Agent %q already exists. Pick another name or /cancel.", name))
			return nil
		}
		flow.name = name
		flow.state = flowAwaitingPhotos
		r.send(msg, fmt.Sprintf("Got it. Now send up to %d photos for %s, then say \"done\".", maxFlowPhotos, name))
		return nil

	case flowAwaitingPhotos:
		if strings.EqualFold(strings.TrimSpace(msg.Text), "done") {
			return r.flowFinish(ctx, msg, flow)
		}
		r.send(msg, "Send photos, or say \"done\" to finish.")
		return nil
	}
	return nil
}

// handleOperatorPhoto feeds a photo upload into the active flow. Photos
// outside a flow are ignored.
func (r *Router) handleOperatorPhoto(ctx context.Context, msg bus.InboundMessage) error {
	if msg.SenderID != r.cfg.OperatorID {
		return nil
	}
	flow := r.flows.get(msg.SenderID)
	if flow == nil || flow.state != flowAwaitingPhotos || msg.PhotoFileID == "" {
		return nil
	}

	flow.photos = append(flow.photos, msg.PhotoFileID)
	if len(flow.photos) >= maxFlowPhotos {
		return r.flowFinish(ctx, msg, flow)
	}
	r.send(msg, fmt.Sprintf("Photo %d/%d saved. Send more or say \"done\".", len(flow.photos), maxFlowPhotos))
	return nil
}

func (r *Router) flowFinish(ctx context.Context, msg bus.InboundMessage, flow *newAgentFlow) error {
	defer r.flows.cancel(msg.SenderID)

	if err := r.dir.Register(ctx, &store.Agent{
		Name:           flow.name,
		Mode:           store.ModeAuto,
		OperatorChatID: msg.ChatID,
	}); err != nil {
		return fmt.Errorf("register agent: %w", err)
	}
	if len(flow.photos) > 0 {
		if err := r.dir.SetPhotos(ctx, flow.name, flow.photos); err != nil {
			return fmt.Errorf("save photos: %w", err)
		}
	}
	r.send(msg, fmt.Sprintf("%s created with %d photos. Use /online %s to take over her chats.",
		flow.name, len(flow.photos), flow.name))
	return nil
}
