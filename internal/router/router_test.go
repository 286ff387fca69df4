package router

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/synchearts/relay/internal/bus"
	"github.com/synchearts/relay/internal/replies"
	"github.com/synchearts/relay/internal/responder"
	"github.com/synchearts/relay/internal/store"
	"github.com/synchearts/relay/internal/store/memory"
)

const (
	testOperator = int64(999000)
	testUser     = int64(386246614)
)

func setupRouter(t *testing.T, cfg Config) (*bus.MessageBus, *store.Stores) {
	t.Helper()
	if cfg.OperatorID == 0 {
		cfg.OperatorID = testOperator
	}
	if cfg.StartingCredits == 0 {
		cfg.StartingCredits = 50
	}

	b := bus.New()
	stores := memory.NewStores()
	resp := responder.New(responder.WithDelay(time.Millisecond))
	r := New(b, stores, resp, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.Run(ctx)
	// Give the consumer a beat to subscribe before tests broadcast events.
	time.Sleep(10 * time.Millisecond)
	return b, stores
}

func seedAgent(t *testing.T, stores *store.Stores, name, mode string, operatorChat int64) {
	t.Helper()
	err := stores.Agents.Upsert(context.Background(), &store.Agent{
		Name: name, Mode: mode, OperatorChatID: operatorChat,
	})
	if err != nil {
		t.Fatalf("seed agent: %v", err)
	}
}

func bindUser(t *testing.T, stores *store.Stores, userID int64, agent string, credits int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := stores.Users.GetOrCreate(ctx, userID, "Alice", "alice", credits); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, _, err := stores.Rooms.Ensure(ctx, userID, agent); err != nil {
		t.Fatalf("seed room: %v", err)
	}
	if err := stores.Users.SetCurrentAgent(ctx, userID, agent); err != nil {
		t.Fatalf("bind user: %v", err)
	}
}

func nextOutbound(t *testing.T, b *bus.MessageBus) bus.OutboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, ok := b.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("timed out waiting for outbound message")
	}
	return msg
}

func userText(text string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel: "telegram", Kind: bus.KindUserText,
		SenderID: testUser, ChatID: testUser,
		FirstName: "Alice", Username: "alice", Text: text,
	}
}

func TestNoActiveSession(t *testing.T) {
	b, stores := setupRouter(t, Config{})

	b.PublishInbound(userText("hi"))

	out := nextOutbound(t, b)
	if out.ChatID != testUser || !strings.Contains(out.Content, "select an agent") {
		t.Errorf("out = %+v, want selection prompt", out)
	}

	u, err := stores.Users.Get(context.Background(), testUser)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.Credits != 50 {
		t.Errorf("credits = %d, want 50 (no debit without a session)", u.Credits)
	}
}

func TestAutoModeDebitsAndReplies(t *testing.T) {
	b, stores := setupRouter(t, Config{})
	seedAgent(t, stores, "Sophia", store.ModeAuto, 0)
	bindUser(t, stores, testUser, "Sophia", 5)

	b.PublishInbound(userText("hello"))

	typing := nextOutbound(t, b)
	if !typing.Typing {
		t.Errorf("first outbound = %+v, want typing indicator", typing)
	}
	reply := nextOutbound(t, b)
	if reply.ChatID != testUser || reply.Content == "" {
		t.Errorf("reply = %+v, want automated content", reply)
	}

	u, _ := stores.Users.Get(context.Background(), testUser)
	if u.Credits != 4 {
		t.Errorf("credits = %d, want 4", u.Credits)
	}
}

func TestAutoModeInsufficientFunds(t *testing.T) {
	b, stores := setupRouter(t, Config{})
	seedAgent(t, stores, "Sophia", store.ModeAuto, 0)
	bindUser(t, stores, testUser, "Sophia", 0)

	b.PublishInbound(userText("hello"))

	out := nextOutbound(t, b)
	if !strings.Contains(out.Content, "out of credits") {
		t.Errorf("out = %q, want out-of-credits notice", out.Content)
	}

	u, _ := stores.Users.Get(context.Background(), testUser)
	if u.Credits != 0 {
		t.Errorf("credits = %d, want 0", u.Credits)
	}
}

func TestAssistedForwardNoDebit(t *testing.T) {
	b, stores := setupRouter(t, Config{})
	seedAgent(t, stores, "Sophia", store.ModeAssisted, testOperator)
	bindUser(t, stores, testUser, "Sophia", 50)

	b.PublishInbound(userText("are you there?"))

	out := nextOutbound(t, b)
	if out.ChatID != testOperator {
		t.Fatalf("forward chat = %d, want operator %d", out.ChatID, testOperator)
	}
	firstLine := strings.SplitN(out.Content, "\n", 2)[0]
	if firstLine != fmt.Sprintf("ID: %d", testUser) {
		t.Errorf("first line = %q, want marker", firstLine)
	}
	if !strings.Contains(out.Content, "are you there?") {
		t.Error("forward lost message text")
	}
	if out.Metadata["forward_user_id"] != fmt.Sprintf("%d", testUser) {
		t.Errorf("metadata = %v", out.Metadata)
	}

	u, _ := stores.Users.Get(context.Background(), testUser)
	if u.Credits != 50 {
		t.Errorf("credits = %d, want 50 (assisted is not metered)", u.Credits)
	}
}

func TestMeterAssistedDebits(t *testing.T) {
	b, stores := setupRouter(t, Config{MeterAssisted: true})
	seedAgent(t, stores, "Sophia", store.ModeAssisted, testOperator)
	bindUser(t, stores, testUser, "Sophia", 3)

	b.PublishInbound(userText("hi"))
	out := nextOutbound(t, b)
	if out.ChatID != testOperator {
		t.Fatalf("expected forward, got %+v", out)
	}

	u, _ := stores.Users.Get(context.Background(), testUser)
	if u.Credits != 2 {
		t.Errorf("credits = %d, want 2", u.Credits)
	}
}

func TestModeToggleChangesNextMessage(t *testing.T) {
	b, stores := setupRouter(t, Config{})
	seedAgent(t, stores, "Sophia", store.ModeAuto, testOperator)
	bindUser(t, stores, testUser, "Sophia", 50)
	ctx := context.Background()

	b.PublishInbound(userText("first"))
	if out := nextOutbound(t, b); !out.Typing {
		t.Fatalf("auto branch expected, got %+v", out)
	}
	nextOutbound(t, b) // the delayed reply

	if err := stores.Agents.SetMode(ctx, "Sophia", store.ModeAssisted); err != nil {
		t.Fatal(err)
	}

	b.PublishInbound(userText("second"))
	out := nextOutbound(t, b)
	if out.ChatID != testOperator {
		t.Errorf("after toggle: out = %+v, want operator forward", out)
	}
}

func TestPaidInteractionNoFundsNoEffect(t *testing.T) {
	b, stores := setupRouter(t, Config{})
	seedAgent(t, stores, "Sophia", store.ModeAuto, 0)
	seedAgent(t, stores, "Elena", store.ModeAuto, 0)
	bindUser(t, stores, testUser, "Sophia", 10)
	ctx := context.Background()

	b.PublishInbound(bus.InboundMessage{
		Channel: "telegram", Kind: bus.KindInteraction,
		SenderID: testUser, ChatID: testUser,
		Interaction: &bus.Interaction{Action: "interaction", AgentName: "Elena", SubType: "video", Cost: 25},
	})

	out := nextOutbound(t, b)
	if !strings.Contains(out.Content, "out of credits") {
		t.Errorf("out = %q, want out-of-credits notice", out.Content)
	}

	u, _ := stores.Users.Get(ctx, testUser)
	if u.Credits != 10 {
		t.Errorf("credits = %d, want 10 untouched", u.Credits)
	}
	if u.CurrentAgent != "Sophia" {
		t.Errorf("binding = %q, want unchanged Sophia", u.CurrentAgent)
	}
	if room, _ := stores.Rooms.Get(ctx, testUser, "Elena"); room != nil {
		t.Error("room created despite rejected interaction")
	}
}

func TestPaidInteractionDebitsAndBinds(t *testing.T) {
	b, stores := setupRouter(t, Config{})
	seedAgent(t, stores, "Sophia", store.ModeAuto, 0)
	seedAgent(t, stores, "Elena", store.ModeAuto, 0)
	bindUser(t, stores, testUser, "Sophia", 30)

	b.PublishInbound(bus.InboundMessage{
		Channel: "telegram", Kind: bus.KindInteraction,
		SenderID: testUser, ChatID: testUser,
		Interaction: &bus.Interaction{Action: "interaction", AgentName: "Elena", SubType: "gift", Cost: 10},
	})

	if out := nextOutbound(t, b); !out.Typing {
		t.Fatalf("expected typing then reply, got %+v", out)
	}
	nextOutbound(t, b)

	u, _ := stores.Users.Get(context.Background(), testUser)
	if u.Credits != 20 {
		t.Errorf("credits = %d, want 20", u.Credits)
	}
	if u.CurrentAgent != "Elena" {
		t.Errorf("binding = %q, want Elena", u.CurrentAgent)
	}
}

func TestSelectAgentInteraction(t *testing.T) {
	b, stores := setupRouter(t, Config{})
	seedAgent(t, stores, "Sophia", store.ModeAuto, 0)

	b.PublishInbound(bus.InboundMessage{
		Channel: "telegram", Kind: bus.KindInteraction,
		SenderID: testUser, ChatID: testUser,
		Interaction: &bus.Interaction{Action: "select_agent", AgentName: "Sophia"},
	})

	out := nextOutbound(t, b)
	if !strings.Contains(out.Content, "connected with Sophia") {
		t.Errorf("out = %q, want connection confirmation", out.Content)
	}

	u, _ := stores.Users.Get(context.Background(), testUser)
	if u.CurrentAgent != "Sophia" {
		t.Errorf("binding = %q, want Sophia", u.CurrentAgent)
	}
}

func TestUnauthorizedAdminIsNoOp(t *testing.T) {
	b, stores := setupRouter(t, Config{})
	ctx := context.Background()
	if _, err := stores.Users.GetOrCreate(ctx, testUser, "", "", 50); err != nil {
		t.Fatal(err)
	}

	b.PublishInbound(bus.InboundMessage{
		Channel: "telegram", Kind: bus.KindOperatorCommand,
		SenderID: testUser, ChatID: testUser,
		Text: fmt.Sprintf("/credits %d 1000", testUser),
	})

	// No outbound at all: the attempt is silently ignored.
	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if out, ok := b.SubscribeOutbound(waitCtx); ok {
		t.Fatalf("unexpected outbound: %+v", out)
	}

	u, _ := stores.Users.Get(ctx, testUser)
	if u.Credits != 50 {
		t.Errorf("credits = %d, want 50 (ledger must not change)", u.Credits)
	}
}

func TestOperatorGrantsCredits(t *testing.T) {
	b, stores := setupRouter(t, Config{})
	ctx := context.Background()
	if _, err := stores.Users.GetOrCreate(ctx, testUser, "", "", 5); err != nil {
		t.Fatal(err)
	}

	b.PublishInbound(bus.InboundMessage{
		Channel: "telegram", Kind: bus.KindOperatorCommand,
		SenderID: testOperator, ChatID: testOperator,
		Text: fmt.Sprintf("/credits %d 20", testUser),
	})

	out := nextOutbound(t, b)
	if !strings.Contains(out.Content, "New balance: 25") {
		t.Errorf("ack = %q", out.Content)
	}
	u, _ := stores.Users.Get(ctx, testUser)
	if u.Credits != 25 {
		t.Errorf("credits = %d, want 25", u.Credits)
	}
}

func TestOnlineCreatesAgent(t *testing.T) {
	b, stores := setupRouter(t, Config{})

	b.PublishInbound(bus.InboundMessage{
		Channel: "telegram", Kind: bus.KindOperatorCommand,
		SenderID: testOperator, ChatID: testOperator,
		Text: "/online Mia",
	})

	out := nextOutbound(t, b)
	if !strings.Contains(out.Content, "Mia is now ONLINE") {
		t.Errorf("ack = %q", out.Content)
	}
	a, err := stores.Agents.Get(context.Background(), "Mia")
	if err != nil {
		t.Fatalf("agent not created: %v", err)
	}
	if a.Mode != store.ModeAssisted || a.OperatorChatID != testOperator {
		t.Errorf("agent = %+v", a)
	}
}

func TestOfflineUnknownAgent(t *testing.T) {
	b, _ := setupRouter(t, Config{})

	b.PublishInbound(bus.InboundMessage{
		Channel: "telegram", Kind: bus.KindOperatorCommand,
		SenderID: testOperator, ChatID: testOperator,
		Text: "/offline Nobody",
	})

	out := nextOutbound(t, b)
	if !strings.Contains(out.Content, "not found") {
		t.Errorf("ack = %q, want not-found notice", out.Content)
	}
}

func TestOperatorReplyViaDispatch(t *testing.T) {
	b, stores := setupRouter(t, Config{})
	seedAgent(t, stores, "Sophia", store.ModeAssisted, testOperator)
	bindUser(t, stores, testUser, "Sophia", 50)

	b.PublishInbound(userText("hi there"))
	nextOutbound(t, b) // the forward

	// The transport reports the forward's message id.
	b.Broadcast(bus.Event{Name: bus.EventForwardSent, Payload: bus.ForwardSent{
		MessageID: 5001, UserID: testUser, Agent: "Sophia",
	}})

	b.PublishInbound(bus.InboundMessage{
		Channel: "telegram", Kind: bus.KindOperatorReply,
		SenderID: testOperator, ChatID: testOperator,
		Text: "hello!", ReplyToMessageID: 5001,
	})

	toUser := nextOutbound(t, b)
	if toUser.ChatID != testUser || toUser.Content != "hello!" {
		t.Errorf("relayed = %+v, want verbatim text to user", toUser)
	}
	ack := nextOutbound(t, b)
	if !strings.Contains(ack.Content, "Sent as Sophia") {
		t.Errorf("ack = %q", ack.Content)
	}
}

func TestOperatorReplyMarkerFallback(t *testing.T) {
	b, stores := setupRouter(t, Config{})
	bindUser(t, stores, testUser, "Sophia", 50)
	seedAgent(t, stores, "Sophia", store.ModeAssisted, testOperator)

	quoted := replies.BuildForward(testUser, "Alice", "alice", "Sophia", "hi")
	b.PublishInbound(bus.InboundMessage{
		Channel: "telegram", Kind: bus.KindOperatorReply,
		SenderID: testOperator, ChatID: testOperator,
		Text: "hey you", ReplyToMessageID: 77, ReplyToText: quoted,
	})

	toUser := nextOutbound(t, b)
	if toUser.ChatID != testUser || toUser.Content != "hey you" {
		t.Errorf("relayed = %+v", toUser)
	}
}

func TestOperatorReplyUnresolvable(t *testing.T) {
	b, _ := setupRouter(t, Config{})

	b.PublishInbound(bus.InboundMessage{
		Channel: "telegram", Kind: bus.KindOperatorReply,
		SenderID: testOperator, ChatID: testOperator,
		Text: "who is this for?", ReplyToMessageID: 88, ReplyToText: "no marker here",
	})

	out := nextOutbound(t, b)
	if out.ChatID != testOperator || !strings.Contains(out.Content, "Couldn't match") {
		t.Errorf("out = %+v, want operator notice and no user send", out)
	}
}

func TestFiftyCreditsScenario(t *testing.T) {
	b, stores := setupRouter(t, Config{})
	seedAgent(t, stores, "Sophia", store.ModeAuto, 0)
	bindUser(t, stores, testUser, "Sophia", 50)

	for i := 0; i < 50; i++ {
		b.PublishInbound(userText(fmt.Sprintf("message %d", i)))
		if out := nextOutbound(t, b); !out.Typing {
			t.Fatalf("message %d: expected auto branch, got %+v", i, out)
		}
		if reply := nextOutbound(t, b); reply.Content == "" {
			t.Fatalf("message %d: empty reply", i)
		}
	}

	u, _ := stores.Users.Get(context.Background(), testUser)
	if u.Credits != 0 {
		t.Fatalf("credits = %d, want 0 after 50 messages", u.Credits)
	}

	b.PublishInbound(userText("message 51"))
	out := nextOutbound(t, b)
	if !strings.Contains(out.Content, "out of credits") {
		t.Errorf("51st message: out = %q, want out-of-credits notice", out.Content)
	}
}

func TestNewAgentFlow(t *testing.T) {
	b, stores := setupRouter(t, Config{})
	operatorMsg := func(kind bus.Kind, text, photo string) bus.InboundMessage {
		return bus.InboundMessage{
			Channel: "telegram", Kind: kind,
			SenderID: testOperator, ChatID: testOperator,
			Text: text, PhotoFileID: photo,
		}
	}

	b.PublishInbound(operatorMsg(bus.KindOperatorCommand, "/newagent", ""))
	if out := nextOutbound(t, b); !strings.Contains(out.Content, "name") {
		t.Fatalf("prompt = %q", out.Content)
	}

	b.PublishInbound(operatorMsg(bus.KindOperatorCommand, "Luna", ""))
	if out := nextOutbound(t, b); !strings.Contains(out.Content, "photos") {
		t.Fatalf("photo prompt = %q", out.Content)
	}

	b.PublishInbound(operatorMsg(bus.KindOperatorPhoto, "", "AgAD-luna-1"))
	nextOutbound(t, b)
	b.PublishInbound(operatorMsg(bus.KindOperatorCommand, "done", ""))
	if out := nextOutbound(t, b); !strings.Contains(out.Content, "Luna created with 1 photos") {
		t.Fatalf("done = %q", out.Content)
	}

	a, err := stores.Agents.Get(context.Background(), "Luna")
	if err != nil {
		t.Fatalf("agent not created: %v", err)
	}
	if len(a.PhotoFileIDs) != 1 || a.PhotoFileIDs[0] != "AgAD-luna-1" {
		t.Errorf("photos = %v", a.PhotoFileIDs)
	}
}

func TestStartGrantsCredits(t *testing.T) {
	b, stores := setupRouter(t, Config{})

	b.PublishInbound(bus.InboundMessage{
		Channel: "telegram", Kind: bus.KindUserStart,
		SenderID: testUser, ChatID: testUser, FirstName: "Alice",
	})

	out := nextOutbound(t, b)
	if !strings.Contains(out.Content, "50 free credits") {
		t.Errorf("greeting = %q", out.Content)
	}
	u, err := stores.Users.Get(context.Background(), testUser)
	if err != nil {
		t.Fatalf("user not materialized: %v", err)
	}
	if u.Credits != 50 {
		t.Errorf("credits = %d, want 50", u.Credits)
	}
}
