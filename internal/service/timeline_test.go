package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/devricklin/chat-timeline/internal/biz/domain"
	"github.com/devricklin/chat-timeline/internal/biz/repo"
	"github.com/devricklin/chat-timeline/internal/biz/usecase"
)

// Mock implementations

type mockChatRepo struct {
	history    map[string][]domain.RawPayload
	polls      map[string][]domain.RawPayload
	groups     map[string]*domain.GroupInfo
	historyErr error

	// gates holds FetchHistory of a group until closed
	gates map[string]chan struct{}
	// pollGates holds FetchPolls of a group until closed
	pollGates map[string]chan struct{}
}

func (m *mockChatRepo) FetchHistory(ctx context.Context, groupID string) ([]domain.RawPayload, error) {
	if gate, ok := m.gates[groupID]; ok {
		<-gate
	}
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.history[groupID], nil
}

func (m *mockChatRepo) FetchPolls(ctx context.Context, groupID string) ([]domain.RawPayload, error) {
	if gate, ok := m.pollGates[groupID]; ok {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.polls[groupID], nil
}

func (m *mockChatRepo) FetchGroup(ctx context.Context, groupID string) (*domain.GroupInfo, error) {
	if g, ok := m.groups[groupID]; ok {
		return g, nil
	}
	return &domain.GroupInfo{ID: groupID}, nil
}

type mockSubscription struct {
	mu           sync.Mutex
	unsubscribed bool
}

func (m *mockSubscription) Unsubscribe() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed = true
	return nil
}

func (m *mockSubscription) isUnsubscribed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsubscribed
}

type mockLiveRepo struct {
	mu        sync.Mutex
	callbacks map[string]func(domain.LiveEvent)
	subs      map[string]*mockSubscription
}

func newMockLiveRepo() *mockLiveRepo {
	return &mockLiveRepo{
		callbacks: make(map[string]func(domain.LiveEvent)),
		subs:      make(map[string]*mockSubscription),
	}
}

func (m *mockLiveRepo) Subscribe(ctx context.Context, groupID string, onEvent func(domain.LiveEvent)) (repo.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &mockSubscription{}
	m.callbacks[groupID] = onEvent
	m.subs[groupID] = sub
	return sub, nil
}

func (m *mockLiveRepo) emit(groupID string, ev domain.LiveEvent) {
	m.mu.Lock()
	cb := m.callbacks[groupID]
	m.mu.Unlock()
	cb(ev)
}

func (m *mockLiveRepo) subscribed(groupID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callbacks[groupID] != nil
}

func (m *mockLiveRepo) sub(groupID string) *mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[groupID]
}

type voteCall struct {
	groupID   string
	pollID    string
	optionIDs []string
}

type mockOutboundRepo struct {
	votes    chan voteCall
	receipts chan domain.ReadReceiptBatch
	reads    chan string

	mu        sync.Mutex
	messages  []string
	typing    []bool
	reactions []string
}

func newMockOutboundRepo() *mockOutboundRepo {
	return &mockOutboundRepo{
		votes:    make(chan voteCall, 8),
		receipts: make(chan domain.ReadReceiptBatch, 8),
		reads:    make(chan string, 8),
	}
}

func (m *mockOutboundRepo) SubmitVote(ctx context.Context, groupID, pollID string, optionIDs []string) error {
	m.votes <- voteCall{groupID: groupID, pollID: pollID, optionIDs: optionIDs}
	return nil
}

func (m *mockOutboundRepo) SubmitMessage(ctx context.Context, groupID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, content)
	return nil
}

func (m *mockOutboundRepo) SubmitReadReceipt(ctx context.Context, groupID string, messageIDs []int64) error {
	m.receipts <- domain.ReadReceiptBatch{GroupID: groupID, MessageIDs: messageIDs}
	return nil
}

func (m *mockOutboundRepo) SubmitReaction(ctx context.Context, groupID, messageID, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, groupID+"/"+messageID+"/"+emoji)
	return nil
}

func (m *mockOutboundRepo) MarkGroupRead(ctx context.Context, groupID string) error {
	select {
	case m.reads <- groupID:
	default:
	}
	return nil
}

func (m *mockOutboundRepo) SendTyping(ctx context.Context, groupID string, typing bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing = append(m.typing, typing)
	return nil
}

// Helpers

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	svc      *TimelineService
	chat     *mockChatRepo
	live     *mockLiveRepo
	outbound *mockOutboundRepo
}

func newTestEnv(t *testing.T, chat *mockChatRepo) *testEnv {
	t.Helper()
	env := &testEnv{
		chat:     chat,
		live:     newMockLiveRepo(),
		outbound: newMockOutboundRepo(),
	}
	env.svc = NewTimelineService(chat, env.live, env.outbound, Options{
		ViewerID:       "me",
		PollFetchDelay: time.Millisecond,
		Location:       time.UTC,
		Labels:         usecase.DefaultDayLabels,
		Now:            func() time.Time { return testNow },
	})
	env.svc.Start(context.Background())
	t.Cleanup(env.svc.Stop)
	return env
}

func payload(kv ...any) domain.RawPayload {
	raw := domain.RawPayload{}
	for i := 0; i+1 < len(kv); i += 2 {
		raw[kv[i].(string)] = kv[i+1]
	}
	return raw
}

func snapshot(t *testing.T, svc *TimelineService) View {
	t.Helper()
	v, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	return v
}

// waitFor polls the view until cond holds
func waitFor(t *testing.T, svc *TimelineService, what string, cond func(View) bool) View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		v := snapshot(t, svc)
		if cond(v) {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s, last view: %+v", what, v)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitUnsubscribed(t *testing.T, sub *mockSubscription) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !sub.isUnsubscribed() {
		if time.Now().After(deadline) {
			t.Fatal("Expected live stream to be unsubscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func itemIDs(v View) []string {
	out := make([]string, len(v.Items))
	for i, it := range v.Items {
		out[i] = it.ID
	}
	return out
}

func findPoll(v View, pollID string) *domain.Poll {
	for _, it := range v.Items {
		if it.IsPoll() && it.Poll.ID == pollID {
			return it.Poll
		}
	}
	return nil
}

func loaded(v View) bool { return !v.Loading }

// Tests

func TestOpen_LoadsHistoryPollsAndGroup(t *testing.T) {
	chat := &mockChatRepo{
		history: map[string][]domain.RawPayload{
			"g1": {
				payload("id", "1", "senderId", "A", "content", "hi", "timestamp", "2026-10-15T09:00:00Z"),
				payload("id", "2", "senderId", "B", "content", "yo", "timestamp", "2026-10-14T09:00:00Z"),
			},
		},
		polls: map[string][]domain.RawPayload{
			"g1": {payload("id", "5", "question", "Lunch?", "createdAt", "2026-10-15T10:00:00Z",
				"options", []any{map[string]any{"id": "1", "text": "Yes", "votes": []any{"A"}}})},
		},
		groups: map[string]*domain.GroupInfo{"g1": {ID: "g1", Name: "Study group"}},
	}
	env := newTestEnv(t, chat)

	sessionID, err := env.svc.Open(context.Background(), "g1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	v := waitFor(t, env.svc, "poll listing", func(v View) bool { return findPoll(v, "5") != nil && !v.Loading })

	if v.SessionID != sessionID {
		t.Errorf("Expected session %s, got %s", sessionID, v.SessionID)
	}
	if want := []string{"2", "1", "poll-5"}; !reflect.DeepEqual(itemIDs(v), want) {
		t.Errorf("Expected %v, got %v", want, itemIDs(v))
	}
	if v.Group == nil || v.Group.Name != "Study group" {
		t.Errorf("Expected group details, got %+v", v.Group)
	}
	if v.Loading {
		t.Error("Expected loading to be finished")
	}
	if len(v.Days) != 2 || v.Days[0].Label != "Yesterday" || v.Days[1].Label != "Today" {
		t.Errorf("Expected Yesterday/Today buckets, got %+v", v.Days)
	}
}

func TestOpen_PollListingReplacesHistoryCopy(t *testing.T) {
	chat := &mockChatRepo{
		history: map[string][]domain.RawPayload{
			"g1": {payload("id", "77", "type", "poll", "timestamp", "2026-10-15T10:00:00Z",
				"poll", map[string]any{"id": "5", "question": "Lunch?",
					"options": []any{map[string]any{"id": "1", "text": "Yes"}}})},
		},
		polls: map[string][]domain.RawPayload{
			"g1": {payload("id", "5", "question", "Lunch?", "createdAt", "2026-10-15T10:00:00Z",
				"options", []any{map[string]any{"id": "1", "text": "Yes", "votes": []any{"A", "B"}}})},
		},
	}
	env := newTestEnv(t, chat)

	if _, err := env.svc.Open(context.Background(), "g1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	v := waitFor(t, env.svc, "poll votes", func(v View) bool {
		p := findPoll(v, "5")
		return p != nil && p.TotalVotes == 2
	})
	if len(v.Items) != 1 {
		t.Errorf("Expected a single poll entry, got %v", itemIDs(v))
	}
}

func TestPollState_IndependentOfListingAndUpdateOrder(t *testing.T) {
	update := domain.LiveEvent{
		Type: domain.EventPollVoteUpdate,
		Payload: payload("id", "5",
			"options", []any{map[string]any{"id": "1", "votes": []any{"u9"}}},
			"totalVotes", 1),
	}

	run := func(t *testing.T, updateFirst bool) *domain.Poll {
		gate := make(chan struct{})
		chat := &mockChatRepo{
			history: map[string][]domain.RawPayload{
				"g1": {payload("id", "77", "type", "poll", "timestamp", "2026-10-15T10:00:00Z",
					"poll", map[string]any{"id": "5", "question": "Lunch?",
						"options": []any{map[string]any{"id": "1", "text": "Yes"}}})},
			},
			// no createdAt: the listing copy is stamped with the current time
			polls: map[string][]domain.RawPayload{
				"g1": {payload("id", "5", "question", "Lunch?",
					"options", []any{map[string]any{"id": "1", "text": "Yes", "votes": []any{}}})},
			},
			pollGates: map[string]chan struct{}{"g1": gate},
		}
		env := newTestEnv(t, chat)

		if _, err := env.svc.Open(context.Background(), "g1"); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		waitFor(t, env.svc, "history", func(v View) bool {
			return findPoll(v, "5") != nil && env.live.subscribed("g1")
		})

		listingApplied := func(v View) bool { return len(v.Items) == 1 && v.Items[0].ID == "poll-5" }
		if updateFirst {
			env.live.emit("g1", update)
			close(gate)
			waitFor(t, env.svc, "poll listing", listingApplied)
		} else {
			close(gate)
			waitFor(t, env.svc, "poll listing", listingApplied)
			env.live.emit("g1", update)
		}

		return findPoll(snapshot(t, env.svc), "5")
	}

	updateThenListing := run(t, true)
	listingThenUpdate := run(t, false)

	for name, p := range map[string]*domain.Poll{"update first": updateThenListing, "listing first": listingThenUpdate} {
		if p == nil {
			t.Fatalf("%s: expected poll 5 in the timeline", name)
		}
		if !reflect.DeepEqual(p.Options[0].Votes.IDs(), []string{"u9"}) {
			t.Errorf("%s: expected votes [u9], got %v", name, p.Options[0].Votes.IDs())
		}
		if p.TotalVotes != 1 {
			t.Errorf("%s: expected total 1, got %d", name, p.TotalVotes)
		}
	}
}

func TestLiveEvents(t *testing.T) {
	chat := &mockChatRepo{history: map[string][]domain.RawPayload{"g1": {}}}
	env := newTestEnv(t, chat)

	if _, err := env.svc.Open(context.Background(), "g1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	waitFor(t, env.svc, "subscription", func(View) bool { return env.live.subscribed("g1") })

	env.live.emit("g1", domain.LiveEvent{
		Type:    domain.EventNewMessage,
		Payload: payload("id", "10", "senderId", "A", "content", "live!", "timestamp", "2026-10-15T11:00:00Z"),
	})
	env.live.emit("g1", domain.LiveEvent{
		Type: domain.EventPollCreated,
		Payload: payload("id", "poll-8", "type", "poll", "timestamp", "2026-10-15T11:01:00Z",
			"poll", map[string]any{"id": "8", "question": "Q",
				"options": []any{map[string]any{"id": "1", "text": "A"}, map[string]any{"id": "2", "text": "B"}}}),
	})
	env.live.emit("g1", domain.LiveEvent{
		Type: domain.EventPollVoteUpdate,
		Payload: payload("id", "8",
			"options", []any{map[string]any{"id": "1", "votes": []any{"A"}}, map[string]any{"id": "2"}},
			"totalVotes", 1),
	})
	env.live.emit("g1", domain.LiveEvent{Type: domain.EventTypingStarted, User: domain.Member{UserID: "A", Name: "Alice"}})
	env.live.emit("g1", domain.LiveEvent{Type: domain.EventTypingStarted, User: domain.Member{UserID: "me", Name: "Me"}})

	v := waitFor(t, env.svc, "typing user", func(v View) bool { return len(v.TypingUsers) > 0 })

	if want := []string{"10", "poll-8"}; !reflect.DeepEqual(itemIDs(v), want) {
		t.Errorf("Expected %v, got %v", want, itemIDs(v))
	}
	p := findPoll(v, "8")
	if p == nil || p.TotalVotes != 1 || !p.Options[0].Votes.Has("A") {
		t.Errorf("Expected vote update applied, got %+v", p)
	}
	if p != nil && p.Question != "Q" {
		t.Errorf("Expected local question kept, got '%s'", p.Question)
	}
	if !reflect.DeepEqual(v.TypingUsers, []string{"Alice"}) {
		t.Errorf("Expected [Alice] typing (self excluded), got %v", v.TypingUsers)
	}

	env.live.emit("g1", domain.LiveEvent{Type: domain.EventTypingStopped, User: domain.Member{UserID: "A"}})
	waitFor(t, env.svc, "typing stop", func(v View) bool { return len(v.TypingUsers) == 0 })
}

func TestLiveVoteUpdateForUnknownPoll(t *testing.T) {
	chat := &mockChatRepo{history: map[string][]domain.RawPayload{"g1": {}}}
	env := newTestEnv(t, chat)

	if _, err := env.svc.Open(context.Background(), "g1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	waitFor(t, env.svc, "subscription", func(View) bool { return env.live.subscribed("g1") })

	env.live.emit("g1", domain.LiveEvent{
		Type: domain.EventPollVoteUpdate,
		Payload: payload("poll", map[string]any{"id": "9", "question": "New?",
			"options": []any{map[string]any{"id": "1", "votes": []any{"B"}}}}),
	})

	v := waitFor(t, env.svc, "unknown poll", func(v View) bool { return findPoll(v, "9") != nil })
	if v.Items[0].ID != "poll-9" || v.Items[0].SenderName != "Unknown" {
		t.Errorf("Unexpected poll entry: %+v", v.Items[0])
	}
	if !v.Items[0].Timestamp.Equal(testNow) {
		t.Errorf("Expected timestamp to fall back to now, got %v", v.Items[0].Timestamp)
	}
}

func TestOpen_DropsResultsOfDiscardedSession(t *testing.T) {
	gate := make(chan struct{})
	chat := &mockChatRepo{
		history: map[string][]domain.RawPayload{
			"g1": {payload("id", "1", "content", "old group")},
			"g2": {payload("id", "2", "content", "new group")},
		},
		gates: map[string]chan struct{}{"g1": gate},
	}
	env := newTestEnv(t, chat)

	if _, err := env.svc.Open(context.Background(), "g1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	waitFor(t, env.svc, "g1 subscription", func(View) bool { return env.live.subscribed("g1") })

	if _, err := env.svc.Open(context.Background(), "g2"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	close(gate)

	waitFor(t, env.svc, "g2 history", func(v View) bool { return len(v.Items) > 0 })
	time.Sleep(20 * time.Millisecond)
	v := snapshot(t, env.svc)

	if !reflect.DeepEqual(itemIDs(v), []string{"2"}) {
		t.Errorf("Expected only g2 items, got %v", itemIDs(v))
	}
	if v.GroupID != "g2" {
		t.Errorf("Expected group g2, got %s", v.GroupID)
	}
	waitUnsubscribed(t, env.live.sub("g1"))
}

func TestVote_OptimisticThenSubmitted(t *testing.T) {
	chat := &mockChatRepo{
		history: map[string][]domain.RawPayload{
			"g1": {payload("id", "poll-5", "type", "poll", "poll", map[string]any{"id": "5", "question": "Q",
				"options": []any{map[string]any{"id": "1", "votes": []any{"A"}}, map[string]any{"id": "2"}}})},
		},
	}
	env := newTestEnv(t, chat)

	if _, err := env.svc.Open(context.Background(), "g1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	waitFor(t, env.svc, "history", func(v View) bool { return findPoll(v, "5") != nil })

	if err := env.svc.Vote(context.Background(), "5", []string{"1", "2"}); err != nil {
		t.Fatalf("Vote failed: %v", err)
	}

	p := findPoll(snapshot(t, env.svc), "5")
	if !p.Options[0].Votes.Has("me") || !p.Options[1].Votes.Has("me") || p.TotalVotes != 3 {
		t.Errorf("Expected optimistic vote on both options (total 3), got total %d", p.TotalVotes)
	}

	select {
	case call := <-env.outbound.votes:
		if call.groupID != "g1" || call.pollID != "5" || !reflect.DeepEqual(call.optionIDs, []string{"1", "2"}) {
			t.Errorf("Unexpected vote submission: %+v", call)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected vote to be submitted")
	}
}

func TestVote_NoSession(t *testing.T) {
	env := newTestEnv(t, &mockChatRepo{})

	err := env.svc.Vote(context.Background(), "5", []string{"1"})
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession, got %v", err)
	}
}

func TestVisibilityChanged(t *testing.T) {
	chat := &mockChatRepo{
		history: map[string][]domain.RawPayload{
			"g1": {
				payload("id", "1", "senderId", "A", "content", "a"),
				payload("id", "2", "senderId", "me", "content", "b"),
				payload("id", "3", "senderId", "B", "content", "c"),
			},
		},
	}
	env := newTestEnv(t, chat)

	if _, err := env.svc.Open(context.Background(), "g1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	waitFor(t, env.svc, "history", func(v View) bool { return len(v.Items) == 3 })

	batch, err := env.svc.VisibilityChanged(context.Background(), []string{"1", "2", "3", "404"})
	if err != nil {
		t.Fatalf("VisibilityChanged failed: %v", err)
	}
	if batch == nil || !reflect.DeepEqual(batch.MessageIDs, []int64{1, 3}) {
		t.Fatalf("Expected batch [1 3], got %+v", batch)
	}

	select {
	case sent := <-env.outbound.receipts:
		if sent.GroupID != "g1" || !reflect.DeepEqual(sent.MessageIDs, []int64{1, 3}) {
			t.Errorf("Unexpected receipt submission: %+v", sent)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected receipts to be submitted")
	}

	again, err := env.svc.VisibilityChanged(context.Background(), []string{"1", "3"})
	if err != nil {
		t.Fatalf("VisibilityChanged failed: %v", err)
	}
	if again != nil {
		t.Errorf("Expected no second batch, got %+v", again)
	}
}

func TestSendMessage(t *testing.T) {
	chat := &mockChatRepo{history: map[string][]domain.RawPayload{"g1": {}}}
	env := newTestEnv(t, chat)

	if err := env.svc.SendMessage(context.Background(), "hello"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession without a conversation, got %v", err)
	}

	if _, err := env.svc.Open(context.Background(), "g1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	waitFor(t, env.svc, "history", loaded)

	if err := env.svc.SendMessage(context.Background(), "   "); err != nil {
		t.Errorf("Expected blank message to be ignored, got %v", err)
	}
	if err := env.svc.SendMessage(context.Background(), "  hello  "); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if err := env.svc.SetTyping(context.Background(), true); err != nil {
		t.Fatalf("SetTyping failed: %v", err)
	}

	env.outbound.mu.Lock()
	messages := append([]string(nil), env.outbound.messages...)
	typing := append([]bool(nil), env.outbound.typing...)
	env.outbound.mu.Unlock()

	if !reflect.DeepEqual(messages, []string{"hello"}) {
		t.Errorf("Expected [hello], got %v", messages)
	}
	if !reflect.DeepEqual(typing, []bool{true}) {
		t.Errorf("Expected [true], got %v", typing)
	}
	if v := snapshot(t, env.svc); len(v.Items) != 0 {
		t.Errorf("Expected no local echo, got %v", itemIDs(v))
	}
}

func TestReact(t *testing.T) {
	chat := &mockChatRepo{history: map[string][]domain.RawPayload{"g1": {}}}
	env := newTestEnv(t, chat)

	if err := env.svc.React(context.Background(), "10", "👍"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession without a conversation, got %v", err)
	}

	if _, err := env.svc.Open(context.Background(), "g1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := env.svc.React(context.Background(), "10", " "); err == nil {
		t.Error("Expected error for blank emoji")
	}
	if err := env.svc.React(context.Background(), "10", "👍"); err != nil {
		t.Fatalf("React failed: %v", err)
	}

	env.outbound.mu.Lock()
	reactions := append([]string(nil), env.outbound.reactions...)
	env.outbound.mu.Unlock()

	if !reflect.DeepEqual(reactions, []string{"g1/10/👍"}) {
		t.Errorf("Expected [g1/10/👍], got %v", reactions)
	}
}

func TestOpen_MarksGroupRead(t *testing.T) {
	chat := &mockChatRepo{history: map[string][]domain.RawPayload{"g1": {}, "g2": {}}}
	env := newTestEnv(t, chat)

	for _, groupID := range []string{"g1", "g2"} {
		if _, err := env.svc.Open(context.Background(), groupID); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		select {
		case got := <-env.outbound.reads:
			if got != groupID {
				t.Errorf("Expected %s marked read, got %s", groupID, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Expected %s to be marked read", groupID)
		}
	}
}

func TestTypingUsesMemberName(t *testing.T) {
	chat := &mockChatRepo{
		history: map[string][]domain.RawPayload{"g1": {}},
		groups: map[string]*domain.GroupInfo{"g1": {ID: "g1", Members: []domain.Member{
			{UserID: "A", Name: "Alice"},
		}}},
	}
	env := newTestEnv(t, chat)

	if _, err := env.svc.Open(context.Background(), "g1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	waitFor(t, env.svc, "group and subscription", func(v View) bool {
		return v.Group != nil && env.live.subscribed("g1")
	})

	env.live.emit("g1", domain.LiveEvent{Type: domain.EventTypingStarted, User: domain.Member{UserID: "A"}})
	env.live.emit("g1", domain.LiveEvent{Type: domain.EventTypingStarted, User: domain.Member{UserID: "B"}})

	v := snapshot(t, env.svc)
	if !reflect.DeepEqual(v.TypingUsers, []string{"Alice", "B"}) {
		t.Errorf("Expected [Alice B], got %v", v.TypingUsers)
	}
}

func TestClose(t *testing.T) {
	chat := &mockChatRepo{history: map[string][]domain.RawPayload{"g1": {payload("id", "1", "content", "x")}}}
	env := newTestEnv(t, chat)

	if _, err := env.svc.Open(context.Background(), "g1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	waitFor(t, env.svc, "subscription", func(v View) bool { return env.live.subscribed("g1") && len(v.Items) == 1 })

	if err := env.svc.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	v := snapshot(t, env.svc)
	if v.SessionID != "" || len(v.Items) != 0 {
		t.Errorf("Expected empty view after close, got %+v", v)
	}
	waitUnsubscribed(t, env.live.sub("g1"))
}

func TestHistoryFailureLeavesOtherFetches(t *testing.T) {
	chat := &mockChatRepo{
		historyErr: errors.New("boom"),
		groups:     map[string]*domain.GroupInfo{"g1": {ID: "g1", Name: "Group"}},
	}
	env := newTestEnv(t, chat)

	if _, err := env.svc.Open(context.Background(), "g1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	v := waitFor(t, env.svc, "loading to finish", loaded)
	if len(v.Items) != 0 {
		t.Errorf("Expected empty timeline, got %v", itemIDs(v))
	}
	if v.Group == nil || v.Group.Name != "Group" {
		t.Errorf("Expected group details despite history failure, got %+v", v.Group)
	}
}

func TestOnChange(t *testing.T) {
	chat := &mockChatRepo{history: map[string][]domain.RawPayload{"g1": {payload("id", "1", "content", "x")}}}
	env := &testEnv{chat: chat, live: newMockLiveRepo(), outbound: newMockOutboundRepo()}
	env.svc = NewTimelineService(chat, env.live, env.outbound, Options{ViewerID: "me", Location: time.UTC})

	changes := make(chan View, 16)
	env.svc.OnChange(func(v View) {
		select {
		case changes <- v:
		default:
		}
	})
	env.svc.Start(context.Background())
	defer env.svc.Stop()

	if _, err := env.svc.Open(context.Background(), "g1"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-changes:
			if len(v.Items) == 1 {
				return
			}
		case <-deadline:
			t.Fatal("Expected a change notification carrying the history")
		}
	}
}
