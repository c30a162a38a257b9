package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"support_server/adapter/out/dedup"
	"support_server/core/agent"
	"support_server/core/domain"
	"support_server/core/escalation"
	"support_server/core/gate"
)

type fakeSource struct {
	mu       sync.Mutex
	messages map[string]*domain.InboundMessage
	draftErr error
	getErr   error

	drafts   []*domain.DraftReply
	markedRead []string
}

func (f *fakeSource) ListUnread(context.Context, int) ([]domain.MessageSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sums []domain.MessageSummary
	for _, m := range f.messages {
		sums = append(sums, domain.MessageSummary{ID: m.ID, ThreadID: m.ThreadID})
	}
	return sums, nil
}

func (f *fakeSource) GetMessage(_ context.Context, id string) (*domain.InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	m, ok := f.messages[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return m, nil
}

func (f *fakeSource) MarkRead(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, id)
	return nil
}

func (f *fakeSource) CreateDraft(_ context.Context, reply *domain.DraftReply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draftErr != nil {
		return f.draftErr
	}
	f.drafts = append(f.drafts, reply)
	return nil
}

type fakeClassifier struct{ category domain.Category }

func (f *fakeClassifier) Classify(context.Context, string) domain.Category { return f.category }

type fakeRunner struct {
	result *agent.RunResult
	err    error
	runs   int
}

func (f *fakeRunner) Run(context.Context, domain.Category, string, []domain.Turn) (*agent.RunResult, error) {
	f.runs++
	return f.result, f.err
}

type fakeComposer struct{ err error }

func (f *fakeComposer) Compose(_ context.Context, msg domain.InboundMessage, answer string) (*domain.DraftReply, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.DraftReply{
		ThreadID: msg.ThreadID,
		To:       msg.SenderAddress(),
		Subject:  "Re: " + msg.Subject,
		BodyHTML: "<p>" + answer + "</p>",
	}, nil
}

type recordingSink struct {
	mu      sync.Mutex
	signals []*escalation.Signal
}

func (s *recordingSink) Notify(_ context.Context, sig *escalation.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
	return nil
}

func customerMessage() *domain.InboundMessage {
	return &domain.InboundMessage{
		ID:       "m1",
		ThreadID: "t1",
		From:     "Jamie Doe <jamie@example.com>",
		Subject:  "Order #1001",
		Body:     "Where is my order?",
	}
}

func mustGate() *gate.Gate {
	g, err := gate.New(nil)
	if err != nil {
		panic(err)
	}
	return g
}

func newTestPoller(src *fakeSource, run *fakeRunner, comp *fakeComposer, store dedup.Store, sink escalation.Sink) *Poller {
	return NewPoller(
		src,
		mustGate(),
		&fakeClassifier{category: domain.CategoryOrderPlacementStatus},
		run,
		comp,
		store,
		sink,
		Config{},
		zerolog.Nop(),
	)
}

func TestProcessDraftsAndMarksRead(t *testing.T) {
	src := &fakeSource{messages: map[string]*domain.InboundMessage{"m1": customerMessage()}}
	store := dedup.NewMemoryStore()
	run := &fakeRunner{result: &agent.RunResult{Answer: "It ships tomorrow."}}
	p := newTestPoller(src, run, &fakeComposer{}, store, &recordingSink{})

	if err := p.process(context.Background(), domain.MessageSummary{ID: "m1", ThreadID: "t1"}); err != nil {
		t.Fatalf("process() error = %v", err)
	}

	if len(src.drafts) != 1 {
		t.Fatalf("drafts = %d, want 1", len(src.drafts))
	}
	if src.drafts[0].To != "jamie@example.com" {
		t.Fatalf("draft To = %q", src.drafts[0].To)
	}
	if len(src.markedRead) != 1 || src.markedRead[0] != "m1" {
		t.Fatalf("markedRead = %v", src.markedRead)
	}
	if done, _ := store.IsProcessed(context.Background(), "m1"); !done {
		t.Fatal("message not recorded as processed")
	}
}

func TestProcessSkipsProcessedMessage(t *testing.T) {
	src := &fakeSource{messages: map[string]*domain.InboundMessage{"m1": customerMessage()}}
	store := dedup.NewMemoryStore()
	if _, err := store.Claim(context.Background(), domain.ProcessedThreadRecord{ThreadID: "t1", MessageID: "m1"}); err != nil {
		t.Fatal(err)
	}
	run := &fakeRunner{result: &agent.RunResult{Answer: "hi"}}
	p := newTestPoller(src, run, &fakeComposer{}, store, &recordingSink{})

	if err := p.process(context.Background(), domain.MessageSummary{ID: "m1", ThreadID: "t1"}); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if run.runs != 0 {
		t.Fatal("loop ran for an already processed message")
	}
	if len(src.drafts) != 0 {
		t.Fatal("draft created for an already processed message")
	}
	if len(src.markedRead) != 1 {
		t.Fatal("still-unread processed message not repaired with mark read")
	}
}

func TestProcessIgnoresGatedMessage(t *testing.T) {
	msg := customerMessage()
	msg.From = "noreply@shipping.example.com"
	src := &fakeSource{messages: map[string]*domain.InboundMessage{"m1": msg}}
	run := &fakeRunner{result: &agent.RunResult{Answer: "hi"}}
	p := newTestPoller(src, run, &fakeComposer{}, dedup.NewMemoryStore(), &recordingSink{})

	if err := p.process(context.Background(), domain.MessageSummary{ID: "m1", ThreadID: "t1"}); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if run.runs != 0 {
		t.Fatal("loop ran for a gated message")
	}
	if len(src.drafts) != 0 {
		t.Fatal("draft created for a gated message")
	}
	if len(src.markedRead) != 1 {
		t.Fatal("gated message not marked read")
	}
}

func TestProcessEscalationPath(t *testing.T) {
	src := &fakeSource{messages: map[string]*domain.InboundMessage{"m1": customerMessage()}}
	sink := &recordingSink{}
	run := &fakeRunner{result: &agent.RunResult{Escalated: true, EscalationReason: "loop exhausted after 5 rounds"}}
	p := newTestPoller(src, run, &fakeComposer{}, dedup.NewMemoryStore(), sink)

	if err := p.process(context.Background(), domain.MessageSummary{ID: "m1", ThreadID: "t1"}); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if len(sink.signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(sink.signals))
	}
	if sink.signals[0].From != "jamie@example.com" {
		t.Fatalf("signal From = %q", sink.signals[0].From)
	}
	if len(src.drafts) != 0 {
		t.Fatal("draft created for an escalated message")
	}
	if len(src.markedRead) != 1 {
		t.Fatal("escalated message not marked read")
	}
}

func TestProcessBackendFailureEscalates(t *testing.T) {
	src := &fakeSource{messages: map[string]*domain.InboundMessage{"m1": customerMessage()}}
	sink := &recordingSink{}
	run := &fakeRunner{err: errors.New("rate limited")}
	p := newTestPoller(src, run, &fakeComposer{}, dedup.NewMemoryStore(), sink)

	if err := p.process(context.Background(), domain.MessageSummary{ID: "m1", ThreadID: "t1"}); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if len(sink.signals) != 1 {
		t.Fatal("backend failure did not escalate")
	}
	if len(src.markedRead) != 1 {
		t.Fatal("failed message not marked read")
	}
}

func TestProcessDraftFailureReleasesClaim(t *testing.T) {
	src := &fakeSource{
		messages: map[string]*domain.InboundMessage{"m1": customerMessage()},
		draftErr: errors.New("quota exceeded"),
	}
	store := dedup.NewMemoryStore()
	run := &fakeRunner{result: &agent.RunResult{Answer: "hi"}}
	p := newTestPoller(src, run, &fakeComposer{}, store, &recordingSink{})

	if err := p.process(context.Background(), domain.MessageSummary{ID: "m1", ThreadID: "t1"}); err == nil {
		t.Fatal("expected error from draft failure")
	}
	if done, _ := store.IsProcessed(context.Background(), "m1"); done {
		t.Fatal("claim not released after draft failure")
	}
	if len(src.markedRead) != 0 {
		t.Fatal("message marked read despite draft failure")
	}
}

func TestProcessClaimLostSkipsDraft(t *testing.T) {
	src := &fakeSource{messages: map[string]*domain.InboundMessage{"m1": customerMessage()}}
	store := &racingStore{MemoryStore: dedup.NewMemoryStore()}
	run := &fakeRunner{result: &agent.RunResult{Answer: "hi"}}
	p := newTestPoller(src, run, &fakeComposer{}, store, &recordingSink{})

	if err := p.process(context.Background(), domain.MessageSummary{ID: "m1", ThreadID: "t1"}); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if len(src.drafts) != 0 {
		t.Fatal("draft created despite losing the claim")
	}
}

// racingStore simulates another worker winning the claim between the
// processed check and the claim.
type racingStore struct {
	*dedup.MemoryStore
}

func (s *racingStore) Claim(context.Context, domain.ProcessedThreadRecord) (bool, error) {
	return false, nil
}

func TestDeadlineExceededEscalatesAndMarksRead(t *testing.T) {
	src := &fakeSource{getErr: context.DeadlineExceeded}
	sink := &recordingSink{}
	run := &fakeRunner{result: &agent.RunResult{Answer: "hi"}}
	p := newTestPoller(src, run, &fakeComposer{}, dedup.NewMemoryStore(), sink)

	w := &messageWorker{p: p}
	if err := w.Do(context.Background(), domain.MessageSummary{ID: "m1", ThreadID: "t1"}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if len(sink.signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(sink.signals))
	}
	if len(src.markedRead) != 1 || src.markedRead[0] != "m1" {
		t.Fatalf("markedRead = %v", src.markedRead)
	}
}

func TestTransientFailureLeavesUnread(t *testing.T) {
	src := &fakeSource{getErr: errors.New("temporarily unavailable")}
	sink := &recordingSink{}
	run := &fakeRunner{result: &agent.RunResult{Answer: "hi"}}
	p := newTestPoller(src, run, &fakeComposer{}, dedup.NewMemoryStore(), sink)

	w := &messageWorker{p: p}
	if err := w.Do(context.Background(), domain.MessageSummary{ID: "m1", ThreadID: "t1"}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if len(sink.signals) != 0 {
		t.Fatal("transient failure must not escalate")
	}
	if len(src.markedRead) != 0 {
		t.Fatal("transient failure must leave the message unread")
	}
}

func TestHistoryTurns(t *testing.T) {
	turns := historyTurns([]string{"first message", "second message"})
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].Role != domain.RoleUser {
		t.Fatalf("role = %q", turns[0].Role)
	}
	if turns[0].Content != "Earlier in this thread: first message" {
		t.Fatalf("content = %q", turns[0].Content)
	}
	if historyTurns(nil) != nil {
		t.Fatal("nil snippets must produce nil turns")
	}
}
