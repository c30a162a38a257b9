// Package worker runs the unattended mailbox pipeline: poll unread messages,
// gate them, route them, run the tool-calling loop, and leave draft replies.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"support_server/adapter/out/dedup"
	"support_server/core/agent"
	"support_server/core/domain"
	"support_server/core/escalation"
	"support_server/core/gate"
)

// MailboxSource is the mailbox surface the poller consumes.
type MailboxSource interface {
	ListUnread(ctx context.Context, limit int) ([]domain.MessageSummary, error)
	GetMessage(ctx context.Context, messageID string) (*domain.InboundMessage, error)
	MarkRead(ctx context.Context, messageID string) error
	CreateDraft(ctx context.Context, reply *domain.DraftReply) error
}

type classifier interface {
	Classify(ctx context.Context, content string) domain.Category
}

type runner interface {
	Run(ctx context.Context, category domain.Category, userInput string, history []domain.Turn) (*agent.RunResult, error)
}

type replyComposer interface {
	Compose(ctx context.Context, msg domain.InboundMessage, answer string) (*domain.DraftReply, error)
}

// Config holds poll scheduler settings.
type Config struct {
	Interval       time.Duration // poll cycle interval
	Workers        int           // concurrent message workers
	ListLimit      int           // unread messages picked up per cycle
	MessageTimeout time.Duration // per-message processing deadline
}

// DefaultConfig returns the default scheduler settings.
func DefaultConfig() Config {
	return Config{
		Interval:       60 * time.Second,
		Workers:        4,
		ListLimit:      10,
		MessageTimeout: 90 * time.Second,
	}
}

// Poller drives poll cycles and fans messages out to a bounded worker group.
type Poller struct {
	source   MailboxSource
	gate     *gate.Gate
	router   classifier
	loop     runner
	composer replyComposer
	store    dedup.Store
	sink     escalation.Sink
	cfg      Config
	log      zerolog.Logger

	group  *pool.WorkerGroup[domain.MessageSummary]
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	started  bool
	inflight map[string]struct{}
}

// NewPoller creates a poller. Zero-valued config fields fall back to
// defaults.
func NewPoller(source MailboxSource, g *gate.Gate, router classifier, loop runner, composer replyComposer, store dedup.Store, sink escalation.Sink, cfg Config, log zerolog.Logger) *Poller {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = def.ListLimit
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = def.MessageTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		source:   source,
		gate:     g,
		router:   router,
		loop:     loop,
		composer: composer,
		store:    store,
		sink:     sink,
		cfg:      cfg,
		log:      log.With().Str("component", "poller").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		inflight: map[string]struct{}{},
	}
}

// messageWorker adapts the poller to the pool worker interface.
type messageWorker struct {
	p *Poller
}

func (w *messageWorker) Do(ctx context.Context, sum domain.MessageSummary) error {
	defer w.p.release(sum.ID)
	if err := w.p.process(ctx, sum); err != nil {
		w.p.log.Error().Err(err).Str("message_id", sum.ID).Msg("message processing failed")
		if errors.Is(err, context.DeadlineExceeded) {
			// A run that blew its deadline must not recur every cycle.
			w.p.escalate(&domain.InboundMessage{ID: sum.ID, ThreadID: sum.ThreadID}, domain.DefaultCategory, "processing deadline exceeded")
			if merr := w.p.markRead(sum.ID); merr != nil {
				w.p.log.Error().Err(merr).Str("message_id", sum.ID).Msg("failed to mark timed-out message read")
			}
			return nil
		}
		// Other failures leave the message unread for a later cycle.
	}
	return nil
}

// Start launches the worker group and the poll ticker.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}

	p.group = pool.New[domain.MessageSummary](p.cfg.Workers, &messageWorker{p: p}).
		WithContinueOnError()
	if err := p.group.Go(p.ctx); err != nil {
		return fmt.Errorf("failed to start worker group: %w", err)
	}
	p.started = true

	p.wg.Add(1)
	go p.run()

	p.log.Info().
		Dur("interval", p.cfg.Interval).
		Int("workers", p.cfg.Workers).
		Msg("mailbox poller started")
	return nil
}

// Stop drains in-flight messages and stops polling.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()
	if err := p.group.Close(closeCtx); err != nil {
		p.log.Warn().Err(err).Msg("error closing worker group")
	}
	p.log.Info().Msg("mailbox poller stopped")
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.pollCycle()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollCycle()
		}
	}
}

// pollCycle lists unread messages and hands new ones to the worker group.
// Messages already in flight from a previous cycle are skipped.
func (p *Poller) pollCycle() {
	ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
	defer cancel()

	summaries, err := p.source.ListUnread(ctx, p.cfg.ListLimit)
	if err != nil {
		p.log.Error().Err(err).Msg("poll cycle list failed")
		return
	}
	if len(summaries) == 0 {
		return
	}

	submitted := 0
	for _, sum := range summaries {
		if !p.claimInflight(sum.ID) {
			continue
		}
		p.group.Submit(sum)
		submitted++
	}
	p.log.Debug().Int("unread", len(summaries)).Int("submitted", submitted).Msg("poll cycle")
}

func (p *Poller) claimInflight(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inflight[id]; ok {
		return false
	}
	p.inflight[id] = struct{}{}
	return true
}

func (p *Poller) release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, id)
}

// process runs one message through gate, routing, the tool loop, and draft
// creation under the per-message deadline.
func (p *Poller) process(ctx context.Context, sum domain.MessageSummary) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.MessageTimeout)
	defer cancel()

	processed, err := p.store.IsProcessed(ctx, sum.ID)
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if processed {
		// Already drafted; a still-unread listing means a prior mark-read
		// failed. Repair it instead of skipping forever.
		return p.markRead(sum.ID)
	}

	msg, err := p.source.GetMessage(ctx, sum.ID)
	if err != nil {
		return fmt.Errorf("fetch message: %w", err)
	}
	log := p.log.With().Str("message_id", msg.ID).Str("thread_id", msg.ThreadID).Logger()

	verdict := p.gate.Evaluate(msg)
	if verdict.Action == gate.ActionIgnore {
		log.Info().
			Str("reason", string(verdict.Reason)).
			Str("rule", verdict.MatchedRule).
			Msg("message ignored by security gate")
		return p.markRead(msg.ID)
	}

	category := p.router.Classify(ctx, messageContent(msg))
	log.Info().Str("category", string(category)).Msg("message routed")

	result, err := p.loop.Run(ctx, category, messageContent(msg), historyTurns(msg.ThreadHistory))
	if err != nil {
		p.escalate(msg, category, "generation failed: "+err.Error())
		return p.markRead(msg.ID)
	}
	if result.Escalated {
		p.escalate(msg, category, result.EscalationReason)
		return p.markRead(msg.ID)
	}

	draft, err := p.composer.Compose(ctx, *msg, result.Answer)
	if err != nil {
		return fmt.Errorf("compose reply: %w", err)
	}

	claimed, err := p.store.Claim(ctx, domain.ProcessedThreadRecord{ThreadID: msg.ThreadID, MessageID: msg.ID})
	if err != nil {
		return fmt.Errorf("dedup claim: %w", err)
	}
	if !claimed {
		log.Info().Msg("message claimed elsewhere, skipping draft")
		return nil
	}

	if err := p.source.CreateDraft(ctx, draft); err != nil {
		if rerr := p.store.Release(ctx, msg.ID); rerr != nil {
			log.Error().Err(rerr).Msg("failed to release dedup claim")
		}
		return fmt.Errorf("create draft: %w", err)
	}

	log.Info().Str("to", draft.To).Str("language", draft.LanguageTag).Msg("draft reply created")
	return p.markRead(msg.ID)
}

// markRead runs on a fresh context so cleanup survives an expired message
// deadline.
func (p *Poller) markRead(messageID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.source.MarkRead(ctx, messageID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (p *Poller) escalate(msg *domain.InboundMessage, category domain.Category, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sig := escalation.NewSignal(string(category), messageContent(msg), escalation.PriorityHigh, reason)
	sig.From = msg.SenderAddress()
	sig.Subject = msg.Subject

	if err := p.sink.Notify(ctx, sig); err != nil {
		p.log.Error().Err(err).Str("message_id", msg.ID).Msg("escalation delivery failed")
	}
}

func messageContent(msg *domain.InboundMessage) string {
	subject := strings.TrimSpace(msg.Subject)
	if subject == "" {
		subject = "No Subject"
	}
	return "Subject: " + subject + "\n\n" + msg.Body
}

// historyTurns maps prior thread snippets into conversation turns, oldest
// first.
func historyTurns(snippets []string) []domain.Turn {
	if len(snippets) == 0 {
		return nil
	}
	turns := make([]domain.Turn, 0, len(snippets))
	for _, s := range snippets {
		turns = append(turns, domain.Turn{Role: domain.RoleUser, Content: "Earlier in this thread: " + s})
	}
	return turns
}
