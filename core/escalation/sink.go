// Package escalation routes messages that need human attention instead of an
// automated draft. The pipeline only guarantees that a notification is handed
// to the sink; delivery retries are the sink's own concern.
package escalation

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Priority levels accepted from the escalation tool.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Signal is one escalated message headed for human review.
type Signal struct {
	TicketID string    `json:"ticket_id"`
	Category string    `json:"category"`
	From     string    `json:"from,omitempty"`
	Subject  string    `json:"subject,omitempty"`
	Summary  string    `json:"summary"`
	Priority string    `json:"priority"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// NewSignal creates a signal with a fresh ticket ID.
func NewSignal(category, summary, priority, reason string) *Signal {
	return &Signal{
		TicketID: "TICKET-" + uuid.NewString(),
		Category: category,
		Summary:  summary,
		Priority: priority,
		Reason:   reason,
		At:       time.Now().UTC(),
	}
}

// Sink receives escalation signals.
type Sink interface {
	Notify(ctx context.Context, sig *Signal) error
}

// LogSink writes escalations to the operator log. Always available, used as
// the fallback delivery channel.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Notify logs the signal at warn level so it surfaces in operator alerting.
func (s *LogSink) Notify(_ context.Context, sig *Signal) error {
	s.log.Warn().
		Str("ticket_id", sig.TicketID).
		Str("category", sig.Category).
		Str("priority", sig.Priority).
		Str("reason", sig.Reason).
		Str("from", sig.From).
		Str("subject", sig.Subject).
		Msg("escalation raised")
	return nil
}

// WebhookSink posts signals as JSON to an external ticketing endpoint.
type WebhookSink struct {
	url  string
	http *http.Client
}

// NewWebhookSink creates a webhook-backed sink.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{url: url, http: &http.Client{Timeout: timeout}}
}

// Notify delivers the signal to the webhook endpoint.
func (s *WebhookSink) Notify(ctx context.Context, sig *Signal) error {
	body, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation signal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("escalation webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("escalation webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// MultiSink fans one signal out to several sinks. Notify succeeds when at
// least one delivery succeeds.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Notify delivers to every sink and reports failure only if all fail.
func (s *MultiSink) Notify(ctx context.Context, sig *Signal) error {
	var lastErr error
	delivered := false
	for _, sink := range s.sinks {
		if err := sink.Notify(ctx, sig); err != nil {
			lastErr = err
			continue
		}
		delivered = true
	}
	if !delivered && lastErr != nil {
		return lastErr
	}
	return nil
}
