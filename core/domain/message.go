// Package domain holds the core data model shared across the pipeline.
package domain

import (
	"net/mail"
	"strings"
	"time"
)

// MessageSummary is a lightweight entry from an unread-inbox listing.
type MessageSummary struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
}

// InboundMessage is a fully fetched inbound email. Immutable once fetched;
// each message ID is fetched at most once per processing run.
type InboundMessage struct {
	ID            string            `json:"id"`
	ThreadID      string            `json:"thread_id"`
	From          string            `json:"from"` // raw From header, may include display name
	Subject       string            `json:"subject"`
	Body          string            `json:"body"`
	ReceivedAt    time.Time         `json:"received_at"`
	Headers       map[string]string `json:"headers,omitempty"`
	ThreadHistory []string          `json:"thread_history,omitempty"` // prior thread snippets, oldest first
}

// SenderAddress extracts the bare lowercase email address from the From header.
// Returns an empty string when no address can be parsed.
func (m *InboundMessage) SenderAddress() string {
	addr, err := mail.ParseAddress(m.From)
	if err == nil {
		return strings.ToLower(addr.Address)
	}
	// Fall back to angle-bracket extraction for headers net/mail rejects.
	raw := strings.ToLower(strings.TrimSpace(m.From))
	if start := strings.LastIndex(raw, "<"); start >= 0 {
		if end := strings.Index(raw[start:], ">"); end > 0 {
			raw = raw[start+1 : start+end]
		}
	}
	if !strings.Contains(raw, "@") {
		return ""
	}
	return raw
}

// SenderParts splits the sender address into local part and domain.
// ok is false when the address is malformed.
func (m *InboundMessage) SenderParts() (local, domain string, ok bool) {
	addr := m.SenderAddress()
	if addr == "" {
		return "", "", false
	}
	i := strings.LastIndex(addr, "@")
	if i <= 0 || i == len(addr)-1 {
		return "", "", false
	}
	return addr[:i], addr[i+1:], true
}

// DraftReply is the write-only artifact handed to the mailbox. The pipeline
// holds no reference to it after creation.
type DraftReply struct {
	ThreadID    string `json:"thread_id"`
	To          string `json:"to"`
	Subject     string `json:"subject"`
	BodyHTML    string `json:"body_html"`
	LanguageTag string `json:"language_tag"`
}

// ProcessedThreadRecord is the minimal dedup bookkeeping persisted per drafted
// message. Created once, never mutated; retention is an external concern.
type ProcessedThreadRecord struct {
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"`
}
