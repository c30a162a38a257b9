// Package gmail provides the Gmail mailbox adapter: unread polling, message
// retrieval, draft creation, and read marking.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"support_server/core/domain"
)

// DefaultListLimit caps how many unread messages one poll cycle picks up.
const DefaultListLimit = 10

const unreadQuery = "is:unread in:inbox"

// Provider wraps the Gmail API for the support mailbox.
type Provider struct {
	service *gmail.Service
	email   string
}

// NewProvider creates a Gmail provider for the mailbox the token belongs to.
func NewProvider(ctx context.Context, token *oauth2.Token, config *oauth2.Config) (*Provider, error) {
	client := config.Client(ctx, token)
	service, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	profile, err := service.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	return &Provider{
		service: service,
		email:   profile.EmailAddress,
	}, nil
}

// Email returns the mailbox address.
func (p *Provider) Email() string {
	return p.email
}

// ListUnread returns summaries of unread inbox messages, oldest data still
// fetched newest first as Gmail orders them. limit <= 0 uses the default.
func (p *Provider) ListUnread(ctx context.Context, limit int) ([]domain.MessageSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	resp, err := p.service.Users.Messages.List("me").
		Q(unreadQuery).
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list unread messages: %w", err)
	}

	summaries := make([]domain.MessageSummary, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		summaries = append(summaries, domain.MessageSummary{ID: m.Id, ThreadID: m.ThreadId})
	}
	return summaries, nil
}

// GetMessage fetches a full message plus the last few thread snippets that
// precede it.
func (p *Provider) GetMessage(ctx context.Context, messageID string) (*domain.InboundMessage, error) {
	msg, err := p.service.Users.Messages.Get("me", messageID).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	inbound := parseMessage(msg)
	inbound.ThreadHistory, err = p.threadHistory(ctx, msg.ThreadId, msg.Id)
	if err != nil {
		// History is best effort: the reply can still be drafted from the
		// message alone.
		inbound.ThreadHistory = nil
	}
	return inbound, nil
}

// MarkRead removes the UNREAD label so the next poll cycle skips the message.
func (p *Provider) MarkRead(ctx context.Context, messageID string) error {
	_, err := p.service.Users.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	return nil
}

// CreateDraft stores a reply draft on the message's thread. Nothing is sent.
func (p *Provider) CreateDraft(ctx context.Context, reply *domain.DraftReply) error {
	raw := buildRawReply(reply)

	draft := &gmail.Draft{
		Message: &gmail.Message{
			Raw:      base64.URLEncoding.EncodeToString([]byte(raw)),
			ThreadId: reply.ThreadID,
		},
	}

	if _, err := p.service.Users.Drafts.Create("me", draft).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	return nil
}

// threadHistory returns snippets of up to three messages on the thread
// preceding currentID, oldest first.
func (p *Provider) threadHistory(ctx context.Context, threadID, currentID string) ([]string, error) {
	thread, err := p.service.Users.Threads.Get("me", threadID).
		Format("metadata").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	var snippets []string
	for _, m := range thread.Messages {
		if m.Id == currentID {
			continue
		}
		if s := strings.TrimSpace(m.Snippet); s != "" {
			snippets = append(snippets, s)
		}
	}
	const keep = 3
	if len(snippets) > keep {
		snippets = snippets[len(snippets)-keep:]
	}
	return snippets, nil
}

func parseMessage(msg *gmail.Message) *domain.InboundMessage {
	inbound := &domain.InboundMessage{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		ReceivedAt: time.Unix(msg.InternalDate/1000, 0),
		Headers:    map[string]string{},
	}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			inbound.Headers[header.Name] = header.Value
			switch header.Name {
			case "From":
				inbound.From = header.Value
			case "Subject":
				inbound.Subject = header.Value
			}
		}
		inbound.Body = parseBody(msg.Payload)
	}

	if inbound.Body == "" {
		inbound.Body = msg.Snippet
	}
	return inbound
}

// parseBody extracts text content, preferring text/plain over text/html.
func parseBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	var plain, html string
	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part == nil {
			return
		}
		if part.Body != nil && part.Body.Data != "" {
			data, err := base64.URLEncoding.DecodeString(part.Body.Data)
			if err == nil {
				switch part.MimeType {
				case "text/plain":
					if plain == "" {
						plain = string(data)
					}
				case "text/html":
					if html == "" {
						html = string(data)
					}
				}
			}
		}
		for _, nested := range part.Parts {
			walk(nested)
		}
	}
	walk(payload)

	if plain != "" {
		return plain
	}
	return html
}

func buildRawReply(reply *domain.DraftReply) string {
	var sb strings.Builder
	sb.WriteString("To: " + reply.To + "\r\n")
	sb.WriteString("Subject: " + reply.Subject + "\r\n")
	sb.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(reply.BodyHTML)
	return sb.String()
}
