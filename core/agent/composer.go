package agent

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"support_server/core/domain"
)

// completer is the slice of the generation backend the composer needs on top
// of JSON completion.
type completer interface {
	jsonCompleter
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Composer renders a loop answer into a draft reply: HTML body, threaded
// subject, and a body language matching the customer's message.
type Composer struct {
	llm completer
	log zerolog.Logger
}

// NewComposer creates a composer.
func NewComposer(llm completer, log zerolog.Logger) *Composer {
	return &Composer{llm: llm, log: log}
}

const languageDetectPrompt = `Identify the language of the text.
Respond with a JSON object: {"language": "<two-letter ISO 639-1 code>"}`

const translatePrompt = `Rewrite the following customer support reply in the language with ISO 639-1 code %q.
Keep the meaning, tone, and any order numbers or product names exactly as they are.
Output only the rewritten reply.`

// Compose builds the draft reply for a message. The customer's language wins:
// when the answer's language differs from the inbound message's, the answer
// is re-rendered before formatting. Detection failures fall back to sending
// the answer as-is rather than blocking the draft.
func (c *Composer) Compose(ctx context.Context, msg domain.InboundMessage, answer string) (*domain.DraftReply, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("compose: empty answer for thread %s", msg.ThreadID)
	}

	target := c.detectLanguage(ctx, msg.Body)
	body := answer
	if got := c.detectLanguage(ctx, answer); got != target {
		rendered, err := c.llm.CompleteWithSystem(ctx, fmt.Sprintf(translatePrompt, target), answer)
		if err != nil || strings.TrimSpace(rendered) == "" {
			c.log.Warn().Err(err).Str("target", target).Msg("language re-render failed, keeping original answer")
		} else {
			body = rendered
		}
	}

	return &domain.DraftReply{
		ThreadID:    msg.ThreadID,
		To:          msg.SenderAddress(),
		Subject:     replySubject(msg.Subject),
		BodyHTML:    renderHTML(body),
		LanguageTag: target,
	}, nil
}

// detectLanguage returns an ISO 639-1 code, "en" when detection fails.
func (c *Composer) detectLanguage(ctx context.Context, text string) string {
	resp, err := c.llm.CompleteJSON(ctx, languageDetectPrompt, truncateForDetection(text))
	if err != nil {
		c.log.Warn().Err(err).Msg("language detection call failed")
		return "en"
	}

	var parsed struct {
		Language string `json:"language"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp)), &parsed); err != nil {
		return "en"
	}
	tag := strings.ToLower(strings.TrimSpace(parsed.Language))
	if len(tag) != 2 {
		return "en"
	}
	return tag
}

// replySubject prefixes "Re:" once, preserving an existing prefix of any case.
func replySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "Re: your message"
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// renderHTML converts plain text paragraphs into an HTML body with the
// support sign-off. Blank lines separate paragraphs, single newlines become
// line breaks.
func renderHTML(text string) string {
	var b strings.Builder
	for _, para := range strings.Split(strings.TrimSpace(text), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(para, "\n", "<br>"))
		b.WriteString("</p>")
	}
	b.WriteString("<p>--<br>Customer Support Team</p>")
	return b.String()
}

// truncateForDetection caps detection input; a prefix identifies the language
// just as well as the full body. The cut never splits a multi-byte rune.
func truncateForDetection(text string) string {
	const max = 600
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
