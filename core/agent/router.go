// Package agent implements the intent router, the tool-calling loop, and the
// reply composer that together turn a gated message into a drafted answer.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"support_server/core/domain"
)

// jsonCompleter is the slice of the generation backend the router needs.
type jsonCompleter interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Router classifies a message into the closed category set. Classification
// happens before any tool access so each persona only ever sees its own
// toolset.
type Router struct {
	llm jsonCompleter
	log zerolog.Logger
}

// NewRouter creates a router.
func NewRouter(llm jsonCompleter, log zerolog.Logger) *Router {
	return &Router{llm: llm, log: log}
}

const routerPrompt = `Classify the user's message into exactly one category:
%s

Rules:
- Ignore empty or "No Subject" subject lines
- If message sounds like a B2B sales pitch, classify as 'AccountProfileOther'

Respond with a JSON object: {"category": "<category name>"}`

const routerRetryPrompt = `Your previous answer was not a valid category.
You MUST pick exactly one of these values, copied verbatim:
%s

Respond with a JSON object: {"category": "<category name>"} and nothing else.`

// Classify returns a category for the message content. Malformed backend
// output is retried once with a stricter instruction; a second failure falls
// back to the default category so every gated message reaches a persona.
func (r *Router) Classify(ctx context.Context, content string) domain.Category {
	names := make([]string, 0, len(domain.AllCategories()))
	for _, c := range domain.AllCategories() {
		names = append(names, string(c))
	}
	list := strings.Join(names, ", ")

	if cat, ok := r.classifyOnce(ctx, fmt.Sprintf(routerPrompt, list), content); ok {
		return cat
	}

	r.log.Warn().Msg("router returned out-of-enum category, retrying with strict instruction")
	if cat, ok := r.classifyOnce(ctx, fmt.Sprintf(routerRetryPrompt, list), content); ok {
		return cat
	}

	r.log.Warn().Str("fallback", string(domain.DefaultCategory)).Msg("routing failed twice, using default category")
	return domain.DefaultCategory
}

func (r *Router) classifyOnce(ctx context.Context, systemPrompt, content string) (domain.Category, bool) {
	resp, err := r.llm.CompleteJSON(ctx, systemPrompt, content)
	if err != nil {
		r.log.Warn().Err(err).Msg("router classification call failed")
		return "", false
	}

	var parsed struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp)), &parsed); err != nil {
		return "", false
	}
	return domain.ParseCategory(parsed.Category)
}
