package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	openai "github.com/sashabaranov/go-openai"

	"support_server/core/domain"
	"support_server/core/agent/tools"
)

// toolChatter is the slice of the generation backend the loop needs.
type toolChatter interface {
	ChatWithTools(ctx context.Context, messages []openai.ChatCompletionMessage, toolDefs []tools.Definition) (openai.ChatCompletionMessage, []tools.Call, error)
}

// StoreContextProvider supplies live store facts (discounts, policies) for
// the system prompt.
type StoreContextProvider interface {
	StoreContext(ctx context.Context) string
}

// runState is the loop's finite state machine. The state machine, not
// incidental control flow, carries the termination guarantee: every
// generating transition consumes one round out of a fixed cap.
type runState int

const (
	stateGenerating runState = iota
	stateExecuting
	stateDone
	stateEscalate
)

// DefaultMaxRounds bounds generate/execute cycles per run.
const DefaultMaxRounds = 5

// Loop drives the generate -> execute -> generate cycle for one message.
type Loop struct {
	llm       toolChatter
	registry  *tools.Registry
	store     StoreContextProvider
	maxRounds int
	log       zerolog.Logger
}

// NewLoop creates a tool-calling loop. store may be nil when no live store
// context is available.
func NewLoop(llm toolChatter, registry *tools.Registry, store StoreContextProvider, maxRounds int, log zerolog.Logger) *Loop {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Loop{llm: llm, registry: registry, store: store, maxRounds: maxRounds, log: log}
}

// RunResult is either a final answer or an escalation, never both.
type RunResult struct {
	Answer           string
	Escalated        bool
	EscalationReason string
	Rounds           int
}

// Run processes one input under the category's persona until the backend
// produces a direct answer or the round cap forces an escalation. Tool
// argument and invocation failures are fed back as error results rather than
// aborting: the generator may correct itself within the same cap.
func (l *Loop) Run(ctx context.Context, category domain.Category, userInput string, history []domain.Turn) (*RunResult, error) {
	persona := PersonaFor(category)
	toolDefs := l.registry.DefinitionsFor(persona.ToolNames)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: l.systemPrompt(ctx, persona)},
	}
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userInput})

	state := stateGenerating
	rounds := 0
	var answer string
	var pending []tools.Call

	for {
		switch state {
		case stateGenerating:
			if rounds >= l.maxRounds {
				state = stateEscalate
				continue
			}
			rounds++

			msg, calls, err := l.llm.ChatWithTools(ctx, messages, toolDefs)
			if err != nil {
				return nil, fmt.Errorf("generation round %d failed: %w", rounds, err)
			}
			if len(calls) == 0 {
				answer = msg.Content
				state = stateDone
				continue
			}
			messages = append(messages, msg)
			pending = calls
			state = stateExecuting

		case stateExecuting:
			// All results of the round are appended before the next
			// generating round so the backend always sees a complete round.
			for _, result := range l.executeRound(ctx, pending) {
				messages = append(messages, toolMessage(result))
			}
			pending = nil
			state = stateGenerating

		case stateDone:
			return &RunResult{Answer: answer, Rounds: rounds}, nil

		case stateEscalate:
			l.log.Warn().Int("rounds", rounds).Str("category", string(category)).
				Msg("tool-calling loop exhausted round cap")
			return &RunResult{
				Escalated:        true,
				EscalationReason: fmt.Sprintf("loop exhausted after %d rounds", rounds),
				Rounds:           rounds,
			}, nil
		}
	}
}

// systemPrompt combines persona instructions with live store context.
func (l *Loop) systemPrompt(ctx context.Context, persona Persona) string {
	prompt := persona.Instructions
	if l.store != nil {
		prompt += "\n\n=== REAL-TIME STORE DATA ===\n" + l.store.StoreContext(ctx)
	}
	return prompt + "\n\nRemember: Use tools to get accurate data. Never guess."
}

// executeRound runs one round's calls concurrently and returns results in
// request order.
func (l *Loop) executeRound(ctx context.Context, calls []tools.Call) []*tools.Result {
	results := make([]*tools.Result, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c tools.Call) {
			defer wg.Done()
			res := l.registry.Execute(ctx, c)
			if res.Failed() {
				l.log.Warn().Str("tool", c.Name).Str("error_kind", res.ErrorKind).
					Str("detail", res.Detail).Msg("tool call failed")
			}
			results[idx] = res
		}(i, call)
	}
	wg.Wait()
	return results
}

// toolMessage converts a result into the tool turn fed back to the backend.
// Failures become a structured error payload the generator can react to.
func toolMessage(result *tools.Result) openai.ChatCompletionMessage {
	content := result.Payload
	if result.Failed() {
		data, err := json.Marshal(map[string]string{
			"error":  result.ErrorKind,
			"detail": result.Detail,
		})
		if err != nil {
			data = []byte(`{"error":"` + result.ErrorKind + `"}`)
		}
		content = string(data)
	}
	return openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		Content:    content,
		Name:       result.Name,
		ToolCallID: result.CallID,
	}
}
