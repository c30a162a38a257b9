package tools

import (
	"context"

	"github.com/goccy/go-json"

	"support_server/core/escalation"
)

// EscalateTool lets the generator raise a support ticket for human review.
type EscalateTool struct {
	sink escalation.Sink
}

// NewEscalateTool creates the ticket escalation tool.
func NewEscalateTool(sink escalation.Sink) *EscalateTool {
	return &EscalateTool{sink: sink}
}

func (t *EscalateTool) Name() string { return "escalate_ticket_to_support" }

func (t *EscalateTool) Description() string {
	return "Create a support ticket for human review."
}

func (t *EscalateTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "category", Type: "string", Description: "Ticket category", Required: true},
		{Name: "email", Type: "string", Description: "Customer email", Required: true},
		{Name: "summary", Type: "string", Description: "Issue summary", Required: true},
		{Name: "priority", Type: "string", Description: "Ticket priority", Required: true,
			Enum: []string{escalation.PriorityLow, escalation.PriorityMedium, escalation.PriorityHigh, escalation.PriorityUrgent}},
	}
}

func (t *EscalateTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	sig := escalation.NewSignal(
		stringArg(args, "category"),
		stringArg(args, "summary"),
		stringArg(args, "priority"),
		"generator_requested",
	)
	sig.From = stringArg(args, "email")

	if err := t.sink.Notify(ctx, sig); err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]any{
		"success":   true,
		"ticket_id": sig.TicketID,
		"message":   "Ticket created successfully",
	})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
