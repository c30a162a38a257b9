// Package tools defines the toolset the generation backend may call and the
// registry that validates and executes those calls.
package tools

import "context"

// Tool is an operation the generation backend can request.
type Tool interface {
	Name() string
	Description() string
	Parameters() []ParameterSpec
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ParameterSpec declares one tool argument for schema generation and
// validation.
type ParameterSpec struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string, number, boolean
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// Call is a structured tool request emitted by the generation backend.
type Call struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Error kinds surfaced back to the generator instead of aborting a run.
const (
	ErrorKindInvalidArguments = "invalid_arguments"
	ErrorKindToolFailed       = "tool_failed"
	ErrorKindUnknownTool      = "unknown_tool"
)

// Result is the outcome of one tool call, fed back into the generation
// context verbatim. Exactly one of Payload or ErrorKind is meaningful.
type Result struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Payload   string `json:"payload,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Failed reports whether the call produced an error result.
func (r *Result) Failed() bool {
	return r.ErrorKind != ""
}

// Definition is the function-calling schema handed to the backend.
type Definition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// Parameters follows the OpenAI function parameters object format.
type Parameters struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Property is one schema property.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

// Definitionize converts a Tool into its function-calling schema.
func Definitionize(t Tool) Definition {
	properties := make(map[string]Property)
	required := []string{}
	for _, p := range t.Parameters() {
		properties[p.Name] = Property{
			Type:        p.Type,
			Description: p.Description,
			Enum:        p.Enum,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: Parameters{
			Type:       "object",
			Properties: properties,
			Required:   required,
		},
	}
}
