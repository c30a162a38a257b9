package tools

import (
	"context"
	"fmt"
	"sync"
)

// Registry manages the available tools. A persona only ever sees the subset
// returned by DefinitionsFor, so a compromised message body cannot request
// tools outside its category.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// RegisterAll registers multiple tools.
func (r *Registry) RegisterAll(tools ...Tool) {
	for _, tool := range tools {
		r.Register(tool)
	}
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool, nil
}

// DefinitionsFor returns schemas for the named tools, skipping unknown names.
func (r *Registry) DefinitionsFor(names []string) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			defs = append(defs, Definitionize(tool))
		}
	}
	return defs
}

// Execute validates and runs one call. Failures never surface as errors: they
// become error-kind results the generator can react to, bounded by the loop's
// round cap.
func (r *Registry) Execute(ctx context.Context, call Call) *Result {
	tool, err := r.Get(call.Name)
	if err != nil {
		return &Result{CallID: call.ID, Name: call.Name, ErrorKind: ErrorKindUnknownTool, Detail: err.Error()}
	}

	if detail, ok := validateArgs(tool.Parameters(), call.Args); !ok {
		return &Result{CallID: call.ID, Name: call.Name, ErrorKind: ErrorKindInvalidArguments, Detail: detail}
	}

	payload, err := tool.Execute(ctx, call.Args)
	if err != nil {
		return &Result{CallID: call.ID, Name: call.Name, ErrorKind: ErrorKindToolFailed, Detail: err.Error()}
	}
	return &Result{CallID: call.ID, Name: call.Name, Payload: payload}
}

// validateArgs checks required presence, declared types, and enum membership.
func validateArgs(specs []ParameterSpec, args map[string]any) (string, bool) {
	for _, spec := range specs {
		v, present := args[spec.Name]
		if !present || v == nil {
			if spec.Required {
				return fmt.Sprintf("missing required parameter: %s", spec.Name), false
			}
			continue
		}
		switch spec.Type {
		case "string":
			s, ok := v.(string)
			if !ok {
				return fmt.Sprintf("parameter %s must be a string", spec.Name), false
			}
			if len(spec.Enum) > 0 && !enumContains(spec.Enum, s) {
				return fmt.Sprintf("parameter %s must be one of %v", spec.Name, spec.Enum), false
			}
		case "number":
			switch v.(type) {
			case float64, float32, int, int64:
			default:
				return fmt.Sprintf("parameter %s must be a number", spec.Name), false
			}
		case "boolean":
			if _, ok := v.(bool); !ok {
				return fmt.Sprintf("parameter %s must be a boolean", spec.Name), false
			}
		}
	}
	return "", true
}

func enumContains(enum []string, s string) bool {
	for _, e := range enum {
		if e == s {
			return true
		}
	}
	return false
}
