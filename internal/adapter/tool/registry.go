package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"secretary-ai/internal/domain"
)

// Registry is the set of tools offered to the model, kept in the order they
// were registered so the tool list sent with every turn is stable.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]domain.Tool
	tools  []domain.Tool
	logger *slog.Logger
}

// NewRegistry returns an empty registry. With a non-nil logger every
// registered tool checks its arguments against its JSON Schema before
// running; a schema that does not compile is logged and skipped.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{byName: make(map[string]domain.Tool), logger: logger}
}

func (r *Registry) Register(t domain.Tool) error {
	name := t.Name()
	if r.logger != nil {
		checked, err := withArgumentSchema(t)
		if err != nil {
			r.logger.Warn("tool schema not enforced", "tool", name, "error", err)
		} else {
			t = checked
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.byName[name] = t
	r.tools = append(r.tools, t)
	return nil
}

func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	t, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// Names lists tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name()
	}
	return names
}

// Schemas lists the function-calling schemas in registration order.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]domain.ToolSchema, len(r.tools))
	for i, t := range r.tools {
		schemas[i] = t.Schema()
	}
	return schemas
}

// schemaCheckedTool rejects arguments that do not match the tool's schema
// with a non-retryable failure the model can correct.
type schemaCheckedTool struct {
	domain.Tool
	schema *jsonschema.Schema
}

// withArgumentSchema returns t unchanged when it declares no parameters.
func withArgumentSchema(t domain.Tool) (domain.Tool, error) {
	raw := t.Schema().Parameters
	if len(bytes.TrimSpace(raw)) == 0 || string(raw) == "null" {
		return t, nil
	}
	url := t.Name() + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &schemaCheckedTool{Tool: t, schema: schema}, nil
}

func (s *schemaCheckedTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	var args any
	if err := json.Unmarshal(params, &args); err != nil {
		return FailureResult(fmt.Sprintf("invalid JSON: %v", err), false), nil
	}
	if err := s.schema.Validate(args); err != nil {
		return FailureResult(fmt.Sprintf("schema validation failed: %v", err), false), nil
	}
	return s.Tool.Execute(ctx, params)
}
