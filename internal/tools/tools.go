// Package tools defines the Tool interface, Registry, and Dispatcher that
// execute model-issued tool calls against plant data.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/millwright-ai/millwright/internal/provider"
)

// Tool is an executable action exposed to the LLM.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the JSON Schema object describing the tool arguments.
	Schema() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry stores tools by unique name.
type Registry struct {
	byName map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register adds a tool by unique name.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return errors.New("tool cannot be nil")
	}
	name := tool.Name()
	if name == "" {
		return errors.New("tool name cannot be empty")
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.byName[name] = tool
	return nil
}

// Lookup returns a tool by name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	tool, ok := r.byName[name]
	return tool, ok
}

// Tools returns all registered tools in stable name order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.byName))
	for _, name := range r.Names() {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns all registered tool names in stable order.
func (r *Registry) Names() []string {
	keys := make([]string, 0, len(r.byName))
	for name := range r.byName {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}

// ToolDefinitions converts registered tools into LLM request tool definitions.
func (r *Registry) ToolDefinitions() []provider.ToolDefinition {
	tools := r.Tools()
	defs := make([]provider.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, provider.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return defs
}
