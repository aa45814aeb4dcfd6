package tools

import (
	"context"
	"strings"
	"testing"
)

type staticTool struct {
	name        string
	description string
	schema      map[string]any
	output      string
	err         error
	fn          func(ctx context.Context, args map[string]any) (string, error)
}

func (t staticTool) Name() string        { return t.name }
func (t staticTool) Description() string { return t.description }
func (t staticTool) Schema() map[string]any {
	if t.schema == nil {
		return map[string]any{"type": "object"}
	}
	return t.schema
}
func (t staticTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.fn != nil {
		return t.fn(ctx, args)
	}
	if t.err != nil {
		return "", t.err
	}
	if t.output != "" {
		return t.output, nil
	}
	return "ok", nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	tool := staticTool{name: "get_all_equipment", description: "list equipment", schema: map[string]any{"type": "object"}}

	if err := r.Register(tool); err != nil {
		t.Fatalf("register tool: %v", err)
	}

	got, ok := r.Lookup("get_all_equipment")
	if !ok {
		t.Fatalf("expected tool lookup to succeed")
	}
	if got.Name() != "get_all_equipment" {
		t.Fatalf("expected tool name get_all_equipment, got %q", got.Name())
	}
}

func TestRegistryRegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	tool := staticTool{name: "get_all_equipment"}
	if err := r.Register(tool); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(tool); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestRegistryNamesAreSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"search_documents", "get_all_equipment", "get_sensor_readings"} {
		if err := r.Register(staticTool{name: name}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	got := strings.Join(r.Names(), ",")
	want := "get_all_equipment,get_sensor_readings,search_documents"
	if got != want {
		t.Fatalf("expected sorted names %q, got %q", want, got)
	}
}

func TestToolDefinitionsSerializesSchema(t *testing.T) {
	r := NewRegistry()
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"search": map[string]any{"type": "string"},
		},
	}
	if err := r.Register(staticTool{name: "get_all_equipment", description: "List equipment", schema: schema}); err != nil {
		t.Fatalf("register: %v", err)
	}

	defs := r.ToolDefinitions()
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	if defs[0].Name != "get_all_equipment" {
		t.Fatalf("expected name get_all_equipment, got %q", defs[0].Name)
	}
	if defs[0].Description != "List equipment" {
		t.Fatalf("expected description to round trip")
	}
	if got := defs[0].Parameters["type"]; got != "object" {
		t.Fatalf("expected schema type object, got %#v", got)
	}
}
