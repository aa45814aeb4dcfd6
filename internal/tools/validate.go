package tools

import (
	"errors"
	"fmt"
)

// FromConfig builds the registry from the enabled tool names and the built-in
// implementations, enforcing an exact match between the two. A name without
// an implementation, an implementation without a name, and a duplicate name
// are each fatal: the tool surface must be fully declared before any model
// call is made.
func FromConfig(enabled []string, builtins []Tool) (*Registry, error) {
	var errs []error

	byName := make(map[string]Tool, len(builtins))
	for _, tool := range builtins {
		if _, dup := byName[tool.Name()]; dup {
			errs = append(errs, fmt.Errorf("tool %q implemented twice", tool.Name()))
			continue
		}
		byName[tool.Name()] = tool
	}

	registry := NewRegistry()
	seen := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		if seen[name] {
			errs = append(errs, fmt.Errorf("tool %q enabled twice", name))
			continue
		}
		seen[name] = true

		tool, ok := byName[name]
		if !ok {
			errs = append(errs, fmt.Errorf("enabled tool %q has no implementation", name))
			continue
		}
		if err := registry.Register(tool); err != nil {
			errs = append(errs, err)
		}
	}

	for _, tool := range builtins {
		if !seen[tool.Name()] {
			errs = append(errs, fmt.Errorf("tool %q is implemented but missing from tools.enabled", tool.Name()))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("tool registry mismatch: %w", errors.Join(errs...))
	}
	return registry, nil
}
