package tools

import (
	"fmt"
	"strings"
	"time"
)

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("argument %q cannot be empty", key)
	}
	return s, nil
}

// optionalStringArg returns an optional string argument, treating blank values as the default.
func optionalStringArg(args map[string]any, key, def string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string", key)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return s, nil
}

// optionalIntArg returns an optional numeric argument. JSON numbers decode as
// float64, so that is the shape accepted.
func optionalIntArg(args map[string]any, key string, def int) (int, error) {
	raw, ok := args[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("argument %s must be a number", key)
	}
}

// optionalRFC3339Arg parses an optional RFC3339 timestamp argument or returns the default.
func optionalRFC3339Arg(args map[string]any, key string, def time.Time) (time.Time, error) {
	raw, ok := args[key]
	if !ok {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("argument %s must be an RFC3339 timestamp string", key)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("argument %s must be RFC3339 format", key)
	}
	return parsed, nil
}

// optionalDurationArg parses an optional Go duration string such as "24h".
func optionalDurationArg(args map[string]any, key string, def time.Duration) (time.Duration, error) {
	raw, ok := args[key]
	if !ok {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("argument %s must be a duration string such as %q", key, "24h")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("argument %s must be a duration string such as %q", key, "24h")
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("argument %s must be a positive duration", key)
	}
	return parsed, nil
}
