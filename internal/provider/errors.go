package provider

import (
	"errors"
	"fmt"
)

// ErrNoProviderAvailable reports that every configured backend failed its
// availability check.
var ErrNoProviderAvailable = errors.New("no provider available")

// ErrUnavailable reports a failed availability check for one backend.
var ErrUnavailable = errors.New("provider unavailable")

// CallError wraps a failed chat request with the backend's identity so callers
// can attribute the failure without inspecting provider internals.
type CallError struct {
	Provider string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }
