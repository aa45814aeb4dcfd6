package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/millwright-ai/millwright/internal/logging"
)

// Selector picks the first available backend from an ordered preference list.
// Availability results are cached per backend for a TTL so repeated turns do
// not re-probe on every request.
type Selector struct {
	providers []Provider
	ttl       time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	cache map[string]probeResult
}

type probeResult struct {
	err       error
	checkedAt time.Time
}

// NewSelector builds a selector over providers in preference order.
func NewSelector(providers []Provider, ttl time.Duration) *Selector {
	return &Selector{
		providers: providers,
		ttl:       ttl,
		now:       time.Now,
		cache:     make(map[string]probeResult),
	}
}

// Providers returns the preference order.
func (s *Selector) Providers() []Provider { return s.providers }

// Pick returns the first backend whose availability check passes, in
// preference order. When every backend fails, the error wraps
// ErrNoProviderAvailable and lists each backend's reason.
func (s *Selector) Pick(ctx context.Context) (Provider, error) {
	log := logging.Logger()
	var reasons []string
	for _, p := range s.providers {
		if err := s.available(ctx, p); err != nil {
			log.Debug("provider unavailable", slog.String("provider", p.Name()), slog.Any("error", err))
			reasons = append(reasons, fmt.Sprintf("%s: %v", p.Name(), err))
			continue
		}
		return p, nil
	}
	if len(reasons) == 0 {
		return nil, fmt.Errorf("%w: no providers configured", ErrNoProviderAvailable)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoProviderAvailable, strings.Join(reasons, "; "))
}

// available returns the cached probe outcome for p, refreshing it when the
// cache entry is missing or older than the TTL.
func (s *Selector) available(ctx context.Context, p Provider) error {
	name := p.Name()

	s.mu.RLock()
	cached, ok := s.cache[name]
	s.mu.RUnlock()
	if ok && s.now().Sub(cached.checkedAt) < s.ttl {
		return cached.err
	}

	var err error
	if c, ok := p.(Checkable); ok {
		err = c.CheckAvailability(ctx)
	}

	s.mu.Lock()
	s.cache[name] = probeResult{err: err, checkedAt: s.now()}
	s.mu.Unlock()
	return err
}

// Invalidate drops the cached probe for one backend so the next Pick
// re-checks it. Called after a chat request to that backend fails.
func (s *Selector) Invalidate(name string) {
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}
