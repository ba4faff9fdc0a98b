// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"sync"
)

// Registry holds one breaker per model name. Breakers are created lazily on
// first reference and live for the process lifetime.
type Registry struct {
	settings Settings

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a Registry whose breakers share the given settings.
func NewRegistry(settings Settings) *Registry {
	return &Registry{
		settings: settings,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for a model, creating it on first reference.
func (r *Registry) Get(model string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[model]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[model]; ok {
		return cb
	}
	cb = NewCircuitBreaker(model, r.settings)
	r.breakers[model] = cb
	return cb
}

// All returns a snapshot of every breaker created so far.
func (r *Registry) All() map[string]*CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*CircuitBreaker, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb
	}
	return out
}
