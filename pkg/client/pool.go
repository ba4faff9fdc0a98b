// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

// Package client provides the pooled, keep-alive HTTP clients used to call
// the model services.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/modelguard/guardrail-gateway/pkg/config"
)

// ErrUnknownBackend is returned when a model name was not configured.
var ErrUnknownBackend = errors.New("unknown backend")

// PoolSettings configures timeouts and connection caps shared by every
// pooled client.
type PoolSettings struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	MaxConnections int
	MaxIdlePerHost int
}

// Pool owns one connection-pooled HTTP client per configured model service.
// Entries are created lazily and reused for the process lifetime.
type Pool struct {
	settings PoolSettings
	urls     map[string]string

	mu      sync.RWMutex
	clients map[string]*http.Client
}

// NewPool creates a Pool for the configured backends.
func NewPool(backends []config.Backend, settings PoolSettings) *Pool {
	urls := make(map[string]string, len(backends))
	for _, b := range backends {
		urls[b.Name] = b.BaseURL
	}
	return &Pool{
		settings: settings,
		urls:     urls,
		clients:  make(map[string]*http.Client),
	}
}

// ClientFor returns the pooled client and base URL for a model, creating
// the client on first use. Fails with ErrUnknownBackend for unconfigured
// names.
func (p *Pool) ClientFor(model string) (*http.Client, string, error) {
	base, ok := p.urls[model]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownBackend, model)
	}

	p.mu.RLock()
	c, ok := p.clients[model]
	p.mu.RUnlock()
	if ok {
		return c, base, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[model]; ok {
		return c, base, nil
	}
	c = p.newClient()
	p.clients[model] = c
	return c, base, nil
}

func (p *Pool) newClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   p.settings.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxConnsPerHost:     p.settings.MaxConnections,
		MaxIdleConns:        p.settings.MaxConnections,
		MaxIdleConnsPerHost: p.settings.MaxIdlePerHost,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   p.settings.RequestTimeout,
	}
}

// CheckHealth probes a model's /health endpoint. Used by operational
// probes only, never by the orchestrator.
func (p *Pool) CheckHealth(ctx context.Context, model string) error {
	c, base, err := p.ClientFor(model)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s health returned %d", model, resp.StatusCode)
	}
	return nil
}

// Shutdown closes idle connections on every pooled client. Idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.CloseIdleConnections()
	}
}
