// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/alexliesenfeld/health"

	"github.com/modelguard/guardrail-gateway/pkg/client"
)

// Prober periodically hits each model's /health endpoint and exposes the
// results on the debug surface. Purely operational: the orchestrator never
// consults it.
type Prober struct {
	checker health.Checker
}

// NewProber creates a Prober over the configured models.
func NewProber(pool *client.Pool, models []string, interval time.Duration) *Prober {
	opts := []health.CheckerOption{
		health.WithCacheDuration(time.Second),
		health.WithTimeout(2 * time.Second),
	}
	for _, model := range models {
		model := model
		opts = append(opts, health.WithPeriodicCheck(interval, 0, health.Check{
			Name: model,
			Check: func(ctx context.Context) error {
				return pool.CheckHealth(ctx, model)
			},
		}))
	}
	return &Prober{checker: health.NewChecker(opts...)}
}

// Handler serves the probe snapshot.
func (p *Prober) Handler() http.Handler {
	return health.NewHandler(p.checker)
}

// Stop halts the periodic checks.
func (p *Prober) Stop() {
	p.checker.Stop()
}
