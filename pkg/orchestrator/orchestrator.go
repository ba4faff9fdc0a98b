// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator owns the parallel fan-out to the model services and
// the shaping of the aggregated verdict.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/modelguard/guardrail-gateway/pkg/metrics"
	"github.com/modelguard/guardrail-gateway/pkg/schema"
)

// Orchestrator fans a validation out to every enabled model, collects the
// outcomes, and builds the aggregated verdict. Model failures never escape
// as request failures; they are accounted for in the verdict.
type Orchestrator struct {
	models []string // configured fan-out order
	caller *Caller
	logger *slog.Logger
}

// New creates an Orchestrator over the configured model names.
func New(models []string, caller *Caller, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		models: models,
		caller: caller,
		logger: logger,
	}
}

// Models returns the configured model names in fan-out order.
func (o *Orchestrator) Models() []string {
	return o.models
}

// Validate runs one validation. enabled defaults to every configured model,
// strategy to any-flag, and requestID to a fresh UUID. The only error it
// returns is an internal misconfiguration (unknown model name).
func (o *Orchestrator) Validate(ctx context.Context, text string, enabled []string, strategy Strategy, requestID string) (*schema.ValidateResponse, error) {
	start := time.Now()

	if requestID == "" {
		requestID = uuid.NewString()
	}
	if enabled == nil {
		enabled = o.models
	}
	if strategy == "" {
		strategy = StrategyAnyFlag
	}

	for _, model := range enabled {
		if !lo.Contains(o.models, model) {
			metrics.RequestTotal.WithLabelValues("error", "false").Inc()
			return nil, fmt.Errorf("unknown model: %s", model)
		}
	}

	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	// One call per enabled model; wait for all of them. Slower peers are
	// not cancelled once some have returned.
	outcomes := make([]Outcome, len(enabled))
	var wg sync.WaitGroup
	for i, model := range enabled {
		wg.Add(1)
		go func(i int, model string) {
			defer wg.Done()
			outcomes[i] = o.caller.Call(ctx, model, text, requestID)
		}(i, model)
	}
	wg.Wait()

	modelResults := make(map[string]schema.ModelResult, len(enabled))
	flagReasons := []string{}
	failedModels := []string{}

	for _, out := range outcomes {
		if out.Success && out.Prediction != nil {
			details := out.Prediction.Details
			if details == nil {
				details = []string{}
			}
			modelResults[out.Model] = schema.ModelResult{
				Flagged:   out.Prediction.Flagged,
				Score:     out.Prediction.Score,
				Details:   details,
				LatencyMS: out.Prediction.LatencyMS,
			}
			if out.Prediction.Flagged {
				flagReasons = append(flagReasons, out.Model+"_flagged")
			}
		} else {
			failedModels = append(failedModels, out.Model)
			o.logger.Warn("model_call_failed",
				"model_name", out.Model,
				"request_id", requestID,
				"error", out.Err.Error(),
			)
		}
	}

	flagged := Aggregate(modelResults, strategy)
	elapsed := time.Since(start)

	metrics.RequestLatency.Observe(elapsed.Seconds())
	status := "success"
	if len(failedModels) > 0 {
		status = "partial"
	}
	metrics.RequestTotal.WithLabelValues(status, strconv.FormatBool(flagged)).Inc()

	return &schema.ValidateResponse{
		RequestID:      requestID,
		Flagged:        flagged,
		FlagReasons:    flagReasons,
		ModelResults:   modelResults,
		PartialFailure: len(failedModels) > 0,
		FailedModels:   failedModels,
		LatencyMS:      elapsed.Milliseconds(),
	}, nil
}
