// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the wire contracts between callers, the gateway,
// and the downstream model services.
package schema

import (
	"fmt"
)

// MaxTextLength is the maximum accepted length of the text field, in bytes.
const MaxTextLength = 50000

// PredictRequest is the request body sent to a model service's /predict
// endpoint.
type PredictRequest struct {
	Text      string `json:"text"`
	RequestID string `json:"request_id"`
}

// PredictResponse is the reply contract every model service must honour.
type PredictResponse struct {
	Flagged   bool     `json:"flagged"`
	Score     float64  `json:"score"`
	Details   []string `json:"details"`
	LatencyMS int64    `json:"latency_ms"`
}

// Validate checks the prediction against the contract. A violation is
// treated as a model error by the caller, never forwarded.
func (p *PredictResponse) Validate() error {
	if p.Score < 0 || p.Score > 1 {
		return fmt.Errorf("score %v outside [0, 1]", p.Score)
	}
	if p.LatencyMS < 0 {
		return fmt.Errorf("negative latency_ms %d", p.LatencyMS)
	}
	return nil
}

// ValidateRequest is the body of POST /v1/validate.
type ValidateRequest struct {
	RequestID string         `json:"request_id,omitempty"`
	ProjectID string         `json:"project_id"`
	Text      string         `json:"text"`
	Type      string         `json:"type,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Validate checks the request envelope. The type field defaults to "input"
// when empty.
func (r *ValidateRequest) Validate() error {
	if r.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if len(r.Text) > MaxTextLength {
		return fmt.Errorf("text exceeds %d characters", MaxTextLength)
	}
	switch r.Type {
	case "", "input", "output":
	default:
		return fmt.Errorf("type must be %q or %q", "input", "output")
	}
	return nil
}

// ModelResult is the per-model slice of an aggregated verdict.
type ModelResult struct {
	Flagged   bool     `json:"flagged"`
	Score     float64  `json:"score"`
	Details   []string `json:"details"`
	LatencyMS int64    `json:"latency_ms"`
}

// ValidateResponse is the aggregated verdict returned by POST /v1/validate.
// Every field is always present; empty containers serialise as empty, not
// null.
type ValidateResponse struct {
	RequestID      string                 `json:"request_id"`
	Flagged        bool                   `json:"flagged"`
	FlagReasons    []string               `json:"flag_reasons"`
	ModelResults   map[string]ModelResult `json:"model_results"`
	PartialFailure bool                   `json:"partial_failure"`
	FailedModels   []string               `json:"failed_models"`
	LatencyMS      int64                  `json:"latency_ms"`
}
