// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/modelguard/guardrail-gateway/pkg/client"
	"github.com/modelguard/guardrail-gateway/pkg/metrics"
	"github.com/modelguard/guardrail-gateway/pkg/resilience"
	"github.com/modelguard/guardrail-gateway/pkg/schema"
)

// Outcome is the result of calling one model for one request. Exactly one of
// Prediction and Err is set.
type Outcome struct {
	Model      string
	Success    bool
	Prediction *schema.PredictResponse
	Err        *CallError
}

// RetryPolicy bounds the retry loop for transient failures. MaxAttempts
// counts the first attempt.
type RetryPolicy struct {
	Enabled     bool
	MaxAttempts int
	Wait        time.Duration
}

// Caller invokes a single model with breaker, timeout, and retry protection.
type Caller struct {
	pool     *client.Pool
	breakers *resilience.Registry
	retry    RetryPolicy
	logger   *slog.Logger
}

// NewCaller creates a Caller.
func NewCaller(pool *client.Pool, breakers *resilience.Registry, retry RetryPolicy, logger *slog.Logger) *Caller {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Caller{
		pool:     pool,
		breakers: breakers,
		retry:    retry,
		logger:   logger,
	}
}

// Call invokes one model for one request. It consults the breaker first,
// retries transient failures per the policy, records the terminal outcome to
// the breaker, and observes call latency. A breaker rejection records
// nothing.
func (c *Caller) Call(ctx context.Context, model, text, requestID string) Outcome {
	cb := c.breakers.Get(model)
	if !cb.AllowRequest() {
		return Outcome{
			Model: model,
			Err:   &CallError{Kind: KindBreakerOpen, Err: &resilience.OpenError{Model: model}},
		}
	}

	start := time.Now()
	pred, callErr := c.callWithRetry(ctx, model, text, requestID)
	metrics.ModelCallLatency.WithLabelValues(model).Observe(time.Since(start).Seconds())

	if callErr != nil {
		// A disconnected caller is not a model failure; leave the breaker
		// accounting untouched.
		if ctx.Err() == nil {
			cb.RecordFailure()
		}
		return Outcome{Model: model, Err: callErr}
	}

	cb.RecordSuccess()
	return Outcome{Model: model, Success: true, Prediction: pred}
}

// callWithRetry runs the attempt loop: fixed wait, capped attempts, only
// transient failures retried.
func (c *Caller) callWithRetry(ctx context.Context, model, text, requestID string) (*schema.PredictResponse, *CallError) {
	attempts := 1
	if c.retry.Enabled {
		attempts = c.retry.MaxAttempts
	}

	var pred *schema.PredictResponse
	attempt := 0

	operation := func() error {
		p, cerr := c.attempt(ctx, model, text, requestID)
		if cerr != nil {
			if cerr.retryable() {
				return cerr
			}
			return backoff.Permanent(cerr)
		}
		pred = p
		return nil
	}

	notify := func(err error, _ time.Duration) {
		attempt++
		metrics.RetryTotal.WithLabelValues(model, strconv.Itoa(attempt)).Inc()
		c.logger.Warn("model_call_retry",
			"model_name", model,
			"attempt", attempt,
			"error", err.Error(),
		)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retry.Wait), uint64(attempts-1)),
		ctx,
	)

	err := backoff.RetryNotify(operation, policy, notify)
	if err == nil {
		return pred, nil
	}

	cerr, ok := err.(*CallError)
	if !ok {
		// Context cancellation surfaces from the backoff loop directly.
		cerr = &CallError{Kind: classifyTransportError(err), Err: err}
	}
	return nil, c.describe(cerr, model, attempts)
}

// describe rewrites the terminal error with the message surfaced in the
// outcome.
func (c *Caller) describe(cerr *CallError, model string, attempts int) *CallError {
	switch cerr.Kind {
	case KindTimeout:
		cerr.Err = fmt.Errorf("timeout calling %s (after %d attempts)", model, attempts)
	case KindConnect:
		cerr.Err = fmt.Errorf("connection error calling %s (after %d attempts)", model, attempts)
	case KindHTTPStatus:
		cerr.Err = fmt.Errorf("http error from %s: %d", model, cerr.Status)
	case KindParse:
		cerr.Err = fmt.Errorf("invalid prediction from %s: %v", model, cerr.Err)
	default:
		cerr.Err = fmt.Errorf("error calling %s: %v", model, cerr.Err)
	}
	return cerr
}

// attempt performs one POST /predict round trip.
func (c *Caller) attempt(ctx context.Context, model, text, requestID string) (*schema.PredictResponse, *CallError) {
	httpClient, base, err := c.pool.ClientFor(model)
	if err != nil {
		return nil, &CallError{Kind: KindUnexpected, Err: err}
	}

	body, err := json.Marshal(schema.PredictRequest{Text: text, RequestID: requestID})
	if err != nil {
		return nil, &CallError{Kind: KindUnexpected, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, &CallError{Kind: KindUnexpected, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &CallError{Kind: classifyTransportError(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &CallError{
			Kind:   KindHTTPStatus,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	var pred schema.PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, &CallError{Kind: KindParse, Err: err}
	}
	if err := pred.Validate(); err != nil {
		return nil, &CallError{Kind: KindParse, Err: err}
	}
	return &pred, nil
}
