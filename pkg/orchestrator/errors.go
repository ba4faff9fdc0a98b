// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// ErrorKind classifies a terminal model call failure. Every kind is absorbed
// into a call outcome; none escapes the orchestrator as an error.
type ErrorKind string

const (
	// KindBreakerOpen means the breaker rejected the call locally.
	KindBreakerOpen ErrorKind = "breaker_open"
	// KindTimeout means the connect or read deadline was exceeded.
	KindTimeout ErrorKind = "timeout"
	// KindConnect means a socket- or DNS-level failure.
	KindConnect ErrorKind = "connect_error"
	// KindHTTPStatus means the model replied with a non-2xx status.
	KindHTTPStatus ErrorKind = "http_status"
	// KindParse means the reply violated the prediction contract.
	KindParse ErrorKind = "parse"
	// KindUnexpected covers everything else.
	KindUnexpected ErrorKind = "unexpected"
)

// CallError is a classified model call failure.
type CallError struct {
	Kind   ErrorKind
	Status int // HTTP status for KindHTTPStatus, zero otherwise
	Err    error
}

// Error returns the human-readable message carried in the call outcome.
func (e *CallError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// Unwrap returns the underlying error.
func (e *CallError) Unwrap() error {
	return e.Err
}

// retryable reports whether the failure is transient. Only timeouts and
// connection errors are retried; HTTP-status and parse failures are
// deterministic.
func (e *CallError) retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindConnect
}

// classifyTransportError maps an http.Client error to a kind.
func classifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindConnect
	}
	return KindUnexpected
}
