// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

package resilience

// OpenError is returned when a breaker rejects a call while open.
type OpenError struct {
	Model string
}

// Error returns the error message.
func (e *OpenError) Error() string {
	return "circuit breaker open for model: " + e.Model
}
