// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

// Package appconsts holds application-wide constants.
package appconsts

const (
	// Name is the application name used in logs and the CLI.
	Name = "guardrail-gateway"
	// Version is the application version.
	Version = "0.1.0"
)
