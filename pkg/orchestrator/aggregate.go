// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/modelguard/guardrail-gateway/pkg/schema"
)

// Strategy selects how per-model verdicts collapse into one flag decision.
type Strategy string

const (
	// StrategyAnyFlag flags if any model flags.
	StrategyAnyFlag Strategy = "any_flag"
	// StrategyAllFlag flags only if every model flags.
	StrategyAllFlag Strategy = "all_flag"
	// StrategyMajority flags on a strict majority; ties are not flagged.
	StrategyMajority Strategy = "majority"
	// StrategyThreshold flags when the mean score exceeds 0.5.
	StrategyThreshold Strategy = "threshold"
)

// ParseStrategy converts a wire value into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyAnyFlag, StrategyAllFlag, StrategyMajority, StrategyThreshold:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown aggregation strategy: %q", s)
}

// Aggregate collapses the successful model results into a single flag
// decision. Empty results never flag, regardless of strategy.
func Aggregate(results map[string]schema.ModelResult, strategy Strategy) bool {
	if len(results) == 0 {
		return false
	}

	values := lo.Values(results)
	flagged := func(r schema.ModelResult) bool { return r.Flagged }

	switch strategy {
	case StrategyAnyFlag:
		return lo.SomeBy(values, flagged)
	case StrategyAllFlag:
		return lo.EveryBy(values, flagged)
	case StrategyMajority:
		return lo.CountBy(values, flagged)*2 > len(values)
	case StrategyThreshold:
		mean := lo.SumBy(values, func(r schema.ModelResult) float64 { return r.Score }) / float64(len(values))
		return mean > 0.5
	}
	return false
}
