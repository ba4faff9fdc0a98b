// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modelguard/guardrail-gateway/pkg/schema"
)

func resultsFrom(flags []bool, scores []float64) map[string]schema.ModelResult {
	out := make(map[string]schema.ModelResult, len(flags))
	names := []string{"prompt-guard", "pii-detect", "hate-detect", "content-class"}
	for i := range flags {
		out[names[i]] = schema.ModelResult{Flagged: flags[i], Score: scores[i]}
	}
	return out
}

func TestAggregate(t *testing.T) {
	t.Run("empty_results_never_flag", func(t *testing.T) {
		empty := map[string]schema.ModelResult{}
		for _, s := range []Strategy{StrategyAnyFlag, StrategyAllFlag, StrategyMajority, StrategyThreshold} {
			require.False(t, Aggregate(empty, s), "strategy %s", s)
		}
	})

	t.Run("truth_table_one_of_three_flagged", func(t *testing.T) {
		results := resultsFrom([]bool{true, false, false}, []float64{0.9, 0.1, 0.2})
		require.True(t, Aggregate(results, StrategyAnyFlag))
		require.False(t, Aggregate(results, StrategyAllFlag))
		require.False(t, Aggregate(results, StrategyMajority))
		require.False(t, Aggregate(results, StrategyThreshold))
	})

	t.Run("all_flag", func(t *testing.T) {
		require.True(t, Aggregate(resultsFrom([]bool{true, true}, []float64{0.9, 0.8}), StrategyAllFlag))
		require.False(t, Aggregate(resultsFrom([]bool{true, false}, []float64{0.9, 0.1}), StrategyAllFlag))
	})

	t.Run("majority_is_strict", func(t *testing.T) {
		// 2 of 4 is a tie, not a majority.
		require.False(t, Aggregate(resultsFrom([]bool{true, true, false, false}, []float64{1, 1, 0, 0}), StrategyMajority))
		require.True(t, Aggregate(resultsFrom([]bool{true, true, false}, []float64{1, 1, 0}), StrategyMajority))
	})

	t.Run("threshold_uses_mean_score", func(t *testing.T) {
		require.True(t, Aggregate(resultsFrom([]bool{false, false}, []float64{0.6, 0.6}), StrategyThreshold))
		// Mean exactly 0.5 does not flag.
		require.False(t, Aggregate(resultsFrom([]bool{false, false}, []float64{0.5, 0.5}), StrategyThreshold))
	})
}

func TestParseStrategy(t *testing.T) {
	t.Run("known_values", func(t *testing.T) {
		for _, s := range []string{"any_flag", "all_flag", "majority", "threshold"} {
			got, err := ParseStrategy(s)
			require.NoError(t, err)
			require.Equal(t, Strategy(s), got)
		}
	})

	t.Run("unknown_value", func(t *testing.T) {
		_, err := ParseStrategy("consensus")
		require.Error(t, err)
	})
}
