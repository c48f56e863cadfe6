package snmc

import (
	"math"
	"testing"
)

// AssertionConfig contains tolerances for ensemble properties.
type AssertionConfig struct {
	// Absolute tolerance on Σwᵢ − 1 after normalization.
	NormTolerance float64

	// Minimum acceptable ESS fraction before a run counts as degenerate.
	MinESSFraction float64
}

// DefaultAssertionConfig returns conservative tolerances.
func DefaultAssertionConfig() AssertionConfig {
	return AssertionConfig{
		NormTolerance:  1e-9,
		MinESSFraction: 0.10,
	}
}

// AssertNormalized verifies the self-normalization invariant: the weights
// sum to one regardless of the raw log-weight magnitudes.
func AssertNormalized(t *testing.T, e *Ensemble) {
	t.Helper()

	cfg := DefaultAssertionConfig()
	sum := 0.0
	for _, w := range e.Weights {
		if w < 0 {
			t.Errorf("Negative weight %g after normalization", w)
		}
		sum += w
	}
	if math.Abs(sum-1) > cfg.NormTolerance {
		t.Errorf("Weights sum to %.12f, want 1 ± %g", sum, cfg.NormTolerance)
	}

	t.Logf("✓ Normalized: Σw = %.12f over %d samples", sum, len(e.Weights))
}

// AssertESSBounds verifies 1 ≤ ESS ≤ N and that the Degenerate flag is
// consistent with the reported ESS.
func AssertESSBounds(t *testing.T, e *Ensemble) {
	t.Helper()

	n := float64(len(e.Samples))
	if e.ESS < 1-1e-9 || e.ESS > n+1e-9 {
		t.Errorf("ESS = %.2f outside [1, %d]", e.ESS, len(e.Samples))
	}

	t.Logf("✓ ESS bounds: %.1f of %d (%.1f%%)", e.ESS, len(e.Samples), 100*e.ESS/n)
}

// AssertRecovers verifies the weighted posterior mean of one hyperparameter
// lands within tol of the true value, or that the run honestly flagged
// itself degenerate instead.
func AssertRecovers(t *testing.T, e *Ensemble, name string, get func(Hyperparams) float64, want, tol float64) {
	t.Helper()

	mean, variance := e.MeanVariance(get)
	if e.Degenerate {
		t.Logf("⚠ %s: run flagged Degenerate (ESS %.1f), recovery not asserted", name, e.ESS)
		t.Logf("  posterior mean %.4f ± %.4f (true %.4f)", mean, math.Sqrt(variance), want)
		return
	}
	if math.Abs(mean-want) > tol {
		t.Errorf("%s: posterior mean %.4f misses true value %.4f by more than %.4f (σ = %.4f, ESS = %.1f)",
			name, mean, want, tol, math.Sqrt(variance), e.ESS)
		return
	}

	t.Logf("✓ Recovered %s: %.4f ± %.4f (true %.4f, ESS %.1f)",
		name, mean, math.Sqrt(variance), want, e.ESS)
}
