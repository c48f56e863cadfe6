package snmc

import (
	"math"
	"sort"
)

// WeightDiagnostics characterizes how concentrated an importance-weight
// ensemble is.
//
// THE DEGENERATE WEIGHT PROBLEM:
//
// Self-normalized importance sampling fails quietly. The weighted mean is
// always computable, but when the proposal and the posterior diverge a
// handful of candidates absorb nearly all the mass:
//
//   - Healthy ensemble: weights roughly uniform, ESS ≈ N
//   - Degenerate ensemble: one weight ≈ 1, ESS ≈ 1, the "posterior" is a
//     single prior draw wearing a costume
//
// The shift from light-tailed to heavy-tailed weights is the signature of
// degeneracy, exactly the Gaussian → Pareto transition, so the same tail
// machinery applies: a Hill estimate of the Pareto tail index over the
// largest weights. Small index = heavy tail = few candidates dominating.
//
// Example:
//
//	d := snmc.DiagnoseWeights(ens.Weights)
//	if d.ESSFraction < 0.10 || d.TailIndex < 2 {
//	    // Posterior mass concentrated on few candidates.
//	    // Increase draws or tighten the proposal.
//	}
type WeightDiagnostics struct {
	N           int     // candidates diagnosed
	ESS         float64 // effective sample size 1/Σwᵢ²
	ESSFraction float64 // ESS / N
	MaxWeight   float64 // largest normalized weight
	TopShare    float64 // mass held by the top 1% of candidates (at least one)

	// TailIndex is the Hill estimate of the Pareto index over the top 20%
	// of weights. +Inf for equal weights (no tail); values at or below 2
	// indicate infinite-variance territory where the weighted mean is no
	// longer trustworthy. NaN when N is too small to estimate.
	TailIndex float64
}

// hillMinSamples is the smallest ensemble for which a tail fit says anything.
const hillMinSamples = 20

// DiagnoseWeights computes degeneracy diagnostics for normalized importance
// weights. The input is not modified.
func DiagnoseWeights(weights []float64) WeightDiagnostics {
	n := len(weights)
	d := WeightDiagnostics{N: n, TailIndex: math.NaN()}
	if n == 0 {
		return d
	}

	sorted := make([]float64, n)
	copy(sorted, weights)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	d.ESS = EffectiveSampleSize(weights)
	d.ESSFraction = d.ESS / float64(n)
	d.MaxWeight = sorted[0]

	top := n / 100
	if top < 1 {
		top = 1
	}
	for _, w := range sorted[:top] {
		d.TopShare += w
	}

	if n >= hillMinSamples {
		d.TailIndex = hillEstimate(sorted)
	}
	return d
}

// hillEstimate fits a Pareto tail index to the largest fifth of the
// descending-sorted weights:
//
//	α = k / Σᵢ₌₀ᵏ⁻¹ ln(wᵢ / wₖ)
//
// Equal weights make the sum zero; the estimate is +Inf, meaning no tail at
// all. Zero weights inside the tail are skipped (they carry no mass).
func hillEstimate(sorted []float64) float64 {
	k := len(sorted) / 5
	if sorted[k] <= 0 {
		return math.NaN()
	}
	sum := 0.0
	count := 0
	for _, w := range sorted[:k] {
		if w <= 0 {
			continue
		}
		sum += math.Log(w / sorted[k])
		count++
	}
	if count == 0 {
		return math.NaN()
	}
	if sum == 0 {
		return math.Inf(1)
	}
	return float64(count) / sum
}

// Diagnose is shorthand for DiagnoseWeights on the ensemble's weights.
func (e *Ensemble) Diagnose() WeightDiagnostics {
	return DiagnoseWeights(e.Weights)
}
