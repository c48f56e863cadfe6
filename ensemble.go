package snmc

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Sample is one candidate draw: an immutable global parameter vector, its
// optional latent block, and the unnormalized posterior log-density relative
// to the proposal.
type Sample struct {
	Theta     Hyperparams
	Latents   *LatentSet // nil unless SamplerConfig.KeepLatents
	LogWeight float64
}

// Ensemble is the self-normalized importance-sampling posterior: the valid
// candidates with their normalized weights, plus the run diagnostics. It is
// a weighted ensemble, not a chain; candidate order carries no meaning.
type Ensemble struct {
	Samples []Sample
	Weights []float64 // normalized, Σ = 1, aligned with Samples

	// LogNorm is the log-sum-exp of the raw log-weights, i.e. the log of
	// the (unnormalized) evidence estimate up to the proposal constant.
	LogNorm float64

	// Overflows counts candidates whose log-weight evaluated non-finite.
	// They are excluded from Samples, never silently dropped.
	Overflows int

	// ESS is the effective sample size 1/Σwᵢ² of the normalized weights.
	ESS float64

	// Degenerate is set when ESS fell below the configured fraction of the
	// valid draws. The estimate may still be informative; the flag is an
	// annotation, not a failure.
	Degenerate bool
}

// EffectiveSampleSize returns 1/Σwᵢ² for normalized weights. Equals len(w)
// when all weights are equal and approaches 1 as the mass concentrates on a
// single candidate.
func EffectiveSampleSize(weights []float64) float64 {
	sumSq := 0.0
	for _, w := range weights {
		sumSq += w * w
	}
	if sumSq == 0 {
		return 0
	}
	return 1 / sumSq
}

// normalizeLogWeights converts raw log-weights into normalized weights by
// subtracting the log-sum-exp, keeping the whole operation in the log domain
// so arbitrary weight magnitudes cannot overflow.
func normalizeLogWeights(logw []float64) (weights []float64, logNorm float64) {
	logNorm = floats.LogSumExp(logw)
	weights = make([]float64, len(logw))
	for i, lw := range logw {
		weights[i] = math.Exp(lw - logNorm)
	}
	return weights, logNorm
}

// Expectation estimates the posterior expectation of f as the weighted
// average Σ wᵢ·f(θᵢ).
func (e *Ensemble) Expectation(f func(Hyperparams) float64) float64 {
	mean, _ := e.MeanVariance(f)
	return mean
}

// MeanVariance estimates the posterior mean and variance of f under the
// normalized weights. The variance is the weighted population form
// Σ wᵢ·(f(θᵢ)−mean)²; gonum's weighted stat.Variance applies a
// frequency-weight correction that divides by Σw−1, which is zero for
// normalized importance weights.
func (e *Ensemble) MeanVariance(f func(Hyperparams) float64) (mean, variance float64) {
	xs := make([]float64, len(e.Samples))
	for i, s := range e.Samples {
		xs[i] = f(s.Theta)
	}
	mean = stat.Mean(xs, e.Weights)
	for i, x := range xs {
		d := x - mean
		variance += e.Weights[i] * d * d
	}
	return mean, variance
}

// PosteriorSummary is the weighted mean and spread of one hyperparameter.
type PosteriorSummary struct {
	Param    string  `yaml:"param"`
	Mean     float64 `yaml:"mean"`
	Variance float64 `yaml:"variance"`
	StdDev   float64 `yaml:"stddev"`
}

// inferredParams enumerates the hyperparameters the sampler varies, in
// reporting order.
var inferredParams = []struct {
	name string
	get  func(Hyperparams) float64
}{
	{"alpha", func(h Hyperparams) float64 { return h.Alpha }},
	{"beta", func(h Hyperparams) float64 { return h.Beta }},
	{"m_b", func(h Hyperparams) float64 { return h.MB }},
	{"omega_m", func(h Hyperparams) float64 { return h.OmegaM }},
	{"sigma_int", func(h Hyperparams) float64 { return h.SigmaInt }},
}

// Summary reports the weighted posterior mean and variance of every inferred
// hyperparameter.
func (e *Ensemble) Summary() []PosteriorSummary {
	out := make([]PosteriorSummary, len(inferredParams))
	for i, p := range inferredParams {
		mean, variance := e.MeanVariance(p.get)
		out[i] = PosteriorSummary{
			Param:    p.name,
			Mean:     mean,
			Variance: variance,
			StdDev:   math.Sqrt(variance),
		}
	}
	return out
}
