package snmc

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestLogEMG_MatchesNumericalConvolution(t *testing.T) {
	// The color prior N(0,σ) + Exp(1/λ) has the closed EMG form; verify it
	// against brute-force convolution ∫ φ(x−e; σ)·λe^{−λe} de.
	const sigma = 0.1
	const lambda = 1 / 0.1

	norm := distuv.Normal{Mu: 0, Sigma: sigma}
	for _, x := range []float64{-0.15, -0.05, 0, 0.05, 0.12, 0.4} {
		numeric := quad.Fixed(func(e float64) float64 {
			return norm.Prob(x-e) * lambda * math.Exp(-lambda*e)
		}, 0, 2.0, 400, quad.Legendre{}, 0)

		got := logEMG(x, sigma, lambda)
		want := math.Log(numeric)
		if math.Abs(got-want) > 1e-6 {
			t.Errorf("x=%g: logEMG %.9f vs numeric %.9f", x, got, want)
		}
	}
	t.Logf("✓ Closed-form EMG matches numerical convolution")
}

func TestLogEMG_NormalizesToOne(t *testing.T) {
	const sigma = 0.1
	const lambda = 1 / 0.1

	total := quad.Fixed(func(x float64) float64 {
		return math.Exp(logEMG(x, sigma, lambda))
	}, -1.5, 2.5, 600, quad.Legendre{}, 0)

	if math.Abs(total-1) > 1e-4 {
		t.Errorf("∫ EMG = %.6f, want 1", total)
	}
	t.Logf("✓ EMG density integrates to %.6f", total)
}

func TestLogErfc_AsymptoticContinuity(t *testing.T) {
	// The branch switch at u=8 must not introduce a jump.
	lo := logErfc(8 - 1e-9)
	hi := logErfc(8 + 1e-9)
	if math.Abs(lo-hi) > 1e-4 {
		t.Errorf("logErfc discontinuous at branch point: %.8f vs %.8f", lo, hi)
	}
	// And must stay finite far beyond erfc underflow.
	if v := logErfc(50); math.IsInf(v, 0) || math.IsNaN(v) {
		t.Errorf("logErfc(50) = %v, want finite", v)
	}
}

func TestMeasurementCov_PositiveDefinite(t *testing.T) {
	noise := DefaultNoiseSigmas()
	thetas := []Hyperparams{
		DefaultHyperparams(),
		{Alpha: 0.3, Beta: 6, MB: -17, OmegaM: 1, SigmaInt: 0.01, H0: 70, WC: 0.1},
		{Alpha: 0, Beta: 0, MB: -21, OmegaM: 0, SigmaInt: 0.5, H0: 70, WC: 0.3},
	}
	for _, theta := range thetas {
		if _, ok := distmv.NewNormal([]float64{0, 0, 0}, measurementCov(theta, noise), nil); !ok {
			t.Errorf("covariance not positive definite for theta %+v", theta)
		}
	}
	t.Logf("✓ Measurement covariance positive definite across prior corners")
}

func TestMarginalLogLikelihood_MatchesJointMonteCarlo(t *testing.T) {
	// The analytic-plus-quadrature marginal must agree with brute-force
	// Monte Carlo marginalization of the factorized density:
	//
	//	p(obs|θ) ≈ (1/M) Σ_m exp(measurement loglik | latents_m),  latents_m ~ prior
	//
	// checked per object so the MC error stays controlled.
	cfg := DefaultGenerationConfig()
	cfg.Count = 3
	cfg.Seed = 5
	cat, err := Generate(cfg)
	if err != nil {
		t.Fatal(err)
	}
	theta := cat.Truth

	const m = 200000
	rng := rand.New(rand.NewPCG(99, 1))
	for i, sn := range cat.SNe {
		sub := &Catalog{Truth: cat.Truth, Noise: cat.Noise, SNe: []Supernova{sn}}
		mu, err := Cosmology{H0: theta.H0, OmegaM: theta.OmegaM}.DistanceModuli(sub.redshifts())
		if err != nil {
			t.Fatal(err)
		}

		logTerms := make([]float64, m)
		for j := 0; j < m; j++ {
			lat := drawLatents(theta, 1, rng)
			logTerms[j] = measurementLogLik(sub, theta, mu, lat)
		}
		mc := floats.LogSumExp(logTerms) - math.Log(m)

		analytic, err := MarginalLogLikelihood(sub, theta, 64)
		if err != nil {
			t.Fatal(err)
		}

		if math.Abs(analytic-mc) > 0.1 {
			t.Errorf("object %d: analytic marginal %.4f vs Monte Carlo %.4f", i, analytic, mc)
		}
		t.Logf("object %d: analytic %.4f, MC %.4f (M=%d)", i, analytic, mc, m)
	}
	t.Logf("✓ Analytic marginal agrees with joint-draw Monte Carlo")
}

func TestMeasurementLogLikelihood_LatentSizeMismatch(t *testing.T) {
	cfg := DefaultGenerationConfig()
	cfg.Count = 4
	cat, err := Generate(cfg)
	if err != nil {
		t.Fatal(err)
	}
	lat := &LatentSet{X1: make([]float64, 3), C: make([]float64, 3)}
	if _, err := MeasurementLogLikelihood(cat, cat.Truth, lat); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("want ErrInvalidParameter, got %v", err)
	}
}

func TestMarginalLogLikelihood_InvalidParameters(t *testing.T) {
	cfg := DefaultGenerationConfig()
	cfg.Count = 4
	cat, err := Generate(cfg)
	if err != nil {
		t.Fatal(err)
	}

	bad := cat.Truth
	bad.OmegaM = -0.2
	if _, err := MarginalLogLikelihood(cat, bad, 48); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("omega_m: want ErrInvalidParameter, got %v", err)
	}
	if _, err := MarginalLogLikelihood(cat, cat.Truth, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("nodes: want ErrInvalidParameter, got %v", err)
	}
}

func TestJointLogPosterior_Factorizes(t *testing.T) {
	cfg := DefaultGenerationConfig()
	cfg.Count = 8
	cat, err := Generate(cfg)
	if err != nil {
		t.Fatal(err)
	}
	theta := cat.Truth
	priors := DefaultHyperpriors()

	rng := rand.New(rand.NewPCG(3, 1))
	lat := drawLatents(theta, cat.Len(), rng)

	ll, err := MeasurementLogLikelihood(cat, theta, lat)
	if err != nil {
		t.Fatal(err)
	}
	want := ll + LatentLogPrior(theta, lat) + priors.LogProb(theta)

	got, err := JointLogPosterior(cat, theta, lat, priors)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("joint %.12f != measurement + latent prior + hyperprior %.12f", got, want)
	}
	t.Logf("✓ Joint density is the explicit three-factor sum")
}
