package snmc

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// LatentSet holds one candidate's per-object latent values, indexed like
// Catalog.SNe. Immutable once drawn.
type LatentSet struct {
	X1 []float64
	C  []float64
}

// drawLatents samples the full joint latent block from the population prior
// under theta: X1[i] ~ N(0,1), C[i] = N(0,w_c) + Exp(w_c).
func drawLatents(theta Hyperparams, n int, src rand.Source) *LatentSet {
	stdNorm := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	colorNorm := distuv.Normal{Mu: 0, Sigma: theta.WC, Src: src}
	colorTail := distuv.Exponential{Rate: 1 / theta.WC, Src: src}

	lat := &LatentSet{X1: make([]float64, n), C: make([]float64, n)}
	for i := 0; i < n; i++ {
		lat.X1[i] = stdNorm.Rand()
		lat.C[i] = colorNorm.Rand() + colorTail.Rand()
	}
	return lat
}

// MeasurementLogLikelihood is the measurement half of the factorized
// hierarchical density: the sum over objects of the three observation
// Gaussians
//
//	log N(mb_obs | mb_true, σ_mb) + log N(x1_obs | x1_true, σ_x1) + log N(c_obs | c_true, σ_c)
//
// with mb_true computed from the candidate latents and theta. It deliberately
// excludes the population prior of the latents (LatentLogPrior) and the
// hyperprior (Hyperpriors.LogProb); keeping the three factors separate is
// what makes the hierarchical marginalization tractable.
func MeasurementLogLikelihood(cat *Catalog, theta Hyperparams, lat *LatentSet) (float64, error) {
	if err := theta.validate(); err != nil {
		return 0, err
	}
	if len(lat.X1) != cat.Len() || len(lat.C) != cat.Len() {
		return 0, fmt.Errorf("%w: latent block size %d/%d does not match catalog size %d",
			ErrInvalidParameter, len(lat.X1), len(lat.C), cat.Len())
	}
	cosmo := Cosmology{H0: theta.H0, OmegaM: theta.OmegaM}
	mu, err := cosmo.DistanceModuli(cat.redshifts())
	if err != nil {
		return 0, err
	}
	return measurementLogLik(cat, theta, mu, lat), nil
}

// measurementLogLik is the hot-path form with precomputed distance moduli.
func measurementLogLik(cat *Catalog, theta Hyperparams, mu []float64, lat *LatentSet) float64 {
	nx1 := distuv.Normal{Mu: 0, Sigma: cat.Noise.X1}
	nc := distuv.Normal{Mu: 0, Sigma: cat.Noise.C}
	nmb := distuv.Normal{Mu: 0, Sigma: cat.Noise.MB}

	ll := 0.0
	for i, sn := range cat.SNe {
		mbTrue := theta.MB - theta.Alpha*lat.X1[i] + theta.Beta*lat.C[i] + mu[i]
		ll += nmb.LogProb(sn.MBObs - mbTrue)
		ll += nx1.LogProb(sn.X1Obs - lat.X1[i])
		ll += nc.LogProb(sn.CObs - lat.C[i])
	}
	return ll
}

// LatentLogPrior is the population half of the factorized density: the sum
// over objects of the latent prior log-densities under theta. The color
// prior N(0,w_c) + Exp(w_c) is an exponentially modified Gaussian with a
// closed form.
func LatentLogPrior(theta Hyperparams, lat *LatentSet) float64 {
	stdNorm := distuv.Normal{Mu: 0, Sigma: 1}
	lp := 0.0
	for i := range lat.X1 {
		lp += stdNorm.LogProb(lat.X1[i])
		lp += logEMG(lat.C[i], theta.WC, 1/theta.WC)
	}
	return lp
}

// JointLogPosterior is the full unnormalized log-posterior of one candidate:
// measurement likelihood + latent population prior + hyperprior.
func JointLogPosterior(cat *Catalog, theta Hyperparams, lat *LatentSet, priors Hyperpriors) (float64, error) {
	ll, err := MeasurementLogLikelihood(cat, theta, lat)
	if err != nil {
		return 0, err
	}
	return ll + LatentLogPrior(theta, lat) + priors.LogProb(theta), nil
}

// logEMG is the log-density at x of Normal(0, sigma) + Exponential(rate
// lambda):
//
//	f(x) = (λ/2) · exp((λ/2)(λσ² − 2x)) · erfc((λσ² − x) / (√2 σ))
func logEMG(x, sigma, lambda float64) float64 {
	u := (lambda*sigma*sigma - x) / (math.Sqrt2 * sigma)
	return math.Log(lambda) - math.Ln2 + 0.5*lambda*(lambda*sigma*sigma-2*x) + logErfc(u)
}

// logErfc avoids the erfc underflow that hits around u ≈ 26 by switching to
// the asymptotic expansion erfc(u) ≈ exp(−u²)/(u√π) · (1 − 1/(2u²)).
func logErfc(u float64) float64 {
	if u < 8 {
		return math.Log(math.Erfc(u))
	}
	return -u*u - math.Log(u*math.Sqrt(math.Pi)) + math.Log1p(-1/(2*u*u))
}

// colorQuad holds Gauss-Legendre nodes on the exponential color quantile:
// E_e[f(e)] for e ~ Exp(scale w_c) becomes ∫₀¹ f(−w_c·ln(1−u)) du, so the
// exponential density is absorbed into the substitution and the nodes never
// touch the endpoints.
type colorQuad struct {
	u    []float64 // quantile nodes in (0, 1)
	logW []float64 // log quadrature weights
}

func newColorQuad(nodes int) colorQuad {
	u := make([]float64, nodes)
	w := make([]float64, nodes)
	quad.Legendre{}.FixedLocations(u, w, 0, 1)
	logW := make([]float64, nodes)
	for i, wi := range w {
		logW[i] = math.Log(wi)
	}
	return colorQuad{u: u, logW: logW}
}

// measurementCov is the 3×3 covariance of (x1_obs, c_obs, mb_obs) under
// theta, conditional on the exponential color component. The conditioning
// leaves only Gaussian terms, so the covariance is exact and shared by every
// object and every quadrature node:
//
//	Var(x1_obs) = 1 + σ_x1²
//	Var(c_obs)  = w_c² + σ_c²
//	Var(mb_obs) = α² + β²w_c² + σ_int² + σ_mb²
//	Cov(x1_obs, mb_obs) = −α
//	Cov(c_obs,  mb_obs) = β·w_c²
func measurementCov(theta Hyperparams, noise NoiseSigmas) *mat.SymDense {
	wc2 := theta.WC * theta.WC
	cov := mat.NewSymDense(3, nil)
	cov.SetSym(0, 0, 1+noise.X1*noise.X1)
	cov.SetSym(1, 1, wc2+noise.C*noise.C)
	cov.SetSym(2, 2, theta.Alpha*theta.Alpha+theta.Beta*theta.Beta*wc2+
		theta.SigmaInt*theta.SigmaInt+noise.MB*noise.MB)
	cov.SetSym(0, 1, 0)
	cov.SetSym(0, 2, -theta.Alpha)
	cov.SetSym(1, 2, theta.Beta*wc2)
	return cov
}

// MarginalLogLikelihood integrates the per-object latents out of the
// measurement likelihood: p(obs | theta) per object, summed in the log
// domain over the catalog.
//
// Conditional on the exponential color component e, the observation vector
// (x1_obs, c_obs, mb_obs) is jointly Gaussian with mean
// (0, e, M_B + μ(z) + β·e) and the covariance from measurementCov. The
// remaining 1-D integral over e is evaluated by nodes-point Gauss-Legendre
// quadrature on the exponential quantile, log-sum-exp across nodes.
//
// This is the same factorized model as MeasurementLogLikelihood +
// LatentLogPrior with the Gaussian latents integrated analytically, not a
// separately specified density.
func MarginalLogLikelihood(cat *Catalog, theta Hyperparams, nodes int) (float64, error) {
	if err := theta.validate(); err != nil {
		return 0, err
	}
	if nodes <= 0 {
		return 0, fmt.Errorf("%w: quadrature nodes = %d must be positive", ErrInvalidParameter, nodes)
	}
	cosmo := Cosmology{H0: theta.H0, OmegaM: theta.OmegaM}
	mu, err := cosmo.DistanceModuli(cat.redshifts())
	if err != nil {
		return 0, err
	}
	ll, ok := marginalLogLik(cat, theta, mu, newColorQuad(nodes), make([]float64, nodes))
	if !ok {
		return 0, fmt.Errorf("%w: measurement covariance not positive definite", ErrInvalidParameter)
	}
	return ll, nil
}

// marginalLogLik is the hot-path form with precomputed moduli, quadrature
// nodes, and a caller-owned scratch buffer of len(q.u). Returns ok=false
// when the covariance factorization fails.
func marginalLogLik(cat *Catalog, theta Hyperparams, mu []float64, q colorQuad, terms []float64) (float64, bool) {
	dist, ok := distmv.NewNormal([]float64{0, 0, 0}, measurementCov(theta, cat.Noise), nil)
	if !ok {
		return 0, false
	}

	var resid [3]float64
	ll := 0.0
	for i, sn := range cat.SNe {
		base := theta.MB + mu[i]
		for k, uk := range q.u {
			e := -theta.WC * math.Log1p(-uk)
			resid[0] = sn.X1Obs
			resid[1] = sn.CObs - e
			resid[2] = sn.MBObs - base - theta.Beta*e
			terms[k] = q.logW[k] + dist.LogProb(resid[:])
		}
		ll += floats.LogSumExp(terms)
	}
	return ll, true
}
