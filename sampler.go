package snmc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// blockSize is the number of candidates drawn per seeding block. Block b is
// seeded independently of worker assignment, so results are identical for
// any worker count.
const blockSize = 1024

// LatentMode selects how the sampler treats the per-object latents.
type LatentMode int

const (
	// LatentMarginal integrates the latents out per object (see
	// MarginalLogLikelihood); candidate weights depend only on the five
	// global hyperparameters.
	LatentMarginal LatentMode = iota

	// LatentJoint draws the full per-object latent block from the
	// population prior for every candidate; the weight is the measurement
	// log-likelihood alone, since proposal and prior cancel.
	LatentJoint
)

func (m LatentMode) String() string {
	switch m {
	case LatentMarginal:
		return "marginal"
	case LatentJoint:
		return "joint"
	default:
		return fmt.Sprintf("LatentMode(%d)", int(m))
	}
}

// ParseLatentMode converts "marginal" or "joint".
func ParseLatentMode(s string) (LatentMode, error) {
	switch s {
	case "marginal":
		return LatentMarginal, nil
	case "joint":
		return LatentJoint, nil
	default:
		return 0, fmt.Errorf("%w: unknown latent mode %q", ErrInvalidParameter, s)
	}
}

// SamplerConfig controls one importance-sampling run.
type SamplerConfig struct {
	Draws   int        // number of candidate parameter sets N
	Workers int        // parallel workers (0 = GOMAXPROCS)
	Seed    uint64     // base seed; block b derives its own PCG stream from it
	Mode    LatentMode // latent handling, see LatentMode

	// MarginalNodes is the Gauss-Legendre node count for the exponential
	// color-tail quadrature in LatentMarginal mode.
	MarginalNodes int

	// ESSThreshold is the fraction of valid draws below which the ensemble
	// is flagged Degenerate.
	ESSThreshold float64

	// KeepLatents retains each candidate's latent block in LatentJoint
	// mode. Off by default: 2·nSN floats per candidate adds up fast.
	KeepLatents bool

	// Fixed supplies the hyperparameters that are not inferred (H0, WC).
	// The five inferred fields are overwritten per candidate.
	Fixed Hyperparams

	// Priors are the proposal: candidates are drawn directly from them, so
	// the proposal density cancels against the hyperprior in the weight.
	Priors Hyperpriors

	// Logger receives block progress at Debug and degeneracy warnings at
	// Warn. nil discards.
	Logger *slog.Logger
}

// DefaultSamplerConfig returns the reference sampler setup: 50k marginal-mode
// draws, 10% ESS threshold.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Draws:         50000,
		Workers:       0,
		Seed:          1,
		Mode:          LatentMarginal,
		MarginalNodes: 48,
		ESSThreshold:  0.10,
		Fixed:         DefaultHyperparams(),
		Priors:        DefaultHyperpriors(),
	}
}

func (cfg SamplerConfig) validate() error {
	if cfg.Draws <= 0 {
		return fmt.Errorf("%w: draws = %d must be positive", ErrInvalidParameter, cfg.Draws)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("%w: workers = %d must be non-negative", ErrInvalidParameter, cfg.Workers)
	}
	if cfg.Mode == LatentMarginal && cfg.MarginalNodes <= 0 {
		return fmt.Errorf("%w: marginal nodes = %d must be positive", ErrInvalidParameter, cfg.MarginalNodes)
	}
	if cfg.ESSThreshold < 0 || cfg.ESSThreshold >= 1 {
		return fmt.Errorf("%w: ess threshold = %g outside [0, 1)", ErrInvalidParameter, cfg.ESSThreshold)
	}
	if cfg.Fixed.H0 <= 0 || cfg.Fixed.WC <= 0 {
		return fmt.Errorf("%w: fixed h0 = %g and w_c = %g must be positive",
			ErrInvalidParameter, cfg.Fixed.H0, cfg.Fixed.WC)
	}
	return cfg.Priors.validate()
}

// sampler carries the per-run immutable state shared by all blocks.
type sampler struct {
	cat    *Catalog
	cfg    SamplerConfig
	zs     []float64
	cq     colorQuad
	logger *slog.Logger
}

// Run draws cfg.Draws independent candidates from the prior proposal,
// weights each by its log-likelihood, and returns the normalized ensemble.
//
// Candidates are produced in fixed-size blocks with independently seeded
// PRNG streams, fanned out over an errgroup. The only cross-candidate
// operation is the final log-sum-exp normalization, which is associative and
// order-independent, so the result is bit-reproducible for a fixed seed
// regardless of worker count.
//
// Cancellation is honored at block boundaries only and returns
// ErrInterrupted; a partial batch is never weight-normalized.
func Run(ctx context.Context, cat *Catalog, cfg SamplerConfig) (*Ensemble, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}
	if cat == nil || cat.Len() == 0 {
		return nil, fmt.Errorf("sampler: %w: empty catalog", ErrInvalidParameter)
	}
	if err := cat.Noise.validate(); err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &sampler{cat: cat, cfg: cfg, zs: cat.redshifts(), logger: logger}
	if cfg.Mode == LatentMarginal {
		s.cq = newColorQuad(cfg.MarginalNodes)
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	thetas := make([]Hyperparams, cfg.Draws)
	logws := make([]float64, cfg.Draws)
	var lats []*LatentSet
	if cfg.KeepLatents && cfg.Mode == LatentJoint {
		lats = make([]*LatentSet, cfg.Draws)
	}

	nBlocks := (cfg.Draws + blockSize - 1) / blockSize
	logger.Debug("importance sampling started",
		"draws", cfg.Draws, "blocks", nBlocks, "workers", workers,
		"mode", cfg.Mode.String(), "objects", cat.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b := 0; b < nBlocks; b++ {
		b := b
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.runBlock(b, thetas, logws, lats)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
	}

	ens, err := newEnsemble(thetas, logws, lats, cfg)
	if err != nil {
		return nil, err
	}
	if ens.Overflows > 0 {
		logger.Warn("non-finite log-weights discarded", "count", ens.Overflows)
	}
	if ens.Degenerate {
		logger.Warn("weight degeneracy: estimate flagged unreliable",
			"ess", ens.ESS, "valid", len(ens.Samples), "threshold", cfg.ESSThreshold)
	} else {
		logger.Debug("importance sampling finished", "ess", ens.ESS, "valid", len(ens.Samples))
	}
	return ens, nil
}

// runBlock evaluates candidates [b·blockSize, min((b+1)·blockSize, Draws)).
// Each block owns a PCG stream derived from the base seed and the block
// index; the per-candidate draw order is fixed, so the block output is a
// pure function of (seed, block index).
func (s *sampler) runBlock(b int, thetas []Hyperparams, logws []float64, lats []*LatentSet) {
	rng := rand.New(rand.NewPCG(s.cfg.Seed, uint64(b)+1))
	terms := make([]float64, len(s.cq.u))

	lo := b * blockSize
	hi := min(lo+blockSize, s.cfg.Draws)
	for i := lo; i < hi; i++ {
		theta := s.drawHyper(rng)
		thetas[i] = theta

		// Proposal == prior, so the prior densities cancel and the weight
		// reduces to the log-likelihood alone.
		cosmo := Cosmology{H0: theta.H0, OmegaM: theta.OmegaM}
		mu, err := cosmo.DistanceModuli(s.zs)
		if err != nil {
			logws[i] = math.NaN()
			continue
		}

		switch s.cfg.Mode {
		case LatentMarginal:
			ll, ok := marginalLogLik(s.cat, theta, mu, s.cq, terms)
			if !ok {
				logws[i] = math.NaN()
				continue
			}
			logws[i] = ll
		case LatentJoint:
			lat := drawLatents(theta, s.cat.Len(), rng)
			logws[i] = measurementLogLik(s.cat, theta, mu, lat)
			if lats != nil {
				lats[i] = lat
			}
		}
	}
}

// drawHyper samples one global candidate from the hyperpriors, keeping the
// fixed fields (H0, WC) from the config. Exactly five uniform draws, in a
// fixed order, per candidate.
func (s *sampler) drawHyper(rng *rand.Rand) Hyperparams {
	theta := s.cfg.Fixed
	theta.Alpha = s.cfg.Priors.Alpha.rand(rng)
	theta.Beta = s.cfg.Priors.Beta.rand(rng)
	theta.MB = s.cfg.Priors.MB.rand(rng)
	theta.OmegaM = s.cfg.Priors.OmegaM.rand(rng)
	theta.SigmaInt = s.cfg.Priors.SigmaInt.rand(rng)
	return theta
}

// newEnsemble filters non-finite log-weights, normalizes the remainder in
// the log domain, and computes the degeneracy diagnostics.
func newEnsemble(thetas []Hyperparams, logws []float64, lats []*LatentSet, cfg SamplerConfig) (*Ensemble, error) {
	samples := make([]Sample, 0, len(logws))
	kept := make([]float64, 0, len(logws))
	overflows := 0
	for i, lw := range logws {
		if math.IsNaN(lw) || math.IsInf(lw, 0) {
			overflows++
			continue
		}
		s := Sample{Theta: thetas[i], LogWeight: lw}
		if lats != nil {
			s.Latents = lats[i]
		}
		samples = append(samples, s)
		kept = append(kept, lw)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: all %d candidates overflowed", ErrEmptyEnsemble, len(logws))
	}

	weights, logNorm := normalizeLogWeights(kept)
	ess := EffectiveSampleSize(weights)
	return &Ensemble{
		Samples:    samples,
		Weights:    weights,
		LogNorm:    logNorm,
		Overflows:  overflows,
		ESS:        ess,
		Degenerate: ess < cfg.ESSThreshold*float64(len(samples)),
	}, nil
}
