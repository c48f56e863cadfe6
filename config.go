package snmc

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sentinel errors. Wrap with fmt.Errorf("...: %w", ...) at the call site so
// callers can match with errors.Is.
var (
	// ErrInvalidParameter reports an out-of-domain scale, redshift, count,
	// or density-fraction value. Rejected before any sampling begins.
	ErrInvalidParameter = errors.New("snmc: invalid parameter")

	// ErrEmptyEnsemble reports that every candidate produced a non-finite
	// log-weight, leaving nothing to normalize.
	ErrEmptyEnsemble = errors.New("snmc: empty ensemble")

	// ErrInterrupted reports context cancellation between sampling blocks.
	// Partial batches are never weight-normalized.
	ErrInterrupted = errors.New("snmc: sampling interrupted")
)

// Hyperparams bundles the global parameters shared by every supernova in a
// dataset: the standardization coefficients, the fiducial absolute
// magnitude, the cosmology, and the population widths.
//
// The same immutable value serves both roles the model needs: fixed truth
// during catalog generation, and one candidate parameter vector during
// sampling. Candidates are constructed once and never mutated.
type Hyperparams struct {
	Alpha    float64 `yaml:"alpha"`     // stretch standardization coefficient
	Beta     float64 `yaml:"beta"`      // color standardization coefficient
	MB       float64 `yaml:"m_b"`       // fiducial absolute magnitude
	OmegaM   float64 `yaml:"omega_m"`   // matter density fraction, flat universe
	SigmaInt float64 `yaml:"sigma_int"` // intrinsic magnitude dispersion
	H0       float64 `yaml:"h0"`        // Hubble constant, km/s/Mpc
	WC       float64 `yaml:"w_c"`       // color population width (normal and exponential)
}

// DefaultHyperparams returns the reference parameterization.
func DefaultHyperparams() Hyperparams {
	return Hyperparams{
		Alpha:    0.13,
		Beta:     3.0,
		MB:       -19.1,
		OmegaM:   0.3,
		SigmaInt: 0.15,
		H0:       70,
		WC:       0.1,
	}
}

func (h Hyperparams) validate() error {
	if h.OmegaM < 0 || h.OmegaM > 1 {
		return fmt.Errorf("%w: omega_m = %g outside [0, 1]", ErrInvalidParameter, h.OmegaM)
	}
	if h.H0 <= 0 {
		return fmt.Errorf("%w: h0 = %g must be positive", ErrInvalidParameter, h.H0)
	}
	if h.SigmaInt <= 0 {
		return fmt.Errorf("%w: sigma_int = %g must be positive", ErrInvalidParameter, h.SigmaInt)
	}
	if h.WC <= 0 {
		return fmt.Errorf("%w: w_c = %g must be positive", ErrInvalidParameter, h.WC)
	}
	return nil
}

// NoiseSigmas holds the fixed per-field measurement uncertainties added to
// the true values when producing observations.
type NoiseSigmas struct {
	X1 float64 `yaml:"x1"`
	C  float64 `yaml:"c"`
	MB float64 `yaml:"mb"`
}

// DefaultNoiseSigmas returns the reference per-field uncertainties.
func DefaultNoiseSigmas() NoiseSigmas {
	return NoiseSigmas{X1: 0.5, C: 0.5, MB: 0.05}
}

func (n NoiseSigmas) validate() error {
	if n.X1 <= 0 || n.C <= 0 || n.MB <= 0 {
		return fmt.Errorf("%w: noise sigmas (x1=%g, c=%g, mb=%g) must be positive",
			ErrInvalidParameter, n.X1, n.C, n.MB)
	}
	return nil
}

// GenerationConfig controls synthetic catalog generation.
type GenerationConfig struct {
	Count  int         `yaml:"count"`  // number of supernovae
	ZMin   float64     `yaml:"z_min"`  // redshift range lower bound
	ZMax   float64     `yaml:"z_max"`  // redshift range upper bound
	Seed   uint64      `yaml:"seed"`   // PRNG seed; fixed seed => bit-identical catalog
	Noise  NoiseSigmas `yaml:"noise"`  // per-field measurement uncertainties
	Params Hyperparams `yaml:"params"` // true population hyperparameters
}

// DefaultGenerationConfig returns the reference survey configuration:
// 250 objects over z in [0.2, 1.0].
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Count:  250,
		ZMin:   0.2,
		ZMax:   1.0,
		Seed:   1,
		Noise:  DefaultNoiseSigmas(),
		Params: DefaultHyperparams(),
	}
}

func (c GenerationConfig) validate() error {
	if c.Count <= 0 {
		return fmt.Errorf("%w: count = %d must be positive", ErrInvalidParameter, c.Count)
	}
	if c.ZMin <= 0 || c.ZMax < c.ZMin {
		return fmt.Errorf("%w: redshift range [%g, %g] requires 0 < z_min <= z_max",
			ErrInvalidParameter, c.ZMin, c.ZMax)
	}
	if err := c.Noise.validate(); err != nil {
		return err
	}
	return c.Params.validate()
}

// Interval is a uniform hyperprior over [Min, Max].
type Interval struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (iv Interval) rand(src rand.Source) float64 {
	return distuv.Uniform{Min: iv.Min, Max: iv.Max, Src: src}.Rand()
}

// logProb is the log-density of the uniform hyperprior at x.
func (iv Interval) logProb(x float64) float64 {
	return distuv.Uniform{Min: iv.Min, Max: iv.Max}.LogProb(x)
}

// Hyperpriors are independent uniform priors over the five inferred global
// hyperparameters. H0 and WC are held fixed during inference: H0 is exactly
// degenerate with M_B in the magnitude equation, so the pair is not jointly
// identifiable.
type Hyperpriors struct {
	Alpha    Interval `yaml:"alpha"`
	Beta     Interval `yaml:"beta"`
	MB       Interval `yaml:"m_b"`
	OmegaM   Interval `yaml:"omega_m"`
	SigmaInt Interval `yaml:"sigma_int"`
}

// DefaultHyperpriors returns weakly-informative boxes around the reference
// parameterization.
func DefaultHyperpriors() Hyperpriors {
	return Hyperpriors{
		Alpha:    Interval{Min: 0, Max: 0.3},
		Beta:     Interval{Min: 0, Max: 6},
		MB:       Interval{Min: -21, Max: -17},
		OmegaM:   Interval{Min: 0, Max: 1},
		SigmaInt: Interval{Min: 0.01, Max: 0.5},
	}
}

// LogProb sums the hyperprior log-densities at theta.
func (p Hyperpriors) LogProb(theta Hyperparams) float64 {
	lp := 0.0
	lp += p.Alpha.logProb(theta.Alpha)
	lp += p.Beta.logProb(theta.Beta)
	lp += p.MB.logProb(theta.MB)
	lp += p.OmegaM.logProb(theta.OmegaM)
	lp += p.SigmaInt.logProb(theta.SigmaInt)
	return lp
}

func (p Hyperpriors) validate() error {
	fields := []struct {
		name string
		iv   Interval
	}{
		{"alpha", p.Alpha},
		{"beta", p.Beta},
		{"m_b", p.MB},
		{"omega_m", p.OmegaM},
		{"sigma_int", p.SigmaInt},
	}
	for _, f := range fields {
		if f.iv.Min >= f.iv.Max {
			return fmt.Errorf("%w: hyperprior %s has min %g >= max %g",
				ErrInvalidParameter, f.name, f.iv.Min, f.iv.Max)
		}
	}
	if p.OmegaM.Min < 0 || p.OmegaM.Max > 1 {
		return fmt.Errorf("%w: hyperprior omega_m [%g, %g] outside [0, 1]",
			ErrInvalidParameter, p.OmegaM.Min, p.OmegaM.Max)
	}
	if p.SigmaInt.Min <= 0 {
		return fmt.Errorf("%w: hyperprior sigma_int lower bound %g must be positive",
			ErrInvalidParameter, p.SigmaInt.Min)
	}
	return nil
}
