package snmc

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate/quad"
)

// speedOfLight in km/s, matching H0 in km/s/Mpc so that c/H0 is the Hubble
// distance in Mpc.
const speedOfLight = 299792.458

// segmentNodes is the Gauss-Legendre node count per integration segment.
// E(z) is smooth and slowly varying over the survey range (z in 0.02..1.4),
// so a handful of nodes per segment is already far below the measurement
// noise floor.
const segmentNodes = 16

// Cosmology is a flat-universe distance model: matter fraction Ωm plus a
// dark-energy fraction fixed at 1−Ωm. Stateless and safe for concurrent use.
type Cosmology struct {
	H0     float64 // Hubble constant, km/s/Mpc
	OmegaM float64 // matter density fraction
}

// NewCosmology validates the parameters and returns a Cosmology.
// Fails with ErrInvalidParameter when H0 <= 0 or Ωm is outside [0, 1].
func NewCosmology(h0, omegaM float64) (Cosmology, error) {
	if h0 <= 0 {
		return Cosmology{}, fmt.Errorf("%w: h0 = %g must be positive", ErrInvalidParameter, h0)
	}
	if omegaM < 0 || omegaM > 1 {
		return Cosmology{}, fmt.Errorf("%w: omega_m = %g outside [0, 1]", ErrInvalidParameter, omegaM)
	}
	return Cosmology{H0: h0, OmegaM: omegaM}, nil
}

// invE is 1/E(z) with E(z) = sqrt(Ωm(1+z)³ + (1−Ωm)).
func (c Cosmology) invE(z float64) float64 {
	zp1 := 1 + z
	return 1 / math.Sqrt(c.OmegaM*zp1*zp1*zp1 + (1 - c.OmegaM))
}

// DistanceModulus returns μ(z) = 5·log10(d_L/Mpc) + 25 for z > 0, where
//
//	d_L = (1+z) · (c/H0) · ∫₀ᶻ dz'/E(z')
//
// The comoving integral is evaluated by fixed-rule Gauss-Legendre
// quadrature. Fails with ErrInvalidParameter when z <= 0.
func (c Cosmology) DistanceModulus(z float64) (float64, error) {
	if z <= 0 {
		return 0, fmt.Errorf("%w: z = %g must be positive", ErrInvalidParameter, z)
	}
	comoving := quad.Fixed(c.invE, 0, z, segmentNodes, quad.Legendre{}, 0)
	return c.modulus(z, comoving), nil
}

// modulus converts a dimensionless comoving integral into a distance modulus.
func (c Cosmology) modulus(z, comoving float64) float64 {
	dl := (1 + z) * (speedOfLight / c.H0) * comoving
	return 5*math.Log10(dl) + 25
}

// DistanceModuli evaluates the distance modulus at every redshift in z.
//
// The comoving integral is cumulative, so the redshifts are visited in
// ascending order and each segment between consecutive values is integrated
// once. For a catalog of n objects this costs one short quadrature per
// object instead of n full integrals from zero, which matters when the
// sampler re-evaluates the whole catalog for every candidate Ωm.
func (c Cosmology) DistanceModuli(z []float64) ([]float64, error) {
	idx := make([]int, len(z))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return z[idx[a]] < z[idx[b]] })

	out := make([]float64, len(z))
	prev, cum := 0.0, 0.0
	for _, i := range idx {
		zi := z[i]
		if zi <= 0 {
			return nil, fmt.Errorf("%w: z = %g must be positive", ErrInvalidParameter, zi)
		}
		if zi > prev {
			cum += quad.Fixed(c.invE, prev, zi, segmentNodes, quad.Legendre{}, 0)
			prev = zi
		}
		out[i] = c.modulus(zi, cum)
	}
	return out, nil
}

// DistanceModulus is the convenience form of Cosmology.DistanceModulus,
// validating all three arguments.
func DistanceModulus(z, h0, omegaM float64) (float64, error) {
	c, err := NewCosmology(h0, omegaM)
	if err != nil {
		return 0, err
	}
	return c.DistanceModulus(z)
}
