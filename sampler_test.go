package snmc

import (
	"context"
	"errors"
	"math"
	"testing"
)

func smallCatalog(t *testing.T, count int, seed uint64) *Catalog {
	t.Helper()
	cfg := DefaultGenerationConfig()
	cfg.Count = count
	cfg.Seed = seed
	cat, err := Generate(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func quickSamplerConfig() SamplerConfig {
	cfg := DefaultSamplerConfig()
	cfg.Draws = 2500 // three blocks, one partial
	cfg.MarginalNodes = 16
	cfg.Seed = 101
	return cfg
}

func TestRun_ReproducibleAcrossWorkerCounts(t *testing.T) {
	cat := smallCatalog(t, 16, 3)

	cfg := quickSamplerConfig()
	cfg.Workers = 1
	one, err := Run(context.Background(), cat, cfg)
	if err != nil {
		t.Fatal(err)
	}

	cfg.Workers = 4
	four, err := Run(context.Background(), cat, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if len(one.Samples) != len(four.Samples) {
		t.Fatalf("sample counts differ: %d vs %d", len(one.Samples), len(four.Samples))
	}
	for i := range one.Samples {
		if one.Samples[i].Theta != four.Samples[i].Theta {
			t.Fatalf("candidate %d differs across worker counts", i)
		}
		if one.Samples[i].LogWeight != four.Samples[i].LogWeight {
			t.Fatalf("log-weight %d differs across worker counts: %v vs %v",
				i, one.Samples[i].LogWeight, four.Samples[i].LogWeight)
		}
	}
	t.Logf("✓ Bit-identical ensembles with 1 and 4 workers (%d candidates)", len(one.Samples))
}

func TestRun_SeedDeterminism(t *testing.T) {
	cat := smallCatalog(t, 12, 3)
	cfg := quickSamplerConfig()

	a, err := Run(context.Background(), cat, cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Run(context.Background(), cat, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Samples {
		if a.Samples[i].LogWeight != b.Samples[i].LogWeight {
			t.Fatalf("log-weight %d differs across identical runs", i)
		}
	}

	cfg.Seed++
	c, err := Run(context.Background(), cat, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if a.Samples[0].Theta == c.Samples[0].Theta {
		t.Errorf("different seeds produced identical first candidate")
	}
	t.Logf("✓ Fixed seed reproduces the run; new seed changes it")
}

func TestRun_NormalizationAndESS(t *testing.T) {
	cat := smallCatalog(t, 16, 3)
	ens, err := Run(context.Background(), cat, quickSamplerConfig())
	if err != nil {
		t.Fatal(err)
	}

	AssertNormalized(t, ens)
	AssertESSBounds(t, ens)
	if ens.Overflows != 0 {
		t.Errorf("unexpected overflows: %d", ens.Overflows)
	}
}

func TestRun_JointModeFlagsDegeneracy(t *testing.T) {
	// A 100-object joint latent space is 205-dimensional; prior-proposal
	// importance sampling over it must collapse onto a handful of
	// candidates and say so.
	cat := smallCatalog(t, 100, 9)

	cfg := quickSamplerConfig()
	cfg.Mode = LatentJoint
	cfg.Draws = 4096

	ens, err := Run(context.Background(), cat, cfg)
	if err != nil {
		t.Fatal(err)
	}
	AssertNormalized(t, ens)
	if !ens.Degenerate {
		t.Errorf("joint mode on 100 objects reported ESS %.1f of %d without a Degenerate flag",
			ens.ESS, len(ens.Samples))
	}
	t.Logf("✓ Joint-mode degeneracy surfaced: ESS %.2f of %d", ens.ESS, len(ens.Samples))
}

func TestRun_KeepLatents(t *testing.T) {
	cat := smallCatalog(t, 10, 3)

	cfg := quickSamplerConfig()
	cfg.Mode = LatentJoint
	cfg.Draws = 256
	cfg.KeepLatents = true

	ens, err := Run(context.Background(), cat, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range ens.Samples {
		if s.Latents == nil {
			t.Fatalf("sample %d missing latents with KeepLatents set", i)
		}
		if len(s.Latents.X1) != cat.Len() || len(s.Latents.C) != cat.Len() {
			t.Fatalf("sample %d latent block sized %d/%d, want %d",
				i, len(s.Latents.X1), len(s.Latents.C), cat.Len())
		}
	}

	cfg.KeepLatents = false
	ens, err = Run(context.Background(), cat, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if ens.Samples[0].Latents != nil {
		t.Errorf("latents retained without KeepLatents")
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	cat := smallCatalog(t, 10, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Run(ctx, cat, quickSamplerConfig()); !errors.Is(err, ErrInterrupted) {
		t.Errorf("want ErrInterrupted, got %v", err)
	}
	t.Logf("✓ Cancellation refuses to normalize a partial batch")
}

func TestRun_InvalidConfig(t *testing.T) {
	cat := smallCatalog(t, 10, 3)

	cases := []struct {
		name   string
		mutate func(*SamplerConfig)
	}{
		{"zero draws", func(c *SamplerConfig) { c.Draws = 0 }},
		{"negative workers", func(c *SamplerConfig) { c.Workers = -1 }},
		{"zero marginal nodes", func(c *SamplerConfig) { c.MarginalNodes = 0 }},
		{"ess threshold one", func(c *SamplerConfig) { c.ESSThreshold = 1 }},
		{"inverted prior", func(c *SamplerConfig) { c.Priors.Alpha = Interval{Min: 1, Max: 0} }},
		{"omega prior outside unit", func(c *SamplerConfig) { c.Priors.OmegaM = Interval{Min: -0.5, Max: 1} }},
		{"zero fixed w_c", func(c *SamplerConfig) { c.Fixed.WC = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := quickSamplerConfig()
			tc.mutate(&cfg)
			if _, err := Run(context.Background(), cat, cfg); !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("want ErrInvalidParameter, got %v", err)
			}
		})
	}

	t.Run("empty catalog", func(t *testing.T) {
		if _, err := Run(context.Background(), &Catalog{Noise: DefaultNoiseSigmas()}, quickSamplerConfig()); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("want ErrInvalidParameter, got %v", err)
		}
	})
}

func TestNewEnsemble_OverflowPolicy(t *testing.T) {
	cfg := quickSamplerConfig()
	thetas := make([]Hyperparams, 5)
	logws := []float64{-1, math.NaN(), -2, math.Inf(1), math.Inf(-1)}

	ens, err := newEnsemble(thetas, logws, nil, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if ens.Overflows != 3 {
		t.Errorf("Overflows = %d, want 3", ens.Overflows)
	}
	if len(ens.Samples) != 2 {
		t.Errorf("kept %d samples, want 2", len(ens.Samples))
	}
	AssertNormalized(t, ens)

	// All candidates non-finite: nothing to normalize.
	allBad := []float64{math.NaN(), math.Inf(1)}
	if _, err := newEnsemble(thetas[:2], allBad, nil, cfg); !errors.Is(err, ErrEmptyEnsemble) {
		t.Errorf("want ErrEmptyEnsemble, got %v", err)
	}

	t.Logf("✓ Non-finite log-weights discarded, counted, and reported")
}

func TestParseLatentMode(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want LatentMode
	}{
		{"marginal", LatentMarginal},
		{"joint", LatentJoint},
	} {
		got, err := ParseLatentMode(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseLatentMode(%q) = %v, %v", tc.in, got, err)
		}
		if got.String() != tc.in {
			t.Errorf("%v.String() = %q, want %q", got, got.String(), tc.in)
		}
	}
	if _, err := ParseLatentMode("gibbs"); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("want ErrInvalidParameter for unknown mode, got %v", err)
	}
}
