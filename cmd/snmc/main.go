// Command snmc generates synthetic supernova catalogs and runs importance
// sampling inference over them. It is a thin wrapper: every model decision
// lives in the library.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alexshd/snmc"
)

var (
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "snmc",
	Short: "Hierarchical supernova-cosmology inference by importance sampling",
	Long: `snmc generates synthetic Type Ia supernova catalogs from a hierarchical
population model and infers the global hyperparameters (alpha, beta, M_B,
Omega_m, sigma_int) by self-normalized importance sampling.

Catalogs and posterior summaries are plain YAML files.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
		slog.SetDefault(logger)
	},
	SilenceUsage: true,
}

var (
	genConfigPath string
	genSeed       uint64
	genCount      int
	genOut        string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a synthetic supernova catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := snmc.DefaultGenerationConfig()
		if genConfigPath != "" {
			raw, err := os.ReadFile(genConfigPath)
			if err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return fmt.Errorf("parse config: %w", err)
			}
		}
		if cmd.Flags().Changed("seed") {
			cfg.Seed = genSeed
		}
		if cmd.Flags().Changed("count") {
			cfg.Count = genCount
		}

		cat, err := snmc.Generate(cfg)
		if err != nil {
			return err
		}
		logger.Info("catalog generated",
			"objects", cat.Len(), "seed", cfg.Seed,
			"z_min", cfg.ZMin, "z_max", cfg.ZMax)

		return writeYAML(genOut, cat)
	},
}

var (
	inferCatalog string
	inferDraws   int
	inferMode    string
	inferWorkers int
	inferSeed    uint64
	inferNodes   int
	inferESSFrac float64
	inferOut     string
)

// posteriorArtifact is the YAML document written by `snmc infer`.
type posteriorArtifact struct {
	RunID      string                  `yaml:"run_id"`
	CreatedAt  string                  `yaml:"created_at"`
	Catalog    string                  `yaml:"catalog"`
	Mode       string                  `yaml:"mode"`
	Draws      int                     `yaml:"draws"`
	Valid      int                     `yaml:"valid"`
	Overflows  int                     `yaml:"overflows"`
	ESS        float64                 `yaml:"ess"`
	Degenerate bool                    `yaml:"degenerate"`
	TailIndex  float64                 `yaml:"weight_tail_index"`
	Summary    []snmc.PosteriorSummary `yaml:"summary"`
}

var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Run importance-sampling inference over a catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(inferCatalog)
		if err != nil {
			return fmt.Errorf("read catalog: %w", err)
		}
		var cat snmc.Catalog
		if err := yaml.Unmarshal(raw, &cat); err != nil {
			return fmt.Errorf("parse catalog: %w", err)
		}

		mode, err := snmc.ParseLatentMode(inferMode)
		if err != nil {
			return err
		}

		cfg := snmc.DefaultSamplerConfig()
		cfg.Draws = inferDraws
		cfg.Mode = mode
		cfg.Workers = inferWorkers
		cfg.Seed = inferSeed
		cfg.MarginalNodes = inferNodes
		cfg.ESSThreshold = inferESSFrac
		cfg.Logger = logger

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		start := time.Now()
		ens, err := snmc.Run(ctx, &cat, cfg)
		if err != nil {
			return err
		}
		logger.Info("inference finished",
			"draws", cfg.Draws, "valid", len(ens.Samples),
			"ess", ens.ESS, "degenerate", ens.Degenerate,
			"elapsed", time.Since(start).Round(time.Millisecond))

		for _, s := range ens.Summary() {
			logger.Info("posterior", "param", s.Param, "mean", s.Mean, "stddev", s.StdDev)
		}
		if ens.Degenerate {
			logger.Warn("weights degenerate: treat the summary as unreliable",
				"ess", ens.ESS, "threshold", cfg.ESSThreshold)
		}

		art := posteriorArtifact{
			RunID:      uuid.NewString(),
			CreatedAt:  time.Now().UTC().Format(time.RFC3339),
			Catalog:    inferCatalog,
			Mode:       mode.String(),
			Draws:      cfg.Draws,
			Valid:      len(ens.Samples),
			Overflows:  ens.Overflows,
			ESS:        ens.ESS,
			Degenerate: ens.Degenerate,
			TailIndex:  ens.Diagnose().TailIndex,
			Summary:    ens.Summary(),
		}
		return writeYAML(inferOut, art)
	},
}

func writeYAML(path string, v any) error {
	raw, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if path == "" || path == "-" {
		_, err = os.Stdout.Write(raw)
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logger.Info("wrote artifact", "path", path)
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	generateCmd.Flags().StringVar(&genConfigPath, "config", "", "generation config YAML (defaults used when omitted)")
	generateCmd.Flags().Uint64Var(&genSeed, "seed", 1, "PRNG seed")
	generateCmd.Flags().IntVar(&genCount, "count", 250, "number of supernovae")
	generateCmd.Flags().StringVar(&genOut, "out", "-", "catalog output path (- for stdout)")

	inferCmd.Flags().StringVar(&inferCatalog, "catalog", "", "catalog YAML produced by generate")
	inferCmd.Flags().IntVar(&inferDraws, "draws", 50000, "number of prior draws N")
	inferCmd.Flags().StringVar(&inferMode, "mode", "marginal", "latent handling: marginal or joint")
	inferCmd.Flags().IntVar(&inferWorkers, "workers", 0, "parallel workers (0 = GOMAXPROCS)")
	inferCmd.Flags().Uint64Var(&inferSeed, "seed", 1, "PRNG seed")
	inferCmd.Flags().IntVar(&inferNodes, "nodes", 48, "color-tail quadrature nodes (marginal mode)")
	inferCmd.Flags().Float64Var(&inferESSFrac, "ess-threshold", 0.10, "ESS fraction below which the run is flagged degenerate")
	inferCmd.Flags().StringVar(&inferOut, "out", "-", "posterior artifact output path (- for stdout)")
	_ = inferCmd.MarkFlagRequired("catalog")

	rootCmd.AddCommand(generateCmd, inferCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
