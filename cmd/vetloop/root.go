package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kberard/vetloop/internal/advisor"
	"github.com/kberard/vetloop/internal/config"
	"github.com/kberard/vetloop/internal/loop"
	"github.com/kberard/vetloop/internal/session"
	"github.com/kberard/vetloop/internal/storage"
	"github.com/kberard/vetloop/internal/verifier"
)

var (
	configPath string
	dbPath     string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "vetloop",
	Short: "Adaptive verification depth for code changes",
	Long: `vetloop classifies a change's risk, picks a verification tier, and drives
a bounded verify/fix loop with monotonic escalation and a circuit breaker.

Low-risk changes get a fast LIGHT pass; security-sensitive or architectural
changes are verified at STANDARD or THOROUGH depth. Repeated identical
failures suspend the session for a root-cause decision instead of burning
the loop budget.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to project config (default .vetloop/config.yml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to state database (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
}

// loadConfig loads the layered configuration with CLI overrides applied.
func loadConfig() (*config.Configuration, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

// openStore opens the state database for a command run.
func openStore(cfg *config.Configuration) (*storage.Store, error) {
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	return store, nil
}

// buildOrchestrator wires the command-based collaborators from config.
func buildOrchestrator(cfg *config.Configuration, store *storage.Store) (*session.Orchestrator, error) {
	decider, err := buildDecider(cfg)
	if err != nil {
		return nil, err
	}

	var fixer loop.Fixer
	if cfg.Fix != "" {
		fixer = verifier.NewCommandFixer(cfg.Fix)
	}

	return &session.Orchestrator{
		Config: cfg,
		Store:  store,
		Verifier: verifier.NewCommandVerifier(verifier.Commands{
			Light:    cfg.Verify.Light,
			Standard: cfg.Verify.Standard,
			Thorough: cfg.Verify.Thorough,
		}),
		Fixer:   fixer,
		Decider: decider,
		Quiet:   quiet,
	}, nil
}

func buildDecider(cfg *config.Configuration) (loop.RootCauseDecider, error) {
	switch cfg.Advisor.Mode {
	case "ai":
		return advisor.NewAIAdvisor(cfg.Advisor.Model, cfg.Advisor.RequestsPerMinute)
	case "none":
		return nil, nil
	default:
		return advisor.NewInteractiveAdvisor(), nil
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
