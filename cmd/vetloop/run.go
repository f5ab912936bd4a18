package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/kberard/vetloop/internal/session"
	"github.com/kberard/vetloop/internal/types"
)

var (
	runDir        string
	runLoops      int
	runDryRun     bool
	runVerifyOnly bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Classify the pending change and run the verification loop",
	Long: `Measure the working tree against HEAD, classify the change's risk, select
the verification tier, and drive the verify/fix loop until the change is
clean or an exit condition fires.

Exit codes:
  0 - verified clean
  1 - error
  3 - partial (loop budget exhausted with violations remaining)
  4 - suspended or aborted (circuit breaker)`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		exitOnError(err)
		store, err := openStore(cfg)
		exitOnError(err)
		defer store.Close()

		orch, err := buildOrchestrator(cfg, store)
		exitOnError(err)

		mode := types.ModeNormal
		switch {
		case runDryRun && runVerifyOnly:
			exitOnError(fmt.Errorf("--dry-run and --verify-only are mutually exclusive"))
		case runDryRun:
			mode = types.ModeDryRun
		case runVerifyOnly:
			mode = types.ModeVerifyOnly
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// In quiet mode the per-phase lines are suppressed, so a spinner is
		// the only sign of life during long verify passes.
		var spin *spinner.Spinner
		if quiet && mode != types.ModeDryRun {
			spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			spin.Suffix = " verifying..."
			spin.Start()
		}

		out, err := orch.Run(ctx, session.Options{
			Dir:      runDir,
			Mode:     mode,
			MaxLoops: runLoops,
		})
		if spin != nil {
			spin.Stop()
		}
		exitOnError(err)

		if mode == types.ModeDryRun {
			fmt.Printf("signal: %s\n", out.Assessment.Signal)
			fmt.Printf("tier:   %s\n", out.Tier)
			return
		}

		switch out.Result.Status {
		case types.SessionSucceeded:
			os.Exit(0)
		case types.SessionPartial:
			os.Exit(3)
		default:
			os.Exit(4)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runDir, "dir", ".", "Project directory")
	runCmd.Flags().IntVar(&runLoops, "loops", 0, "Explicit loop budget (floors the tier at STANDARD)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Classify and select a tier without verifying")
	runCmd.Flags().BoolVar(&runVerifyOnly, "verify-only", false, "Verify without auto-fix")
}
