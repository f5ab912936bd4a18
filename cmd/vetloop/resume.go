package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kberard/vetloop/internal/types"
)

var resumeDir string

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the most recently suspended session",
	Long: `Continue a session the circuit breaker suspended. The session resumes at
the tier it was suspended at; the identical-violation streak starts fresh,
so one more repeat does not immediately re-trip the breaker.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		exitOnError(err)
		store, err := openStore(cfg)
		exitOnError(err)
		defer store.Close()

		orch, err := buildOrchestrator(cfg, store)
		exitOnError(err)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out, err := orch.Resume(ctx, resumeDir)
		exitOnError(err)

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
	rootCmd.AddCommand(resumeCmd)
	resumeCmd.Flags().StringVar(&resumeDir, "dir", ".", "Project directory")
}
