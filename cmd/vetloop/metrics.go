package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kberard/vetloop/internal/anomaly"
	"github.com/kberard/vetloop/internal/session"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show the rolling per-session metric windows",
	Long: `Print the anomaly monitor's view of recent sessions: the per-session
aggregates in the rolling window and the thresholds a new sample would be
scored against. Purely informational.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		exitOnError(err)
		store, err := openStore(cfg)
		exitOnError(err)
		defer store.Close()

		ctx := context.Background()
		cyan := color.New(color.FgCyan).SprintFunc()

		for _, metric := range []string{session.MetricDuration, session.MetricPasses} {
			window, err := store.SessionAggregates(ctx, metric, cfg.Anomaly.WindowSessions)
			exitOnError(err)

			fmt.Printf("%s (window %d)\n", cyan(metric), cfg.Anomaly.WindowSessions)
			if len(window) == 0 {
				fmt.Println("  no samples yet")
				continue
			}
			for i, v := range window {
				fmt.Printf("  session -%d: %.0f\n", len(window)-i, v)
			}
			if len(window) < anomaly.MinWindowSamples {
				fmt.Printf("  %d more session(s) until anomaly scoring is active\n",
					anomaly.MinWindowSamples-len(window))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}
