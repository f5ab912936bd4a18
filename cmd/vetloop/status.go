package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kberard/vetloop/internal/storage"
)

var statusLogLines int

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show the suspended session and recent session log",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		exitOnError(err)
		store, err := openStore(cfg)
		exitOnError(err)
		defer store.Close()

		ctx := context.Background()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		var snap *storage.SessionSnapshot
		if len(args) == 1 {
			snap, err = store.GetSnapshot(ctx, args[0])
		} else {
			snap, err = store.LatestSuspended(ctx)
		}
		switch {
		case errors.Is(err, storage.ErrNotFound):
			fmt.Println("No suspended session.")
			return
		case err != nil:
			exitOnError(err)
		}

		fmt.Printf("%s session %s\n", yellow("suspended:"), snap.SessionID)
		fmt.Printf("  tier:       %s\n", snap.Tier)
		fmt.Printf("  iterations: %d of %d\n", snap.LoopIndex, snap.MaxLoops)
		fmt.Printf("  suspended:  %s\n", snap.TakenAt.Local().Format("2006-01-02 15:04:05"))
		if len(snap.Violations) > 0 {
			fmt.Println("  repeated violations:")
			for _, violation := range snap.Violations {
				fmt.Printf("    - %s: %s\n", violation.Category, violation.Identifier)
			}
		}

		entries, err := store.RecentLog(ctx, snap.SessionID, statusLogLines)
		exitOnError(err)
		if len(entries) > 0 {
			fmt.Println("\nrecent log:")
			for _, entry := range entries {
				fmt.Printf("  %s %s %s\n",
					gray(entry.At.Local().Format("15:04:05")),
					gray("["+entry.Phase+"]"), entry.Message)
			}
		}

		fmt.Printf("\nRun %s to continue or inspect the change first.\n", color.CyanString("vetloop resume"))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVar(&statusLogLines, "log-lines", 15, "Number of session log lines to show")
}
