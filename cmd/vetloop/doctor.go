package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kberard/vetloop/internal/health"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check vetloop configuration and environment health",
	Long: `Run health checks against the current configuration:
- verify and fix commands resolve on PATH
- the state database is writable
- the verify tool meets the configured minimum version

Exit codes:
  0 - all checks passed
  1 - one or more checks failed`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		exitOnError(err)

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		fmt.Printf("Running vetloop health checks...\n\n")
		report := health.RunChecks(context.Background(), cfg)
		for _, check := range report.Checks {
			mark := green("ok")
			if !check.Passed {
				mark = red("FAIL")
			}
			fmt.Printf("  %-4s %s: %s\n", mark, check.Name, check.Message)
		}

		fmt.Println()
		if !report.Passed {
			fmt.Printf("%s\n", red("Some checks failed."))
			os.Exit(1)
		}
		fmt.Printf("%s\n", green("All checks passed."))
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
