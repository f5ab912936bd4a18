package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kberard/vetloop/internal/changeset"
	"github.com/kberard/vetloop/internal/classify"
	"github.com/kberard/vetloop/internal/config"
	"github.com/kberard/vetloop/internal/session"
)

var classifyDir string

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Show the risk classification for the pending change",
	Long: `Measure the working tree against HEAD and print the change metrics, the
risk signal, and the verification tier a run would start at. Nothing is
verified and no session state is written.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		exitOnError(err)

		collector := changeset.NewCollector(changeset.Config{
			Layers:    cfg.Layers,
			ArchPaths: cfg.ArchPaths,
			Keywords:  cfg.SecurityKeywords,
		})
		metrics, err := collector.Collect(context.Background(), classifyDir)
		exitOnError(err)

		classifier := classify.NewClassifier(cfg.SecurityKeywords)
		assessment, err := classifier.Classify(metrics)
		exitOnError(err)
		tier := classify.SelectTier(assessment, false)

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s %d file(s), %d line(s) changed\n", cyan("change:"), metrics.FilesChanged, metrics.LinesChanged)
		if len(metrics.LayersTouched) > 0 {
			fmt.Printf("%s %s\n", cyan("layers:"), strings.Join(metrics.LayersTouched, ", "))
		}
		if len(metrics.KeywordHits) > 0 {
			fmt.Printf("%s %s\n", cyan("keywords:"), strings.Join(metrics.KeywordHits, ", "))
		}
		if metrics.ArchitectureFlagged {
			fmt.Printf("%s architecture-critical path touched\n", cyan("flag:"))
		}
		fmt.Printf("%s %s (rule: %s)\n", cyan("signal:"), assessment.Signal, assessment.Rule)
		fmt.Printf("%s %s (minimum model cost: %s)\n", cyan("tier:"), tier, classify.MinCostClass(tier))

		printLearnedPatterns(cfg, cyan)
	},
}

// printLearnedPatterns shows which violation categories past runs hit for
// the current project fingerprint. Silent when there is no history yet.
func printLearnedPatterns(cfg *config.Configuration, cyan func(a ...interface{}) string) {
	store, err := openStore(cfg)
	if err != nil {
		return
	}
	defer store.Close()

	orch := &session.Orchestrator{Config: cfg, Store: store}
	patterns, ok := orch.LearnedPatterns(context.Background(), classifyDir)
	if !ok || patterns.Sessions == 0 || len(patterns.Categories) == 0 {
		return
	}

	categories := make([]string, 0, len(patterns.Categories))
	for category := range patterns.Categories {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool {
		if patterns.Categories[categories[i]] != patterns.Categories[categories[j]] {
			return patterns.Categories[categories[i]] > patterns.Categories[categories[j]]
		}
		return categories[i] < categories[j]
	})

	parts := make([]string, 0, len(categories))
	for _, category := range categories {
		parts = append(parts, fmt.Sprintf("%s (%d)", category, patterns.Categories[category]))
	}
	fmt.Printf("%s %s over %d session(s)\n", cyan("history:"), strings.Join(parts, ", "), patterns.Sessions)
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringVar(&classifyDir, "dir", ".", "Project directory")
}
