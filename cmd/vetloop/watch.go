package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/kberard/vetloop/internal/cache"
)

var watchDir string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch fingerprint inputs and report cache invalidation",
	Long: `Watch the configured fingerprint inputs and report when a change
invalidates the cached project profile. The cache itself is refreshed
lazily on the next run; this command only tells you it will be.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		exitOnError(err)
		store, err := openStore(cfg)
		exitOnError(err)
		defer store.Close()

		orch, err := buildOrchestrator(cfg, store)
		exitOnError(err)

		watcher, err := fsnotify.NewWatcher()
		exitOnError(err)
		defer watcher.Close()

		// Watch the parent directories so create/rename of an input is seen.
		watched := map[string]bool{}
		for _, input := range cfg.FingerprintInputs {
			dir := filepath.Dir(filepath.Join(watchDir, input))
			if !watched[dir] {
				if err := watcher.Add(dir); err == nil {
					watched[dir] = true
				}
			}
		}
		if !watched[watchDir] {
			if err := watcher.Add(watchDir); err != nil {
				exitOnError(fmt.Errorf("watching %s: %w", watchDir, err))
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		profileCache := cache.New(store, cache.ProfileKey)
		stored := profileCache.StoredFingerprint(ctx)
		fmt.Printf("watching %d path(s); current fingerprint %s\n", len(watched), short(stored))

		// Debounce: editors fire bursts of events per save.
		var timer *time.Timer
		recheck := make(chan struct{}, 1)

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(250*time.Millisecond, func() {
					select {
					case recheck <- struct{}{}:
					default:
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
			case <-recheck:
				fp, err := orch.ProjectFingerprint(watchDir)
				if err != nil {
					fmt.Fprintf(os.Stderr, "fingerprint error: %v\n", err)
					continue
				}
				if fp != stored {
					fmt.Printf("%s profile cache invalidated (fingerprint %s -> %s)\n",
						color.YellowString("[watch]"), short(stored), short(fp))
					stored = fp
				}
			}
		}
	},
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	if fp == "" {
		return "(none)"
	}
	return fp
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchDir, "dir", ".", "Project directory")
}
