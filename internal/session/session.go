// Package session orchestrates one vetloop run end to end: fingerprint the
// project, warm the caches, measure and classify the change, select the
// starting tier, drive the verify/fix loop, and feed the anomaly monitor
// afterward. It owns the wiring; the policy lives in the packages it calls.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kberard/vetloop/internal/anomaly"
	"github.com/kberard/vetloop/internal/cache"
	"github.com/kberard/vetloop/internal/changeset"
	"github.com/kberard/vetloop/internal/classify"
	"github.com/kberard/vetloop/internal/config"
	"github.com/kberard/vetloop/internal/escalate"
	"github.com/kberard/vetloop/internal/fingerprint"
	"github.com/kberard/vetloop/internal/loop"
	"github.com/kberard/vetloop/internal/status"
	"github.com/kberard/vetloop/internal/storage"
	"github.com/kberard/vetloop/internal/types"
)

// Metric names recorded per session.
const (
	MetricDuration = "duration_ms"
	MetricPasses   = "verify_passes"
)

// Profile is the cached project profile: cheap facts about the tree that are
// expensive to rediscover every run.
type Profile struct {
	SourceFiles int       `json:"source_files"`
	Layers      []string  `json:"layers"`
	ComputedAt  time.Time `json:"computed_at"`
}

// Options selects what one run does.
type Options struct {
	// Dir is the project directory (defaults to ".").
	Dir string
	// Mode is the execution mode.
	Mode types.Mode
	// MaxLoops overrides the configured loop budget when > 0. Setting it is
	// an explicit loop request, which floors the tier at STANDARD.
	MaxLoops int
	// Metrics overrides change measurement (tests); nil means collect from
	// the repository.
	Metrics *types.ChangeMetrics
}

// Outcome is what a run produced.
type Outcome struct {
	SessionID  string
	Assessment classify.Assessment
	Tier       types.Tier
	Result     *loop.Result
	// Advisories holds anomaly monitor findings (advisory only).
	Advisories []string
}

// Orchestrator wires a run together. Collaborators are injected so the CLI
// can pick command-based ones and tests can use fakes.
type Orchestrator struct {
	Config   *config.Configuration
	Store    *storage.Store
	Verifier loop.Verifier
	Fixer    loop.Fixer
	Decider  loop.RootCauseDecider
	Quiet    bool
}

// Run executes one session.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Outcome, error) {
	if o.Config == nil || o.Store == nil {
		return nil, fmt.Errorf("config and store are required")
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	sessionID := uuid.New().String()
	out := &Outcome{SessionID: sessionID}
	started := time.Now()

	if _, err := o.warmProfile(ctx, dir); err != nil {
		// Profile trouble is never fatal; the session runs without it.
		fmt.Printf("warning: profile cache unavailable: %v\n", err)
	}

	metrics, err := o.measure(ctx, dir, opts)
	if err != nil {
		return nil, err
	}

	classifier := classify.NewClassifier(o.Config.SecurityKeywords)
	assessment, err := classifier.Classify(metrics)
	if err != nil {
		return nil, err
	}
	out.Assessment = assessment

	explicitLoop := opts.MaxLoops > 0
	tier := classify.SelectTier(assessment, explicitLoop)
	out.Tier = tier

	maxLoops := o.Config.MaxLoops
	if explicitLoop {
		maxLoops = opts.MaxLoops
	}

	state := types.NewSessionState(sessionID, tier, opts.Mode, maxLoops)
	reporter := status.NewReporter(o.Store, state)
	reporter.Quiet = o.Quiet
	reporter.Phase("classify", "signal=%s rule=%s files=%d lines=%d layers=%d",
		assessment.Signal, assessment.Rule, metrics.FilesChanged, metrics.LinesChanged, metrics.UniqueLayers())
	reporter.Phase("select", "tier=%s cost>=%s max_loops=%d mode=%s",
		tier, classify.MinCostClass(tier), maxLoops, opts.Mode)

	// Dry-run stops here: classification and tier are reported, nothing runs.
	if opts.Mode == types.ModeDryRun {
		return out, nil
	}

	result, err := o.runLoop(ctx, state, classifier, reporter, loop.Scope{
		Dir:    dir,
		Layers: metrics.LayersTouched,
	})
	if err != nil {
		return nil, err
	}
	out.Result = result
	reporter.Outcome(result)

	if result.Snapshot != nil {
		if err := o.persistSnapshot(ctx, state, result); err != nil {
			fmt.Printf("warning: failed to persist snapshot: %v\n", err)
		}
	} else {
		// A finished session invalidates any stale snapshot for this ID.
		_ = o.Store.DeleteSnapshot(ctx, sessionID)
	}

	out.Advisories = o.recordMetrics(ctx, reporter, sessionID, started, result)
	o.learnPatterns(ctx, dir, result)
	return out, nil
}

// Resume continues the most recently suspended session from its snapshot.
// The identical-set streak starts fresh; the tier and loop index carry over.
func (o *Orchestrator) Resume(ctx context.Context, dir string) (*Outcome, error) {
	if o.Config == nil || o.Store == nil {
		return nil, fmt.Errorf("config and store are required")
	}
	if dir == "" {
		dir = "."
	}

	snap, err := o.Store.LatestSuspended(ctx)
	if err != nil {
		return nil, fmt.Errorf("no suspended session to resume: %w", err)
	}

	state := types.NewSessionState(snap.SessionID, snap.Tier, snap.Mode, snap.MaxLoops)
	state.LoopIndex = snap.LoopIndex
	state.Escalated = snap.Tier > types.TierLight

	out := &Outcome{SessionID: snap.SessionID, Tier: snap.Tier}
	started := time.Now()

	classifier := classify.NewClassifier(o.Config.SecurityKeywords)
	reporter := status.NewReporter(o.Store, state)
	reporter.Quiet = o.Quiet
	reporter.Phase("resume", "tier=%s loop=%d/%d violations=%d",
		snap.Tier, snap.LoopIndex, snap.MaxLoops, len(snap.Violations))

	result, err := o.runLoop(ctx, state, classifier, reporter, loop.Scope{Dir: dir})
	if err != nil {
		return nil, err
	}
	out.Result = result
	reporter.Outcome(result)

	if result.Snapshot != nil {
		if err := o.persistSnapshot(ctx, state, result); err != nil {
			fmt.Printf("warning: failed to persist snapshot: %v\n", err)
		}
	} else {
		_ = o.Store.DeleteSnapshot(ctx, snap.SessionID)
	}

	out.Advisories = o.recordMetrics(ctx, reporter, snap.SessionID, started, result)
	return out, nil
}

func (o *Orchestrator) runLoop(ctx context.Context, state *types.SessionState, classifier *classify.Classifier, reporter *status.Reporter, scope loop.Scope) (*loop.Result, error) {
	verifier := o.Verifier
	if len(scope.Layers) > 1 && o.Config.ParallelLayers > 1 {
		verifier = loop.NewFanoutVerifier(verifier, o.Config.ParallelLayers)
	}

	fixer := o.Fixer
	if state.Mode == types.ModeVerifyOnly {
		fixer = nil
	}

	controller, err := loop.NewController(loop.Config{
		State:    state,
		Engine:   escalate.NewEngine(state, classifier),
		Verifier: verifier,
		Fixer:    fixer,
		Decider:  o.Decider,
		Observer: reporter,
	})
	if err != nil {
		return nil, err
	}
	return controller.Run(ctx, scope)
}

// warmProfile ensures the profile cache holds an entry for the current
// fingerprint, recomputing it when any declared input changed.
func (o *Orchestrator) warmProfile(ctx context.Context, dir string) (*Profile, error) {
	fp, err := o.ProjectFingerprint(dir)
	if err != nil {
		return nil, err
	}

	profileCache := cache.New(o.Store, cache.ProfileKey)
	payload, _, err := profileCache.GetOrCompute(ctx, fp, func(ctx context.Context) ([]byte, error) {
		return o.computeProfile(dir)
	})
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := json.Unmarshal(payload, &profile); err != nil {
		return nil, fmt.Errorf("decoding cached profile: %w", err)
	}
	return &profile, nil
}

// ProjectFingerprint hashes the configured fingerprint inputs plus the
// source file count.
func (o *Orchestrator) ProjectFingerprint(dir string) (string, error) {
	var inputs []fingerprint.Input
	for _, name := range o.Config.FingerprintInputs {
		in, err := fingerprint.FileInput(name, name)
		if err != nil {
			return "", err
		}
		inputs = append(inputs, in)
	}

	suffix := o.Config.SourceSuffix
	if suffix == "" {
		suffix = ".go"
	}
	countIn, err := fingerprint.SourceCountInput("source-count", dir, []string{suffix})
	if err != nil {
		return "", err
	}
	inputs = append(inputs, countIn)

	return fingerprint.Fingerprint(inputs), nil
}

func (o *Orchestrator) computeProfile(dir string) ([]byte, error) {
	suffix := o.Config.SourceSuffix
	if suffix == "" {
		suffix = ".go"
	}
	countIn, err := fingerprint.SourceCountInput("source-count", dir, []string{suffix})
	if err != nil {
		return nil, err
	}
	count := 0
	fmt.Sscanf(string(countIn.Bytes), "%d", &count)

	layers := make([]string, 0, len(o.Config.Layers))
	for layer := range o.Config.Layers {
		layers = append(layers, layer)
	}

	return json.Marshal(Profile{
		SourceFiles: count,
		Layers:      layers,
		ComputedAt:  time.Now().UTC(),
	})
}

// Patterns is the cached violation-category histogram for the current
// project fingerprint. It accumulates across runs until the fingerprint
// changes, giving `vetloop classify` users a sense of what usually breaks.
type Patterns struct {
	Categories map[string]int `json:"categories"`
	Sessions   int            `json:"sessions"`
}

// learnPatterns folds the run's violation categories into the pattern
// cache. A changed fingerprint starts the histogram over. Best-effort:
// pattern trouble never affects the session result.
func (o *Orchestrator) learnPatterns(ctx context.Context, dir string, result *loop.Result) {
	if result == nil {
		return
	}
	fp, err := o.ProjectFingerprint(dir)
	if err != nil {
		return
	}

	patternCache := cache.New(o.Store, cache.PatternsKey)
	patterns := Patterns{Categories: map[string]int{}}
	if payload, ok := patternCache.Lookup(ctx, fp); ok {
		_ = json.Unmarshal(payload, &patterns)
		if patterns.Categories == nil {
			patterns.Categories = map[string]int{}
		}
	}

	patterns.Sessions++
	for _, category := range result.Remaining.Categories() {
		patterns.Categories[category]++
	}

	if payload, err := json.Marshal(patterns); err == nil {
		_ = o.Store.PutCacheEntry(ctx, cache.PatternsKey, fp, payload)
	}
}

// LearnedPatterns returns the pattern histogram for the current
// fingerprint, or zero values when none is cached.
func (o *Orchestrator) LearnedPatterns(ctx context.Context, dir string) (Patterns, bool) {
	patterns := Patterns{Categories: map[string]int{}}
	fp, err := o.ProjectFingerprint(dir)
	if err != nil {
		return patterns, false
	}
	payload, ok := cache.New(o.Store, cache.PatternsKey).Lookup(ctx, fp)
	if !ok {
		return patterns, false
	}
	if err := json.Unmarshal(payload, &patterns); err != nil {
		return patterns, false
	}
	return patterns, true
}

func (o *Orchestrator) measure(ctx context.Context, dir string, opts Options) (types.ChangeMetrics, error) {
	if opts.Metrics != nil {
		return *opts.Metrics, nil
	}
	collector := changeset.NewCollector(changeset.Config{
		Layers:    o.Config.Layers,
		ArchPaths: o.Config.ArchPaths,
		Keywords:  o.Config.SecurityKeywords,
	})
	metrics, err := collector.Collect(ctx, dir)
	if err != nil {
		return metrics, fmt.Errorf("measuring change: %w", err)
	}
	return metrics, nil
}

func (o *Orchestrator) persistSnapshot(ctx context.Context, state *types.SessionState, result *loop.Result) error {
	snap := result.Snapshot
	return o.Store.SaveSnapshot(ctx, storage.SessionSnapshot{
		SessionID:  snap.SessionID,
		Tier:       snap.Tier,
		LoopIndex:  snap.LoopIndex,
		MaxLoops:   snap.MaxLoops,
		Mode:       state.Mode,
		Status:     result.Status,
		Violations: snap.Violations,
		TakenAt:    snap.TakenAt,
	})
}

// recordMetrics feeds the anomaly monitor and returns any advisory findings.
// Monitor trouble is reported as a warning, never as a session failure.
func (o *Orchestrator) recordMetrics(ctx context.Context, reporter *status.Reporter, sessionID string, started time.Time, result *loop.Result) []string {
	monitor := anomaly.NewMonitor(o.Store, anomaly.Config{
		WindowSessions: o.Config.Anomaly.WindowSessions,
		ZThreshold:     o.Config.Anomaly.ZThreshold,
		TrendFactor:    o.Config.Anomaly.TrendFactor,
	})

	var advisories []string
	samples := []types.MetricSample{
		{Metric: MetricDuration, SessionID: sessionID, Value: float64(time.Since(started).Milliseconds())},
		{Metric: MetricPasses, SessionID: sessionID, Value: float64(result.Passes)},
	}
	for _, sample := range samples {
		score, err := monitor.Observe(ctx, sample)
		if err != nil {
			fmt.Printf("warning: anomaly monitor: %v\n", err)
			continue
		}
		if score.Flag == anomaly.FlagAnomaly {
			finding := fmt.Sprintf("%s z=%.2f (mean %.1f over %d sessions)",
				score.Flag, score.Z, score.Mean, score.Window)
			advisories = append(advisories, fmt.Sprintf("%s: %s", sample.Metric, finding))
			reporter.Advisory(sample.Metric, finding)
		}

		flag, avg, err := monitor.TrendCheck(ctx, sample.Metric, sample.Value)
		if err == nil && flag == anomaly.FlagTrendAlert {
			finding := fmt.Sprintf("%s value %.0f exceeds 1.5x moving average %.1f", flag, sample.Value, avg)
			advisories = append(advisories, fmt.Sprintf("%s: %s", sample.Metric, finding))
			reporter.Advisory(sample.Metric, finding)
		}

		if _, err := monitor.Prune(ctx, sample.Metric); err != nil {
			fmt.Printf("warning: pruning metric window: %v\n", err)
		}
	}
	return advisories
}
