package session

import (
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kberard/vetloop/internal/config"
	"github.com/kberard/vetloop/internal/loop"
	"github.com/kberard/vetloop/internal/storage"
	"github.com/kberard/vetloop/internal/types"
)

type scriptVerifier struct {
	script []types.ViolationSet
	calls  int
}

func (v *scriptVerifier) Verify(ctx context.Context, tier types.Tier, scope loop.Scope) (types.ViolationSet, error) {
	i := v.calls
	v.calls++
	if i >= len(v.script) {
		return nil, nil
	}
	return v.script[i], nil
}

type decideFunc func(ctx context.Context, snap loop.Snapshot) (loop.Decision, error)

func (f decideFunc) Decide(ctx context.Context, snap loop.Snapshot) (loop.Decision, error) {
	return f(ctx, snap)
}

func testOrchestrator(t *testing.T, v loop.Verifier) (*Orchestrator, *storage.Store) {
	t.Helper()
	color.NoColor = true

	store, err := storage.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg, err := config.LoadWithOptions(config.LoadOptions{
		ProjectConfigPath: "does-not-exist.yml",
		SkipWarnings:      true,
	})
	require.NoError(t, err)
	cfg.DBPath = ":memory:"
	cfg.FingerprintInputs = nil

	return &Orchestrator{Config: cfg, Store: store, Verifier: v, Quiet: true}, store
}

func lowRiskMetrics() *types.ChangeMetrics {
	return &types.ChangeMetrics{
		FilesChanged:  2,
		LinesChanged:  40,
		LayersTouched: []string{"domain"},
	}
}

func TestRunCleanPass(t *testing.T) {
	v := &scriptVerifier{script: []types.ViolationSet{nil}}
	o, _ := testOrchestrator(t, v)

	out, err := o.Run(context.Background(), Options{
		Dir: t.TempDir(), Mode: types.ModeNormal, Metrics: lowRiskMetrics(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.TierLight, out.Tier)
	assert.Equal(t, types.SessionSucceeded, out.Result.Status)
	assert.Equal(t, 1, v.calls)
}

func TestDryRunNeverVerifies(t *testing.T) {
	v := &scriptVerifier{}
	o, _ := testOrchestrator(t, v)

	out, err := o.Run(context.Background(), Options{
		Dir: t.TempDir(), Mode: types.ModeDryRun, Metrics: lowRiskMetrics(),
	})
	require.NoError(t, err)
	assert.Nil(t, out.Result, "dry-run reports classification only")
	assert.Equal(t, types.TierLight, out.Tier)
	assert.Zero(t, v.calls)
}

func TestSecurityChangeStartsThorough(t *testing.T) {
	v := &scriptVerifier{script: []types.ViolationSet{nil}}
	o, _ := testOrchestrator(t, v)

	out, err := o.Run(context.Background(), Options{
		Dir:  t.TempDir(),
		Mode: types.ModeNormal,
		Metrics: &types.ChangeMetrics{
			FilesChanged: 1, LinesChanged: 5,
			LayersTouched: []string{"domain"},
			KeywordHits:   []string{"password"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, types.TierThorough, out.Tier)
}

func TestExplicitLoopFloorsStandard(t *testing.T) {
	v := &scriptVerifier{script: []types.ViolationSet{nil}}
	o, _ := testOrchestrator(t, v)

	out, err := o.Run(context.Background(), Options{
		Dir: t.TempDir(), Mode: types.ModeNormal, MaxLoops: 3, Metrics: lowRiskMetrics(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.TierStandard, out.Tier, "an explicit loop request floors LIGHT to STANDARD")
}

func TestCircuitBreakPersistsSnapshotAndResumes(t *testing.T) {
	// Two identical passes per tier escalate (clearing history), so the
	// breaker's 3-in-a-row only trips at THOROUGH: 2 + 2 + 3 passes.
	stuck := types.ViolationSet{{Category: "test", Identifier: "TestX failed"}}
	v := &scriptVerifier{script: []types.ViolationSet{stuck, stuck, stuck, stuck, stuck, stuck, stuck}}
	o, store := testOrchestrator(t, v)
	o.Config.MaxLoops = 20

	out, err := o.Run(context.Background(), Options{
		Dir: t.TempDir(), Mode: types.ModeNormal, Metrics: lowRiskMetrics(),
	})
	require.NoError(t, err)
	require.Equal(t, types.SessionSuspended, out.Result.Status)

	ctx := context.Background()
	snap, err := store.LatestSuspended(ctx)
	require.NoError(t, err)
	assert.Equal(t, out.SessionID, snap.SessionID)
	assert.True(t, snap.Violations.Equal(stuck))

	// Resume with a verifier that now passes clears the snapshot.
	o.Verifier = &scriptVerifier{script: []types.ViolationSet{nil}}
	resumed, err := o.Resume(ctx, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, snap.SessionID, resumed.SessionID)
	assert.Equal(t, types.SessionSucceeded, resumed.Result.Status)

	_, err = store.LatestSuspended(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestResumeWithoutSuspendedSession(t *testing.T) {
	o, _ := testOrchestrator(t, &scriptVerifier{})
	_, err := o.Resume(context.Background(), t.TempDir())
	require.Error(t, err)
}

func TestDeciderAbortEndsSession(t *testing.T) {
	stuck := types.ViolationSet{{Category: "lint", Identifier: "bad"}}
	v := &scriptVerifier{script: []types.ViolationSet{stuck, stuck, stuck, stuck, stuck, stuck, stuck}}
	o, _ := testOrchestrator(t, v)
	o.Config.MaxLoops = 20
	o.Decider = decideFunc(func(ctx context.Context, snap loop.Snapshot) (loop.Decision, error) {
		return loop.DecisionAbort, nil
	})

	out, err := o.Run(context.Background(), Options{
		Dir: t.TempDir(), Mode: types.ModeNormal, Metrics: lowRiskMetrics(),
	})
	require.NoError(t, err)
	assert.Equal(t, types.SessionAborted, out.Result.Status)
}

func TestMetricsRecordedPerSession(t *testing.T) {
	v := &scriptVerifier{script: []types.ViolationSet{nil}}
	o, store := testOrchestrator(t, v)

	_, err := o.Run(context.Background(), Options{
		Dir: t.TempDir(), Mode: types.ModeNormal, Metrics: lowRiskMetrics(),
	})
	require.NoError(t, err)

	window, err := store.SessionAggregates(context.Background(), MetricPasses, 10)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, 1.0, window[0])
}

func TestLearnedPatternsAccumulate(t *testing.T) {
	stuck := types.ViolationSet{{Category: "lint", Identifier: "bad"}}
	o, _ := testOrchestrator(t, &scriptVerifier{script: []types.ViolationSet{stuck}})
	dir := t.TempDir()
	ctx := context.Background()

	// Loop budget of one leaves the violation unresolved.
	_, err := o.Run(ctx, Options{Dir: dir, Mode: types.ModeNormal, Metrics: lowRiskMetrics()})
	require.NoError(t, err)

	patterns, ok := o.LearnedPatterns(ctx, dir)
	require.True(t, ok)
	assert.Equal(t, 1, patterns.Sessions)
	assert.Equal(t, 1, patterns.Categories["lint"])

	o.Verifier = &scriptVerifier{script: []types.ViolationSet{stuck}}
	_, err = o.Run(ctx, Options{Dir: dir, Mode: types.ModeNormal, Metrics: lowRiskMetrics()})
	require.NoError(t, err)

	patterns, ok = o.LearnedPatterns(ctx, dir)
	require.True(t, ok)
	assert.Equal(t, 2, patterns.Sessions)
	assert.Equal(t, 2, patterns.Categories["lint"])

	// A clean run counts the session but adds no categories.
	o.Verifier = &scriptVerifier{script: []types.ViolationSet{nil}}
	_, err = o.Run(ctx, Options{Dir: dir, Mode: types.ModeNormal, Metrics: lowRiskMetrics()})
	require.NoError(t, err)

	patterns, ok = o.LearnedPatterns(ctx, dir)
	require.True(t, ok)
	assert.Equal(t, 3, patterns.Sessions)
	assert.Equal(t, 2, patterns.Categories["lint"])
}

func TestProjectFingerprintStable(t *testing.T) {
	o, _ := testOrchestrator(t, &scriptVerifier{})
	dir := t.TempDir()

	fp1, err := o.ProjectFingerprint(dir)
	require.NoError(t, err)
	fp2, err := o.ProjectFingerprint(dir)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}
