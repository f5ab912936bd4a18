package status

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kberard/vetloop/internal/escalate"
	"github.com/kberard/vetloop/internal/loop"
	"github.com/kberard/vetloop/internal/storage"
	"github.com/kberard/vetloop/internal/types"
)

func newReporter(t *testing.T) (*Reporter, *bytes.Buffer, *storage.Store) {
	t.Helper()
	color.NoColor = true

	store, err := storage.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	state := types.NewSessionState("sess-1", types.TierStandard, types.ModeNormal, 3)
	r := NewReporter(store, state)
	var buf bytes.Buffer
	r.Out = &buf
	return r, &buf, store
}

func TestPassLinesIncludeTierAndLoad(t *testing.T) {
	r, buf, _ := newReporter(t)

	r.PassStarted(1, types.TierStandard)
	out := buf.String()
	assert.Contains(t, out, "pass 1 starting at tier STANDARD")
	assert.Contains(t, out, "load ")

	buf.Reset()
	r.PassCompleted(1, types.TierStandard, types.ViolationSet{
		{Category: "lint", Identifier: "shadowed variable"},
	}, 120*time.Millisecond)
	out = buf.String()
	assert.Contains(t, out, "found 1 violation(s)")
	assert.Contains(t, out, "lint: shadowed variable")
}

func TestEscalationLine(t *testing.T) {
	r, buf, _ := newReporter(t)

	r.Escalated(escalate.Escalation{
		From: types.TierLight, To: types.TierThorough,
		Reason: "security violation", Immediate: true,
	})
	assert.Contains(t, buf.String(), "LIGHT -> THOROUGH (security violation, immediate)")
}

func TestOutcomeLines(t *testing.T) {
	r, buf, _ := newReporter(t)

	r.Outcome(&loop.Result{Status: types.SessionSucceeded, Passes: 2, FinalTier: types.TierStandard})
	assert.Contains(t, buf.String(), "verified after 2 pass(es)")

	buf.Reset()
	r.Outcome(&loop.Result{
		Status:    types.SessionPartial,
		Passes:    3,
		Remaining: types.ViolationSet{{Category: "test", Identifier: "TestX"}},
	})
	assert.Contains(t, buf.String(), "partial with 1 remaining")

	buf.Reset()
	r.Outcome(&loop.Result{Status: types.SessionSuspended})
	assert.Contains(t, buf.String(), "suspended")
}

func TestPhasesPersistToSessionLog(t *testing.T) {
	r, _, store := newReporter(t)

	r.PassStarted(1, types.TierLight)
	r.Advisory("token_cost", "ANOMALY z=3.20")

	entries, err := store.RecentLog(context.Background(), "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "verify", entries[0].Phase)
	assert.Equal(t, "advisory", entries[1].Phase)
}

func TestQuietSuppressesConsoleNotLog(t *testing.T) {
	r, buf, store := newReporter(t)
	r.Quiet = true

	r.PassStarted(1, types.TierLight)
	assert.Empty(t, buf.String())

	entries, err := store.RecentLog(context.Background(), "sess-1", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
