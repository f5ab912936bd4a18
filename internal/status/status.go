// Package status renders session progress on the console and mirrors each
// phase transition into the persistent session log. The indicator shown to
// the user blends loop progress with tier weight so long THOROUGH sessions
// do not look stalled.
package status

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/kberard/vetloop/internal/escalate"
	"github.com/kberard/vetloop/internal/loop"
	"github.com/kberard/vetloop/internal/storage"
	"github.com/kberard/vetloop/internal/types"
)

// Reporter implements loop.Observer. A nil store disables persistence and a
// Reporter zero value writes to stdout.
type Reporter struct {
	Out       io.Writer
	Store     *storage.Store
	SessionID string
	State     *types.SessionState
	Quiet     bool
}

// NewReporter creates a reporter that writes to stdout and logs phases to
// the store.
func NewReporter(store *storage.Store, state *types.SessionState) *Reporter {
	return &Reporter{
		Out:       os.Stdout,
		Store:     store,
		SessionID: state.ID,
		State:     state,
	}
}

func (r *Reporter) out() io.Writer {
	if r.Out != nil {
		return r.Out
	}
	return os.Stdout
}

// Phase prints a labeled phase line and persists it.
func (r *Reporter) Phase(phase, format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	if !r.Quiet {
		fmt.Fprintf(r.out(), "%s %s\n", color.CyanString("[%s]", phase), message)
	}
	r.persist(phase, message)
}

// PassStarted is called before each verification pass with the 1-based pass
// number.
func (r *Reporter) PassStarted(pass int, tier types.Tier) {
	load := 0
	if r.State != nil {
		load = r.State.LoadIndicator()
	}
	r.Phase("verify", "pass %d starting at tier %s (load %d%%)", pass, tier, load)
}

// PassCompleted is called after each verification pass.
func (r *Reporter) PassCompleted(pass int, tier types.Tier, violations types.ViolationSet, elapsed time.Duration) {
	if violations.Empty() {
		r.Phase("verify", "pass %d clean at tier %s (%s)", pass, tier, elapsed.Round(time.Millisecond))
		return
	}
	r.Phase("verify", "pass %d found %d violation(s) at tier %s (%s)",
		pass, len(violations), tier, elapsed.Round(time.Millisecond))
	if r.Quiet {
		return
	}
	for _, violation := range violations {
		fmt.Fprintf(r.out(), "    %s %s: %s\n", color.RedString("x"), violation.Category, violation.Identifier)
	}
}

// Escalated is called when the tier rises.
func (r *Reporter) Escalated(esc escalate.Escalation) {
	kind := "deferred"
	if esc.Immediate {
		kind = "immediate"
	}
	message := fmt.Sprintf("%s -> %s (%s, %s)", esc.From, esc.To, esc.Reason, kind)
	if !r.Quiet {
		fmt.Fprintf(r.out(), "%s %s\n", color.YellowString("[escalate]"), message)
	}
	r.persist("escalate", message)
}

// CircuitBroken is called when the identical-set breaker trips.
func (r *Reporter) CircuitBroken(snap loop.Snapshot) {
	message := fmt.Sprintf("identical violations on 3 passes at tier %s, suspending", snap.Tier)
	if !r.Quiet {
		fmt.Fprintf(r.out(), "%s %s\n", color.RedString("[break]"), message)
	}
	r.persist("break", message)
}

// Outcome prints the final session result.
func (r *Reporter) Outcome(result *loop.Result) {
	switch result.Status {
	case types.SessionSucceeded:
		r.Phase("done", "%s after %d pass(es) at tier %s",
			color.GreenString("verified"), result.Passes, result.FinalTier)
	case types.SessionPartial:
		r.Phase("done", "%s with %d remaining violation(s) after %d pass(es)",
			color.YellowString("partial"), len(result.Remaining), result.Passes)
	case types.SessionSuspended:
		r.Phase("done", "%s (resume with 'vetloop resume')", color.RedString("suspended"))
	case types.SessionAborted:
		r.Phase("done", "%s by root-cause decision", color.RedString("aborted"))
	default:
		r.Phase("done", "status %s", result.Status)
	}
}

// Advisory prints an anomaly monitor finding. Advisory output never alters
// the session result.
func (r *Reporter) Advisory(metric, finding string) {
	message := fmt.Sprintf("%s: %s", metric, finding)
	if !r.Quiet {
		fmt.Fprintf(r.out(), "%s %s\n", color.MagentaString("[advisory]"), message)
	}
	r.persist("advisory", message)
}

func (r *Reporter) persist(phase, message string) {
	if r.Store == nil || r.SessionID == "" {
		return
	}
	if err := r.Store.AppendLog(context.Background(), r.SessionID, phase, message); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record session log: %v\n", err)
	}
}
