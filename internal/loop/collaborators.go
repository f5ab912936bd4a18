// Package loop drives bounded verify/fix iterations over a change, with
// well-defined exit conditions and a circuit breaker for repeated identical
// failures. Verification, auto-fix, and root-cause analysis are external
// collaborators behind small interfaces.
package loop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kberard/vetloop/internal/escalate"
	"github.com/kberard/vetloop/internal/types"
)

// Scope is the target of a verification pass. The auto-fix collaborator may
// return an updated scope (for example, a narrowed file list after fixes).
type Scope struct {
	// Dir is the working directory the collaborators operate in.
	Dir string
	// Layers restricts verification to the named layers. Empty means all.
	Layers []string
	// Labels carries collaborator-specific hints, opaque to the controller.
	Labels map[string]string
}

// Verifier is the external Verify collaborator: one verification pass at a
// tier over a scope. Implementations own their own timeouts.
type Verifier interface {
	Verify(ctx context.Context, tier types.Tier, scope Scope) (types.ViolationSet, error)
}

// Fixer is the optional auto-fix collaborator. It attempts to repair the
// reported violations and returns the (possibly updated) scope to re-verify.
type Fixer interface {
	Fix(ctx context.Context, violations types.ViolationSet, scope Scope) (Scope, error)
}

// Decision is the outcome of a root-cause consultation after a circuit
// break.
type Decision int

const (
	// DecisionResume continues the loop with the identical-set streak reset.
	DecisionResume Decision = iota
	// DecisionAbort ends the session.
	DecisionAbort
)

func (d Decision) String() string {
	switch d {
	case DecisionResume:
		return "resume"
	case DecisionAbort:
		return "abort"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

// Snapshot is the resumable session state handed to the root-cause
// collaborator (and persisted) when the circuit breaker trips.
type Snapshot struct {
	SessionID  string              `json:"session_id"`
	Tier       types.Tier          `json:"tier"`
	LoopIndex  int                 `json:"loop_index"`
	MaxLoops   int                 `json:"max_loops"`
	Violations types.ViolationSet  `json:"violations"`
	TakenAt    time.Time           `json:"taken_at"`
}

// RootCauseDecider is the optional root-cause collaborator, invoked only on
// circuit-break. When absent, the loop suspends and leaves the decision to
// the operator.
type RootCauseDecider interface {
	Decide(ctx context.Context, snap Snapshot) (Decision, error)
}

// Observer receives advisory notifications about loop progress. All methods
// are optional side channels; they never influence control flow.
type Observer interface {
	PassStarted(loopIndex int, tier types.Tier)
	PassCompleted(loopIndex int, tier types.Tier, violations types.ViolationSet, elapsed time.Duration)
	Escalated(esc escalate.Escalation)
	CircuitBroken(snap Snapshot)
}

// toolingKey collapses a collaborator error into a stable identifier so that
// identical failures produce equal violation sets for the circuit breaker.
func toolingKey(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimSpace(msg)
}
