// Package escalate owns the verification tier for a session and applies the
// monotonic escalation rules: once a session escalates it never returns to a
// lower tier, and results gathered under a superseded tier are discarded.
package escalate

import (
	"strings"
	"sync"

	"github.com/kberard/vetloop/internal/classify"
	"github.com/kberard/vetloop/internal/types"
)

// Violation categories that trigger immediate escalation.
const (
	// ArchitectureCategory marks architectural boundary violations. A fresh
	// one raises LIGHT -> STANDARD mid-iteration.
	ArchitectureCategory = "architecture"
)

// Escalation describes one applied tier raise.
type Escalation struct {
	From   types.Tier
	To     types.Tier
	Reason string
	// Immediate escalations take effect mid-iteration and force
	// re-verification before the iteration completes. Deferred ones (same
	// violation set twice) take effect starting the next loop iteration.
	Immediate bool
}

// Engine is the per-session escalation state machine. States are the three
// tiers; all transitions are one-directional. The engine and the loop
// controller are the only mutators of SessionState.
type Engine struct {
	mu         sync.Mutex
	state      *types.SessionState
	classifier *classify.Classifier
}

// NewEngine creates an engine owning the tier of the given session. The
// classifier supplies the security keyword set used to match violation
// categories.
func NewEngine(state *types.SessionState, classifier *classify.Classifier) *Engine {
	if classifier == nil {
		classifier = classify.NewClassifier(nil)
	}
	return &Engine{state: state, classifier: classifier}
}

// Current returns the active tier.
func (e *Engine) Current() types.Tier {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.CurrentTier
}

// OnFreshViolations applies the immediate escalation rules to a freshly
// reported violation set:
//
//   - a violation whose category matches the security keyword set raises any
//     tier to THOROUGH;
//   - an architectural boundary violation raises LIGHT to STANDARD.
//
// The strongest applicable raise wins. When an escalation is applied, all
// violations found under the superseded tier are discarded and the caller
// must re-verify at the new tier before the iteration is considered
// complete.
func (e *Engine) OnFreshViolations(vs types.ViolationSet) (*Escalation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	target := e.state.CurrentTier
	reason := ""
	for _, v := range vs {
		switch {
		case e.classifier.IsSecurityKeyword(v.Category):
			if types.TierThorough > target {
				target = types.TierThorough
				reason = "security violation " + v.String()
			}
		case isBoundaryCategory(v.Category):
			if e.state.CurrentTier == types.TierLight && types.TierStandard > target {
				target = types.TierStandard
				reason = "architectural boundary violation " + v.String()
			}
		}
	}

	if target == e.state.CurrentTier {
		return nil, false
	}
	return e.raiseTo(target, reason, true), true
}

// OnPassRecorded applies the deferred escalation rule after a completed pass
// has been recorded in the violation history: the same non-empty set in two
// consecutive completed passes escalates one level, effective from the next
// iteration. At THOROUGH there is no further target; the repeat feeds the
// loop controller's circuit breaker instead, so this returns (nil, false).
func (e *Engine) OnPassRecorded() (*Escalation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	last := e.state.LastViolations()
	if last.Empty() || e.state.IdenticalStreak() < 2 {
		return nil, false
	}
	if e.state.CurrentTier >= types.TierThorough {
		return nil, false
	}
	return e.raiseTo(e.state.CurrentTier+1, "identical violations in consecutive passes", false), true
}

// raiseTo applies a monotonic raise. Must be called with the lock held.
// Raising discards the superseded tier's violation history: a result
// accepted under a weaker tier is not trustworthy evidence under a stronger
// one.
func (e *Engine) raiseTo(target types.Tier, reason string, immediate bool) *Escalation {
	if target <= e.state.CurrentTier {
		return nil
	}
	esc := &Escalation{
		From:      e.state.CurrentTier,
		To:        target,
		Reason:    reason,
		Immediate: immediate,
	}
	e.state.CurrentTier = target
	e.state.Escalated = true
	e.state.DiscardHistory()
	return esc
}

func isBoundaryCategory(category string) bool {
	c := strings.ToLower(category)
	return strings.Contains(c, ArchitectureCategory) || strings.Contains(c, "boundary")
}
