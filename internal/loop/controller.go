package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/kberard/vetloop/internal/escalate"
	"github.com/kberard/vetloop/internal/types"
)

// CircuitBreakThreshold is the number of consecutive identical non-empty
// violation sets that trips the circuit breaker.
const CircuitBreakThreshold = 3

// Result is the terminal outcome of a loop run.
type Result struct {
	// Status is the session's final lifecycle status.
	Status types.SessionStatus
	// Remaining holds the violations left when the loop ended. Empty on
	// success.
	Remaining types.ViolationSet
	// Passes is the number of completed verify passes.
	Passes int
	// FinalTier is the tier the session ended at.
	FinalTier types.Tier
	// Snapshot is set when the session suspended (circuit break without a
	// resume decision); it is the state to persist for resumption.
	Snapshot *Snapshot
}

// Config assembles a Controller.
type Config struct {
	State    *types.SessionState
	Engine   *escalate.Engine
	Verifier Verifier
	// Fixer is optional; nil (or VERIFY_ONLY mode) skips auto-fix.
	Fixer Fixer
	// Decider is optional; nil means a circuit break suspends the session.
	Decider RootCauseDecider
	// Observer is optional advisory telemetry.
	Observer Observer
	// TargetMet is an optional domain-specific success condition evaluated
	// against the pass's violation set.
	TargetMet func(types.ViolationSet) bool
}

// Controller drives iterations 1..max_loops. Control flow is single-threaded
// and cooperative: each pass runs to completion before evaluation, and
// evaluation order is fixed:
//
//  1. empty violation set            -> success
//  2. target condition met           -> success
//  3. same set 3 times consecutively -> circuit break (hard halt)
//  4. loop budget exhausted          -> partial
//  5. otherwise                      -> escalation first refusal, next pass
type Controller struct {
	state     *types.SessionState
	engine    *escalate.Engine
	verifier  Verifier
	fixer     Fixer
	decider   RootCauseDecider
	observer  Observer
	targetMet func(types.ViolationSet) bool
}

// NewController validates the config and builds a controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.State == nil {
		return nil, fmt.Errorf("session state is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("escalation engine is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("verifier is required")
	}
	if cfg.State.Mode == types.ModeDryRun {
		return nil, fmt.Errorf("dry-run sessions never enter the loop")
	}
	return &Controller{
		state:     cfg.State,
		engine:    cfg.Engine,
		verifier:  cfg.Verifier,
		fixer:     cfg.Fixer,
		decider:   cfg.Decider,
		observer:  cfg.Observer,
		targetMet: cfg.TargetMet,
	}, nil
}

// Run executes the loop until one of the exit conditions holds. Circuit
// breaks and loop exhaustion are outcomes, not errors; the only errors
// returned are context cancellation and collaborator-decision failures.
func (c *Controller) Run(ctx context.Context, scope Scope) (*Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("loop canceled after %d passes: %w", c.state.LoopIndex, err)
		}

		vs, newScope, err := c.onePass(ctx, scope)
		if err != nil {
			return nil, err
		}
		scope = newScope

		// The pass is complete: only now does the set enter history and
		// the loop index advance. Immediate escalations inside onePass
		// already forced re-verification, so breaker counters never
		// increment across one.
		c.state.LoopIndex++
		c.state.ViolationHistory = append(c.state.ViolationHistory, vs)

		// 1. Clean pass.
		if vs.Empty() {
			return c.finish(types.SessionSucceeded, nil), nil
		}

		// 2. Domain-specific target condition.
		if c.targetMet != nil && c.targetMet(vs) {
			return c.finish(types.SessionSucceeded, vs), nil
		}

		// 3. Circuit breaker: the same non-empty set three times in a row.
		if c.state.IdenticalStreak() >= CircuitBreakThreshold {
			res, done, err := c.circuitBreak(ctx, vs)
			if err != nil {
				return nil, err
			}
			if done {
				return res, nil
			}
			// Resume decision: streak reset, keep looping.
			continue
		}

		// 4. Budget exhausted with violations remaining. Reported as
		// partial, never silently as success.
		if c.state.LoopIndex >= c.state.MaxLoops {
			return c.finish(types.SessionPartial, vs), nil
		}

		// 5. Give the escalation engine first refusal, then iterate.
		if esc, ok := c.engine.OnPassRecorded(); ok {
			c.notifyEscalated(*esc)
		}
	}
}

// onePass obtains one completed ViolationSet at the current tier. Immediate
// escalations (fresh security or boundary violations) raise the tier
// mid-iteration and force re-verification before the pass counts; auto-fix
// (when enabled) runs once and the fixed scope is re-verified.
func (c *Controller) onePass(ctx context.Context, scope Scope) (types.ViolationSet, Scope, error) {
	vs, err := c.verifyEscalating(ctx, scope)
	if err != nil {
		return nil, scope, err
	}

	if c.fixer != nil && c.state.Mode != types.ModeVerifyOnly && !vs.Empty() {
		fixedScope, fixErr := c.fixer.Fix(ctx, vs, scope)
		if fixErr != nil {
			// A fix failure is recoverable: keep the verified set and let
			// the evaluation rules deal with it.
			return vs, scope, nil
		}
		scope = fixedScope
		vs, err = c.verifyEscalating(ctx, scope)
		if err != nil {
			return nil, scope, err
		}
	}
	return vs, scope, nil
}

// verifyEscalating runs Verify and applies immediate escalations, repeating
// at the raised tier until the set is stable for the current tier. A
// verifier hard error becomes a tooling-failure violation set so the
// breaker logic still applies.
func (c *Controller) verifyEscalating(ctx context.Context, scope Scope) (types.ViolationSet, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tier := c.engine.Current()
		start := time.Now()
		c.notifyPassStarted(tier)

		vs, err := c.verifier.Verify(ctx, tier, scope)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			vs = types.ToolingFailure(toolingKey(err))
		}
		c.notifyPassCompleted(tier, vs, time.Since(start))

		esc, ok := c.engine.OnFreshViolations(vs)
		if !ok {
			return vs, nil
		}
		c.notifyEscalated(*esc)
		// Results below the new tier were discarded; re-verify now.
	}
}

// circuitBreak suspends the loop and consults the root-cause collaborator.
// Without a decider (or if the decider fails) the session stays suspended
// with a resumable snapshot; resumption is an operator decision, never an
// automatic retry.
func (c *Controller) circuitBreak(ctx context.Context, vs types.ViolationSet) (*Result, bool, error) {
	snap := c.snapshot(vs)
	c.state.Status = types.SessionSuspended
	if c.observer != nil {
		c.observer.CircuitBroken(snap)
	}

	if c.decider == nil {
		res := c.finish(types.SessionSuspended, vs)
		res.Snapshot = &snap
		return res, true, nil
	}

	decision, err := c.decider.Decide(ctx, snap)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		res := c.finish(types.SessionSuspended, vs)
		res.Snapshot = &snap
		return res, true, nil
	}

	switch decision {
	case DecisionResume:
		// The operator made an explicit call; counting the pre-halt passes
		// again would re-trip the breaker immediately.
		c.state.DiscardHistory()
		c.state.Status = types.SessionRunning
		return nil, false, nil
	default:
		res := c.finish(types.SessionAborted, vs)
		res.Snapshot = &snap
		return res, true, nil
	}
}

func (c *Controller) snapshot(vs types.ViolationSet) Snapshot {
	return Snapshot{
		SessionID:  c.state.ID,
		Tier:       c.state.CurrentTier,
		LoopIndex:  c.state.LoopIndex,
		MaxLoops:   c.state.MaxLoops,
		Violations: vs,
		TakenAt:    time.Now(),
	}
}

func (c *Controller) finish(status types.SessionStatus, remaining types.ViolationSet) *Result {
	c.state.Status = status
	return &Result{
		Status:    status,
		Remaining: remaining,
		Passes:    c.state.LoopIndex,
		FinalTier: c.state.CurrentTier,
	}
}

func (c *Controller) notifyPassStarted(tier types.Tier) {
	if c.observer != nil {
		c.observer.PassStarted(c.state.LoopIndex+1, tier)
	}
}

func (c *Controller) notifyPassCompleted(tier types.Tier, vs types.ViolationSet, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.PassCompleted(c.state.LoopIndex+1, tier, vs, elapsed)
	}
}

func (c *Controller) notifyEscalated(esc escalate.Escalation) {
	if c.observer != nil {
		c.observer.Escalated(esc)
	}
}
