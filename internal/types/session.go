package types

import (
	"fmt"
	"time"
)

// SessionStatus describes how a session ended (or that it is still live).
type SessionStatus int

const (
	// SessionRunning means the session loop is still active.
	SessionRunning SessionStatus = iota
	// SessionSucceeded means the loop exited with no remaining violations
	// (or the target condition was met).
	SessionSucceeded
	// SessionPartial means max_loops was reached with violations remaining.
	// Never silently treated as success.
	SessionPartial
	// SessionSuspended means the circuit breaker halted the loop; the
	// snapshot is preserved and resumption is an explicit operator decision.
	SessionSuspended
	// SessionAborted means the operator (or root-cause collaborator) chose
	// abort after a circuit break.
	SessionAborted
)

func (s SessionStatus) String() string {
	switch s {
	case SessionRunning:
		return "RUNNING"
	case SessionSucceeded:
		return "SUCCEEDED"
	case SessionPartial:
		return "PARTIAL"
	case SessionSuspended:
		return "SUSPENDED"
	case SessionAborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// SessionState is the live state of one verification session. It is owned by
// exactly one session, mutated only by the escalation engine and the loop
// controller, and discarded at session end. Only the caches and the metrics
// window persist across sessions; a snapshot of this struct is stored only
// when the circuit breaker suspends the loop.
type SessionState struct {
	// ID uniquely identifies the session.
	ID string `json:"id"`

	// CurrentTier is the active verification tier. It is monotonically
	// non-decreasing for the life of the session.
	CurrentTier Tier `json:"current_tier"`

	// Escalated records whether any escalation has occurred.
	Escalated bool `json:"escalated"`

	// LoopIndex is the number of completed verify passes. It increases by
	// exactly one per completed pass.
	LoopIndex int `json:"loop_index"`

	// MaxLoops bounds the iteration count. Defaults to 1 when the caller
	// did not request an explicit loop.
	MaxLoops int `json:"max_loops"`

	// ViolationHistory holds the final ViolationSet of each completed pass
	// at the current tier. Escalation discards it: results accepted under a
	// weaker tier are not evidence under a stronger one.
	ViolationHistory []ViolationSet `json:"violation_history"`

	// Mode is the execution mode for this session.
	Mode Mode `json:"mode"`

	// Status is the session's lifecycle status.
	Status SessionStatus `json:"status"`

	// StartedAt is when the session was created.
	StartedAt time.Time `json:"started_at"`
}

// NewSessionState creates the state for a fresh session at the given initial
// tier. maxLoops values below 1 are clamped to 1.
func NewSessionState(id string, tier Tier, mode Mode, maxLoops int) *SessionState {
	if maxLoops < 1 {
		maxLoops = 1
	}
	return &SessionState{
		ID:          id,
		CurrentTier: tier,
		MaxLoops:    maxLoops,
		Mode:        mode,
		Status:      SessionRunning,
		StartedAt:   time.Now(),
	}
}

// LastViolations returns the most recent recorded ViolationSet, or nil.
func (s *SessionState) LastViolations() ViolationSet {
	if len(s.ViolationHistory) == 0 {
		return nil
	}
	return s.ViolationHistory[len(s.ViolationHistory)-1]
}

// IdenticalStreak returns how many consecutive trailing passes produced the
// same ViolationSet (multiset equality). An empty history yields 0; a single
// recorded pass yields 1.
func (s *SessionState) IdenticalStreak() int {
	n := len(s.ViolationHistory)
	if n == 0 {
		return 0
	}
	last := s.ViolationHistory[n-1]
	streak := 1
	for i := n - 2; i >= 0; i-- {
		if !s.ViolationHistory[i].Equal(last) {
			break
		}
		streak++
	}
	return streak
}

// DiscardHistory drops all recorded violations. Called on escalation: a
// result accepted under a superseded tier is discarded, not merged.
func (s *SessionState) DiscardHistory() {
	s.ViolationHistory = nil
}

// LoadIndicator returns a 0-100 advisory load percentage blending loop
// progress with tier weight. Display-only telemetry; never consulted by
// decision logic.
func (s *SessionState) LoadIndicator() int {
	if s.MaxLoops <= 0 {
		return 0
	}
	progress := float64(s.LoopIndex) / float64(s.MaxLoops)
	if progress > 1 {
		progress = 1
	}
	tierWeight := float64(s.CurrentTier) / float64(TierThorough)
	load := int((0.6*progress + 0.4*tierWeight) * 100)
	if load > 100 {
		load = 100
	}
	return load
}
