package types

import (
	"fmt"
	"sort"
	"time"
)

// ChangeMetrics is an immutable snapshot of a pending change, taken once per
// verify attempt. Malformed metrics fail classification fast; the caller must
// resupply them.
type ChangeMetrics struct {
	// FilesChanged is the number of files touched by the change.
	FilesChanged int `json:"files_changed" yaml:"files_changed"`

	// LinesChanged is the total number of lines touched.
	LinesChanged int `json:"lines_changed" yaml:"lines_changed"`

	// LayersTouched is the set of declared layer IDs the change spans.
	LayersTouched []string `json:"layers_touched" yaml:"layers_touched"`

	// KeywordHits is the set of risk keywords matched in the change.
	KeywordHits []string `json:"keyword_hits" yaml:"keyword_hits"`

	// ArchitectureFlagged is set when the caller explicitly marks the change
	// as an architecture change, independent of layer counting.
	ArchitectureFlagged bool `json:"architecture_flagged" yaml:"architecture_flagged"`
}

// Validate reports whether the metrics are well-formed. A validation error is
// a classification error: no tier may be selected from bad metrics.
func (m ChangeMetrics) Validate() error {
	if m.FilesChanged < 0 {
		return fmt.Errorf("files_changed cannot be negative: %d", m.FilesChanged)
	}
	if m.LinesChanged < 0 {
		return fmt.Errorf("lines_changed cannot be negative: %d", m.LinesChanged)
	}
	if m.FilesChanged == 0 && m.LinesChanged > 0 {
		return fmt.Errorf("lines_changed is %d but files_changed is 0", m.LinesChanged)
	}
	seen := make(map[string]bool, len(m.LayersTouched))
	for _, l := range m.LayersTouched {
		if l == "" {
			return fmt.Errorf("layers_touched contains an empty layer id")
		}
		if seen[l] {
			return fmt.Errorf("layers_touched contains duplicate layer %q", l)
		}
		seen[l] = true
	}
	return nil
}

// UniqueLayers returns the number of distinct layers touched.
func (m ChangeMetrics) UniqueLayers() int {
	return len(m.LayersTouched)
}

// MetricSample is one observation in a named metric stream (token cost,
// tool-call cost, wall-clock duration). Samples are advisory input for the
// anomaly monitor and never feed back into loop decisions.
type MetricSample struct {
	Metric     string    `json:"metric"`
	SessionID  string    `json:"session_id"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Violation is one finding from a verification pass.
type Violation struct {
	// Category groups the finding (e.g. "architecture", "security",
	// "tooling").
	Category string `json:"category" yaml:"category"`
	// Identifier names the specific finding within its category.
	Identifier string `json:"identifier" yaml:"identifier"`
}

func (v Violation) String() string {
	return v.Category + ":" + v.Identifier
}

// ViolationSet is the ordered output of one verification pass.
type ViolationSet []Violation

// Empty reports whether the pass produced no findings.
func (s ViolationSet) Empty() bool { return len(s) == 0 }

// Equal reports multiset equality: two sets are equal iff their
// (category, identifier) pairs match exactly, ignoring order. This is the
// equality the circuit breaker uses.
func (s ViolationSet) Equal(other ViolationSet) bool {
	if len(s) != len(other) {
		return false
	}
	counts := make(map[Violation]int, len(s))
	for _, v := range s {
		counts[v]++
	}
	for _, v := range other {
		counts[v]--
		if counts[v] < 0 {
			return false
		}
	}
	return true
}

// Categories returns the sorted distinct categories present in the set.
func (s ViolationSet) Categories() []string {
	seen := make(map[string]bool)
	for _, v := range s {
		seen[v.Category] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ToolingCategory is the dedicated category for verify-pass hard failures
// (collaborator crash, unreachable tool). Wrapping failures as violations
// keeps the circuit-breaker equality logic applicable to repeated tool
// breakage.
const ToolingCategory = "tooling"

// ToolingFailure wraps a verifier error as a single-violation set. The
// identifier must be stable for identical failures so repeats compare equal.
func ToolingFailure(identifier string) ViolationSet {
	return ViolationSet{{Category: ToolingCategory, Identifier: identifier}}
}
