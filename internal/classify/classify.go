// Package classify turns raw change metrics into a risk signal and selects
// the initial verification tier and minimum model cost class.
//
// Classification is pure and deterministic: the same metrics always yield
// the same assessment, nothing here mutates session state, and the rule
// order is fixed (first match wins).
package classify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kberard/vetloop/internal/types"
)

// Size thresholds for the classification rules.
const (
	// SizeCriticalFiles is the file count at which a change is
	// architectural purely by size, regardless of keywords or layers, and
	// forces the THOROUGH tier.
	SizeCriticalFiles = 20

	// LowRiskMaxFiles and LowRiskMaxLines bound the LOW classification.
	LowRiskMaxFiles = 4
	LowRiskMaxLines = 99
)

// DefaultSecurityKeywords is the fixed security keyword set. Config may
// extend it but never shrink it below these.
var DefaultSecurityKeywords = []string{
	"auth", "encrypt", "permission", "token",
	"password", "credential", "crypto", "secret",
}

// Assessment is the outcome of classifying one ChangeMetrics snapshot.
type Assessment struct {
	// Signal is the coarse risk classification.
	Signal types.RiskSignal

	// SizeCritical is set when the size rule fired (files >= 20). The tier
	// selector uses it to force THOROUGH for architectural signals.
	SizeCritical bool

	// Rule names the classification rule that matched, for telemetry.
	Rule string
}

// Classifier applies the fixed rule order to change metrics.
type Classifier struct {
	keywords map[string]bool
}

// NewClassifier builds a classifier whose security keyword set is the union
// of DefaultSecurityKeywords and extra.
func NewClassifier(extra []string) *Classifier {
	kw := make(map[string]bool, len(DefaultSecurityKeywords)+len(extra))
	for _, k := range DefaultSecurityKeywords {
		kw[strings.ToLower(k)] = true
	}
	for _, k := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			kw[k] = true
		}
	}
	return &Classifier{keywords: kw}
}

// Keywords returns the full keyword set, sorted, for callers that scan
// content themselves.
func (c *Classifier) Keywords() []string {
	out := make([]string, 0, len(c.keywords))
	for k := range c.keywords {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsSecurityKeyword reports whether the word (or a violation category) is in
// the security keyword set. Matching is case-insensitive and substring-based:
// "authentication" hits "auth".
func (c *Classifier) IsSecurityKeyword(word string) bool {
	w := strings.ToLower(word)
	for k := range c.keywords {
		if strings.Contains(w, k) {
			return true
		}
	}
	return false
}

// Classify maps metrics to an Assessment. Rule order, first match wins:
//
//  1. files_changed >= 20                      -> ARCHITECTURAL (size-critical)
//  2. keyword hit in the security set          -> SECURITY
//  3. >1 layer touched or architecture-flagged -> ARCHITECTURAL
//  4. files <= 4, lines <= 99, exactly 1 layer -> LOW
//  5. otherwise                                -> ARCHITECTURAL (conservative)
//
// Malformed metrics fail fast: no signal is produced and the caller must
// resupply metrics.
func (c *Classifier) Classify(m types.ChangeMetrics) (Assessment, error) {
	if err := m.Validate(); err != nil {
		return Assessment{}, fmt.Errorf("classification rejected: %w", err)
	}

	if m.FilesChanged >= SizeCriticalFiles {
		return Assessment{Signal: types.RiskArchitectural, SizeCritical: true, Rule: "size"}, nil
	}

	for _, hit := range m.KeywordHits {
		if c.IsSecurityKeyword(hit) {
			return Assessment{Signal: types.RiskSecurity, Rule: "security-keyword"}, nil
		}
	}

	if m.UniqueLayers() > 1 || m.ArchitectureFlagged {
		return Assessment{Signal: types.RiskArchitectural, Rule: "layer-span"}, nil
	}

	if m.FilesChanged <= LowRiskMaxFiles && m.LinesChanged <= LowRiskMaxLines && m.UniqueLayers() == 1 {
		return Assessment{Signal: types.RiskLow, Rule: "small-change"}, nil
	}

	// Ties never resolve to LOW.
	return Assessment{Signal: types.RiskArchitectural, Rule: "default"}, nil
}
