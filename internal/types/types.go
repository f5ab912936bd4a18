// Package types defines the core value types shared across vetloop:
// verification tiers, risk signals, execution modes, change metrics,
// violation sets, and per-session state.
package types

import (
	"fmt"
	"strings"
)

// Tier is a discrete verification depth level. Tiers are totally ordered:
// TierLight < TierStandard < TierThorough.
type Tier int

const (
	// TierLight is the cheapest verification depth, reserved for small,
	// single-layer changes with no risk signals.
	TierLight Tier = iota
	// TierStandard is the default depth for architectural-class changes.
	TierStandard
	// TierThorough is the deepest verification depth. Security signals and
	// size-critical changes land here, and escalation never goes past it.
	TierThorough
)

func (t Tier) String() string {
	switch t {
	case TierLight:
		return "LIGHT"
	case TierStandard:
		return "STANDARD"
	case TierThorough:
		return "THOROUGH"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(t))
	}
}

// ParseTier converts a string (case-insensitive) to a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LIGHT":
		return TierLight, nil
	case "STANDARD":
		return TierStandard, nil
	case "THOROUGH":
		return TierThorough, nil
	default:
		return TierLight, fmt.Errorf("unknown tier %q", s)
	}
}

// RiskSignal is the coarse classification derived from raw change metrics.
type RiskSignal int

const (
	// RiskLow covers small, single-layer changes with no keyword hits.
	RiskLow RiskSignal = iota
	// RiskArchitectural covers multi-layer, large, or otherwise
	// structure-affecting changes. It is also the conservative default.
	RiskArchitectural
	// RiskSecurity covers changes whose keywords intersect the security set.
	RiskSecurity
)

func (r RiskSignal) String() string {
	switch r {
	case RiskLow:
		return "LOW"
	case RiskArchitectural:
		return "ARCHITECTURAL"
	case RiskSecurity:
		return "SECURITY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(r))
	}
}

// CostClass is the minimum acceptable model cost tier for verification work.
// Deeper verification tiers require more capable (more expensive) models.
type CostClass int

const (
	// CostEconomy allows the cheapest models (quick, shallow passes).
	CostEconomy CostClass = iota
	// CostStandard requires a mid-range model.
	CostStandard
	// CostPremium requires the most capable model available.
	CostPremium
)

func (c CostClass) String() string {
	switch c {
	case CostEconomy:
		return "ECONOMY"
	case CostStandard:
		return "STANDARD"
	case CostPremium:
		return "PREMIUM"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(c))
	}
}

// Mode is the session execution mode.
type Mode int

const (
	// ModeNormal runs the full classify -> verify -> fix loop.
	ModeNormal Mode = iota
	// ModeVerifyOnly runs the full loop but skips the auto-fix collaborator.
	ModeVerifyOnly
	// ModeDryRun stops after classification and tier selection; the loop
	// never starts.
	ModeDryRun
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeVerifyOnly:
		return "verify-only"
	case ModeDryRun:
		return "dry-run"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseMode converts a mode token ("verify-only", "dry-run", "") to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return ModeNormal, nil
	case "verify-only":
		return ModeVerifyOnly, nil
	case "dry-run":
		return ModeDryRun, nil
	default:
		return ModeNormal, fmt.Errorf("unknown mode %q", s)
	}
}
