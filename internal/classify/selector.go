package classify

import (
	"github.com/kberard/vetloop/internal/types"
)

// SelectTier maps an assessment to the initial verification tier.
//
//	SECURITY                    -> THOROUGH
//	ARCHITECTURAL, size-critical -> THOROUGH
//	ARCHITECTURAL               -> STANDARD
//	LOW                         -> LIGHT
//
// explicitLoop is true when the caller requested a bounded loop (`loop N`,
// N >= 1). Loops imply sustained scrutiny, so a computed LIGHT tier is
// floored to STANDARD. The override is a floor, not a ceiling: THOROUGH
// stays THOROUGH.
func SelectTier(a Assessment, explicitLoop bool) types.Tier {
	var tier types.Tier
	switch a.Signal {
	case types.RiskSecurity:
		tier = types.TierThorough
	case types.RiskArchitectural:
		if a.SizeCritical {
			tier = types.TierThorough
		} else {
			tier = types.TierStandard
		}
	default:
		tier = types.TierLight
	}

	if explicitLoop && tier == types.TierLight {
		tier = types.TierStandard
	}
	return tier
}

// MinCostClass returns the minimum acceptable model cost class for work at
// the given tier. Mirrors the tiered model strategy: shallow passes may use
// economy models, thorough passes require the premium class.
func MinCostClass(tier types.Tier) types.CostClass {
	switch tier {
	case types.TierLight:
		return types.CostEconomy
	case types.TierStandard:
		return types.CostStandard
	default:
		return types.CostPremium
	}
}
