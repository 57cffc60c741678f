package model

type PlanTier string

const (
	TierFree    PlanTier = "free"
	TierGold    PlanTier = "gold"
	TierDiamond PlanTier = "diamond"
	TierBlack   PlanTier = "black"
)

// DailyLimit is the plan's hard cap before referral bonus and warm-up
// adjustments.
func (t PlanTier) DailyLimit() int {
	switch t {
	case TierBlack:
		return 500
	case TierDiamond:
		return 350
	case TierGold:
		return 150
	default:
		return 5
	}
}

func (t PlanTier) Paid() bool {
	return t == TierGold || t == TierDiamond || t == TierBlack
}
