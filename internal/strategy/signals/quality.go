package signals

import "signal-sentry/pkg/types"

// QualityInput 质量评分所需上下文
type QualityInput struct {
	Direction   types.Direction
	Snapshot    *types.IndicatorSnapshot
	PriceAction types.PriceAction
	Trend       types.TrendLabel
	HasConflict bool
}

// QualityScore 信号质量评分
func QualityScore(in QualityInput) int {
	score := 0
	snap := in.Snapshot

	if snap != nil {
		switch in.Direction {
		case types.DirectionLong:
			switch {
			case snap.RSI < 25:
				score += 3
			case snap.RSI < 30:
				score += 2
			case snap.RSI < 35:
				score++
			}
			if snap.EMAMicro > snap.EMAFast && snap.EMAFast > snap.EMASlow {
				score += 2
			}
			if in.PriceAction.NearSupport {
				score += 2
			}
		case types.DirectionShort:
			switch {
			case snap.RSI > 75:
				score += 3
			case snap.RSI > 70:
				score += 2
			case snap.RSI > 65:
				score++
			}
			if snap.EMAMicro < snap.EMAFast && snap.EMAFast < snap.EMASlow {
				score += 2
			}
			if in.PriceAction.NearResistance {
				score += 2
			}
		}

		if snap.ATR > 0 {
			score++
		}
	}

	switch {
	case in.Direction == types.DirectionLong && in.Trend == types.TrendBullish,
		in.Direction == types.DirectionShort && in.Trend == types.TrendBearish:
		score += 2
	case in.Direction == types.DirectionLong && in.Trend == types.TrendBearish,
		in.Direction == types.DirectionShort && in.Trend == types.TrendBullish:
		score--
	}

	if in.HasConflict {
		score -= 2
	} else {
		score++
	}

	return score
}

// QualityTier 评分分级
func QualityTier(score int) types.Quality {
	switch {
	case score >= 8:
		return types.QualityPerfect
	case score >= 5:
		return types.QualityHigh
	case score >= 2:
		return types.QualityMedium
	default:
		return types.QualityLow
	}
}
