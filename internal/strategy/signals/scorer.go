package signals

import (
	"math"

	"signal-sentry/pkg/types"
)

// 历史表现修正参数
const (
	goodWinRate        = 0.6
	poorWinRate        = 0.4
	goodWinRateBoost   = 1.2
	poorWinRatePenalty = 0.8
	lossStreakLimit    = 3
	lossStreakPenalty  = 0.7
)

// AdjustForHistory 根据同方向最近N笔已结算信号修正置信度，结果不超过maxConfidence
func AdjustForHistory(confidence float64, history types.DirectionHistory, window int, maxConfidence float64) float64 {
	outcomes := history.Outcomes
	if window > 0 && len(outcomes) > window {
		outcomes = outcomes[:window]
	}
	recent := types.DirectionHistory{Direction: history.Direction, Outcomes: outcomes}

	multiplier := 1.0
	if rate, ok := recent.WinRate(); ok {
		switch {
		case rate > goodWinRate:
			multiplier = goodWinRateBoost
		case rate < poorWinRate:
			multiplier = poorWinRatePenalty
		}
	}

	if recent.ConsecutiveLosses() >= lossStreakLimit {
		multiplier *= lossStreakPenalty
	}

	return math.Min(confidence*multiplier, maxConfidence)
}

// Levels 计算止损与止盈价位，dynamic表示使用了ATR动态距离
func Levels(risk types.RiskConfig, direction types.Direction, price float64, snap *types.IndicatorSnapshot) (stop, target float64, dynamic bool) {
	targetPct, stopPct := risk.TargetPct, risk.StopPct

	if risk.Mode == "atr" && snap != nil && snap.ATR > 0 && price > 0 {
		targetPct = clamp(snap.ATR*risk.ATRTargetMult/price*100, risk.MinTargetPct, risk.MaxTargetPct)
		stopPct = clamp(snap.ATR*risk.ATRStopMult/price*100, risk.MinStopPct, risk.MaxStopPct)
		dynamic = true
	} else if snap != nil && snap.ATRPct > risk.HighVolATRPct {
		// 高波动时放宽止损
		stopPct = math.Min(stopPct*risk.HighVolStopMult, risk.HighVolMaxStopPct)
	}

	switch direction {
	case types.DirectionLong:
		stop = price * (1 - stopPct/100)
		target = price * (1 + targetPct/100)
	case types.DirectionShort:
		stop = price * (1 + stopPct/100)
		target = price * (1 - targetPct/100)
	default:
		stop, target = price, price
	}

	return stop, target, dynamic
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
