package signals

import (
	"fmt"

	"signal-sentry/pkg/types"
)

// 条件组权重：强势动量 > 超买超卖 > 均线交叉
const (
	weightStrong    = 1.0
	weightExtreme   = 0.8
	weightCrossover = 0.6
)

// 条件阈值
const (
	strongSeparation   = 0.001
	stochOverbought    = 80.0
	stochOversold      = 20.0
	crossoverVolume    = 1.5
	rsiMomentumMidline = 50.0
)

// match 命中的条件组
type match struct {
	signalType string
	confidence float64
	weight     float64
	reason     string
}

// matchConditions 按优先级评估某方向的全部条件组
func (g *Generator) matchConditions(in Input, direction types.Direction) []match {
	switch direction {
	case types.DirectionLong:
		return g.longConditions(in)
	case types.DirectionShort:
		return g.shortConditions(in)
	default:
		return nil
	}
}

func (g *Generator) longConditions(in Input) []match {
	snap := in.Snapshot
	volumeOK := snap.VolumeRatio >= g.signalConfig.MinVolumeRatio
	var matches []match

	// 1. 强势多头动量
	separation := (snap.EMAMicro - snap.EMASlow) / snap.Price
	if snap.EMAMicro > snap.EMAFast && snap.EMAFast > snap.EMASlow &&
		separation > strongSeparation &&
		snap.StochK > snap.StochD && snap.StochK < stochOverbought &&
		volumeOK {
		confidence := 0.7
		if snap.RSI > rsiMomentumMidline && snap.RSI < g.signalConfig.RSIOverbought {
			confidence += 0.1
		}
		matches = append(matches, match{
			signalType: types.SignalStrongBullish,
			confidence: confidence,
			weight:     weightStrong,
			reason:     fmt.Sprintf("EMA多头排列(分离度%.3f%%) Stoch %.1f>%.1f 量比%.2f", separation*100, snap.StochK, snap.StochD, snap.VolumeRatio),
		})
	}

	// 2. 支撑位超卖反弹
	if snap.RSI < g.signalConfig.RSIOversold && in.PriceAction.NearSupport {
		confidence := 0.6
		if in.PriceAction.BullishPattern {
			confidence += 0.2
		}
		if volumeOK {
			confidence += 0.1
		}
		matches = append(matches, match{
			signalType: types.SignalRSIOversold,
			confidence: confidence,
			weight:     weightExtreme,
			reason:     fmt.Sprintf("RSI超卖%.1f 靠近支撑%s", snap.RSI, types.FormatPrice(in.PriceAction.Support)),
		})
	}

	// 3. 微观均线上穿
	if snap.EMAMicro > snap.EMAFast && snap.VolumeRatio > crossoverVolume {
		matches = append(matches, match{
			signalType: types.SignalEMABullishCross,
			confidence: 0.5,
			weight:     weightCrossover,
			reason:     fmt.Sprintf("EMA%d上穿EMA%d 量比%.2f", g.microPeriod, g.fastPeriod, snap.VolumeRatio),
		})
	}

	return matches
}

func (g *Generator) shortConditions(in Input) []match {
	snap := in.Snapshot
	volumeOK := snap.VolumeRatio >= g.signalConfig.MinVolumeRatio
	var matches []match

	// 1. 强势空头动量
	separation := (snap.EMASlow - snap.EMAMicro) / snap.Price
	if snap.EMAMicro < snap.EMAFast && snap.EMAFast < snap.EMASlow &&
		separation > strongSeparation &&
		snap.StochK < snap.StochD && snap.StochK > stochOversold &&
		volumeOK {
		confidence := 0.7
		if snap.RSI < rsiMomentumMidline && snap.RSI > g.signalConfig.RSIOversold {
			confidence += 0.1
		}
		matches = append(matches, match{
			signalType: types.SignalStrongBearish,
			confidence: confidence,
			weight:     weightStrong,
			reason:     fmt.Sprintf("EMA空头排列(分离度%.3f%%) Stoch %.1f<%.1f 量比%.2f", separation*100, snap.StochK, snap.StochD, snap.VolumeRatio),
		})
	}

	// 2. 阻力位超买回落
	if snap.RSI > g.signalConfig.RSIOverbought && in.PriceAction.NearResistance {
		confidence := 0.6
		if in.PriceAction.BearishPattern {
			confidence += 0.2
		}
		if volumeOK {
			confidence += 0.1
		}
		matches = append(matches, match{
			signalType: types.SignalRSIOverbought,
			confidence: confidence,
			weight:     weightExtreme,
			reason:     fmt.Sprintf("RSI超买%.1f 靠近阻力%s", snap.RSI, types.FormatPrice(in.PriceAction.Resistance)),
		})
	}

	// 3. 微观均线下穿
	if snap.EMAMicro < snap.EMAFast && snap.VolumeRatio > crossoverVolume {
		matches = append(matches, match{
			signalType: types.SignalEMABearishCross,
			confidence: 0.5,
			weight:     weightCrossover,
			reason:     fmt.Sprintf("EMA%d下穿EMA%d 量比%.2f", g.microPeriod, g.fastPeriod, snap.VolumeRatio),
		})
	}

	return matches
}

// weightedConfidence 命中条件组的加权平均置信度
func weightedConfidence(matches []match) float64 {
	var sum, weights float64
	for _, m := range matches {
		sum += m.confidence * m.weight
		weights += m.weight
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}
