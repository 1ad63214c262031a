package regime

import (
	"math"

	"signal-sentry/pkg/types"
)

// 市场状态判定阈值
const (
	trendingSeparation = 0.002 // EMA micro/slow 分离度（占价格比例）
	trendingROC5       = 0.3   // 百分比
	trendingVolume     = 1.0
	rangingSeparation  = 0.001
	rangingROC5        = 0.2
	rangingATRPct      = 1.5
	choppyATRPct       = 2.5
	choppyVolume       = 2.5
	choppyROC1         = 0.1
)

// Detector 价格行为与市场状态检测器
type Detector struct {
	supportWindow int
	nearLevelPct  float64
}

// NewDetector 创建检测器
func NewDetector(config types.IndicatorConfig) *Detector {
	return &Detector{
		supportWindow: config.SupportWindow,
		nearLevelPct:  config.NearLevelPct,
	}
}

// Analyze 计算支撑阻力与K线形态
func (d *Detector) Analyze(klines []*types.KLine, price float64) types.PriceAction {
	var pa types.PriceAction
	if len(klines) == 0 {
		return pa
	}

	start := len(klines) - d.supportWindow
	if start < 0 {
		start = 0
	}

	pa.Support = math.Inf(1)
	pa.Resistance = math.Inf(-1)
	for _, k := range klines[start:] {
		pa.Support = math.Min(pa.Support, k.Close)
		pa.Resistance = math.Max(pa.Resistance, k.Close)
	}

	band := d.nearLevelPct / 100
	if pa.Support > 0 {
		pa.NearSupport = math.Abs(price-pa.Support)/pa.Support <= band
	}
	if pa.Resistance > 0 {
		pa.NearResistance = math.Abs(pa.Resistance-price)/pa.Resistance <= band
	}

	if len(klines) >= 2 {
		last := klines[len(klines)-1]
		prev := klines[len(klines)-2]
		pa.BullishPattern = last.IsBullish() && prev.IsBullish() && last.Low > prev.Low
		pa.BearishPattern = last.IsBearish() && prev.IsBearish() && last.High < prev.High
	}

	return pa
}

// Classify 按 trending > ranging > choppy > neutral 的优先级判定市场状态
func (d *Detector) Classify(snap *types.IndicatorSnapshot) types.Regime {
	if snap == nil || snap.Price <= 0 {
		return types.RegimeNeutral
	}

	separation := math.Abs(snap.EMAMicro-snap.EMASlow) / snap.Price
	bullOrder := snap.EMAMicro > snap.EMAFast && snap.EMAFast > snap.EMASlow
	bearOrder := snap.EMAMicro < snap.EMAFast && snap.EMAFast < snap.EMASlow

	switch {
	case (bullOrder || bearOrder) &&
		separation > trendingSeparation &&
		math.Abs(snap.ROC5) > trendingROC5 &&
		snap.VolumeRatio > trendingVolume:
		return types.RegimeTrending
	case separation < rangingSeparation &&
		math.Abs(snap.ROC5) < rangingROC5 &&
		snap.ATRPct < rangingATRPct:
		return types.RegimeRanging
	case snap.ATRPct > choppyATRPct ||
		(snap.VolumeRatio > choppyVolume && math.Abs(snap.ROC1) < choppyROC1):
		return types.RegimeChoppy
	default:
		return types.RegimeNeutral
	}
}

// Multiplier 市场状态对置信度的修正系数
func Multiplier(r types.Regime) float64 {
	switch r {
	case types.RegimeChoppy:
		return 0.7
	case types.RegimeRanging:
		return 0.9
	default:
		return 1.0
	}
}

// TrendLabel 价格相对EMA50/EMA200的趋势标签，任一EMA缺失时为UNKNOWN
func TrendLabel(price float64, ema50, ema200 *float64) types.TrendLabel {
	if ema50 == nil || ema200 == nil {
		return types.TrendUnknown
	}

	switch {
	case price > *ema50 && price > *ema200:
		return types.TrendBullish
	case price < *ema50 && price < *ema200:
		return types.TrendBearish
	default:
		return types.TrendNeutral
	}
}
