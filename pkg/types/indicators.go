package types

import "time"

// ATRData ATR指标数据
type ATRData struct {
	Value   float64 `json:"value"`   // ATR值
	Percent float64 `json:"percent"` // ATR占价格百分比
	Slope   float64 `json:"slope"`   // ATR斜率
}

// IndicatorSnapshot 单次tick计算出的指标快照，计算后不再修改
type IndicatorSnapshot struct {
	Time        time.Time `json:"time"`
	Price       float64   `json:"price"`
	EMAMicro    float64   `json:"ema_micro"`
	EMAFast     float64   `json:"ema_fast"`
	EMASlow     float64   `json:"ema_slow"`
	EMA50       *float64  `json:"ema50,omitempty"`  // 数据不足时为nil
	EMA200      *float64  `json:"ema200,omitempty"` // 数据不足时为nil
	RSI         float64   `json:"rsi"`
	StochK      float64   `json:"stoch_k"`
	StochD      float64   `json:"stoch_d"`
	VolumeRatio float64   `json:"volume_ratio"`
	ATR         float64   `json:"atr"`
	ATRPct      float64   `json:"atr_pct"`   // 百分比
	ATRSlope    float64   `json:"atr_slope"` // 滚动ATR线性回归斜率，>0 波动扩张
	ROC1        float64   `json:"roc1"`      // 百分比
	ROC5        float64   `json:"roc5"`      // 百分比
}

// VolumeSpike 成交量是否放大超过2倍
func (s *IndicatorSnapshot) VolumeSpike() bool {
	return s.VolumeRatio > 2.0
}

// PriceAction 价格行为
type PriceAction struct {
	Support        float64 `json:"support"`
	Resistance     float64 `json:"resistance"`
	NearSupport    bool    `json:"near_support"`
	NearResistance bool    `json:"near_resistance"`
	BullishPattern bool    `json:"bullish_pattern"`
	BearishPattern bool    `json:"bearish_pattern"`
}

// Regime 市场状态
type Regime string

const (
	RegimeTrending Regime = "trending"
	RegimeRanging  Regime = "ranging"
	RegimeChoppy   Regime = "choppy"
	RegimeNeutral  Regime = "neutral"
)

// TrendLabel 价格相对EMA50/EMA200的趋势标签
type TrendLabel string

const (
	TrendBullish TrendLabel = "BULLISH"
	TrendBearish TrendLabel = "BEARISH"
	TrendNeutral TrendLabel = "NEUTRAL"
	TrendUnknown TrendLabel = "UNKNOWN"
)
