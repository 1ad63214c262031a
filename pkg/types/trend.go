package types

import "time"

// PositionMode 允许的开仓方向
type PositionMode string

const (
	ModeLongOnly  PositionMode = "LONG_ONLY"
	ModeShortOnly PositionMode = "SHORT_ONLY"
	ModeBoth      PositionMode = "BOTH"
)

// ModeForTrend 趋势到开仓模式的映射
func ModeForTrend(trend TrendLabel) PositionMode {
	switch trend {
	case TrendBullish:
		return ModeLongOnly
	case TrendBearish:
		return ModeShortOnly
	default:
		return ModeBoth
	}
}

// TrendSample EMA历史样本
type TrendSample struct {
	EMA50     float64   `json:"ema50"`
	EMA200    float64   `json:"ema200"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// TrendEventKind 趋势事件类型
type TrendEventKind string

const (
	EventGoldenCross         TrendEventKind = "GOLDEN_CROSS"
	EventDeathCross          TrendEventKind = "DEATH_CROSS"
	EventWinRateReversal     TrendEventKind = "WIN_RATE_REVERSAL"
	EventLongFailureWarning  TrendEventKind = "LONG_FAILURE_WARNING"
	EventShortFailureWarning TrendEventKind = "SHORT_FAILURE_WARNING"
	EventModeChange          TrendEventKind = "MODE_CHANGE"
)

// TrendEvent 趋势管理器产生的事件
type TrendEvent struct {
	Kind      TrendEventKind `json:"kind"`
	Symbol    string         `json:"symbol"`
	Timeframe string         `json:"timeframe"`
	Trend     TrendLabel     `json:"trend,omitempty"`
	Mode      PositionMode   `json:"mode,omitempty"`
	Direction Direction      `json:"direction,omitempty"`
	Reason    string         `json:"reason"`
	LongRate  float64        `json:"long_rate,omitempty"`
	ShortRate float64        `json:"short_rate,omitempty"`
	Losses    int            `json:"losses,omitempty"`
	Close     []Direction    `json:"close,omitempty"` // 模式切换后应平仓的方向
	Sample    *TrendSample   `json:"sample,omitempty"`
	Time      time.Time      `json:"time"`
}

// TrendChange 开仓模式变更审计记录
type TrendChange struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	FromTrend TrendLabel   `json:"from_trend"`
	ToTrend   TrendLabel   `json:"to_trend"`
	FromMode  PositionMode `json:"from_mode"`
	ToMode    PositionMode `json:"to_mode"`
	Reason    string       `json:"reason"`
	EMA50     float64      `json:"ema50"`
	EMA200    float64      `json:"ema200"`
	Price     float64      `json:"price"`
	ChangedAt time.Time    `json:"changed_at"`
}

// EMAStatus 最新EMA样本状态
type EMAStatus struct {
	EMA50     float64   `json:"ema50"`
	EMA200    float64   `json:"ema200"`
	Price     float64   `json:"price"`
	Above     bool      `json:"ema50_above_ema200"`
	Timestamp time.Time `json:"timestamp"`
}

// TrendStatus 趋势管理器对外只读快照
type TrendStatus struct {
	Symbol              string                `json:"symbol"`
	Timeframe           string                `json:"timeframe"`
	CurrentTrend        TrendLabel            `json:"current_trend"`
	PositionMode        PositionMode          `json:"position_mode"`
	LastTrendChange     *time.Time            `json:"last_trend_change,omitempty"`
	WinRates            map[Direction]float64 `json:"win_rates"` // 百分比
	ConsecutiveFailures map[Direction]int     `json:"consecutive_failures"`
	EMAStatus           *EMAStatus            `json:"ema_status,omitempty"`
}
