package types

import "time"

// Direction 信号方向
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// Opposite 反方向，NEUTRAL返回自身
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionLong:
		return DirectionShort
	case DirectionShort:
		return DirectionLong
	default:
		return d
	}
}

// Outcome 信号结果
type Outcome string

const (
	OutcomePending Outcome = "PENDING"
	OutcomeWin     Outcome = "WIN"
	OutcomeLoss    Outcome = "LOSS"
	OutcomeTimeout Outcome = "TIMEOUT"
	OutcomeNeutral Outcome = "NEUTRAL"
)

// IsTerminal 是否为终态
func (o Outcome) IsTerminal() bool {
	return o != OutcomePending && o != ""
}

// Severity 信号级别
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
)

// Quality 信号质量分级
type Quality string

const (
	QualityPerfect Quality = "PERFECT"
	QualityHigh    Quality = "HIGH"
	QualityMedium  Quality = "MEDIUM"
	QualityLow     Quality = "LOW"
)

// 信号类型
const (
	SignalStrongBullish    = "STRONG_BULLISH_MOMENTUM"
	SignalRSIOversold      = "RSI_OVERSOLD"
	SignalEMABullishCross  = "EMA_BULLISH_CROSS"
	SignalStrongBearish    = "STRONG_BEARISH_MOMENTUM"
	SignalRSIOverbought    = "RSI_OVERBOUGHT"
	SignalEMABearishCross  = "EMA_BEARISH_CROSS"
	SignalRapidPriceChange = "RAPID_PRICE_CHANGE"
)

// 标签
const (
	TagATRDynamic   = "ATR_DYNAMIC"
	TagFixedTargets = "FIXED_TARGETS"
	TagConflicted   = "CONFLICTED"
)

// StopAssumedFirst 止盈止损同时触发时的退出原因
const StopAssumedFirst = "Stop loss hit (both targets reached, stop assumed first)"

// Signal 交易信号，创建后以PENDING状态入库，由结果追踪器推进到终态
type Signal struct {
	ID        uint      `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`

	Symbol     string    `json:"symbol"`
	SignalType string    `json:"signal_type"`
	Direction  Direction `json:"direction"`
	Severity   Severity  `json:"severity"`
	Confidence float64   `json:"confidence"`

	Price           float64 `json:"price"`
	EntryPrice      float64 `json:"entry_price"`
	SuggestedStop   float64 `json:"suggested_stop"`
	SuggestedTarget float64 `json:"suggested_target"`

	RSI         float64 `json:"rsi"`
	EMAFast     float64 `json:"ema_fast"`
	EMASlow     float64 `json:"ema_slow"`
	Support     float64 `json:"support"`
	Resistance  float64 `json:"resistance"`
	HasConflict bool    `json:"has_conflict"`
	Message     string  `json:"message"`
	Notes       string  `json:"notes"`

	// 追踪状态
	HighestPrice float64    `json:"actual_high"`
	LowestPrice  float64    `json:"actual_low"`
	CheckedAt    *time.Time `json:"checked_at,omitempty"`

	// 结果
	Outcome        Outcome `json:"outcome"`
	TargetHit      bool    `json:"target_hit"`
	StopHit        bool    `json:"stop_hit"`
	MaxGainPct     float64 `json:"max_gain_pct"`
	MaxLossPct     float64 `json:"max_loss_pct"`
	FinalResult    string  `json:"final_result"`
	ExitReason     string  `json:"exit_reason"`
	StrategyProfit float64 `json:"strategy_profit"`

	// 标注信息
	StrategyName    string     `json:"strategy_name"`
	StrategyVersion string     `json:"strategy_version"`
	Timeframe       string     `json:"timeframe"`
	SignalQuality   Quality    `json:"signal_quality"`
	TradeGroupID    string     `json:"trade_group_id"`
	EntryReason     string     `json:"entry_reason"`
	Tags            []string   `json:"tags"`
	MarketCondition TrendLabel `json:"market_condition"`
}

// Age 信号存活时长
func (s *Signal) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}

// DirectionHistory 某方向最近已结算信号结果，按时间倒序
type DirectionHistory struct {
	Direction Direction `json:"direction"`
	Outcomes  []Outcome `json:"outcomes"`
}

// WinRate 胜率(0-1)，没有记录时返回ok=false
func (h DirectionHistory) WinRate() (rate float64, ok bool) {
	wins, total := 0, 0
	for _, o := range h.Outcomes {
		switch o {
		case OutcomeWin:
			wins++
			total++
		case OutcomeLoss:
			total++
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(wins) / float64(total), true
}

// ConsecutiveLosses 从最近一条开始连续亏损次数
func (h DirectionHistory) ConsecutiveLosses() int {
	count := 0
	for _, o := range h.Outcomes {
		if o != OutcomeLoss {
			break
		}
		count++
	}
	return count
}
