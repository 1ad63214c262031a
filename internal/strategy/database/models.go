package database

import (
	"database/sql/driver"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"signal-sentry/pkg/types"
)

// StringList 以JSON文本存储的字符串列表
type StringList []string

// Value 实现 driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan 实现 sql.Scanner
func (l *StringList) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("无法解析标签列: %T", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// GormDataType 列类型
func (StringList) GormDataType() string {
	return "text"
}

// TradingSignal 交易信号表
type TradingSignal struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	SignalTime      time.Time  `gorm:"not null;index:idx_scope_time,priority:3" json:"timestamp"`
	SessionID       string     `gorm:"type:varchar(36);index" json:"session_id"`
	Symbol          string     `gorm:"type:varchar(32);not null;index:idx_scope_time,priority:1" json:"symbol"`
	Timeframe       string     `gorm:"type:varchar(8);not null;index:idx_scope_time,priority:2" json:"timeframe"`
	StrategyName    string     `gorm:"type:varchar(32);index" json:"strategy_name"`
	StrategyVersion string     `gorm:"type:varchar(16)" json:"strategy_version"`
	SignalType      string     `gorm:"type:varchar(32);not null" json:"signal_type"`
	Direction       string     `gorm:"type:varchar(8);not null" json:"direction"`
	Severity        string     `gorm:"type:varchar(8)" json:"severity"`
	Confidence      float64    `gorm:"type:decimal(5,4)" json:"confidence"`
	Price           float64    `gorm:"type:decimal(20,8);not null" json:"price"`
	EntryPrice      float64    `gorm:"type:decimal(20,8);not null" json:"entry_price"`
	SuggestedStop   float64    `gorm:"type:decimal(20,8);not null" json:"suggested_stop"`
	SuggestedTarget float64    `gorm:"type:decimal(20,8);not null" json:"suggested_target"`
	RSI             float64    `gorm:"type:decimal(10,4)" json:"rsi"`
	EMAFast         float64    `gorm:"type:decimal(20,8)" json:"ema_fast"`
	EMASlow         float64    `gorm:"type:decimal(20,8)" json:"ema_slow"`
	Support         float64    `gorm:"type:decimal(20,8)" json:"support"`
	Resistance      float64    `gorm:"type:decimal(20,8)" json:"resistance"`
	HasConflict     bool       `gorm:"default:false" json:"has_conflict"`
	Message         string     `gorm:"type:text" json:"message"`
	Notes           string     `gorm:"type:text" json:"notes"`
	ActualHigh      float64    `gorm:"type:decimal(20,8)" json:"actual_high"`
	ActualLow       float64    `gorm:"type:decimal(20,8)" json:"actual_low"`
	CheckedAt       *time.Time `gorm:"index" json:"checked_at"`
	Outcome         string     `gorm:"type:varchar(8);not null;default:'PENDING';index" json:"outcome"`
	TargetHit       bool       `gorm:"default:false" json:"target_hit"`
	StopHit         bool       `gorm:"default:false" json:"stop_hit"`
	MaxGainPct      float64    `gorm:"type:decimal(10,4)" json:"max_gain_pct"`
	MaxLossPct      float64    `gorm:"type:decimal(10,4)" json:"max_loss_pct"`
	FinalResult     string     `gorm:"type:varchar(8)" json:"final_result"`
	ExitReason      string     `gorm:"type:varchar(128)" json:"exit_reason"`
	StrategyProfit  float64    `gorm:"type:decimal(10,4)" json:"strategy_profit"`
	SignalQuality   string     `gorm:"type:varchar(8)" json:"signal_quality"`
	TradeGroupID    string     `gorm:"type:varchar(36);index" json:"trade_group_id"`
	EntryReason     string     `gorm:"type:text" json:"entry_reason"`
	Tags            StringList `json:"tags"`
	MarketCondition string     `gorm:"type:varchar(8)" json:"market_condition"`
	CreatedAt       time.Time  `json:"created_at"`
}

// TrendChange 开仓模式变更审计表
type TrendChange struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"type:varchar(32);not null;index:idx_trend_scope" json:"symbol"`
	Timeframe string    `gorm:"type:varchar(8);not null;index:idx_trend_scope" json:"timeframe"`
	FromTrend string    `gorm:"type:varchar(8)" json:"from_trend"`
	ToTrend   string    `gorm:"type:varchar(8)" json:"to_trend"`
	FromMode  string    `gorm:"type:varchar(16)" json:"from_mode"`
	ToMode    string    `gorm:"type:varchar(16)" json:"to_mode"`
	Reason    string    `gorm:"type:varchar(255)" json:"reason"`
	EMA50     float64   `gorm:"column:ema50;type:decimal(20,8)" json:"ema50"`
	EMA200    float64   `gorm:"column:ema200;type:decimal(20,8)" json:"ema200"`
	Price     float64   `gorm:"type:decimal(20,8)" json:"price"`
	ChangedAt time.Time `gorm:"not null;index" json:"changed_at"`
}

// PerformanceStats 统计快照表
type PerformanceStats struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	CalculatedAt       time.Time `gorm:"not null;index" json:"calculated_at"`
	Symbol             string    `gorm:"type:varchar(32)" json:"symbol"`
	Timeframe          string    `gorm:"type:varchar(8)" json:"timeframe"`
	TotalSignals       int       `json:"total_signals"`
	CheckedSignals     int       `json:"checked_signals"`
	Wins               int       `json:"wins"`
	Losses             int       `json:"losses"`
	Pending            int       `json:"pending"`
	WinRate            float64   `gorm:"type:decimal(10,4)" json:"win_rate"`
	AvgGain            float64   `gorm:"type:decimal(10,4)" json:"avg_gain"`
	AvgLoss            float64   `gorm:"type:decimal(10,4)" json:"avg_loss"`
	ProfitFactor       float64   `gorm:"type:decimal(10,4)" json:"profit_factor"`
	BestSignalType     string    `gorm:"type:varchar(32)" json:"best_signal_type"`
	WorstSignalType    string    `gorm:"type:varchar(32)" json:"worst_signal_type"`
	ConflictingSignals int       `json:"conflicting_signals"`
	JSONData           string    `gorm:"type:text" json:"json_data"`
}

// KLine K线归档表
type KLine struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"type:varchar(32);not null;uniqueIndex:uk_kline,priority:1" json:"symbol"`
	Timeframe string    `gorm:"type:varchar(8);not null;uniqueIndex:uk_kline,priority:2" json:"timeframe"`
	OpenTime  int64     `gorm:"not null;uniqueIndex:uk_kline,priority:3" json:"open_time"`
	CloseTime int64     `gorm:"not null" json:"close_time"`
	Open      float64   `gorm:"type:decimal(20,8);not null" json:"open"`
	High      float64   `gorm:"type:decimal(20,8);not null" json:"high"`
	Low       float64   `gorm:"type:decimal(20,8);not null" json:"low"`
	Close     float64   `gorm:"type:decimal(20,8);not null" json:"close"`
	Volume    float64   `gorm:"type:decimal(28,8);not null" json:"volume"`
	CreatedAt time.Time `json:"created_at"`
}

func toSignalModel(sig *types.Signal) *TradingSignal {
	var checkedAt *time.Time
	if sig.CheckedAt != nil {
		t := sig.CheckedAt.UTC()
		checkedAt = &t
	}
	return &TradingSignal{
		ID:              sig.ID,
		SignalTime:      sig.Timestamp.UTC(),
		SessionID:       sig.SessionID,
		Symbol:          sig.Symbol,
		Timeframe:       sig.Timeframe,
		StrategyName:    sig.StrategyName,
		StrategyVersion: sig.StrategyVersion,
		SignalType:      sig.SignalType,
		Direction:       string(sig.Direction),
		Severity:        string(sig.Severity),
		Confidence:      sig.Confidence,
		Price:           sig.Price,
		EntryPrice:      sig.EntryPrice,
		SuggestedStop:   sig.SuggestedStop,
		SuggestedTarget: sig.SuggestedTarget,
		RSI:             sig.RSI,
		EMAFast:         sig.EMAFast,
		EMASlow:         sig.EMASlow,
		Support:         sig.Support,
		Resistance:      sig.Resistance,
		HasConflict:     sig.HasConflict,
		Message:         sig.Message,
		Notes:           sig.Notes,
		ActualHigh:      sig.HighestPrice,
		ActualLow:       sig.LowestPrice,
		CheckedAt:       checkedAt,
		Outcome:         string(sig.Outcome),
		TargetHit:       sig.TargetHit,
		StopHit:         sig.StopHit,
		MaxGainPct:      sig.MaxGainPct,
		MaxLossPct:      sig.MaxLossPct,
		FinalResult:     sig.FinalResult,
		ExitReason:      sig.ExitReason,
		StrategyProfit:  sig.StrategyProfit,
		SignalQuality:   string(sig.SignalQuality),
		TradeGroupID:    sig.TradeGroupID,
		EntryReason:     sig.EntryReason,
		Tags:            StringList(sig.Tags),
		MarketCondition: string(sig.MarketCondition),
	}
}

func (m *TradingSignal) toSignal() *types.Signal {
	return &types.Signal{
		ID:              m.ID,
		Timestamp:       m.SignalTime,
		SessionID:       m.SessionID,
		Symbol:          m.Symbol,
		SignalType:      m.SignalType,
		Direction:       types.Direction(m.Direction),
		Severity:        types.Severity(m.Severity),
		Confidence:      m.Confidence,
		Price:           m.Price,
		EntryPrice:      m.EntryPrice,
		SuggestedStop:   m.SuggestedStop,
		SuggestedTarget: m.SuggestedTarget,
		RSI:             m.RSI,
		EMAFast:         m.EMAFast,
		EMASlow:         m.EMASlow,
		Support:         m.Support,
		Resistance:      m.Resistance,
		HasConflict:     m.HasConflict,
		Message:         m.Message,
		Notes:           m.Notes,
		HighestPrice:    m.ActualHigh,
		LowestPrice:     m.ActualLow,
		CheckedAt:       m.CheckedAt,
		Outcome:         types.Outcome(m.Outcome),
		TargetHit:       m.TargetHit,
		StopHit:         m.StopHit,
		MaxGainPct:      m.MaxGainPct,
		MaxLossPct:      m.MaxLossPct,
		FinalResult:     m.FinalResult,
		ExitReason:      m.ExitReason,
		StrategyProfit:  m.StrategyProfit,
		StrategyName:    m.StrategyName,
		StrategyVersion: m.StrategyVersion,
		Timeframe:       m.Timeframe,
		SignalQuality:   types.Quality(m.SignalQuality),
		TradeGroupID:    m.TradeGroupID,
		EntryReason:     m.EntryReason,
		Tags:            []string(m.Tags),
		MarketCondition: types.TrendLabel(m.MarketCondition),
	}
}

func toSignals(rows []TradingSignal) []*types.Signal {
	signals := make([]*types.Signal, 0, len(rows))
	for i := range rows {
		signals = append(signals, rows[i].toSignal())
	}
	return signals
}
