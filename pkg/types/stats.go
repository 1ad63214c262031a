package types

import "time"

// StatsFilter 统计查询条件，空字段表示不过滤
type StatsFilter struct {
	Symbol    string
	Timeframe string
	Strategy  string
	Since     time.Time
}

// SignalTypeStats 按信号类型统计
type SignalTypeStats struct {
	SignalType string  `json:"signal_type"`
	Total      int     `json:"total"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	WinRate    float64 `json:"win_rate"` // 百分比
	AvgProfit  float64 `json:"avg_profit"`
}

// PerformanceReport 整体表现统计
type PerformanceReport struct {
	GeneratedAt  time.Time                   `json:"generated_at"`
	Total        int                         `json:"total"`
	Wins         int                         `json:"wins"`
	Losses       int                         `json:"losses"`
	Timeouts     int                         `json:"timeouts"`
	Neutral      int                         `json:"neutral"`
	Pending      int                         `json:"pending"`
	WinRate      float64                     `json:"win_rate"` // 百分比，仅计WIN/LOSS
	AvgProfit    float64                     `json:"avg_profit"`
	TotalProfit  float64                     `json:"total_profit"`
	ProfitFactor float64                     `json:"profit_factor"`
	BySignalType map[string]*SignalTypeStats `json:"by_signal_type"`
	Best         *Signal                     `json:"best,omitempty"`
	Worst        *Signal                     `json:"worst,omitempty"`
}

// StrategyBreakdown 按策略/质量/市场状态分组统计
type StrategyBreakdown struct {
	StrategyName    string  `json:"strategy_name"`
	SignalQuality   string  `json:"signal_quality"`
	MarketCondition string  `json:"market_condition"`
	Total           int     `json:"total"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	WinRate         float64 `json:"win_rate"`
	AvgProfit       float64 `json:"avg_profit"`
}
