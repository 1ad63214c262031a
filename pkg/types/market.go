package types

import "time"

// KLine K线数据结构（通用市场数据）
type KLine struct {
	Symbol    string    `json:"symbol"`
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Interval  string    `json:"interval"` // 1m, 5m, 15m ...
}

// IsBullish 阳线
func (k *KLine) IsBullish() bool {
	return k.Close > k.Open
}

// IsBearish 阴线
func (k *KLine) IsBearish() bool {
	return k.Close < k.Open
}

// Ticker 最新成交价
type Ticker struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Scope 单条流水线的作用域：交易对 + 周期 + 策略
type Scope struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Strategy  string `json:"strategy"`
}

// String 用作日志与缓存键
func (s Scope) String() string {
	return s.Symbol + ":" + s.Timeframe
}
