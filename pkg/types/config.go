package types

import "time"

// Config 主配置结构
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	DingTalk  DingTalkConfig  `mapstructure:"dingtalk"`
	Network   NetworkConfig   `mapstructure:"network"`
	Database  DatabaseConfig  `mapstructure:"database"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"` // 日志级别
	FilePath   string `mapstructure:"file_path"`                                    // 日志输出路径名
	MaxSize    int    `mapstructure:"max_size" validate:"gte=0"`                    // 日志文件大小 单位：MB，超限后会自动切割
	MaxAge     int    `mapstructure:"max_age" validate:"gte=0"`                     // 日志文件存放时间 单位：天
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`                 // 日志文件备份数量
	Compress   bool   `mapstructure:"compress"`                                     // 日志文件压缩
}

// RedisConfig Redis配置
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// DingTalkConfig 钉钉配置
type DingTalkConfig struct {
	WebhookURL string `mapstructure:"webhook_url" validate:"omitempty,url"`
	Secret     string `mapstructure:"secret"`
}

// NetworkConfig 网络配置
type NetworkConfig struct {
	Proxy   string        `mapstructure:"proxy"`                           // HTTP代理地址，如 http://127.0.0.1:7890
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`         // 单次网络请求超时时间
	Retries int           `mapstructure:"retries" validate:"gte=1,lte=10"` // REST请求重试次数
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string       `mapstructure:"driver" validate:"oneof=mysql sqlite"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// MySQLConfig MySQL配置
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// SQLiteConfig SQLite配置，本地运行与测试使用
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	OKXEndpoint          string        `mapstructure:"okx_endpoint"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}

// MetricsConfig Prometheus指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// MonitorConfig 性能报告配置
type MonitorConfig struct {
	ReportInterval time.Duration `mapstructure:"report_interval" validate:"gt=0"`
	StatsHours     int           `mapstructure:"stats_hours" validate:"gt=0"`
}

// StrategyConfig 策略配置总入口
type StrategyConfig struct {
	Name         string          `mapstructure:"name" validate:"required"`
	Version      string          `mapstructure:"version" validate:"required"`
	Symbols      []string        `mapstructure:"symbols" validate:"required,min=1,dive,required"`
	Timeframe    string          `mapstructure:"timeframe" validate:"required,oneof=1m 3m 5m 15m 30m 1H 2H 4H 1D"`
	TickInterval time.Duration   `mapstructure:"tick_interval" validate:"gte=0"` // 0 表示按K线周期对齐
	HistoryLimit int             `mapstructure:"history_limit" validate:"gte=50,lte=300"`
	Indicators   IndicatorConfig `mapstructure:"indicators"`
	Signal       SignalConfig    `mapstructure:"signal"`
	Risk         RiskConfig      `mapstructure:"risk"`
	Tracker      TrackerConfig   `mapstructure:"tracker"`
	Trend        TrendConfig     `mapstructure:"trend"`
}

// IndicatorConfig 指标周期配置
type IndicatorConfig struct {
	EMAMicro      int     `mapstructure:"ema_micro" validate:"gte=2"`
	EMAFast       int     `mapstructure:"ema_fast" validate:"gtfield=EMAMicro"`
	EMASlow       int     `mapstructure:"ema_slow" validate:"gtfield=EMAFast"`
	EMATrendFast  int     `mapstructure:"ema_trend_fast" validate:"gte=2"`
	EMATrendSlow  int     `mapstructure:"ema_trend_slow" validate:"gtfield=EMATrendFast"`
	RSI           int     `mapstructure:"rsi" validate:"gte=2"`
	StochK        int     `mapstructure:"stoch_k" validate:"gte=2"`
	StochD        int     `mapstructure:"stoch_d" validate:"gte=1"`
	ATR           int     `mapstructure:"atr" validate:"gte=2"`
	VolumeMA      int     `mapstructure:"volume_ma" validate:"gte=2"`
	SupportWindow int     `mapstructure:"support_window" validate:"gte=2"`
	NearLevelPct  float64 `mapstructure:"near_level_pct" validate:"gt=0,lte=5"` // 百分比，0.3 = 0.3%
}

// SignalConfig 信号生成阈值
type SignalConfig struct {
	RSIOversold     float64 `mapstructure:"rsi_oversold" validate:"gt=0,lt=100"`
	RSIOverbought   float64 `mapstructure:"rsi_overbought" validate:"gtfield=RSIOversold,lt=100"`
	MinConfidence   float64 `mapstructure:"min_confidence" validate:"gte=0,lte=1"`
	MaxConfidence   float64 `mapstructure:"max_confidence" validate:"gtfield=MinConfidence,lte=1"`
	MinVolumeRatio  float64 `mapstructure:"min_volume_ratio" validate:"gt=0"`
	HistoryWindow   int     `mapstructure:"history_window" validate:"gte=1"`
	CooldownMinutes int     `mapstructure:"cooldown_minutes" validate:"gte=0"`
	RapidChangePct  float64 `mapstructure:"rapid_change_pct" validate:"gte=0"` // 0 表示关闭急涨急跌提醒
}

// RiskConfig 止盈止损配置，单位均为百分比
type RiskConfig struct {
	Mode              string  `mapstructure:"mode" validate:"oneof=fixed atr"`
	TargetPct         float64 `mapstructure:"target_pct" validate:"gt=0"`
	StopPct           float64 `mapstructure:"stop_pct" validate:"gt=0"`
	HighVolATRPct     float64 `mapstructure:"high_vol_atr_pct" validate:"gt=0"`
	HighVolStopMult   float64 `mapstructure:"high_vol_stop_mult" validate:"gte=1"`
	HighVolMaxStopPct float64 `mapstructure:"high_vol_max_stop_pct" validate:"gtefield=StopPct"`
	ATRTargetMult     float64 `mapstructure:"atr_target_mult" validate:"gt=0"`
	ATRStopMult       float64 `mapstructure:"atr_stop_mult" validate:"gt=0"`
	MinTargetPct      float64 `mapstructure:"min_target_pct" validate:"gt=0"`
	MaxTargetPct      float64 `mapstructure:"max_target_pct" validate:"gtfield=MinTargetPct"`
	MinStopPct        float64 `mapstructure:"min_stop_pct" validate:"gt=0"`
	MaxStopPct        float64 `mapstructure:"max_stop_pct" validate:"gtfield=MinStopPct"`
}

// TrackerConfig 结果追踪配置
type TrackerConfig struct {
	TimeoutHours    float64       `mapstructure:"timeout_hours" validate:"gt=0"`
	UncheckedMaxAge time.Duration `mapstructure:"unchecked_max_age" validate:"gt=0"`
}

// Timeout 信号超时时长
func (c TrackerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutHours * float64(time.Hour))
}

// TrendConfig 趋势管理配置
type TrendConfig struct {
	HistorySize      int     `mapstructure:"history_size" validate:"gte=2"`
	WinRateWindow    int     `mapstructure:"win_rate_window" validate:"gte=1"`
	BullishThreshold float64 `mapstructure:"bullish_threshold" validate:"gt=0,lte=100"`
	BearishThreshold float64 `mapstructure:"bearish_threshold" validate:"gte=0,ltfield=BullishThreshold"`
	FailureThreshold int     `mapstructure:"failure_threshold" validate:"gte=1"`
}
