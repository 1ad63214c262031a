package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"signal-sentry/pkg/types"
)

// EnvPrefix 环境变量前缀，如 SENTRY_STRATEGY_TIMEFRAME
const EnvPrefix = "SENTRY"

// Load 从 ./configs 或当前目录加载配置
func Load() (*types.Config, error) {
	return LoadFrom("./configs", ".")
}

// LoadFrom 从指定目录加载配置，优先 config.local 再 config
func LoadFrom(paths ...string) (*types.Config, error) {
	// .env 可选，不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// 设置默认值
	setDefaults(v)

	// 读取环境变量
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 优先尝试读取本地配置文件
	v.SetConfigName("config.local")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 如果本地配置文件不存在，尝试读取默认配置文件
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil {
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 启动时一次性校验配置，失败时返回 types.ErrInvalidConfig
func Validate(cfg *types.Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s(%s=%s)", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%w: %s", types.ErrInvalidConfig, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}

	if cfg.Database.Driver == "mysql" && (cfg.Database.MySQL.Host == "" || cfg.Database.MySQL.Database == "") {
		return fmt.Errorf("%w: database.mysql.host 和 database.mysql.database 不能为空", types.ErrInvalidConfig)
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.SQLite.Path == "" {
		return fmt.Errorf("%w: database.sqlite.path 不能为空", types.ErrInvalidConfig)
	}
	// 价格窗口装不下长周期EMA时趋势样本永远不会产生
	if ind := cfg.Strategy.Indicators; ind.EMATrendSlow > cfg.Strategy.HistoryLimit {
		return fmt.Errorf("%w: strategy.indicators.ema_trend_slow(%d) 不能大于 strategy.history_limit(%d)",
			types.ErrInvalidConfig, ind.EMATrendSlow, cfg.Strategy.HistoryLimit)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("%w: metrics.addr 不能为空", types.ErrInvalidConfig)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "logs")
	v.SetDefault("log.max_size", 200)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.compress", false)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("dingtalk.webhook_url", "")
	v.SetDefault("dingtalk.secret", "")

	v.SetDefault("network.proxy", "")
	v.SetDefault("network.timeout", 10*time.Second)
	v.SetDefault("network.retries", 3)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", "signal-sentry.db")
	v.SetDefault("database.mysql.host", "127.0.0.1")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.username", "root")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "signal_sentry")
	v.SetDefault("database.mysql.max_idle_conns", 10)
	v.SetDefault("database.mysql.max_open_conns", 50)

	v.SetDefault("websocket.enabled", false)
	v.SetDefault("websocket.okx_endpoint", "wss://ws.okx.com:8443/ws/v5/business")
	v.SetDefault("websocket.reconnect_interval", 5*time.Second)
	v.SetDefault("websocket.ping_interval", 20*time.Second)
	v.SetDefault("websocket.max_reconnect_attempts", 10)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("monitor.report_interval", 5*time.Minute)
	v.SetDefault("monitor.stats_hours", 24)

	v.SetDefault("strategy.name", "scalping")
	v.SetDefault("strategy.version", "1.2")
	v.SetDefault("strategy.symbols", []string{"BTC-USDT-SWAP"})
	v.SetDefault("strategy.timeframe", "1m")
	v.SetDefault("strategy.tick_interval", 0)
	v.SetDefault("strategy.history_limit", 300)

	v.SetDefault("strategy.indicators.ema_micro", 5)
	v.SetDefault("strategy.indicators.ema_fast", 8)
	v.SetDefault("strategy.indicators.ema_slow", 21)
	v.SetDefault("strategy.indicators.ema_trend_fast", 50)
	v.SetDefault("strategy.indicators.ema_trend_slow", 200)
	v.SetDefault("strategy.indicators.rsi", 14)
	v.SetDefault("strategy.indicators.stoch_k", 14)
	v.SetDefault("strategy.indicators.stoch_d", 3)
	v.SetDefault("strategy.indicators.atr", 14)
	v.SetDefault("strategy.indicators.volume_ma", 20)
	v.SetDefault("strategy.indicators.support_window", 20)
	v.SetDefault("strategy.indicators.near_level_pct", 0.3)

	v.SetDefault("strategy.signal.rsi_oversold", 35.0)
	v.SetDefault("strategy.signal.rsi_overbought", 65.0)
	v.SetDefault("strategy.signal.min_confidence", 0.6)
	v.SetDefault("strategy.signal.max_confidence", 0.95)
	v.SetDefault("strategy.signal.min_volume_ratio", 1.2)
	v.SetDefault("strategy.signal.history_window", 10)
	v.SetDefault("strategy.signal.cooldown_minutes", 5)
	v.SetDefault("strategy.signal.rapid_change_pct", 1.0)

	v.SetDefault("strategy.risk.mode", "atr")
	v.SetDefault("strategy.risk.target_pct", 0.3)
	v.SetDefault("strategy.risk.stop_pct", 0.15)
	v.SetDefault("strategy.risk.high_vol_atr_pct", 2.0)
	v.SetDefault("strategy.risk.high_vol_stop_mult", 1.5)
	v.SetDefault("strategy.risk.high_vol_max_stop_pct", 0.3)
	v.SetDefault("strategy.risk.atr_target_mult", 1.5)
	v.SetDefault("strategy.risk.atr_stop_mult", 0.75)
	v.SetDefault("strategy.risk.min_target_pct", 0.25)
	v.SetDefault("strategy.risk.max_target_pct", 2.0)
	v.SetDefault("strategy.risk.min_stop_pct", 0.15)
	v.SetDefault("strategy.risk.max_stop_pct", 1.2)

	v.SetDefault("strategy.tracker.timeout_hours", 1.0)
	v.SetDefault("strategy.tracker.unchecked_max_age", 2*time.Hour)

	v.SetDefault("strategy.trend.history_size", 10)
	v.SetDefault("strategy.trend.win_rate_window", 20)
	v.SetDefault("strategy.trend.bullish_threshold", 60.0)
	v.SetDefault("strategy.trend.bearish_threshold", 40.0)
	v.SetDefault("strategy.trend.failure_threshold", 5)
}

// Defaults 返回全部默认值组成的配置，便于测试与工具使用
func Defaults() *types.Config {
	v := viper.New()
	setDefaults(v)
	var cfg types.Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
