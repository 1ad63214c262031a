package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"signal-sentry/pkg/types"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func Test_LoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "1m", cfg.Strategy.Timeframe)
	assert.Equal(t, []string{"BTC-USDT-SWAP"}, cfg.Strategy.Symbols)
	assert.Equal(t, 5, cfg.Strategy.Indicators.EMAMicro)
	assert.Equal(t, 200, cfg.Strategy.Indicators.EMATrendSlow)
	assert.Equal(t, 35.0, cfg.Strategy.Signal.RSIOversold)
	assert.Equal(t, 0.6, cfg.Strategy.Signal.MinConfidence)
	assert.Equal(t, 5, cfg.Strategy.Signal.CooldownMinutes)
	assert.Equal(t, time.Hour, cfg.Strategy.Tracker.Timeout())
	assert.Equal(t, 20, cfg.Strategy.Trend.WinRateWindow)
	assert.Equal(t, 10*time.Second, cfg.Network.Timeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func Test_LoadFrom_LocalFileWins(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "strategy:\n  timeframe: 15m\n")
	writeConfig(t, dir, "config.local.yaml", "strategy:\n  timeframe: 5m\n  symbols: [ETH-USDT-SWAP, SOL-USDT-SWAP]\n")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "5m", cfg.Strategy.Timeframe)
	assert.Equal(t, []string{"ETH-USDT-SWAP", "SOL-USDT-SWAP"}, cfg.Strategy.Symbols)
}

func Test_LoadFrom_EnvOverride(t *testing.T) {
	t.Setenv("SENTRY_STRATEGY_SIGNAL_COOLDOWN_MINUTES", "9")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Strategy.Signal.CooldownMinutes)
}

func Test_LoadFrom_InvalidConfigIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "strategy:\n  timeframe: 7m\n")

	_, err := LoadFrom(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "Timeframe")
}

func Test_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *types.Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(cfg *types.Config) {},
			wantErr: false,
		},
		{
			name:    "no symbols",
			mutate:  func(cfg *types.Config) { cfg.Strategy.Symbols = nil },
			wantErr: true,
		},
		{
			name:    "oversold above overbought",
			mutate:  func(cfg *types.Config) { cfg.Strategy.Signal.RSIOversold = 70 },
			wantErr: true,
		},
		{
			name:    "ema periods out of order",
			mutate:  func(cfg *types.Config) { cfg.Strategy.Indicators.EMAFast = 30 },
			wantErr: true,
		},
		{
			name:    "stop caps inverted",
			mutate:  func(cfg *types.Config) { cfg.Strategy.Risk.MaxStopPct = 0.1 },
			wantErr: true,
		},
		{
			name:    "bearish threshold above bullish",
			mutate:  func(cfg *types.Config) { cfg.Strategy.Trend.BearishThreshold = 70 },
			wantErr: true,
		},
		{
			name:    "unknown risk mode",
			mutate:  func(cfg *types.Config) { cfg.Strategy.Risk.Mode = "kelly" },
			wantErr: true,
		},
		{
			name: "mysql without host",
			mutate: func(cfg *types.Config) {
				cfg.Database.Driver = "mysql"
				cfg.Database.MySQL.Host = ""
			},
			wantErr: true,
		},
		{
			name: "trend ema longer than history window",
			mutate: func(cfg *types.Config) {
				cfg.Strategy.HistoryLimit = 150
				cfg.Strategy.Indicators.EMATrendSlow = 200
			},
			wantErr: true,
		},
		{
			name: "trend ema equal to history window",
			mutate: func(cfg *types.Config) {
				cfg.Strategy.HistoryLimit = 200
				cfg.Strategy.Indicators.EMATrendSlow = 200
			},
			wantErr: false,
		},
		{
			name:    "zero network timeout",
			mutate:  func(cfg *types.Config) { cfg.Network.Timeout = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
