package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"signal-sentry/pkg/types"
)

func Test_StateManager_MemoryCooldowns(t *testing.T) {
	sm := NewStateManager(types.RedisConfig{})
	assert.False(t, sm.UseRedis())

	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	stamps := map[string]time.Time{types.SignalRSIOversold: now}
	require.NoError(t, sm.SaveCooldowns(ctx, "BTC-USDT:1m", stamps))

	// 修改原map不影响已保存状态
	stamps[types.SignalRSIOversold] = now.Add(time.Hour)

	loaded, err := sm.LoadCooldowns(ctx, "BTC-USDT:1m")
	require.NoError(t, err)
	assert.True(t, loaded[types.SignalRSIOversold].Equal(now))

	empty, err := sm.LoadCooldowns(ctx, "ETH-USDT:1m")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func Test_StateManager_MemoryTrendStatus(t *testing.T) {
	sm := NewStateManager(types.RedisConfig{})
	ctx := context.Background()

	missing, err := sm.LoadTrendStatus(ctx, "BTC-USDT", "1m")
	require.NoError(t, err)
	assert.Nil(t, missing)

	status := &types.TrendStatus{
		Symbol:       "BTC-USDT",
		Timeframe:    "1m",
		CurrentTrend: types.TrendBullish,
		PositionMode: types.ModeLongOnly,
		WinRates:     map[types.Direction]float64{types.DirectionLong: 65},
	}
	require.NoError(t, sm.SaveTrendStatus(ctx, status))

	loaded, err := sm.LoadTrendStatus(ctx, "BTC-USDT", "1m")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, types.ModeLongOnly, loaded.PositionMode)
	assert.Equal(t, 65.0, loaded.WinRates[types.DirectionLong])

	stats := sm.GetStats(ctx)
	assert.Equal(t, false, stats["redis_enabled"])
	assert.Equal(t, 1, stats["memory_snapshots"])
	assert.NoError(t, sm.Close())
}
