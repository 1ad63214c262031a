package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"signal-sentry/internal/strategy/database"
	"signal-sentry/internal/strategy/engine"
	"signal-sentry/pkg/types"
)

type staticSource struct{}

func (staticSource) Stats() map[string]engine.PipelineStats {
	return map[string]engine.PipelineStats{"BTC-USDT-SWAP:1m": {Ticks: 3}}
}

func (staticSource) TrendStatuses() []types.TrendStatus {
	return []types.TrendStatus{{Symbol: "BTC-USDT-SWAP", Timeframe: "1m", CurrentTrend: types.TrendBullish, PositionMode: types.ModeLongOnly}}
}

func saveResolved(t *testing.T, db *database.Manager, outcome types.Outcome, profit float64, ts time.Time) {
	t.Helper()
	ctx := context.Background()

	sig := &types.Signal{
		Timestamp:       ts,
		Symbol:          "BTC-USDT-SWAP",
		Timeframe:       "1m",
		StrategyName:    "scalping",
		SignalType:      types.SignalStrongBullish,
		Direction:       types.DirectionLong,
		Price:           100,
		EntryPrice:      100,
		SuggestedStop:   99,
		SuggestedTarget: 102,
		SignalQuality:   types.QualityHigh,
		MarketCondition: types.TrendBullish,
	}
	require.NoError(t, db.SaveSignal(ctx, sig))
	if outcome == types.OutcomePending {
		return
	}

	checked := ts.Add(10 * time.Minute)
	sig.Outcome = outcome
	sig.StrategyProfit = profit
	sig.FinalResult = string(outcome)
	sig.CheckedAt = &checked
	require.NoError(t, db.UpdateSignalTracking(ctx, sig))
}

func Test_GenerateReport(t *testing.T) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	now := time.Now().UTC()
	saveResolved(t, db, types.OutcomeWin, 2, now.Add(-2*time.Hour))
	saveResolved(t, db, types.OutcomeWin, 1, now.Add(-90*time.Minute))
	saveResolved(t, db, types.OutcomeLoss, -1, now.Add(-time.Hour))
	saveResolved(t, db, types.OutcomePending, 0, now.Add(-10*time.Minute))
	saveResolved(t, db, types.OutcomeWin, 5, now.Add(-48*time.Hour))

	pm := NewPerformanceMonitor(db, staticSource{},
		types.MonitorConfig{ReportInterval: time.Minute, StatsHours: 24},
		types.StrategyConfig{Name: "scalping", Tracker: types.TrackerConfig{UncheckedMaxAge: 2 * time.Hour}})

	report, err := pm.GenerateReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 2, report.Wins)
	assert.Equal(t, 1, report.Losses)
	assert.Equal(t, 1, report.Pending)
	assert.InDelta(t, 200.0/3, report.WinRate, 1e-9)
	assert.InDelta(t, 3.0, report.ProfitFactor, 1e-9)
	assert.Same(t, report, pm.LastReport())

	require.Len(t, pm.recent, recentLimit)
	assert.Equal(t, types.OutcomePending, pm.recent[0].Outcome)

	text := FormatReport(report, pm.breakdowns, pm.recent, staticSource{}.TrendStatuses(), time.Minute)
	assert.Contains(t, text, "胜率: 66.67%")
	assert.Contains(t, text, "盈亏比: 3.00")
	assert.Contains(t, text, types.SignalStrongBullish)
	assert.Contains(t, text, "scalping/HIGH/BULLISH")
	assert.Contains(t, text, "模式 LONG_ONLY")
	assert.Contains(t, text, "BTC-USDT-SWAP "+types.SignalStrongBullish+" LONG @ 100 → PENDING")
}

func Test_FormatReport_Empty(t *testing.T) {
	text := FormatReport(nil, nil, nil, nil, 90*time.Second)
	assert.Contains(t, text, "暂无统计数据")
	assert.Contains(t, text, "1m30s")
}

func Test_Monitor_StartStop(t *testing.T) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pm := NewPerformanceMonitor(db, nil,
		types.MonitorConfig{ReportInterval: 10 * time.Millisecond, StatsHours: 1},
		types.StrategyConfig{Name: "scalping", Tracker: types.TrackerConfig{UncheckedMaxAge: time.Hour}})
	pm.Start()

	require.Eventually(t, func() bool { return pm.LastReport() != nil }, time.Second, 10*time.Millisecond)
	pm.Stop()
}
