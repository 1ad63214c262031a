package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"signal-sentry/internal/storage"
	"signal-sentry/internal/strategy/database"
	"signal-sentry/internal/testutil"
	"signal-sentry/pkg/types"
)

const symbol = "BTC-USDT-SWAP"

func testConfig() types.StrategyConfig {
	return types.StrategyConfig{
		Name:         "scalping",
		Version:      "1.2",
		Symbols:      []string{symbol},
		Timeframe:    "1m",
		HistoryLimit: 100,
		Indicators: types.IndicatorConfig{
			EMAMicro:      3,
			EMAFast:       5,
			EMASlow:       8,
			EMATrendFast:  10,
			EMATrendSlow:  20,
			RSI:           5,
			StochK:        5,
			StochD:        3,
			ATR:           5,
			VolumeMA:      5,
			SupportWindow: 10,
			NearLevelPct:  0.3,
		},
		Signal: types.SignalConfig{
			RSIOversold:     35,
			RSIOverbought:   65,
			MinConfidence:   0.99, // 只保留急涨急跌提醒
			MaxConfidence:   0.95,
			MinVolumeRatio:  1.2,
			HistoryWindow:   10,
			CooldownMinutes: 5,
			RapidChangePct:  1.0,
		},
		Risk: types.RiskConfig{
			Mode:              "fixed",
			TargetPct:         0.3,
			StopPct:           0.15,
			HighVolATRPct:     2.0,
			HighVolStopMult:   1.5,
			HighVolMaxStopPct: 0.3,
			MinTargetPct:      0.25,
			MaxTargetPct:      2.0,
			MinStopPct:        0.15,
			MaxStopPct:        1.2,
		},
		Tracker: types.TrackerConfig{TimeoutHours: 1, UncheckedMaxAge: 2 * time.Hour},
		Trend: types.TrendConfig{
			HistorySize:      10,
			WinRateWindow:    20,
			BullishThreshold: 60,
			BearishThreshold: 40,
			FailureThreshold: 5,
		},
	}
}

type fakeSource struct {
	mu        sync.Mutex
	candles   []*types.KLine
	price     float64
	err       error
	tickerErr error
	limits    []int
}

func (f *fakeSource) Candles(_ context.Context, _, _ string, limit int) ([]*types.KLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	start := len(f.candles) - limit
	if start < 0 {
		start = 0
	}
	return f.candles[start:], nil
}

func (f *fakeSource) Ticker(_ context.Context, sym string) (*types.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.tickerErr != nil {
		return nil, f.tickerErr
	}
	return &types.Ticker{Symbol: sym, Price: f.price}, nil
}

type recordingNotifier struct {
	signals []*types.Signal
	events  []types.TrendEvent
}

func (n *recordingNotifier) SendSignal(_ context.Context, sig *types.Signal) error {
	n.signals = append(n.signals, sig)
	return nil
}

func (n *recordingNotifier) SendTrendEvent(_ context.Context, event types.TrendEvent) error {
	n.events = append(n.events, event)
	return nil
}

// flakyStore 可注入保存失败的存储
type flakyStore struct {
	*database.Manager
	saveErr error
}

func (s *flakyStore) SaveSignal(ctx context.Context, sig *types.Signal) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Manager.SaveSignal(ctx, sig)
}

type fixture struct {
	source   *fakeSource
	store    *flakyStore
	state    *storage.StateManager
	notifier *recordingNotifier
	pipeline *Pipeline
	now      time.Time
}

// newFixture 30根平盘K线预热，第31根急涨3%
func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	closes := append(testutil.Constant(30, 100), 103)
	candles := testutil.Candles(symbol, closes, 10)

	f := &fixture{
		source:   &fakeSource{candles: candles[:30], price: 103},
		store:    &flakyStore{Manager: db},
		state:    storage.NewStateManager(types.RedisConfig{}),
		notifier: &recordingNotifier{},
		now:      candles[30].OpenTime.Add(30 * time.Second),
	}
	f.pipeline = NewPipeline(PipelineOptions{
		Symbol:    symbol,
		Config:    testConfig(),
		Network:   types.NetworkConfig{Timeout: time.Second},
		SessionID: "session-1",
		Source:    f.source,
		Store:     f.store,
		State:     f.state,
		Notifier:  f.notifier,
		Now:       func() time.Time { return f.now },
	})

	require.NoError(t, f.pipeline.Bootstrap(context.Background()))
	f.source.candles = candles
	return f
}

func Test_Bootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, 30, f.pipeline.window.Len())
	assert.Equal(t, []int{100}, f.source.limits)

	archived, err := f.store.GetKLines(ctx, symbol, "1m", 100)
	require.NoError(t, err)
	assert.Len(t, archived, 30)

	t.Run("archive only when feed is down", func(t *testing.T) {
		p := NewPipeline(PipelineOptions{
			Symbol:  symbol,
			Config:  testConfig(),
			Source:  &fakeSource{err: types.ErrFeedUnavailable},
			Store:   f.store,
			State:   f.state,
			Network: types.NetworkConfig{Timeout: time.Second},
		})
		require.NoError(t, p.Bootstrap(ctx))
		assert.Equal(t, 30, p.window.Len())
	})

	t.Run("no data at all", func(t *testing.T) {
		p := NewPipeline(PipelineOptions{
			Symbol:  "ETH-USDT-SWAP",
			Config:  testConfig(),
			Source:  &fakeSource{err: types.ErrFeedUnavailable},
			Store:   f.store,
			Network: types.NetworkConfig{Timeout: time.Second},
		})
		err := p.Bootstrap(ctx)
		assert.ErrorIs(t, err, types.ErrFeedUnavailable)
	})
}

func Test_Step_EmitsAndResolves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.pipeline.Step(ctx)
	require.NoError(t, err)
	require.NotNil(t, report.Snapshot)
	assert.Equal(t, 103.0, report.Price)
	assert.Equal(t, 31, f.pipeline.window.Len())

	require.Len(t, report.Emitted, 1)
	sig := report.Emitted[0]
	assert.NotZero(t, sig.ID)
	assert.Equal(t, types.SignalRapidPriceChange, sig.SignalType)
	assert.Equal(t, types.DirectionNeutral, sig.Direction)
	assert.Equal(t, types.SeverityHigh, sig.Severity)
	assert.Equal(t, "session-1", sig.SessionID)
	assert.Equal(t, report.TradeGroupID, sig.TradeGroupID)
	assert.True(t, sig.Timestamp.Equal(f.now))

	// NEUTRAL信息类信号在同一tick的结算中完成
	require.Len(t, report.Resolved, 1)
	assert.Equal(t, sig.ID, report.Resolved[0].ID)
	assert.Equal(t, types.OutcomeNeutral, report.Resolved[0].Outcome)

	stored, err := f.store.GetSignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeNeutral, stored.Outcome)

	require.Len(t, f.notifier.signals, 1)
	assert.Equal(t, sig.ID, f.notifier.signals[0].ID)

	cooldowns, err := f.state.LoadCooldowns(ctx, f.pipeline.Name())
	require.NoError(t, err)
	assert.Contains(t, cooldowns, types.SignalRapidPriceChange)

	status, err := f.state.LoadTrendStatus(ctx, symbol, "1m")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, types.ModeBoth, status.PositionMode)

	t.Run("cooldown suppresses repeat", func(t *testing.T) {
		f.now = f.now.Add(time.Minute)
		report, err := f.pipeline.Step(ctx)
		require.NoError(t, err)
		assert.Empty(t, report.Emitted)
		require.Len(t, report.Skipped, 1)
		assert.Equal(t, types.SignalRapidPriceChange, report.Skipped[0].SignalType)
		assert.Len(t, f.notifier.signals, 1)
	})

	stats := f.pipeline.Stats()
	assert.Equal(t, int64(2), stats.Ticks)
	assert.Equal(t, int64(1), stats.Emitted)
	assert.Equal(t, int64(1), stats.Skipped)
	assert.Equal(t, int64(1), stats.Resolved)
}

func Test_Step_LogsResolutionOnce(t *testing.T) {
	f := newFixture(t)

	core, logs := observer.New(zap.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	report, err := f.pipeline.Step(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Resolved, 1)

	entries := logs.FilterMessage("🏁 信号已结算").All()
	require.Len(t, entries, 1)
	assert.Equal(t, string(types.OutcomeNeutral), entries[0].ContextMap()["outcome"])
}

func Test_Step_FeedUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	open := &types.Signal{
		Timestamp:       f.now.Add(-time.Minute),
		Symbol:          symbol,
		Timeframe:       "1m",
		StrategyName:    "scalping",
		SignalType:      types.SignalStrongBullish,
		Direction:       types.DirectionLong,
		Price:           100,
		EntryPrice:      100,
		SuggestedStop:   99,
		SuggestedTarget: 101,
	}
	require.NoError(t, f.store.SaveSignal(ctx, open))

	f.source.err = fmt.Errorf("%w: timeout", types.ErrFeedUnavailable)
	report, err := f.pipeline.Step(ctx)
	assert.ErrorIs(t, err, types.ErrFeedUnavailable)
	assert.Empty(t, report.Emitted)
	assert.Empty(t, report.Resolved)
	assert.Equal(t, 30, f.pipeline.window.Len())
	assert.Equal(t, int64(1), f.pipeline.Stats().Failures)

	stored, err := f.store.GetSignal(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomePending, stored.Outcome)
	assert.Equal(t, 100.0, stored.HighestPrice)
}

func Test_Step_TickerFallsBackToClose(t *testing.T) {
	f := newFixture(t)
	f.source.tickerErr = errors.New("ticker down")

	report, err := f.pipeline.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 103.0, report.Price)
}

func Test_Step_PersistFailureIsNotEmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.saveErr = errors.New("disk full")
	report, err := f.pipeline.Step(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Emitted)
	assert.Empty(t, f.notifier.signals)

	cooldowns, err := f.state.LoadCooldowns(ctx, f.pipeline.Name())
	require.NoError(t, err)
	assert.Empty(t, cooldowns)

	f.store.saveErr = nil
	f.now = f.now.Add(time.Second)
	report, err = f.pipeline.Step(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Emitted, 1)
}

func Test_Step_InsufficientData(t *testing.T) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	source := &fakeSource{candles: testutil.Candles(symbol, testutil.Linear(5, 100, 1), 10), price: 104}
	p := NewPipeline(PipelineOptions{Symbol: symbol, Config: testConfig(), Source: source, Store: db})

	report, err := p.Step(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report.Snapshot)
	assert.Empty(t, report.Emitted)
	assert.Equal(t, []int{100}, source.limits)
}

func Test_Merge(t *testing.T) {
	candles := testutil.Candles(symbol, []float64{100, 101, 102}, 10)
	p := NewPipeline(PipelineOptions{Symbol: symbol, Config: testConfig()})

	p.merge(candles[:2])
	assert.Equal(t, 2, p.window.Len())

	updated := *candles[1]
	updated.Close = 101.5
	p.merge([]*types.KLine{candles[0], &updated, candles[2]})

	window := p.window.Snapshot()
	require.Len(t, window, 3)
	assert.Equal(t, 101.5, window[1].Close)
	assert.Equal(t, 102.0, window[2].Close)
}

func Test_TrendSample(t *testing.T) {
	now := time.Now()
	ema50, ema200 := 101.0, 100.0

	assert.Nil(t, trendSample(nil, 100, now))
	assert.Nil(t, trendSample(&types.IndicatorSnapshot{EMA50: &ema50}, 100, now))

	sample := trendSample(&types.IndicatorSnapshot{EMA50: &ema50, EMA200: &ema200}, 102, now)
	require.NotNil(t, sample)
	assert.Equal(t, 101.0, sample.EMA50)
	assert.Equal(t, 100.0, sample.EMA200)
	assert.Equal(t, 102.0, sample.Price)
}

func Test_Engine(t *testing.T) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	config := testConfig()
	config.Symbols = []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP"}
	source := &fakeSource{candles: testutil.Candles(symbol, testutil.Constant(30, 100), 10), price: 100}

	e := NewEngine(config, types.NetworkConfig{Timeout: time.Second}, Dependencies{Source: source, Store: db})
	require.Len(t, e.Pipelines(), 2)
	assert.NotEmpty(t, e.SessionID())

	require.NoError(t, e.Bootstrap(context.Background()))
	stats := e.Stats()
	assert.Equal(t, 30, e.Pipelines()[0].window.Len())
	assert.Contains(t, stats, "ETH-USDT-SWAP:1m")
	assert.Len(t, e.TrendStatuses(), 2)
}
