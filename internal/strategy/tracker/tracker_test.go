package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"signal-sentry/internal/strategy/database"
	"signal-sentry/pkg/types"
)

var (
	t0    = time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	scope = types.Scope{Symbol: "BTC-USDT-SWAP", Timeframe: "1m", Strategy: "scalping"}
)

func longSignal() *types.Signal {
	return &types.Signal{
		Timestamp:       t0,
		Symbol:          scope.Symbol,
		Timeframe:       scope.Timeframe,
		StrategyName:    scope.Strategy,
		SignalType:      types.SignalStrongBullish,
		Direction:       types.DirectionLong,
		Price:           100,
		EntryPrice:      100,
		SuggestedStop:   99,
		SuggestedTarget: 102,
		HighestPrice:    100,
		LowestPrice:     100,
		Outcome:         types.OutcomePending,
	}
}

func shortSignal() *types.Signal {
	sig := longSignal()
	sig.SignalType = types.SignalStrongBearish
	sig.Direction = types.DirectionShort
	sig.SuggestedStop = 101
	sig.SuggestedTarget = 99
	return sig
}

func candle(openTime time.Time, high, low float64) *types.KLine {
	return &types.KLine{
		Symbol:    scope.Symbol,
		OpenTime:  openTime,
		CloseTime: openTime.Add(time.Minute),
		Open:      (high + low) / 2,
		High:      high,
		Low:       low,
		Close:     (high + low) / 2,
		Interval:  "1m",
	}
}

func Test_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		signal    func() *types.Signal
		obs       Observation
		age       time.Duration
		terminal  bool
		outcome   types.Outcome
		profit    float64
		reason    string
		targetHit bool
		stopHit   bool
	}{
		{
			name:      "long target hit",
			signal:    longSignal,
			obs:       Observation{High: 102.5, Low: 99.6},
			age:       10 * time.Minute,
			terminal:  true,
			outcome:   types.OutcomeWin,
			profit:    2.5,
			reason:    ReasonTargetHit,
			targetHit: true,
		},
		{
			name:      "long gap through both levels assumes stop first",
			signal:    longSignal,
			obs:       Observation{High: 103, Low: 98},
			age:       time.Minute,
			terminal:  true,
			outcome:   types.OutcomeLoss,
			profit:    -2,
			reason:    types.StopAssumedFirst,
			targetHit: true,
			stopHit:   true,
		},
		{
			name:     "long stop hit",
			signal:   longSignal,
			obs:      Observation{High: 100.5, Low: 98.5},
			age:      time.Minute,
			terminal: true,
			outcome:  types.OutcomeLoss,
			profit:   -1.5,
			reason:   ReasonStopHit,
			stopHit:  true,
		},
		{
			name:      "short target hit",
			signal:    shortSignal,
			obs:       Observation{High: 100.2, Low: 98.8},
			age:       time.Minute,
			terminal:  true,
			outcome:   types.OutcomeWin,
			profit:    1.2,
			reason:    ReasonTargetHit,
			targetHit: true,
		},
		{
			name:     "short stop hit",
			signal:   shortSignal,
			obs:      Observation{High: 101.5, Low: 99.5},
			age:      time.Minute,
			terminal: true,
			outcome:  types.OutcomeLoss,
			profit:   -1.5,
			reason:   ReasonStopHit,
			stopHit:  true,
		},
		{
			name:     "short timeout after 61 minutes",
			signal:   shortSignal,
			obs:      Observation{High: 100.4, Low: 99.6},
			age:      61 * time.Minute,
			terminal: true,
			outcome:  types.OutcomeTimeout,
			profit:   0,
		},
		{
			name:     "still pending inside range",
			signal:   longSignal,
			obs:      Observation{High: 101, Low: 99.5},
			age:      30 * time.Minute,
			terminal: false,
			outcome:  types.OutcomePending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := tt.signal()
			terminal := Resolve(sig, tt.obs, t0.Add(tt.age), time.Hour)

			assert.Equal(t, tt.terminal, terminal)
			assert.Equal(t, tt.outcome, sig.Outcome)
			assert.Equal(t, tt.targetHit, sig.TargetHit)
			assert.Equal(t, tt.stopHit, sig.StopHit)
			if !tt.terminal {
				assert.Nil(t, sig.CheckedAt)
				return
			}
			assert.InDelta(t, tt.profit, sig.StrategyProfit, 1e-9)
			assert.Equal(t, string(tt.outcome), sig.FinalResult)
			require.NotNil(t, sig.CheckedAt)
			assert.True(t, sig.CheckedAt.Equal(t0.Add(tt.age)))
			if tt.reason != "" {
				assert.Equal(t, tt.reason, sig.ExitReason)
			}
		})
	}
}

func Test_Resolve_ExtremesOnlyWiden(t *testing.T) {
	sig := longSignal()

	Resolve(sig, Observation{High: 101, Low: 99.5}, t0.Add(time.Minute), time.Hour)
	assert.Equal(t, 101.0, sig.HighestPrice)
	assert.Equal(t, 99.5, sig.LowestPrice)

	Resolve(sig, Observation{High: 100.5, Low: 99.8}, t0.Add(2*time.Minute), time.Hour)
	assert.Equal(t, 101.0, sig.HighestPrice)
	assert.Equal(t, 99.5, sig.LowestPrice)
	assert.InDelta(t, 1.0, sig.MaxGainPct, 1e-9)
	assert.InDelta(t, -0.5, sig.MaxLossPct, 1e-9)
}

func Test_Resolve_TerminalIsNoOp(t *testing.T) {
	sig := longSignal()
	require.True(t, Resolve(sig, Observation{High: 102.5, Low: 100}, t0.Add(time.Minute), time.Hour))

	before := *sig
	assert.False(t, Resolve(sig, Observation{High: 110, Low: 90}, t0.Add(time.Hour), time.Hour))
	assert.Equal(t, before, *sig)
}

func Test_Resolve_Neutral(t *testing.T) {
	sig := longSignal()
	sig.Direction = types.DirectionNeutral
	sig.SignalType = types.SignalRapidPriceChange

	assert.True(t, Resolve(sig, Observation{High: 100.1, Low: 99.9}, t0, time.Hour))
	assert.Equal(t, types.OutcomeNeutral, sig.Outcome)
	assert.Equal(t, 0.0, sig.StrategyProfit)
	assert.Equal(t, ReasonNeutral, sig.ExitReason)
}

func Test_Observe(t *testing.T) {
	sig := longSignal()
	sig.Timestamp = t0.Add(30 * time.Second)

	candles := []*types.KLine{
		candle(t0.Add(-time.Minute), 110, 90),
		candle(t0, 105, 95),
		candle(t0.Add(time.Minute), 101, 99.5),
		candle(t0.Add(2*time.Minute), 101.5, 100),
	}

	obs, ok := Observe(sig, candles, &types.Ticker{Price: 101.8})
	require.True(t, ok)
	assert.Equal(t, 101.8, obs.High)
	assert.Equal(t, 99.5, obs.Low)

	_, ok = Observe(sig, candles[:2], nil)
	assert.False(t, ok)

	obs, ok = Observe(sig, nil, &types.Ticker{Price: 98})
	require.True(t, ok)
	assert.Equal(t, 98.0, obs.High)
	assert.Equal(t, 98.0, obs.Low)
}

func Test_Sweep(t *testing.T) {
	store, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	win := longSignal()
	pending := longSignal()
	pending.SuggestedTarget = 105
	timeout := shortSignal()
	timeout.Timestamp = t0.Add(-time.Hour)
	timeout.SuggestedStop = 105
	timeout.SuggestedTarget = 95
	for _, sig := range []*types.Signal{win, pending, timeout} {
		require.NoError(t, store.SaveSignal(ctx, sig))
	}

	tr := New(store, time.Hour)
	now := t0.Add(5 * time.Minute)
	candles := []*types.KLine{candle(t0.Add(time.Minute), 102.5, 99.8)}

	resolved, err := tr.Sweep(ctx, scope, candles, &types.Ticker{Price: 101}, now)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, timeout.ID, resolved[0].ID)
	assert.Equal(t, types.OutcomeTimeout, resolved[0].Outcome)
	assert.Equal(t, win.ID, resolved[1].ID)
	assert.Equal(t, types.OutcomeWin, resolved[1].Outcome)
	assert.InDelta(t, 2.5, resolved[1].StrategyProfit, 1e-9)

	open, err := store.OpenSignals(ctx, scope)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, pending.ID, open[0].ID)
	assert.Equal(t, 102.5, open[0].HighestPrice)

	// 再次扫描不会重复结算
	resolved, err = tr.Sweep(ctx, scope, candles, &types.Ticker{Price: 101}, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

type flakyStore struct {
	signals []*types.Signal
	failID  uint
	updated map[uint]types.Outcome
}

func (s *flakyStore) OpenSignals(_ context.Context, _ types.Scope) ([]*types.Signal, error) {
	var open []*types.Signal
	for _, sig := range s.signals {
		if outcome, ok := s.updated[sig.ID]; ok && outcome.IsTerminal() {
			continue
		}
		copied := *sig
		open = append(open, &copied)
	}
	return open, nil
}

func (s *flakyStore) UpdateSignalTracking(_ context.Context, sig *types.Signal) error {
	if sig.ID == s.failID {
		return errors.New("connection reset")
	}
	s.updated[sig.ID] = sig.Outcome
	return nil
}

func Test_Sweep_FailedUpdateStaysPending(t *testing.T) {
	first, second := longSignal(), longSignal()
	first.ID, second.ID = 1, 2

	store := &flakyStore{signals: []*types.Signal{first, second}, failID: 1, updated: map[uint]types.Outcome{}}
	tr := New(store, time.Hour)

	candles := []*types.KLine{candle(t0.Add(time.Minute), 102.5, 100)}
	resolved, err := tr.Sweep(context.Background(), scope, candles, nil, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, uint(2), resolved[0].ID)

	store.failID = 0
	resolved, err = tr.Sweep(context.Background(), scope, candles, nil, t0.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, uint(1), resolved[0].ID)
}
