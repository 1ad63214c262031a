package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"signal-sentry/internal/testutil"
	"signal-sentry/pkg/types"
)

func testIndicatorConfig() types.IndicatorConfig {
	return types.IndicatorConfig{
		EMAMicro:      5,
		EMAFast:       8,
		EMASlow:       21,
		EMATrendFast:  50,
		EMATrendSlow:  200,
		RSI:           14,
		StochK:        14,
		StochD:        3,
		ATR:           14,
		VolumeMA:      20,
		SupportWindow: 20,
		NearLevelPct:  0.3,
	}
}

func Test_EMA(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		period int
		want   float64
		ok     bool
	}{
		{name: "constant series equals constant", values: testutil.Constant(40, 101.37), period: 21, want: 101.37, ok: true},
		{name: "period equals length is plain average", values: []float64{1, 2, 3, 4}, period: 4, want: 2.5, ok: true},
		{name: "not enough values", values: []float64{1, 2}, period: 5, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EMA(tt.values, tt.period)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func Test_EMA_RecursiveSmoothing(t *testing.T) {
	// 种子 = (1+2+3)/3 = 2，k = 0.5，下一值 10 → 2 + 0.5*(10-2) = 6
	got, ok := EMA([]float64{1, 2, 3, 10}, 3)
	require.True(t, ok)
	assert.InDelta(t, 6.0, got, 1e-9)
}

func Test_RSI(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   float64
	}{
		{name: "strictly increasing converges to 100", closes: testutil.Linear(60, 100, 0.5), want: 100},
		{name: "strictly decreasing converges to 0", closes: testutil.Linear(60, 200, -0.5), want: 0},
		{name: "flat series uses zero-loss convention", closes: testutil.Constant(30, 50), want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RSI(tt.closes, 14)
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func Test_RSI_AlwaysInRange(t *testing.T) {
	series := [][]float64{
		testutil.Zigzag(50, 100, 3),
		testutil.Linear(50, 10, 7),
		append(testutil.Linear(30, 100, 1), testutil.Linear(30, 130, -2)...),
	}
	for _, closes := range series {
		got, ok := RSI(closes, 14)
		require.True(t, ok)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 100.0)
	}

	zig, _ := RSI(testutil.Zigzag(51, 100, 3), 14)
	assert.InDelta(t, 50, zig, 10)

	_, ok := RSI([]float64{1, 2, 3}, 14)
	assert.False(t, ok)
}

func Test_Stochastic(t *testing.T) {
	t.Run("zero range returns 50", func(t *testing.T) {
		flat := testutil.Constant(20, 10)
		k, d, ok := Stochastic(flat, flat, flat, 14, 3)
		require.True(t, ok)
		assert.Equal(t, 50.0, k)
		assert.InDelta(t, 50.0, d, 1e-9)
	})

	t.Run("close at high of range", func(t *testing.T) {
		closes := testutil.Linear(20, 100, 1)
		k, d, ok := Stochastic(closes, closes, closes, 14, 3)
		require.True(t, ok)
		assert.InDelta(t, 100.0, k, 1e-9)
		assert.InDelta(t, 100.0, d, 1e-9)
	})

	t.Run("close at low of range", func(t *testing.T) {
		closes := testutil.Linear(20, 100, -1)
		k, _, ok := Stochastic(closes, closes, closes, 14, 3)
		require.True(t, ok)
		assert.InDelta(t, 0.0, k, 1e-9)
	})

	t.Run("insufficient", func(t *testing.T) {
		closes := testutil.Linear(10, 100, 1)
		_, _, ok := Stochastic(closes, closes, closes, 14, 3)
		assert.False(t, ok)
	})
}

func Test_ATRCalculator(t *testing.T) {
	calc := NewATRCalculator(14)

	t.Run("non negative for any series", func(t *testing.T) {
		for _, closes := range [][]float64{
			testutil.Constant(30, 100),
			testutil.Zigzag(30, 100, 2),
			testutil.Linear(30, 100, -1),
		} {
			atr := calc.Calculate(testutil.Candles("BTC-USDT", closes, 1))
			require.NotNil(t, atr)
			assert.GreaterOrEqual(t, atr.Value, 0.0)
			assert.GreaterOrEqual(t, atr.Percent, 0.0)
		}
	})

	t.Run("zigzag true range", func(t *testing.T) {
		// 每根K线在 98 与 102 之间切换，真实波幅恒为 4
		atr := calc.Calculate(testutil.Candles("BTC-USDT", testutil.Zigzag(30, 100, 2), 1))
		require.NotNil(t, atr)
		assert.InDelta(t, 4.0, atr.Value, 1e-9)
		assert.InDelta(t, 0.0, atr.Slope, 1e-9)
	})

	t.Run("expanding range has positive slope", func(t *testing.T) {
		// 第i根K线振幅 0.2*i，真实波幅逐根增加 0.2，滚动ATR斜率恒为 0.2
		klines := testutil.Candles("BTC-USDT", testutil.Constant(40, 100), 1)
		for i, k := range klines {
			k.High = 100 + 0.1*float64(i)
			k.Low = 100 - 0.1*float64(i)
		}
		atr := calc.Calculate(klines)
		require.NotNil(t, atr)
		assert.InDelta(t, 0.2, atr.Slope, 1e-9)
	})

	t.Run("insufficient returns nil", func(t *testing.T) {
		assert.Nil(t, calc.Calculate(testutil.Candles("BTC-USDT", testutil.Constant(10, 100), 1)))
	})

	assert.Equal(t, 0.0, Normalize(5, 0))
	assert.InDelta(t, 2.5, Normalize(5, 200), 1e-12)
}

func Test_VolumeRatio(t *testing.T) {
	volumes := append(testutil.Constant(19, 100), 300)
	ratio, ok := VolumeRatio(volumes, 20)
	require.True(t, ok)
	assert.InDelta(t, 300.0/110.0, ratio, 1e-9)

	zero, ok := VolumeRatio(testutil.Constant(20, 0), 20)
	require.True(t, ok)
	assert.Equal(t, 1.0, zero)
}

func Test_ROC(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105, 110}
	roc1, ok := ROC(closes, 1)
	require.True(t, ok)
	assert.InDelta(t, (110.0-105.0)/105.0*100, roc1, 1e-9)

	roc5, ok := ROC(closes, 5)
	require.True(t, ok)
	assert.InDelta(t, (110.0-101.0)/101.0*100, roc5, 1e-9)

	_, ok = ROC([]float64{0, 1}, 1)
	assert.False(t, ok)
}

func Test_Calculator_InsufficientData(t *testing.T) {
	calc := NewCalculator(testIndicatorConfig())
	assert.Equal(t, 31, calc.RequiredBars())

	_, err := calc.Calculate(testutil.Candles("BTC-USDT", testutil.Linear(30, 100, 0.1), 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInsufficientData)
}

func Test_Calculator_DegenerateInput(t *testing.T) {
	calc := NewCalculator(testIndicatorConfig())
	klines := testutil.Candles("BTC-USDT", testutil.Constant(40, 100), 10)
	klines[20].Close = math.NaN()

	_, err := calc.Calculate(klines)
	assert.ErrorIs(t, err, types.ErrDegenerateMath)
}

func Test_Calculator_Snapshot(t *testing.T) {
	calc := NewCalculator(testIndicatorConfig())

	t.Run("uptrend without trend ema history", func(t *testing.T) {
		klines := testutil.Candles("BTC-USDT", testutil.Linear(40, 100, 0.2), 10)
		snap, err := calc.Calculate(klines)
		require.NoError(t, err)

		assert.Equal(t, klines[39].Close, snap.Price)
		assert.Greater(t, snap.EMAMicro, snap.EMAFast)
		assert.Greater(t, snap.EMAFast, snap.EMASlow)
		assert.Equal(t, 100.0, snap.RSI)
		assert.InDelta(t, 1.0, snap.VolumeRatio, 1e-9)
		assert.Greater(t, snap.ROC5, snap.ROC1)
		assert.Greater(t, snap.ATR, 0.0)
		assert.Nil(t, snap.EMA50)
		assert.Nil(t, snap.EMA200)
	})

	t.Run("long history fills trend emas", func(t *testing.T) {
		klines := testutil.Candles("BTC-USDT", testutil.Constant(220, 100), 10)
		snap, err := calc.Calculate(klines)
		require.NoError(t, err)
		require.NotNil(t, snap.EMA50)
		require.NotNil(t, snap.EMA200)
		assert.InDelta(t, 100.0, *snap.EMA50, 1e-9)
		assert.InDelta(t, 100.0, *snap.EMA200, 1e-9)
		assert.InDelta(t, 100.0, snap.EMASlow, 1e-9)
		assert.Equal(t, 50.0, snap.StochK)
		assert.Equal(t, 0.0, snap.ATR)
	})
}
