package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"signal-sentry/internal/testutil"
	"signal-sentry/pkg/types"
)

func newTestDetector() *Detector {
	return NewDetector(types.IndicatorConfig{SupportWindow: 20, NearLevelPct: 0.3})
}

func Test_Detector_Analyze(t *testing.T) {
	d := newTestDetector()

	t.Run("support and resistance from trailing closes", func(t *testing.T) {
		closes := append(testutil.Constant(30, 500), testutil.Linear(20, 100, 1)...)
		klines := testutil.Candles("BTC-USDT", closes, 1)

		pa := d.Analyze(klines, 119)
		assert.Equal(t, 100.0, pa.Support)
		assert.Equal(t, 119.0, pa.Resistance)
		assert.True(t, pa.NearResistance)
		assert.False(t, pa.NearSupport)
		assert.True(t, pa.BullishPattern)
		assert.False(t, pa.BearishPattern)
	})

	t.Run("near support within band", func(t *testing.T) {
		klines := testutil.Candles("BTC-USDT", testutil.Linear(20, 120, -1), 1)
		pa := d.Analyze(klines, 101.2)
		assert.Equal(t, 101.0, pa.Support)
		assert.True(t, pa.NearSupport)
		assert.True(t, pa.BearishPattern)
	})

	t.Run("empty window", func(t *testing.T) {
		assert.Equal(t, types.PriceAction{}, d.Analyze(nil, 100))
	})
}

func Test_Detector_Classify(t *testing.T) {
	d := newTestDetector()

	tests := []struct {
		name string
		snap types.IndicatorSnapshot
		want types.Regime
	}{
		{
			name: "trending up",
			snap: types.IndicatorSnapshot{Price: 100, EMAMicro: 100.5, EMAFast: 100.3, EMASlow: 100.0, ROC5: 0.5, VolumeRatio: 1.3, ATRPct: 0.8},
			want: types.RegimeTrending,
		},
		{
			name: "trending down",
			snap: types.IndicatorSnapshot{Price: 100, EMAMicro: 99.5, EMAFast: 99.8, EMASlow: 100.0, ROC5: -0.6, VolumeRatio: 1.1, ATRPct: 0.8},
			want: types.RegimeTrending,
		},
		{
			name: "ordered but low volume is not trending",
			snap: types.IndicatorSnapshot{Price: 100, EMAMicro: 100.5, EMAFast: 100.3, EMASlow: 100.0, ROC5: 0.5, VolumeRatio: 0.9, ATRPct: 0.8},
			want: types.RegimeNeutral,
		},
		{
			name: "ranging",
			snap: types.IndicatorSnapshot{Price: 100, EMAMicro: 100.05, EMAFast: 100.0, EMASlow: 100.0, ROC5: 0.1, VolumeRatio: 0.8, ATRPct: 0.5},
			want: types.RegimeRanging,
		},
		{
			name: "choppy high atr",
			snap: types.IndicatorSnapshot{Price: 100, EMAMicro: 100.5, EMAFast: 100.6, EMASlow: 100.0, ROC5: 0.1, VolumeRatio: 1.0, ATRPct: 3.0},
			want: types.RegimeChoppy,
		},
		{
			name: "choppy volume spike without move",
			snap: types.IndicatorSnapshot{Price: 100, EMAMicro: 100.5, EMAFast: 100.6, EMASlow: 100.0, ROC1: 0.05, ROC5: 0.25, VolumeRatio: 3.0, ATRPct: 1.0},
			want: types.RegimeChoppy,
		},
		{
			name: "neutral",
			snap: types.IndicatorSnapshot{Price: 100, EMAMicro: 100.5, EMAFast: 100.6, EMASlow: 100.0, ROC1: 0.3, ROC5: 0.25, VolumeRatio: 1.0, ATRPct: 1.0},
			want: types.RegimeNeutral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := tt.snap
			assert.Equal(t, tt.want, d.Classify(&snap))
		})
	}

	assert.Equal(t, types.RegimeNeutral, d.Classify(nil))
}

func Test_Multiplier(t *testing.T) {
	assert.Equal(t, 0.7, Multiplier(types.RegimeChoppy))
	assert.Equal(t, 0.9, Multiplier(types.RegimeRanging))
	assert.Equal(t, 1.0, Multiplier(types.RegimeTrending))
	assert.Equal(t, 1.0, Multiplier(types.RegimeNeutral))
}

func Test_TrendLabel(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name   string
		price  float64
		ema50  *float64
		ema200 *float64
		want   types.TrendLabel
	}{
		{name: "above both", price: 110, ema50: f(105), ema200: f(100), want: types.TrendBullish},
		{name: "below both", price: 90, ema50: f(95), ema200: f(100), want: types.TrendBearish},
		{name: "between", price: 98, ema50: f(95), ema200: f(100), want: types.TrendNeutral},
		{name: "missing ema200", price: 98, ema50: f(95), want: types.TrendUnknown},
		{name: "missing both", price: 98, want: types.TrendUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrendLabel(tt.price, tt.ema50, tt.ema200))
		})
	}
}
