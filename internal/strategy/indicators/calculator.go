package indicators

import (
	"fmt"
	"math"

	"signal-sentry/pkg/types"
)

// warmupMargin 预热额外K线数
const warmupMargin = 10

// Calculator 指标计算器，无状态，只依赖输入窗口
type Calculator struct {
	config types.IndicatorConfig
	atr    *ATRCalculator
}

// NewCalculator 创建指标计算器
func NewCalculator(config types.IndicatorConfig) *Calculator {
	return &Calculator{
		config: config,
		atr:    NewATRCalculator(config.ATR),
	}
}

// RequiredBars 预热所需最少K线数
func (c *Calculator) RequiredBars() int {
	cfg := c.config
	required := maxInt(
		cfg.EMAMicro,
		cfg.EMAFast,
		cfg.EMASlow,
		cfg.RSI+1,
		cfg.StochK+cfg.StochD-1,
		cfg.ATR+1,
		cfg.VolumeMA,
		6, // ROC5
	)
	return required + warmupMargin
}

// Calculate 基于K线窗口计算指标快照
// 数据不足时返回 types.ErrInsufficientData，不返回部分结果
func (c *Calculator) Calculate(klines []*types.KLine) (*types.IndicatorSnapshot, error) {
	required := c.RequiredBars()
	if len(klines) < required {
		return nil, fmt.Errorf("%w: have %d bars, need %d", types.ErrInsufficientData, len(klines), required)
	}

	n := len(klines)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, k := range klines {
		if k == nil || !validPrice(k.Close) || !validPrice(k.High) || !validPrice(k.Low) {
			return nil, fmt.Errorf("%w: invalid candle at index %d", types.ErrDegenerateMath, i)
		}
		highs[i] = k.High
		lows[i] = k.Low
		closes[i] = k.Close
		volumes[i] = k.Volume
	}

	last := klines[n-1]
	snap := &types.IndicatorSnapshot{
		Time:  last.CloseTime,
		Price: last.Close,
	}

	var ok bool
	if snap.EMAMicro, ok = EMA(closes, c.config.EMAMicro); !ok {
		return nil, insufficient("ema_micro")
	}
	if snap.EMAFast, ok = EMA(closes, c.config.EMAFast); !ok {
		return nil, insufficient("ema_fast")
	}
	if snap.EMASlow, ok = EMA(closes, c.config.EMASlow); !ok {
		return nil, insufficient("ema_slow")
	}
	if snap.RSI, ok = RSI(closes, c.config.RSI); !ok {
		return nil, insufficient("rsi")
	}
	if snap.StochK, snap.StochD, ok = Stochastic(highs, lows, closes, c.config.StochK, c.config.StochD); !ok {
		return nil, insufficient("stochastic")
	}
	if snap.VolumeRatio, ok = VolumeRatio(volumes, c.config.VolumeMA); !ok {
		return nil, insufficient("volume_ratio")
	}
	if snap.ROC1, ok = ROC(closes, 1); !ok {
		return nil, fmt.Errorf("%w: roc1 base price is zero", types.ErrDegenerateMath)
	}
	if snap.ROC5, ok = ROC(closes, 5); !ok {
		return nil, fmt.Errorf("%w: roc5 base price is zero", types.ErrDegenerateMath)
	}

	atrData := c.atr.Calculate(klines)
	if atrData == nil {
		return nil, insufficient("atr")
	}
	snap.ATR = atrData.Value
	snap.ATRPct = atrData.Percent
	snap.ATRSlope = atrData.Slope

	// 长周期趋势EMA可选，数据不足时保持nil
	if v, ok := EMA(closes, c.config.EMATrendFast); ok {
		snap.EMA50 = &v
	}
	if v, ok := EMA(closes, c.config.EMATrendSlow); ok {
		snap.EMA200 = &v
	}

	return snap, nil
}

func insufficient(name string) error {
	return fmt.Errorf("%w: %s", types.ErrInsufficientData, name)
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func maxInt(values ...int) int {
	result := values[0]
	for _, v := range values[1:] {
		if v > result {
			result = v
		}
	}
	return result
}
