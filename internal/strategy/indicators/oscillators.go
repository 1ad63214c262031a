package indicators

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// EMA 指数移动平均的最新值，以前period个值的SMA为种子，平滑系数 2/(period+1)
func EMA(values []float64, period int) (float64, bool) {
	if period < 1 || len(values) < period {
		return 0, false
	}
	out := talib.Ema(values, period)
	return out[len(out)-1], true
}

// SMA 简单移动平均的最新值
func SMA(values []float64, period int) (float64, bool) {
	if period < 1 || len(values) < period {
		return 0, false
	}
	out := talib.Sma(values, period)
	return out[len(out)-1], true
}

// RSI Wilder平滑的相对强弱指数
// 平均跌幅为0时返回100，结果限定在[0,100]
func RSI(closes []float64, period int) (float64, bool) {
	if period < 1 || len(closes) < period+1 {
		return 0, false
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	n := float64(period)
	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*(n-1) + gain) / n
		avgLoss = (avgLoss*(n-1) + loss) / n
	}

	if avgLoss == 0 {
		return 100, true
	}

	rs := avgGain / avgLoss
	return clamp(100-100/(1+rs), 0, 100), true
}

// StochasticK 单点%K，区间为0时返回50
func StochasticK(highs, lows, closes []float64, period int) (float64, bool) {
	n := len(closes)
	if period < 1 || n < period || len(highs) != n || len(lows) != n {
		return 0, false
	}

	highest := math.Inf(-1)
	lowest := math.Inf(1)
	for i := n - period; i < n; i++ {
		highest = math.Max(highest, highs[i])
		lowest = math.Min(lowest, lows[i])
	}

	rng := highest - lowest
	if rng == 0 {
		return 50, true
	}
	return clamp(100*(closes[n-1]-lowest)/rng, 0, 100), true
}

// Stochastic 返回最新%K与%D，%D为最近smooth个%K的SMA
func Stochastic(highs, lows, closes []float64, period, smooth int) (k, d float64, ok bool) {
	n := len(closes)
	if smooth < 1 || n < period+smooth-1 {
		return 0, 0, false
	}

	series := make([]float64, 0, smooth)
	for end := n - smooth + 1; end <= n; end++ {
		v, ok := StochasticK(highs[:end], lows[:end], closes[:end], period)
		if !ok {
			return 0, 0, false
		}
		series = append(series, v)
	}

	d, ok = SMA(series, smooth)
	if !ok {
		return 0, 0, false
	}
	return series[len(series)-1], d, true
}

// VolumeRatio 当前成交量 / 成交量均线，均量为0时返回中性值1.0
func VolumeRatio(volumes []float64, period int) (float64, bool) {
	avg, ok := SMA(volumes, period)
	if !ok {
		return 0, false
	}
	if avg <= 0 {
		return 1.0, true
	}
	return volumes[len(volumes)-1] / avg, true
}

// ROC n周期变化率（百分比）
func ROC(closes []float64, n int) (float64, bool) {
	if n < 1 || len(closes) < n+1 {
		return 0, false
	}
	base := closes[len(closes)-1-n]
	if base == 0 {
		return 0, false
	}
	return (closes[len(closes)-1] - base) / base * 100, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
