package indicators

import (
	"math"

	"signal-sentry/pkg/types"
)

// slopeBars ATR斜率回看的ATR点数
const slopeBars = 20

// ATRCalculator ATR指标计算器
type ATRCalculator struct {
	length int
}

// NewATRCalculator 创建ATR计算器
func NewATRCalculator(length int) *ATRCalculator {
	return &ATRCalculator{
		length: length,
	}
}

// Calculate 计算ATR值（真实波幅的简单平均），数据不足返回nil
func (ac *ATRCalculator) Calculate(klines []*types.KLine) *types.ATRData {
	if len(klines) < ac.length+1 {
		return nil
	}

	trValues := TrueRange(klines)
	atrValue := mean(trValues[len(trValues)-ac.length:])

	price := klines[len(klines)-1].Close

	return &types.ATRData{
		Value:   atrValue,
		Percent: Normalize(atrValue, price),
		Slope:   ac.slope(trValues),
	}
}

// TrueRange 真实波幅序列，长度为 len(klines)-1
func TrueRange(klines []*types.KLine) []float64 {
	if len(klines) < 2 {
		return nil
	}

	trValues := make([]float64, 0, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		current := klines[i]
		previous := klines[i-1]

		// 真实波幅 = max(high-low, |high-prevClose|, |low-prevClose|)
		hl := current.High - current.Low
		hc := math.Abs(current.High - previous.Close)
		lc := math.Abs(current.Low - previous.Close)

		trValues = append(trValues, math.Max(hl, math.Max(hc, lc)))
	}

	return trValues
}

// slope 最近若干个滚动ATR的线性回归斜率
func (ac *ATRCalculator) slope(trValues []float64) float64 {
	if len(trValues) < ac.length+slopeBars-1 {
		return 0
	}

	atrValues := make([]float64, 0, slopeBars)
	for end := len(trValues) - slopeBars + 1; end <= len(trValues); end++ {
		atrValues = append(atrValues, mean(trValues[end-ac.length:end]))
	}

	return linearRegressionSlope(atrValues)
}

// linearRegressionSlope 计算线性回归斜率
func linearRegressionSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i + 1)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	// 斜率 = (n*∑xy - ∑x*∑y) / (n*∑x² - (∑x)²)
	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return 0
	}

	return (n*sumXY - sumX*sumY) / denominator
}

// Normalize ATR占价格的百分比
func Normalize(atrValue, currentPrice float64) float64 {
	if currentPrice == 0 {
		return 0
	}
	return (atrValue / currentPrice) * 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, value := range values {
		sum += value
	}
	return sum / float64(len(values))
}
