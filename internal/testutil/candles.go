// Package testutil 测试用K线构造工具
package testutil

import (
	"math"
	"time"

	"signal-sentry/pkg/types"
)

// BaseTime 测试K线起始时间
var BaseTime = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

// Candles 按收盘价序列构造K线：开盘价为上一根收盘价，高低点为开收的极值
func Candles(symbol string, closes []float64, volume float64) []*types.KLine {
	klines := make([]*types.KLine, 0, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		openTime := BaseTime.Add(time.Duration(i) * time.Minute)
		klines = append(klines, &types.KLine{
			Symbol:    symbol,
			OpenTime:  openTime,
			CloseTime: openTime.Add(time.Minute),
			Open:      open,
			High:      math.Max(open, c),
			Low:       math.Min(open, c),
			Close:     c,
			Volume:    volume,
			Interval:  "1m",
		})
	}
	return klines
}

// Linear 等差序列
func Linear(n int, start, step float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = start + float64(i)*step
	}
	return values
}

// Constant 常数序列
func Constant(n int, v float64) []float64 {
	return Linear(n, v, 0)
}

// Zigzag 在base附近按amplitude上下交替的序列
func Zigzag(n int, base, amplitude float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		if i%2 == 0 {
			values[i] = base + amplitude
		} else {
			values[i] = base - amplitude
		}
	}
	return values
}
