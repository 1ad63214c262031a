package types

import "github.com/shopspring/decimal"

// Round 仅用于展示的四舍五入，阈值比较始终使用原始精度
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// FormatPrice 价格展示字符串
func FormatPrice(v float64) string {
	return decimal.NewFromFloat(v).Round(6).String()
}
