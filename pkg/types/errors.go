package types

import "errors"

var (
	// ErrInsufficientData K线数量不足以完成指标预热
	ErrInsufficientData = errors.New("insufficient data")
	// ErrFeedUnavailable 行情数据获取失败或超时
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrDegenerateMath 输入无法产生有效数值（非正价格、NaN等）
	ErrDegenerateMath = errors.New("degenerate indicator math")
	// ErrAlreadyResolved 信号已处于终态
	ErrAlreadyResolved = errors.New("signal already resolved")
	// ErrInvalidConfig 配置校验失败
	ErrInvalidConfig = errors.New("invalid config")
)
