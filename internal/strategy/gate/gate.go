package gate

import (
	"time"

	"go.uber.org/zap"
	"signal-sentry/pkg/types"
)

// Gate 冷却与趋势方向过滤
type Gate struct {
	cooldown *Cooldown
}

// New 创建过滤器
func New(cooldown *Cooldown) *Gate {
	return &Gate{cooldown: cooldown}
}

// Cooldown 返回内部冷却器
func (g *Gate) Cooldown() *Cooldown {
	return g.cooldown
}

// Allowed 当前开仓模式是否允许该方向，NEUTRAL提醒总是放行
func Allowed(mode types.PositionMode, direction types.Direction) bool {
	switch direction {
	case types.DirectionNeutral:
		return true
	case types.DirectionLong:
		return mode == types.ModeLongOnly || mode == types.ModeBoth
	case types.DirectionShort:
		return mode == types.ModeShortOnly || mode == types.ModeBoth
	default:
		return false
	}
}

// Filter 先过冷却再过趋势模式，返回通过与被拒绝的候选
// 冷却记录由调用方在持久化成功后写入
func (g *Gate) Filter(candidates []*types.Signal, mode types.PositionMode, now time.Time) (accepted, skipped []*types.Signal) {
	for _, sig := range candidates {
		if !g.cooldown.Allow(sig.SignalType, now) {
			g.cooldown.skip()
			zap.L().Debug("⏳ 信号冷却中，跳过",
				zap.String("symbol", sig.Symbol),
				zap.String("type", sig.SignalType))
			skipped = append(skipped, sig)
			continue
		}

		if !Allowed(mode, sig.Direction) {
			zap.L().Info("🚫 趋势模式不允许该方向，跳过",
				zap.String("symbol", sig.Symbol),
				zap.String("type", sig.SignalType),
				zap.String("direction", string(sig.Direction)),
				zap.String("mode", string(mode)))
			skipped = append(skipped, sig)
			continue
		}

		accepted = append(accepted, sig)
	}
	return accepted, skipped
}
