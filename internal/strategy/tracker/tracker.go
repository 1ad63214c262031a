package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"signal-sentry/pkg/types"
)

// Store 追踪器依赖的信号存储
type Store interface {
	OpenSignals(ctx context.Context, scope types.Scope) ([]*types.Signal, error)
	UpdateSignalTracking(ctx context.Context, sig *types.Signal) error
}

// Tracker 每个tick扫描未结算信号
type Tracker struct {
	store   Store
	timeout time.Duration
}

// New 创建追踪器
func New(store Store, timeout time.Duration) *Tracker {
	return &Tracker{store: store, timeout: timeout}
}

// Sweep 用本tick的K线与最新价推进所有未结算信号，返回本次新结算的信号
// 单条写入失败不影响其他记录，失败记录保持PENDING下次重试
func (t *Tracker) Sweep(ctx context.Context, scope types.Scope, candles []*types.KLine, ticker *types.Ticker, now time.Time) ([]*types.Signal, error) {
	open, err := t.store.OpenSignals(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("读取未结算信号失败: %w", err)
	}

	var resolved []*types.Signal
	for _, sig := range open {
		high, low := sig.HighestPrice, sig.LowestPrice

		obs, _ := Observe(sig, candles, ticker)
		terminal := Resolve(sig, obs, now, t.timeout)
		if !terminal && sig.HighestPrice == high && sig.LowestPrice == low {
			continue
		}

		if err := t.store.UpdateSignalTracking(ctx, sig); err != nil {
			if errors.Is(err, types.ErrAlreadyResolved) {
				zap.L().Debug("信号已被结算，跳过", zap.Uint("id", sig.ID))
				continue
			}
			zap.L().Warn("⚠️ 更新信号追踪失败，下次重试",
				zap.String("scope", scope.String()),
				zap.Uint("id", sig.ID),
				zap.Error(err))
			continue
		}

		if terminal {
			zap.L().Info("🏁 信号已结算",
				zap.String("scope", scope.String()),
				zap.Uint("id", sig.ID),
				zap.String("type", sig.SignalType),
				zap.String("direction", string(sig.Direction)),
				zap.String("outcome", string(sig.Outcome)),
				zap.Float64("profit_pct", types.Round(sig.StrategyProfit, 4)),
				zap.String("reason", sig.ExitReason))
			resolved = append(resolved, sig)
		}
	}

	return resolved, nil
}
