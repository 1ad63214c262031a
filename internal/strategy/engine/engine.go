package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"signal-sentry/pkg/types"
)

// Engine 策略引擎：每个交易对一条独立流水线
type Engine struct {
	sessionID string
	pipelines []*Pipeline
}

// Dependencies 引擎共享依赖，均需并发安全
type Dependencies struct {
	Source   MarketSource
	Store    Store
	State    StateStore
	Notifier Notifier
}

// NewEngine 创建策略引擎
func NewEngine(config types.StrategyConfig, network types.NetworkConfig, deps Dependencies) *Engine {
	sessionID := uuid.NewString()

	pipelines := make([]*Pipeline, 0, len(config.Symbols))
	for _, symbol := range config.Symbols {
		pipelines = append(pipelines, NewPipeline(PipelineOptions{
			Symbol:    symbol,
			Config:    config,
			Network:   network,
			SessionID: sessionID,
			Source:    deps.Source,
			Store:     deps.Store,
			State:     deps.State,
			Notifier:  deps.Notifier,
		}))
	}

	return &Engine{sessionID: sessionID, pipelines: pipelines}
}

// SessionID 本次运行的会话ID
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Pipelines 全部流水线
func (e *Engine) Pipelines() []*Pipeline {
	return e.pipelines
}

// Bootstrap 并发预热所有流水线，任一失败即返回错误
func (e *Engine) Bootstrap(ctx context.Context) error {
	zap.L().Info("📚 开始初始化历史K线数据",
		zap.String("session_id", e.sessionID),
		zap.Int("pipelines", len(e.pipelines)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, p := range e.pipelines {
		wg.Add(1)
		go func(p *Pipeline) {
			defer wg.Done()
			if err := p.Bootstrap(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("初始化历史数据失败: %w", errs[0])
	}

	zap.L().Info("🎉 所有历史K线数据初始化完成")
	return nil
}

// Stats 各流水线统计
func (e *Engine) Stats() map[string]PipelineStats {
	stats := make(map[string]PipelineStats, len(e.pipelines))
	for _, p := range e.pipelines {
		stats[p.Name()] = p.Stats()
	}
	return stats
}

// TrendStatuses 各流水线趋势状态
func (e *Engine) TrendStatuses() []types.TrendStatus {
	statuses := make([]types.TrendStatus, 0, len(e.pipelines))
	for _, p := range e.pipelines {
		statuses = append(statuses, p.Trend().Status())
	}
	return statuses
}
