package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"signal-sentry/internal/metrics"
	"signal-sentry/internal/storage"
	"signal-sentry/internal/strategy/gate"
	"signal-sentry/internal/strategy/indicators"
	"signal-sentry/internal/strategy/regime"
	"signal-sentry/internal/strategy/signals"
	"signal-sentry/internal/strategy/tracker"
	"signal-sentry/internal/strategy/trend"
	"signal-sentry/pkg/types"
)

// MarketSource 行情数据源：K线与最新成交价
// 拿不到数据时返回 types.ErrFeedUnavailable，不返回零值
type MarketSource interface {
	Candles(ctx context.Context, symbol, timeframe string, limit int) ([]*types.KLine, error)
	Ticker(ctx context.Context, symbol string) (*types.Ticker, error)
}

// Store 流水线依赖的信号存储
type Store interface {
	tracker.Store
	trend.Store
	SaveSignal(ctx context.Context, sig *types.Signal) error
	BatchSaveKlines(ctx context.Context, klines []*types.KLine) error
	GetKLines(ctx context.Context, symbol, timeframe string, limit int) ([]*types.KLine, error)
}

// StateStore 冷却状态与趋势快照镜像
type StateStore interface {
	gate.CooldownStore
	SaveTrendStatus(ctx context.Context, status *types.TrendStatus) error
}

// Notifier 信号与趋势事件通知
type Notifier interface {
	SendSignal(ctx context.Context, sig *types.Signal) error
	SendTrendEvent(ctx context.Context, event types.TrendEvent) error
}

// TickReport 单次tick的处理结果
type TickReport struct {
	TradeGroupID string
	Price        float64
	Snapshot     *types.IndicatorSnapshot
	Emitted      []*types.Signal
	Skipped      []*types.Signal
	Resolved     []*types.Signal
	Events       []types.TrendEvent
}

// PipelineStats 流水线运行统计
type PipelineStats struct {
	Ticks    int64 `json:"ticks"`
	Failures int64 `json:"failures"`
	Emitted  int64 `json:"emitted"`
	Skipped  int64 `json:"skipped"`
	Resolved int64 `json:"resolved"`
	Window   int   `json:"window"`
}

// Pipeline 单个交易对+周期的信号流水线
// tick内各步骤顺序执行：取数→指标→生成→过滤→入库→结算→趋势→通知
type Pipeline struct {
	scope     types.Scope
	config    types.StrategyConfig
	timeout   time.Duration
	sessionID string

	source   MarketSource
	store    Store
	state    StateStore
	notifier Notifier

	window     *storage.BoundedQueue[*types.KLine]
	calculator *indicators.Calculator
	detector   *regime.Detector
	generator  *signals.Generator
	gate       *gate.Gate
	tracker    *tracker.Tracker
	trend      *trend.Manager

	now func() time.Time

	// tick互斥，同一流水线不允许重入
	tickMutex sync.Mutex

	stats      PipelineStats
	statsMutex sync.RWMutex
}

// PipelineOptions 流水线依赖
type PipelineOptions struct {
	Symbol    string
	Config    types.StrategyConfig
	Network   types.NetworkConfig
	SessionID string
	Source    MarketSource
	Store     Store
	State     StateStore
	Notifier  Notifier
	Now       func() time.Time
}

// NewPipeline 创建流水线
func NewPipeline(opts PipelineOptions) *Pipeline {
	scope := types.Scope{
		Symbol:    opts.Symbol,
		Timeframe: opts.Config.Timeframe,
		Strategy:  opts.Config.Name,
	}

	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	timeout := opts.Network.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cooldown := gate.NewCooldown(time.Duration(opts.Config.Signal.CooldownMinutes) * time.Minute)

	return &Pipeline{
		scope:      scope,
		config:     opts.Config,
		timeout:    timeout,
		sessionID:  sessionID,
		source:     opts.Source,
		store:      opts.Store,
		state:      opts.State,
		notifier:   opts.Notifier,
		window:     storage.NewBoundedQueue[*types.KLine](opts.Config.HistoryLimit),
		calculator: indicators.NewCalculator(opts.Config.Indicators),
		detector:   regime.NewDetector(opts.Config.Indicators),
		generator:  signals.NewGenerator(opts.Config),
		gate:       gate.New(cooldown),
		tracker:    tracker.New(opts.Store, opts.Config.Tracker.Timeout()),
		trend:      trend.NewManager(scope, opts.Config.Trend, opts.Store),
		now:        now,
	}
}

// Name 流水线名称
func (p *Pipeline) Name() string {
	return p.scope.String()
}

// Scope 流水线作用域
func (p *Pipeline) Scope() types.Scope {
	return p.scope
}

// Trend 趋势管理器，只读访问
func (p *Pipeline) Trend() *trend.Manager {
	return p.trend
}

// Bootstrap 启动预热：归档K线 + REST历史 + 冷却状态恢复
func (p *Pipeline) Bootstrap(ctx context.Context) error {
	limit := p.config.HistoryLimit

	archived, err := p.store.GetKLines(ctx, p.scope.Symbol, p.scope.Timeframe, limit)
	if err != nil {
		zap.L().Warn("⚠️ 读取归档K线失败", zap.String("scope", p.Name()), zap.Error(err))
	}
	p.merge(archived)

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	fetched, err := p.source.Candles(fetchCtx, p.scope.Symbol, p.scope.Timeframe, limit)
	cancel()
	if err != nil {
		if p.window.Len() == 0 {
			return fmt.Errorf("初始化历史数据失败 %s: %w", p.Name(), err)
		}
		zap.L().Warn("⚠️ 获取历史K线失败，使用归档数据", zap.String("scope", p.Name()), zap.Error(err))
	} else {
		p.merge(fetched)
		if err := p.store.BatchSaveKlines(ctx, fetched); err != nil {
			zap.L().Error("❌ 批量保存历史K线失败", zap.String("scope", p.Name()), zap.Error(err))
		}
	}

	if p.state != nil {
		if err := p.gate.Cooldown().Restore(ctx, p.state, p.Name()); err != nil {
			zap.L().Warn("⚠️ 恢复冷却状态失败", zap.String("scope", p.Name()), zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.String("scope", p.Name()),
		zap.Int("archived", len(archived)),
		zap.Int("fetched", len(fetched)),
		zap.Int("window", p.window.Len()),
		zap.Int("required", p.calculator.RequiredBars()),
	}
	if latest, ok := p.window.Latest(); ok {
		fields = append(fields, zap.Time("newest", latest.OpenTime))
	}
	zap.L().Info("✅ 历史数据初始化完成", fields...)
	return nil
}

// Tick 执行一次tick，供调度器调用
func (p *Pipeline) Tick(ctx context.Context) error {
	_, err := p.Step(ctx)
	return err
}

// Step 执行一次tick并返回处理结果
// 行情不可用时整个tick为空操作，不推进任何追踪状态
func (p *Pipeline) Step(ctx context.Context) (*TickReport, error) {
	p.tickMutex.Lock()
	defer p.tickMutex.Unlock()

	start := time.Now()
	now := p.now()
	report := &TickReport{TradeGroupID: uuid.NewString()}
	labels := []string{p.scope.Symbol, p.scope.Timeframe}

	metrics.TicksTotal.WithLabelValues(labels...).Inc()
	defer func() {
		metrics.TickDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	}()

	// 1. 取数
	ticker, err := p.fetch(ctx)
	if err != nil {
		p.fail("feed")
		zap.L().Warn("⚠️ 行情不可用，跳过本次tick", zap.String("scope", p.Name()), zap.Error(err))
		return report, err
	}

	window := p.window.Snapshot()
	if len(window) == 0 {
		p.fail("feed")
		return report, fmt.Errorf("%w: %s 价格窗口为空", types.ErrFeedUnavailable, p.Name())
	}
	report.Price = window[len(window)-1].Close
	if ticker != nil {
		report.Price = ticker.Price
	}

	// 2. 指标
	snap, err := p.calculator.Calculate(window)
	switch {
	case err == nil:
		report.Snapshot = snap
	case errors.Is(err, types.ErrInsufficientData):
		zap.L().Debug("历史数据不足，跳过信号生成",
			zap.String("scope", p.Name()),
			zap.Int("available", len(window)),
			zap.Int("required", p.calculator.RequiredBars()))
	default:
		p.fail("indicator")
		zap.L().Error("❌ 指标计算失败", zap.String("scope", p.Name()), zap.Error(err))
	}

	// 3-5. 生成、过滤、入库
	if snap != nil {
		p.emit(ctx, report, window, snap, now)
	}

	// 6. 结算未完成信号
	resolved, err := p.tracker.Sweep(ctx, p.scope, window, ticker, now)
	if err != nil {
		p.fail("sweep")
		zap.L().Error("❌ 信号结算失败", zap.String("scope", p.Name()), zap.Error(err))
	}
	report.Resolved = resolved
	for _, sig := range resolved {
		metrics.OutcomesTotal.WithLabelValues(p.scope.Symbol, p.scope.Timeframe, string(sig.Outcome)).Inc()
	}

	// 7. 趋势管理
	events, err := p.trend.Update(ctx, trendSample(snap, report.Price, now))
	if err != nil {
		p.fail("trend")
		zap.L().Error("❌ 趋势状态更新失败", zap.String("scope", p.Name()), zap.Error(err))
	}
	report.Events = events

	// 8. 通知与状态镜像
	p.publish(ctx, report)

	p.statsMutex.Lock()
	p.stats.Ticks++
	p.stats.Emitted += int64(len(report.Emitted))
	p.stats.Skipped += int64(len(report.Skipped))
	p.stats.Resolved += int64(len(report.Resolved))
	p.stats.Window = p.window.Len()
	p.statsMutex.Unlock()

	return report, nil
}

// fetch 拉取K线与最新价并合并到价格窗口
// 最新价失败不影响K线，只退化为使用收盘价
func (p *Pipeline) fetch(ctx context.Context) (*types.Ticker, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	limit := fetchLimit
	if p.window.Len() == 0 {
		limit = p.config.HistoryLimit
	}

	candles, err := p.source.Candles(fetchCtx, p.scope.Symbol, p.scope.Timeframe, limit)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s 无K线数据", types.ErrFeedUnavailable, p.Name())
	}
	p.merge(candles)

	// 归档最近已收盘与当前K线
	tail := candles
	if len(tail) > 2 {
		tail = tail[len(tail)-2:]
	}
	if err := p.store.BatchSaveKlines(ctx, tail); err != nil {
		zap.L().Debug("保存K线数据失败", zap.String("scope", p.Name()), zap.Error(err))
	}

	ticker, err := p.source.Ticker(fetchCtx, p.scope.Symbol)
	if err != nil {
		zap.L().Warn("⚠️ 获取最新价失败，使用K线收盘价", zap.String("scope", p.Name()), zap.Error(err))
		return nil, nil
	}
	return ticker, nil
}

// fetchLimit 每个tick增量拉取的K线数量
const fetchLimit = 5

// merge 按开盘时间合并K线：新K线追加，同一根K线原地替换，旧K线忽略
func (p *Pipeline) merge(candles []*types.KLine) {
	for _, k := range candles {
		if k == nil {
			continue
		}
		latest, ok := p.window.Latest()
		switch {
		case !ok || k.OpenTime.After(latest.OpenTime):
			p.window.Push(k)
		case k.OpenTime.Equal(latest.OpenTime):
			p.window.ReplaceLast(k)
		}
	}
}

// emit 生成候选信号、过滤并入库，入库成功后才记录冷却
func (p *Pipeline) emit(ctx context.Context, report *TickReport, window []*types.KLine, snap *types.IndicatorSnapshot, now time.Time) {
	in := signals.Input{
		Scope:        p.scope,
		Time:         now,
		Price:        report.Price,
		Snapshot:     snap,
		PriceAction:  p.detector.Analyze(window, report.Price),
		Regime:       p.detector.Classify(snap),
		Trend:        regime.TrendLabel(report.Price, snap.EMA50, snap.EMA200),
		History:      p.history(ctx),
		SessionID:    p.sessionID,
		TradeGroupID: report.TradeGroupID,
	}

	candidates := p.generator.Generate(in)
	if len(candidates) == 0 {
		return
	}

	accepted, skipped := p.gate.Filter(candidates, p.trend.PositionMode(), now)
	report.Skipped = skipped
	for _, sig := range skipped {
		metrics.SignalsSkippedTotal.WithLabelValues(p.scope.Symbol, p.scope.Timeframe, "gate").Inc()
		zap.L().Debug("信号被冷却或趋势模式过滤",
			zap.String("scope", p.Name()),
			zap.String("type", sig.SignalType),
			zap.String("direction", string(sig.Direction)))
	}

	recorded := false
	for _, sig := range accepted {
		if err := p.store.SaveSignal(ctx, sig); err != nil {
			p.fail("persist")
			metrics.SignalsSkippedTotal.WithLabelValues(p.scope.Symbol, p.scope.Timeframe, "persist").Inc()
			zap.L().Error("❌ 保存交易信号失败",
				zap.String("scope", p.Name()),
				zap.String("type", sig.SignalType),
				zap.Error(err))
			continue
		}

		p.gate.Cooldown().Record(sig.SignalType, now)
		recorded = true
		report.Emitted = append(report.Emitted, sig)
		metrics.SignalsEmittedTotal.WithLabelValues(p.scope.Symbol, p.scope.Timeframe, sig.SignalType, string(sig.Direction)).Inc()

		zap.L().Info("🎯 发现交易信号",
			zap.String("scope", p.Name()),
			zap.Uint("id", sig.ID),
			zap.String("type", sig.SignalType),
			zap.String("direction", string(sig.Direction)),
			zap.Float64("confidence", types.Round(sig.Confidence, 3)),
			zap.String("entry", types.FormatPrice(sig.EntryPrice)),
			zap.String("stop", types.FormatPrice(sig.SuggestedStop)),
			zap.String("target", types.FormatPrice(sig.SuggestedTarget)),
			zap.Bool("conflict", sig.HasConflict))
	}

	if recorded && p.state != nil {
		if err := p.gate.Cooldown().Persist(ctx, p.state, p.Name()); err != nil {
			zap.L().Warn("⚠️ 保存冷却状态失败", zap.String("scope", p.Name()), zap.Error(err))
		}
	}
}

// history 各方向最近结算结果，用于置信度修正
func (p *Pipeline) history(ctx context.Context) map[types.Direction]types.DirectionHistory {
	result := make(map[types.Direction]types.DirectionHistory, 2)
	for _, direction := range []types.Direction{types.DirectionLong, types.DirectionShort} {
		h, err := p.store.RecentResolved(ctx, p.scope, direction, p.config.Signal.HistoryWindow)
		if err != nil {
			zap.L().Warn("⚠️ 读取历史胜率失败", zap.String("scope", p.Name()), zap.Error(err))
			continue
		}
		result[direction] = h
	}
	return result
}

// publish 发送通知、镜像趋势状态并导出指标
func (p *Pipeline) publish(ctx context.Context, report *TickReport) {
	if p.notifier != nil {
		for _, sig := range report.Emitted {
			if err := p.notifier.SendSignal(ctx, sig); err != nil {
				zap.L().Error("❌ 发送信号通知失败", zap.String("scope", p.Name()), zap.Error(err))
			}
		}
		for _, event := range report.Events {
			if err := p.notifier.SendTrendEvent(ctx, event); err != nil {
				zap.L().Error("❌ 发送趋势通知失败", zap.String("scope", p.Name()), zap.Error(err))
			}
		}
	}

	status := p.trend.Status()
	metrics.ObserveTrend(status)
	if p.state != nil {
		if err := p.state.SaveTrendStatus(ctx, &status); err != nil {
			zap.L().Warn("⚠️ 保存趋势状态失败", zap.String("scope", p.Name()), zap.Error(err))
		}
	}
}

func (p *Pipeline) fail(kind string) {
	metrics.TickErrorsTotal.WithLabelValues(p.scope.Symbol, p.scope.Timeframe, kind).Inc()
	p.statsMutex.Lock()
	p.stats.Failures++
	p.statsMutex.Unlock()
}

// Stats 获取统计信息
func (p *Pipeline) Stats() PipelineStats {
	p.statsMutex.RLock()
	defer p.statsMutex.RUnlock()
	return p.stats
}

// trendSample 指标快照中的EMA50/EMA200样本，任一缺失时返回nil
func trendSample(snap *types.IndicatorSnapshot, price float64, now time.Time) *types.TrendSample {
	if snap == nil || snap.EMA50 == nil || snap.EMA200 == nil {
		return nil
	}
	return &types.TrendSample{
		EMA50:     *snap.EMA50,
		EMA200:    *snap.EMA200,
		Price:     price,
		Timestamp: now,
	}
}
