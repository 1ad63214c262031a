package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"signal-sentry/internal/metrics"
	"signal-sentry/internal/strategy/engine"
	"signal-sentry/pkg/types"
)

// ReportStore 统计查询
type ReportStore interface {
	GetStatistics(ctx context.Context, filter types.StatsFilter) (*types.PerformanceReport, error)
	GetStrategyComparison(ctx context.Context, since time.Time) ([]types.StrategyBreakdown, error)
	GetUncheckedSignals(ctx context.Context, maxAge time.Duration) ([]*types.Signal, error)
	GetRecentSignals(ctx context.Context, limit int) ([]*types.Signal, error)
}

// recentLimit 报告中展示的最近信号条数
const recentLimit = 5

// StatsSource 引擎运行状态
type StatsSource interface {
	Stats() map[string]engine.PipelineStats
	TrendStatuses() []types.TrendStatus
}

// PerformanceMonitor 策略性能监控器：定期统计胜率与盈亏并导出指标
type PerformanceMonitor struct {
	store    ReportStore
	engine   StatsSource
	config   types.MonitorConfig
	strategy string
	maxAge   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	startTime  time.Time
	last       *types.PerformanceReport
	breakdowns []types.StrategyBreakdown
	recent     []*types.Signal
}

// NewPerformanceMonitor 创建性能监控器
func NewPerformanceMonitor(store ReportStore, source StatsSource, config types.MonitorConfig, strategy types.StrategyConfig) *PerformanceMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &PerformanceMonitor{
		store:     store,
		engine:    source,
		config:    config,
		strategy:  strategy.Name,
		maxAge:    strategy.Tracker.UncheckedMaxAge,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Start 启动报告循环
func (pm *PerformanceMonitor) Start() {
	zap.L().Info("📊 启动策略性能监控器", zap.Duration("interval", pm.config.ReportInterval))

	pm.wg.Add(1)
	go pm.reportLoop()
}

func (pm *PerformanceMonitor) reportLoop() {
	defer pm.wg.Done()

	ticker := time.NewTicker(pm.config.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			if _, err := pm.GenerateReport(pm.ctx); err != nil {
				zap.L().Error("❌ 生成性能报告失败", zap.Error(err))
			}
		}
	}
}

// GenerateReport 统计最近 stats_hours 的信号表现，写入快照并导出指标
func (pm *PerformanceMonitor) GenerateReport(ctx context.Context) (*types.PerformanceReport, error) {
	since := time.Now().UTC().Add(-time.Duration(pm.config.StatsHours) * time.Hour)

	report, err := pm.store.GetStatistics(ctx, types.StatsFilter{Strategy: pm.strategy, Since: since})
	if err != nil {
		return nil, fmt.Errorf("统计信号表现失败: %w", err)
	}

	breakdowns, err := pm.store.GetStrategyComparison(ctx, since)
	if err != nil {
		zap.L().Warn("⚠️ 策略分组统计失败", zap.Error(err))
	}

	unchecked, err := pm.store.GetUncheckedSignals(ctx, pm.maxAge)
	if err != nil {
		zap.L().Warn("⚠️ 查询未结算信号失败", zap.Error(err))
	}

	recent, err := pm.store.GetRecentSignals(ctx, recentLimit)
	if err != nil {
		zap.L().Warn("⚠️ 查询最近信号失败", zap.Error(err))
	}

	metrics.ObserveReport(report)

	pm.mu.Lock()
	pm.last = report
	pm.breakdowns = breakdowns
	pm.recent = recent
	pm.mu.Unlock()

	zap.L().Info("📈 策略性能报告",
		zap.Duration("run_time", time.Since(pm.startTime).Truncate(time.Second)),
		zap.Int("total", report.Total),
		zap.Int("wins", report.Wins),
		zap.Int("losses", report.Losses),
		zap.Int("timeouts", report.Timeouts),
		zap.Int("pending", report.Pending),
		zap.Int("unchecked", len(unchecked)),
		zap.String("win_rate", percent(report.WinRate)),
		zap.String("avg_profit", percent(report.AvgProfit)),
		zap.String("profit_factor", fixed(report.ProfitFactor)))

	for _, b := range breakdowns {
		zap.L().Info("📊 分组表现",
			zap.String("strategy", b.StrategyName),
			zap.String("quality", b.SignalQuality),
			zap.String("market", b.MarketCondition),
			zap.Int("total", b.Total),
			zap.String("win_rate", percent(b.WinRate)),
			zap.String("avg_profit", percent(b.AvgProfit)))
	}

	return report, nil
}

// LastReport 最近一次报告
func (pm *PerformanceMonitor) LastReport() *types.PerformanceReport {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.last
}

// PrintFormattedReport 打印格式化报告
func (pm *PerformanceMonitor) PrintFormattedReport() {
	pm.mu.RLock()
	report, breakdowns, recent := pm.last, pm.breakdowns, pm.recent
	pm.mu.RUnlock()

	var statuses []types.TrendStatus
	if pm.engine != nil {
		statuses = pm.engine.TrendStatuses()
	}
	fmt.Print(FormatReport(report, breakdowns, recent, statuses, time.Since(pm.startTime)))
}

// FormatReport 格式化报告文本
func FormatReport(report *types.PerformanceReport, breakdowns []types.StrategyBreakdown, recent []*types.Signal, statuses []types.TrendStatus, runTime time.Duration) string {
	var sb strings.Builder

	sb.WriteString("\n" + strings.Repeat("=", 80) + "\n")
	sb.WriteString("📈 剥头皮策略性能报告\n")
	sb.WriteString(strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&sb, "🕐 运行时间: %s\n", runTime.Truncate(time.Second))

	if report == nil {
		sb.WriteString("暂无统计数据\n")
		sb.WriteString(strings.Repeat("=", 80) + "\n\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "🎯 总信号数: %d (待结算 %d)\n", report.Total, report.Pending)
	fmt.Fprintf(&sb, "✅ 盈利: %d  ❌ 亏损: %d  ⏰ 超时: %d\n", report.Wins, report.Losses, report.Timeouts)
	fmt.Fprintf(&sb, "⭐ 胜率: %s\n", percent(report.WinRate))
	fmt.Fprintf(&sb, "💰 平均收益: %s  累计收益: %s\n", percent(report.AvgProfit), percent(report.TotalProfit))
	fmt.Fprintf(&sb, "⚖️ 盈亏比: %s\n", fixed(report.ProfitFactor))

	if len(report.BySignalType) > 0 {
		sb.WriteString(strings.Repeat("-", 80) + "\n")
		signalTypes := make([]string, 0, len(report.BySignalType))
		for t := range report.BySignalType {
			signalTypes = append(signalTypes, t)
		}
		sort.Strings(signalTypes)
		for _, t := range signalTypes {
			s := report.BySignalType[t]
			fmt.Fprintf(&sb, "💹 %s: %d信号 胜率 %s 平均 %s\n", t, s.Total, percent(s.WinRate), percent(s.AvgProfit))
		}
	}

	if len(breakdowns) > 0 {
		sb.WriteString(strings.Repeat("-", 80) + "\n")
		for _, b := range breakdowns {
			fmt.Fprintf(&sb, "🧩 %s/%s/%s: %d信号 胜率 %s\n",
				b.StrategyName, b.SignalQuality, b.MarketCondition, b.Total, percent(b.WinRate))
		}
	}

	if len(recent) > 0 {
		sb.WriteString(strings.Repeat("-", 80) + "\n")
		for _, s := range recent {
			fmt.Fprintf(&sb, "🕑 %s %s %s %s @ %s → %s\n",
				s.Timestamp.Format("01-02 15:04"), s.Symbol, s.SignalType, s.Direction,
				types.FormatPrice(s.EntryPrice), s.Outcome)
		}
	}

	if len(statuses) > 0 {
		sb.WriteString(strings.Repeat("-", 80) + "\n")
		for _, s := range statuses {
			fmt.Fprintf(&sb, "🧭 %s %s: 趋势 %s 模式 %s\n", s.Symbol, s.Timeframe, s.CurrentTrend, s.PositionMode)
		}
	}

	sb.WriteString(strings.Repeat("=", 80) + "\n\n")
	return sb.String()
}

// Stop 停止性能监控
func (pm *PerformanceMonitor) Stop() {
	zap.L().Info("🛑 停止策略性能监控器")
	pm.cancel()
	pm.wg.Wait()
}

func percent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

func fixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
