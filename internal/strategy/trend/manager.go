// Package trend 趋势与开仓模式管理：EMA50/EMA200交叉、胜率反转、连续亏损预警
package trend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"signal-sentry/internal/storage"
	"signal-sentry/pkg/types"
)

// Store 趋势管理器依赖的存储
type Store interface {
	RecentResolved(ctx context.Context, scope types.Scope, direction types.Direction, limit int) (types.DirectionHistory, error)
	SaveTrendChange(ctx context.Context, change *types.TrendChange) error
}

// Manager 单条流水线的趋势状态，读写由RWMutex保护
type Manager struct {
	scope  types.Scope
	config types.TrendConfig
	store  Store

	mu              sync.RWMutex
	history         *storage.BoundedQueue[types.TrendSample]
	currentTrend    types.TrendLabel
	positionMode    types.PositionMode
	lastTrendChange *time.Time
	winRates        map[types.Direction]float64
	failures        map[types.Direction]int
}

// NewManager 创建趋势管理器，初始趋势UNKNOWN，模式BOTH
func NewManager(scope types.Scope, config types.TrendConfig, store Store) *Manager {
	size := config.HistorySize
	if size < 2 {
		size = 2
	}
	return &Manager{
		scope:        scope,
		config:       config,
		store:        store,
		history:      storage.NewBoundedQueue[types.TrendSample](size),
		currentTrend: types.TrendUnknown,
		positionMode: types.ModeBoth,
		winRates:     map[types.Direction]float64{types.DirectionLong: 0, types.DirectionShort: 0},
		failures:     map[types.Direction]int{types.DirectionLong: 0, types.DirectionShort: 0},
	}
}

// PositionMode 当前开仓模式
func (m *Manager) PositionMode() types.PositionMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positionMode
}

// CurrentTrend 当前趋势
func (m *Manager) CurrentTrend() types.TrendLabel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentTrend
}

// ShouldClosePositions 当前模式不允许该方向时应平掉该方向持仓
func (m *Manager) ShouldClosePositions(direction types.Direction) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return shouldClose(m.positionMode, direction)
}

func shouldClose(mode types.PositionMode, direction types.Direction) bool {
	switch direction {
	case types.DirectionLong:
		return mode == types.ModeShortOnly
	case types.DirectionShort:
		return mode == types.ModeLongOnly
	default:
		return false
	}
}

// Update 记录新样本并运行全部检查，按 交叉 > 胜率反转 的优先级调整趋势
// sample为nil表示长周期EMA尚不可用，仅运行胜率相关检查
func (m *Manager) Update(ctx context.Context, sample *types.TrendSample) ([]types.TrendEvent, error) {
	histories, err := m.loadHistories(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var events []types.TrendEvent
	now := time.Now()
	if sample != nil {
		m.history.Push(*sample)
		now = sample.Timestamp
	}

	m.refreshWinRatesLocked(histories)
	signal := m.checkCrossoverLocked()
	if signal == nil {
		signal = m.checkWinRateReversalLocked(histories, now)
	}
	// 胜率信号持续成立时只在趋势变化那一次生效
	if signal != nil && signal.Kind == types.EventWinRateReversal && signal.Trend == m.currentTrend {
		signal = nil
	}
	// EMA仍站在当前趋势一侧时，胜率反转不推翻交叉确定的趋势
	if signal != nil && signal.Kind == types.EventWinRateReversal && m.emaConfirmsTrendLocked() {
		zap.L().Debug("🔒 EMA仍确认当前趋势，忽略胜率反转",
			zap.String("scope", m.scope.String()),
			zap.String("trend", string(m.currentTrend)),
			zap.String("reversal", string(signal.Trend)))
		signal = nil
	}
	if signal != nil {
		events = append(events, *signal)
		if change := m.applyTrendLocked(ctx, signal.Trend, signal.Reason, now); change != nil {
			events = append(events, *change)
		}
	}

	events = append(events, m.checkFailuresLocked(histories, now)...)
	return events, nil
}

// emaConfirmsTrendLocked 最新样本的EMA50/EMA200位置与当前趋势一致
func (m *Manager) emaConfirmsTrendLocked() bool {
	latest, ok := m.history.Latest()
	if !ok {
		return false
	}
	switch m.currentTrend {
	case types.TrendBullish:
		return latest.EMA50 > latest.EMA200
	case types.TrendBearish:
		return latest.EMA50 < latest.EMA200
	default:
		return false
	}
}

// CheckCrossover 检查最近两个样本间的EMA50/EMA200交叉
func (m *Manager) CheckCrossover() *types.TrendEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkCrossoverLocked()
}

// CheckWinRateReversal 根据多空胜率判断趋势反转
func (m *Manager) CheckWinRateReversal(ctx context.Context) (*types.TrendEvent, error) {
	histories, err := m.loadHistories(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkWinRateReversalLocked(histories, time.Now()), nil
}

// CheckConsecutiveFailures 连续亏损预警
func (m *Manager) CheckConsecutiveFailures(ctx context.Context) ([]types.TrendEvent, error) {
	histories, err := m.loadHistories(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkFailuresLocked(histories, time.Now()), nil
}

// Status 只读快照
func (m *Manager) Status() types.TrendStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := types.TrendStatus{
		Symbol:              m.scope.Symbol,
		Timeframe:           m.scope.Timeframe,
		CurrentTrend:        m.currentTrend,
		PositionMode:        m.positionMode,
		WinRates:            make(map[types.Direction]float64, len(m.winRates)),
		ConsecutiveFailures: make(map[types.Direction]int, len(m.failures)),
	}
	if m.lastTrendChange != nil {
		t := *m.lastTrendChange
		status.LastTrendChange = &t
	}
	for k, v := range m.winRates {
		status.WinRates[k] = v
	}
	for k, v := range m.failures {
		status.ConsecutiveFailures[k] = v
	}
	if latest, ok := m.history.Latest(); ok {
		status.EMAStatus = &types.EMAStatus{
			EMA50:     latest.EMA50,
			EMA200:    latest.EMA200,
			Price:     latest.Price,
			Above:     latest.EMA50 > latest.EMA200,
			Timestamp: latest.Timestamp,
		}
	}
	return status
}

func (m *Manager) loadHistories(ctx context.Context) (map[types.Direction]types.DirectionHistory, error) {
	histories := make(map[types.Direction]types.DirectionHistory, 2)
	for _, direction := range []types.Direction{types.DirectionLong, types.DirectionShort} {
		history, err := m.store.RecentResolved(ctx, m.scope, direction, m.config.WinRateWindow)
		if err != nil {
			return nil, fmt.Errorf("读取%s历史结果失败: %w", direction, err)
		}
		histories[direction] = history
	}
	return histories, nil
}

func (m *Manager) checkCrossoverLocked() *types.TrendEvent {
	cur, ok := m.history.Latest()
	if !ok {
		return nil
	}
	prev, ok := m.history.Previous()
	if !ok {
		return nil
	}

	event := &types.TrendEvent{
		Symbol:    m.scope.Symbol,
		Timeframe: m.scope.Timeframe,
		Sample:    &cur,
		Time:      cur.Timestamp,
	}

	switch {
	case prev.EMA50 <= prev.EMA200 && cur.EMA50 > cur.EMA200:
		event.Kind = types.EventGoldenCross
		event.Trend = types.TrendBullish
		event.Reason = fmt.Sprintf("金叉 EMA50 %s 上穿 EMA200 %s", types.FormatPrice(cur.EMA50), types.FormatPrice(cur.EMA200))
		zap.L().Info("🌟 检测到金叉", zap.String("scope", m.scope.String()),
			zap.Float64("ema50", cur.EMA50), zap.Float64("ema200", cur.EMA200))
	case prev.EMA50 >= prev.EMA200 && cur.EMA50 < cur.EMA200:
		event.Kind = types.EventDeathCross
		event.Trend = types.TrendBearish
		event.Reason = fmt.Sprintf("死叉 EMA50 %s 下穿 EMA200 %s", types.FormatPrice(cur.EMA50), types.FormatPrice(cur.EMA200))
		zap.L().Info("☠️ 检测到死叉", zap.String("scope", m.scope.String()),
			zap.Float64("ema50", cur.EMA50), zap.Float64("ema200", cur.EMA200))
	default:
		return nil
	}
	return event
}

func (m *Manager) checkWinRateReversalLocked(histories map[types.Direction]types.DirectionHistory, now time.Time) *types.TrendEvent {
	m.refreshWinRatesLocked(histories)
	longRate := m.winRates[types.DirectionLong]
	shortRate := m.winRates[types.DirectionShort]

	if longRate == 0 && shortRate == 0 {
		return nil
	}

	event := &types.TrendEvent{
		Kind:      types.EventWinRateReversal,
		Symbol:    m.scope.Symbol,
		Timeframe: m.scope.Timeframe,
		LongRate:  longRate,
		ShortRate: shortRate,
		Time:      now,
	}

	switch {
	case longRate >= m.config.BullishThreshold && shortRate <= m.config.BearishThreshold:
		event.Trend = types.TrendBullish
		event.Reason = fmt.Sprintf("胜率反转看多 LONG %.0f%% / SHORT %.0f%%", longRate, shortRate)
	case shortRate >= m.config.BullishThreshold && longRate <= m.config.BearishThreshold:
		event.Trend = types.TrendBearish
		event.Reason = fmt.Sprintf("胜率反转看空 SHORT %.0f%% / LONG %.0f%%", shortRate, longRate)
	default:
		return nil
	}

	zap.L().Info("📊 胜率提示趋势反转",
		zap.String("scope", m.scope.String()),
		zap.String("trend", string(event.Trend)),
		zap.Float64("long_rate", longRate),
		zap.Float64("short_rate", shortRate))
	return event
}

func (m *Manager) checkFailuresLocked(histories map[types.Direction]types.DirectionHistory, now time.Time) []types.TrendEvent {
	var events []types.TrendEvent
	for _, direction := range []types.Direction{types.DirectionLong, types.DirectionShort} {
		losses := histories[direction].ConsecutiveLosses()
		previous := m.failures[direction]
		m.failures[direction] = losses
		// 连败次数未变化时不重复预警
		if m.config.FailureThreshold <= 0 || losses < m.config.FailureThreshold || losses == previous {
			continue
		}

		kind := types.EventLongFailureWarning
		if direction == types.DirectionShort {
			kind = types.EventShortFailureWarning
		}
		zap.L().Warn("⚠️ 连续亏损预警",
			zap.String("scope", m.scope.String()),
			zap.String("direction", string(direction)),
			zap.Int("losses", losses))
		events = append(events, types.TrendEvent{
			Kind:      kind,
			Symbol:    m.scope.Symbol,
			Timeframe: m.scope.Timeframe,
			Direction: direction,
			Losses:    losses,
			Reason:    fmt.Sprintf("%s 连续亏损 %d 次", direction, losses),
			Time:      now,
		})
	}
	return events
}

// applyTrendLocked 切换趋势与开仓模式，模式变化时写入审计记录
func (m *Manager) applyTrendLocked(ctx context.Context, trend types.TrendLabel, reason string, now time.Time) *types.TrendEvent {
	fromTrend, fromMode := m.currentTrend, m.positionMode
	toMode := types.ModeForTrend(trend)
	m.currentTrend = trend

	if toMode == fromMode {
		return nil
	}

	m.positionMode = toMode
	changedAt := now
	m.lastTrendChange = &changedAt

	change := &types.TrendChange{
		Symbol:    m.scope.Symbol,
		Timeframe: m.scope.Timeframe,
		FromTrend: fromTrend,
		ToTrend:   trend,
		FromMode:  fromMode,
		ToMode:    toMode,
		Reason:    reason,
		ChangedAt: changedAt,
	}
	var sample *types.TrendSample
	if latest, ok := m.history.Latest(); ok {
		change.EMA50 = latest.EMA50
		change.EMA200 = latest.EMA200
		change.Price = latest.Price
		sample = &latest
	}

	zap.L().Info("🔄 开仓模式切换",
		zap.String("scope", m.scope.String()),
		zap.String("from", string(fromMode)),
		zap.String("to", string(toMode)),
		zap.String("reason", reason))

	if err := m.store.SaveTrendChange(ctx, change); err != nil {
		zap.L().Error("❌ 保存趋势变更失败", zap.String("scope", m.scope.String()), zap.Error(err))
	}

	var closeDirections []types.Direction
	for _, direction := range []types.Direction{types.DirectionLong, types.DirectionShort} {
		if shouldClose(toMode, direction) {
			closeDirections = append(closeDirections, direction)
		}
	}

	return &types.TrendEvent{
		Kind:      types.EventModeChange,
		Symbol:    m.scope.Symbol,
		Timeframe: m.scope.Timeframe,
		Trend:     trend,
		Mode:      toMode,
		Reason:    reason,
		Close:     closeDirections,
		Sample:    sample,
		Time:      changedAt,
	}
}

func (m *Manager) refreshWinRatesLocked(histories map[types.Direction]types.DirectionHistory) {
	for _, direction := range []types.Direction{types.DirectionLong, types.DirectionShort} {
		m.winRates[direction] = percentWinRate(histories[direction])
	}
}

// percentWinRate 百分比胜率，没有记录时为0
func percentWinRate(history types.DirectionHistory) float64 {
	rate, ok := history.WinRate()
	if !ok {
		return 0
	}
	return rate * 100
}
