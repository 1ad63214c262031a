package database

import (
	"context"
	"fmt"
	"math"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"signal-sentry/pkg/types"
)

func (m *Manager) filtered(ctx context.Context, filter types.StatsFilter) *gorm.DB {
	query := m.db.WithContext(ctx).Model(&TradingSignal{})
	if filter.Symbol != "" {
		query = query.Where("symbol = ?", filter.Symbol)
	}
	if filter.Timeframe != "" {
		query = query.Where("timeframe = ?", filter.Timeframe)
	}
	if filter.Strategy != "" {
		query = query.Where("strategy_name = ?", filter.Strategy)
	}
	if !filter.Since.IsZero() {
		query = query.Where("signal_time >= ?", filter.Since.UTC())
	}
	return query
}

// GetStatistics 统计信号表现并写入一条performance_stats快照
func (m *Manager) GetStatistics(ctx context.Context, filter types.StatsFilter) (*types.PerformanceReport, error) {
	var rows []TradingSignal
	if err := m.filtered(ctx, filter).Order("signal_time ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("统计查询失败: %w", err)
	}

	report := buildReport(rows, time.Now().UTC())

	snapshot := snapshotRow(report, rows, filter)
	if err := m.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		zap.L().Warn("⚠️ 保存统计快照失败", zap.Error(err))
	}

	return report, nil
}

func buildReport(rows []TradingSignal, now time.Time) *types.PerformanceReport {
	report := &types.PerformanceReport{
		GeneratedAt:  now,
		Total:        len(rows),
		BySignalType: make(map[string]*types.SignalTypeStats),
	}

	var grossProfit, grossLoss float64
	resolved := 0
	for i := range rows {
		row := &rows[i]
		outcome := types.Outcome(row.Outcome)

		switch outcome {
		case types.OutcomeWin:
			report.Wins++
		case types.OutcomeLoss:
			report.Losses++
		case types.OutcomeTimeout:
			report.Timeouts++
		case types.OutcomeNeutral:
			report.Neutral++
			continue
		default:
			report.Pending++
			continue
		}

		resolved++
		report.TotalProfit += row.StrategyProfit
		if row.StrategyProfit > 0 {
			grossProfit += row.StrategyProfit
		} else {
			grossLoss += -row.StrategyProfit
		}

		stats, ok := report.BySignalType[row.SignalType]
		if !ok {
			stats = &types.SignalTypeStats{SignalType: row.SignalType}
			report.BySignalType[row.SignalType] = stats
		}
		stats.Total++
		stats.AvgProfit += row.StrategyProfit
		switch outcome {
		case types.OutcomeWin:
			stats.Wins++
		case types.OutcomeLoss:
			stats.Losses++
		}

		if outcome == types.OutcomeWin || outcome == types.OutcomeLoss {
			if report.Best == nil || row.StrategyProfit > report.Best.StrategyProfit {
				report.Best = row.toSignal()
			}
			if report.Worst == nil || row.StrategyProfit < report.Worst.StrategyProfit {
				report.Worst = row.toSignal()
			}
		}
	}

	if decided := report.Wins + report.Losses; decided > 0 {
		report.WinRate = float64(report.Wins) / float64(decided) * 100
	}
	if resolved > 0 {
		report.AvgProfit = report.TotalProfit / float64(resolved)
	}
	if grossLoss > 0 {
		report.ProfitFactor = grossProfit / grossLoss
	}

	for _, stats := range report.BySignalType {
		if stats.Total > 0 {
			stats.AvgProfit /= float64(stats.Total)
		}
		if decided := stats.Wins + stats.Losses; decided > 0 {
			stats.WinRate = float64(stats.Wins) / float64(decided) * 100
		}
	}

	return report
}

func snapshotRow(report *types.PerformanceReport, rows []TradingSignal, filter types.StatsFilter) *PerformanceStats {
	snapshot := &PerformanceStats{
		CalculatedAt:   report.GeneratedAt,
		Symbol:         filter.Symbol,
		Timeframe:      filter.Timeframe,
		TotalSignals:   report.Total,
		CheckedSignals: report.Wins + report.Losses + report.Timeouts,
		Wins:           report.Wins,
		Losses:         report.Losses,
		Pending:        report.Pending,
		WinRate:        report.WinRate,
		ProfitFactor:   report.ProfitFactor,
	}

	var gain, loss float64
	for _, row := range rows {
		if row.HasConflict {
			snapshot.ConflictingSignals++
		}
		switch types.Outcome(row.Outcome) {
		case types.OutcomeWin:
			gain += row.MaxGainPct
		case types.OutcomeLoss:
			loss += math.Abs(row.MaxLossPct)
		}
	}
	if report.Wins > 0 {
		snapshot.AvgGain = gain / float64(report.Wins)
	}
	if report.Losses > 0 {
		snapshot.AvgLoss = loss / float64(report.Losses)
	}

	best, worst := -1.0, 101.0
	for signalType, stats := range report.BySignalType {
		if stats.Wins+stats.Losses == 0 {
			continue
		}
		if stats.WinRate > best {
			best = stats.WinRate
			snapshot.BestSignalType = signalType
		}
		if stats.WinRate < worst {
			worst = stats.WinRate
			snapshot.WorstSignalType = signalType
		}
	}

	if data, err := json.Marshal(report); err == nil {
		snapshot.JSONData = string(data)
	}
	return snapshot
}

// breakdownRow 分组聚合扫描结果
type breakdownRow struct {
	StrategyName    string
	SignalQuality   string
	MarketCondition string
	Total           int64
	Wins            int64
	Losses          int64
	AvgProfit       float64
}

// GetStrategyComparison 按策略、信号质量、市场状态分组统计已结算信号
func (m *Manager) GetStrategyComparison(ctx context.Context, since time.Time) ([]types.StrategyBreakdown, error) {
	var rows []breakdownRow
	err := m.filtered(ctx, types.StatsFilter{Since: since}).
		Select(`strategy_name, signal_quality, market_condition,
			COUNT(*) AS total,
			SUM(CASE WHEN outcome = 'WIN' THEN 1 ELSE 0 END) AS wins,
			SUM(CASE WHEN outcome = 'LOSS' THEN 1 ELSE 0 END) AS losses,
			AVG(strategy_profit) AS avg_profit`).
		Where("outcome <> ?", string(types.OutcomePending)).
		Group("strategy_name, signal_quality, market_condition").
		Order("strategy_name, signal_quality, market_condition").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("策略对比查询失败: %w", err)
	}

	result := make([]types.StrategyBreakdown, 0, len(rows))
	for _, r := range rows {
		b := types.StrategyBreakdown{
			StrategyName:    r.StrategyName,
			SignalQuality:   r.SignalQuality,
			MarketCondition: r.MarketCondition,
			Total:           int(r.Total),
			Wins:            int(r.Wins),
			Losses:          int(r.Losses),
			AvgProfit:       r.AvgProfit,
		}
		if decided := b.Wins + b.Losses; decided > 0 {
			b.WinRate = float64(b.Wins) / float64(decided) * 100
		}
		result = append(result, b)
	}
	return result, nil
}

// LatestSnapshot 最近一次统计快照
func (m *Manager) LatestSnapshot(ctx context.Context) (*PerformanceStats, error) {
	var row PerformanceStats
	if err := m.db.WithContext(ctx).Order("calculated_at DESC").Order("id DESC").First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
