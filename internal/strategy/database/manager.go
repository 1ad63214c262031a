package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"signal-sentry/pkg/types"
)

// Manager 信号存储，支持MySQL与SQLite
// 所有方法并发安全，由多条流水线共享
type Manager struct {
	db     *gorm.DB
	driver string
}

// NewManager 按配置选择驱动并完成迁移
func NewManager(config types.DatabaseConfig) (*Manager, error) {
	switch config.Driver {
	case "mysql":
		return openMySQL(config.MySQL)
	case "sqlite", "":
		return OpenSQLite(config.SQLite.Path)
	default:
		return nil, fmt.Errorf("%w: 不支持的数据库驱动 %q", types.ErrInvalidConfig, config.Driver)
	}
}

func openMySQL(config types.MySQLConfig) (*Manager, error) {
	// clientFoundRows 保证条件更新按匹配行数返回，而不是实际变化行数
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)

	manager, err := open(mysql.Open(dsn), "mysql", config.MaxIdleConns, config.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	zap.L().Info("✅ MySQL数据库连接成功",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("database", config.Database))

	return manager, nil
}

// OpenSQLite 打开SQLite数据库，path为":memory:"时使用内存库
func OpenSQLite(path string) (*Manager, error) {
	if path == "" {
		path = ":memory:"
	}

	// SQLite单写者，内存库每个连接各自独立，只保留一个连接
	manager, err := open(sqlite.Open(path), "sqlite", 1, 1)
	if err != nil {
		return nil, fmt.Errorf("打开SQLite失败 %s: %w", path, err)
	}

	zap.L().Info("✅ SQLite数据库已就绪", zap.String("path", path))
	return manager, nil
}

func open(dialector gorm.Dialector, driver string, maxIdle, maxOpen int) (*Manager, error) {
	gormConfig := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %w", err)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	manager := &Manager{db: db, driver: driver}
	if err := manager.AutoMigrate(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}
	return manager, nil
}

// AutoMigrate 自动迁移表结构
func (m *Manager) AutoMigrate() error {
	return m.db.AutoMigrate(
		&TradingSignal{},
		&TrendChange{},
		&PerformanceStats{},
		&KLine{},
	)
}

// Driver 当前驱动名
func (m *Manager) Driver() string {
	return m.driver
}

// SaveSignal 以PENDING状态保存新信号，成功后回填ID
func (m *Manager) SaveSignal(ctx context.Context, sig *types.Signal) error {
	if sig.Outcome == "" {
		sig.Outcome = types.OutcomePending
	}
	if sig.HighestPrice == 0 {
		sig.HighestPrice = sig.EntryPrice
	}
	if sig.LowestPrice == 0 {
		sig.LowestPrice = sig.EntryPrice
	}

	row := toSignalModel(sig)
	row.ID = 0
	if err := m.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("保存信号失败 %s %s: %w", sig.Symbol, sig.SignalType, err)
	}
	sig.ID = row.ID
	return nil
}

// OpenSignals 某作用域下所有PENDING信号，按时间正序
func (m *Manager) OpenSignals(ctx context.Context, scope types.Scope) ([]*types.Signal, error) {
	var rows []TradingSignal
	query := m.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ? AND outcome = ?", scope.Symbol, scope.Timeframe, string(types.OutcomePending))
	if scope.Strategy != "" {
		query = query.Where("strategy_name = ?", scope.Strategy)
	}
	if err := query.Order("signal_time ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询未结算信号失败 %s: %w", scope, err)
	}
	return toSignals(rows), nil
}

// UpdateSignalTracking 更新追踪状态与结果
// 仅当记录仍为PENDING时才写入，已终结的记录返回 types.ErrAlreadyResolved
func (m *Manager) UpdateSignalTracking(ctx context.Context, sig *types.Signal) error {
	var checkedAt *time.Time
	if sig.CheckedAt != nil {
		t := sig.CheckedAt.UTC()
		checkedAt = &t
	}

	result := m.db.WithContext(ctx).Model(&TradingSignal{}).
		Where("id = ? AND outcome = ?", sig.ID, string(types.OutcomePending)).
		Updates(map[string]interface{}{
			"actual_high":     sig.HighestPrice,
			"actual_low":      sig.LowestPrice,
			"outcome":         string(sig.Outcome),
			"target_hit":      sig.TargetHit,
			"stop_hit":        sig.StopHit,
			"max_gain_pct":    sig.MaxGainPct,
			"max_loss_pct":    sig.MaxLossPct,
			"final_result":    sig.FinalResult,
			"exit_reason":     sig.ExitReason,
			"strategy_profit": sig.StrategyProfit,
			"checked_at":      checkedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("更新信号追踪失败 id=%d: %w", sig.ID, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := m.db.WithContext(ctx).Model(&TradingSignal{}).Where("id = ?", sig.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("查询信号失败 id=%d: %w", sig.ID, err)
	}
	if count == 0 {
		return fmt.Errorf("信号不存在 id=%d: %w", sig.ID, gorm.ErrRecordNotFound)
	}
	return fmt.Errorf("信号 id=%d: %w", sig.ID, types.ErrAlreadyResolved)
}

// GetSignal 按ID读取
func (m *Manager) GetSignal(ctx context.Context, id uint) (*types.Signal, error) {
	var row TradingSignal
	if err := m.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, err
	}
	return row.toSignal(), nil
}

// RecentResolved 某方向最近limit笔WIN/LOSS结果，按结算时间倒序
func (m *Manager) RecentResolved(ctx context.Context, scope types.Scope, direction types.Direction, limit int) (types.DirectionHistory, error) {
	history := types.DirectionHistory{Direction: direction}

	var outcomes []string
	query := m.db.WithContext(ctx).Model(&TradingSignal{}).
		Where("symbol = ? AND timeframe = ? AND direction = ?", scope.Symbol, scope.Timeframe, string(direction)).
		Where("outcome IN ?", []string{string(types.OutcomeWin), string(types.OutcomeLoss)})
	if scope.Strategy != "" {
		query = query.Where("strategy_name = ?", scope.Strategy)
	}
	err := query.Order("checked_at DESC").Order("id DESC").
		Limit(limit).
		Pluck("outcome", &outcomes).Error
	if err != nil {
		return history, fmt.Errorf("查询历史结果失败 %s %s: %w", scope, direction, err)
	}

	history.Outcomes = make([]types.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		history.Outcomes = append(history.Outcomes, types.Outcome(o))
	}
	return history, nil
}

// SaveTrendChange 追加开仓模式变更审计记录
func (m *Manager) SaveTrendChange(ctx context.Context, change *types.TrendChange) error {
	row := &TrendChange{
		Symbol:    change.Symbol,
		Timeframe: change.Timeframe,
		FromTrend: string(change.FromTrend),
		ToTrend:   string(change.ToTrend),
		FromMode:  string(change.FromMode),
		ToMode:    string(change.ToMode),
		Reason:    change.Reason,
		EMA50:     change.EMA50,
		EMA200:    change.EMA200,
		Price:     change.Price,
		ChangedAt: change.ChangedAt.UTC(),
	}
	if err := m.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("保存趋势变更失败 %s: %w", change.Symbol, err)
	}
	return nil
}

// TrendChanges 某作用域的审计记录，按时间倒序
func (m *Manager) TrendChanges(ctx context.Context, symbol, timeframe string, limit int) ([]types.TrendChange, error) {
	var rows []TrendChange
	err := m.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("changed_at DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	changes := make([]types.TrendChange, 0, len(rows))
	for _, r := range rows {
		changes = append(changes, types.TrendChange{
			Symbol:    r.Symbol,
			Timeframe: r.Timeframe,
			FromTrend: types.TrendLabel(r.FromTrend),
			ToTrend:   types.TrendLabel(r.ToTrend),
			FromMode:  types.PositionMode(r.FromMode),
			ToMode:    types.PositionMode(r.ToMode),
			Reason:    r.Reason,
			EMA50:     r.EMA50,
			EMA200:    r.EMA200,
			Price:     r.Price,
			ChangedAt: r.ChangedAt,
		})
	}
	return changes, nil
}

// GetUncheckedSignals 最近maxAge内仍为PENDING的信号
func (m *Manager) GetUncheckedSignals(ctx context.Context, maxAge time.Duration) ([]*types.Signal, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	var rows []TradingSignal
	err := m.db.WithContext(ctx).
		Where("outcome = ? AND signal_time >= ?", string(types.OutcomePending), cutoff).
		Order("signal_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询待追踪信号失败: %w", err)
	}
	return toSignals(rows), nil
}

// GetRecentSignals 最近limit条信号，按时间倒序
func (m *Manager) GetRecentSignals(ctx context.Context, limit int) ([]*types.Signal, error) {
	var rows []TradingSignal
	err := m.db.WithContext(ctx).
		Order("signal_time DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询最近信号失败: %w", err)
	}
	return toSignals(rows), nil
}

// BatchSaveKlines 批量归档K线，重复的(symbol,timeframe,open_time)覆盖为最新值
func (m *Manager) BatchSaveKlines(ctx context.Context, klines []*types.KLine) error {
	if len(klines) == 0 {
		return nil
	}

	rows := make([]KLine, 0, len(klines))
	for _, k := range klines {
		rows = append(rows, KLine{
			Symbol:    k.Symbol,
			Timeframe: k.Interval,
			OpenTime:  k.OpenTime.UnixMilli(),
			CloseTime: k.CloseTime.UnixMilli(),
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		})
	}

	err := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "timeframe"}, {Name: "open_time"}},
			DoUpdates: clause.AssignmentColumns([]string{"close_time", "open", "high", "low", "close", "volume"}),
		}).
		CreateInBatches(rows, 100).Error
	if err != nil {
		return fmt.Errorf("批量保存K线失败: %w", err)
	}

	zap.L().Debug("✅ 批量保存K线数据完成",
		zap.Int("count", len(klines)),
		zap.String("symbol", klines[0].Symbol))
	return nil
}

// GetKLines 读取最近limit根归档K线，按时间正序
func (m *Manager) GetKLines(ctx context.Context, symbol, timeframe string, limit int) ([]*types.KLine, error) {
	var rows []KLine
	err := m.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("open_time DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	klines := make([]*types.KLine, len(rows))
	for i, r := range rows {
		klines[len(rows)-1-i] = &types.KLine{
			Symbol:    r.Symbol,
			OpenTime:  time.UnixMilli(r.OpenTime).UTC(),
			CloseTime: time.UnixMilli(r.CloseTime).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
			Interval:  r.Timeframe,
		}
	}
	return klines, nil
}

// Close 关闭数据库连接
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接健康状态
func (m *Manager) Health(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// IsAlreadyResolved 错误是否为重复结算
func IsAlreadyResolved(err error) bool {
	return errors.Is(err, types.ErrAlreadyResolved)
}
