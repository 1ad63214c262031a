package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"signal-sentry/internal/metrics"
	"signal-sentry/internal/notifier"
	"signal-sentry/internal/scheduler"
	"signal-sentry/internal/storage"
	"signal-sentry/internal/strategy/database"
	"signal-sentry/internal/strategy/engine"
	"signal-sentry/internal/strategy/fetcher"
	"signal-sentry/internal/strategy/monitor"
	"signal-sentry/internal/strategy/websocket"
	"signal-sentry/pkg/types"
)

// App 应用程序管理器
type App struct {
	config *types.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	db        *database.Manager
	state     *storage.StateManager
	stream    *websocket.StreamSource
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	monitor   *monitor.PerformanceMonitor
	metrics   *http.Server
}

// NewApp 创建应用程序实例并装配各模块
func NewApp(config *types.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}

	db, err := database.NewManager(config.Database)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	app.db = db
	app.state = storage.NewStateManager(config.Redis)

	// 行情源：REST 或 websocket（REST兜底）
	var source engine.MarketSource
	rest := fetcher.NewOKXClient(config.Network)
	source = rest
	if config.WebSocket.Enabled {
		app.stream = websocket.NewStreamSource(config.WebSocket, config.Network.Proxy, rest)
		source = app.stream
	}

	app.engine = engine.NewEngine(config.Strategy, config.Network, engine.Dependencies{
		Source:   source,
		Store:    db,
		State:    app.state,
		Notifier: notifier.New(config.DingTalk, config.Network),
	})

	jobs := make([]scheduler.Job, 0, len(app.engine.Pipelines()))
	for _, p := range app.engine.Pipelines() {
		jobs = append(jobs, p)
	}
	period := config.Strategy.TickInterval
	if period <= 0 {
		period = fetcher.IntervalDuration(config.Strategy.Timeframe)
	}
	app.scheduler = scheduler.NewScheduler(jobs, period)

	app.monitor = monitor.NewPerformanceMonitor(db, app.engine, config.Monitor, config.Strategy)

	return app, nil
}

// Start 启动应用程序
func (app *App) Start() error {
	zap.L().Info("🚀 Signal Sentry 启动中...",
		zap.String("strategy", app.config.Strategy.Name),
		zap.String("version", app.config.Strategy.Version),
		zap.Strings("symbols", app.config.Strategy.Symbols),
		zap.String("timeframe", app.config.Strategy.Timeframe),
		zap.String("session_id", app.engine.SessionID()))

	if err := app.db.Health(app.ctx); err != nil {
		return fmt.Errorf("数据库不可用: %w", err)
	}
	zap.L().Info("💾 存储状态",
		zap.String("driver", app.db.Driver()),
		zap.Any("state", app.state.GetStats(app.ctx)))

	if app.config.Metrics.Enabled {
		app.metrics = metrics.Serve(app.config.Metrics.Addr)
	}

	// 预热价格窗口
	if err := app.engine.Bootstrap(app.ctx); err != nil {
		return fmt.Errorf("预热历史数据失败: %w", err)
	}

	if app.stream != nil {
		if err := app.stream.Start(app.ctx, app.config.Strategy.Symbols, app.config.Strategy.Timeframe); err != nil {
			zap.L().Warn("⚠️ WebSocket连接失败，使用REST轮询", zap.Error(err))
		}
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.scheduler.Start(app.ctx)
	}()

	app.monitor.Start()

	zap.L().Info("✅ Signal Sentry 已启动")
	return nil
}

// Stop 停止应用程序
func (app *App) Stop() {
	zap.L().Info("🛑 收到停止信号，正在优雅关闭...")
	app.cancel()

	// 等待所有goroutine结束，最多等待30秒
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 强制关闭超时")
	}

	app.monitor.PrintFormattedReport()
	app.monitor.Stop()

	if app.stream != nil {
		if err := app.stream.Close(); err != nil {
			zap.L().Warn("⚠️ 关闭WebSocket失败", zap.Error(err))
		}
	}

	if app.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = app.metrics.Shutdown(shutdownCtx)
		cancel()
	}

	if err := app.state.Close(); err != nil {
		zap.L().Warn("⚠️ 关闭Redis失败", zap.Error(err))
	}
	if err := app.db.Close(); err != nil {
		zap.L().Warn("⚠️ 关闭数据库失败", zap.Error(err))
	}

	zap.L().Info("✅ Signal Sentry 已安全关闭")
}

// WaitForShutdown 等待关闭信号
func (app *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
