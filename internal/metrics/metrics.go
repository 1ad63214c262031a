package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"signal-sentry/pkg/types"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sentry_ticks_total", Help: "Pipeline ticks executed"},
		[]string{"symbol", "timeframe"},
	)
	TickErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sentry_tick_errors_total", Help: "Pipeline tick failures by kind"},
		[]string{"symbol", "timeframe", "kind"},
	)
	TickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "sentry_tick_duration_seconds", Help: "Pipeline tick latency", Buckets: prometheus.DefBuckets},
		[]string{"symbol", "timeframe"},
	)
	SignalsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sentry_signals_emitted_total", Help: "Signals persisted and emitted"},
		[]string{"symbol", "timeframe", "signal_type", "direction"},
	)
	SignalsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sentry_signals_skipped_total", Help: "Candidate signals dropped before persistence"},
		[]string{"symbol", "timeframe", "reason"},
	)
	OutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sentry_signal_outcomes_total", Help: "Resolved signal outcomes"},
		[]string{"symbol", "timeframe", "outcome"},
	)
	PositionMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "sentry_position_mode", Help: "Allowed position mode: 1 long only, -1 short only, 0 both"},
		[]string{"symbol", "timeframe"},
	)
	WinRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "sentry_win_rate_percent", Help: "Recent win rate per direction"},
		[]string{"symbol", "timeframe", "direction"},
	)
	ReportWinRate = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "sentry_report_win_rate_percent", Help: "Win rate of the latest performance report"},
	)
	ReportProfitFactor = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "sentry_report_profit_factor", Help: "Profit factor of the latest performance report"},
	)
	ReportPending = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "sentry_report_pending_signals", Help: "Pending signals in the latest performance report"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		TickErrorsTotal,
		TickDuration,
		SignalsEmittedTotal,
		SignalsSkippedTotal,
		OutcomesTotal,
		PositionMode,
		WinRate,
		ReportWinRate,
		ReportProfitFactor,
		ReportPending,
	)
}

// ObserveTrend 导出趋势状态
func ObserveTrend(status types.TrendStatus) {
	PositionMode.WithLabelValues(status.Symbol, status.Timeframe).Set(ModeValue(status.PositionMode))
	for direction, rate := range status.WinRates {
		WinRate.WithLabelValues(status.Symbol, status.Timeframe, string(direction)).Set(rate)
	}
}

// ObserveReport 导出统计报告
func ObserveReport(report *types.PerformanceReport) {
	ReportWinRate.Set(report.WinRate)
	ReportProfitFactor.Set(report.ProfitFactor)
	ReportPending.Set(float64(report.Pending))
}

// ModeValue 开仓模式的数值表示
func ModeValue(mode types.PositionMode) float64 {
	switch mode {
	case types.ModeLongOnly:
		return 1
	case types.ModeShortOnly:
		return -1
	default:
		return 0
	}
}

// Serve 启动 /metrics 服务
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Error("❌ 指标服务异常退出", zap.String("addr", addr), zap.Error(err))
		}
	}()
	zap.L().Info("📈 指标服务已启动", zap.String("addr", addr))
	return srv
}
