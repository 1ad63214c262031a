package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job 可被调度的流水线
type Job interface {
	Name() string
	Tick(ctx context.Context) error
}

// Scheduler 调度器：对齐到K线周期，每个周期并发触发所有流水线并等待完成
type Scheduler struct {
	jobs   []Job
	period time.Duration
	now    func() time.Time
}

// NewScheduler 创建调度器，period为K线周期或固定tick间隔
func NewScheduler(jobs []Job, period time.Duration) *Scheduler {
	if period <= 0 {
		period = time.Minute
	}
	return &Scheduler{
		jobs:   jobs,
		period: period,
		now:    time.Now,
	}
}

// Start 阻塞运行直到ctx取消
func (s *Scheduler) Start(ctx context.Context) {
	zap.L().Info("🚀 调度器启动中...", zap.Int("jobs", len(s.jobs)), zap.Duration("period", s.period))

	for {
		next := NextTickTime(s.now(), s.period)
		wait := next.Sub(s.now())

		zap.L().Info("⏰ 下次分析时间",
			zap.String("next", next.Format("15:04:05")),
			zap.Duration("wait", wait.Truncate(time.Millisecond)))

		select {
		case <-ctx.Done():
			zap.L().Info("📴 调度器已停止")
			return
		case <-time.After(wait):
		}

		s.RunOnce(ctx)
	}
}

// RunOnce 并发执行一次所有流水线
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					zap.L().Error("❌ 流水线panic", zap.String("job", job.Name()), zap.Any("error", r))
				}
			}()

			if err := job.Tick(ctx); err != nil {
				zap.L().Warn("⚠️ 流水线tick失败", zap.String("job", job.Name()), zap.Error(err))
			}
		}(job)
	}
	wg.Wait()

	zap.L().Debug("--- 分析任务完成 ---",
		zap.Int("jobs", len(s.jobs)),
		zap.Duration("elapsed", time.Since(start)))
}

// NextTickTime 下一个与period对齐的时间点（严格晚于now）
func NextTickTime(now time.Time, period time.Duration) time.Time {
	return now.Truncate(period).Add(period)
}
