package gate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CooldownStore 冷却时间戳的外部持久化（Redis或内存）
type CooldownStore interface {
	SaveCooldowns(ctx context.Context, scope string, stamps map[string]time.Time) error
	LoadCooldowns(ctx context.Context, scope string) (map[string]time.Time, error)
}

// Cooldown 按信号类型的冷却窗口
type Cooldown struct {
	mu      sync.Mutex
	window  time.Duration
	last    map[string]time.Time
	skipped int
}

// NewCooldown 创建冷却器，window<=0 表示不冷却
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// Allow 该类型在now时刻是否可以接受
func (c *Cooldown) Allow(signalType string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.last[signalType]
	if !ok || c.window <= 0 {
		return true
	}
	return now.Sub(last) >= c.window
}

// Record 信号持久化成功后记录冷却起点
func (c *Cooldown) Record(signalType string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[signalType] = now
}

// skip 统计被冷却丢弃的候选
func (c *Cooldown) skip() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped++
}

// Skipped 累计被冷却丢弃的数量
func (c *Cooldown) Skipped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skipped
}

// Snapshot 当前冷却时间戳副本
func (c *Cooldown) Snapshot() map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	stamps := make(map[string]time.Time, len(c.last))
	for k, v := range c.last {
		stamps[k] = v
	}
	return stamps
}

// Restore 从存储恢复冷却状态，进程重启后不会立即重复发出
func (c *Cooldown) Restore(ctx context.Context, store CooldownStore, scope string) error {
	stamps, err := store.LoadCooldowns(ctx, scope)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range stamps {
		if v.After(c.last[k]) {
			c.last[k] = v
		}
	}

	if len(stamps) > 0 {
		zap.L().Info("♻️ 已恢复信号冷却状态", zap.String("scope", scope), zap.Int("types", len(stamps)))
	}
	return nil
}

// Persist 将冷却状态写入存储
func (c *Cooldown) Persist(ctx context.Context, store CooldownStore, scope string) error {
	return store.SaveCooldowns(ctx, scope, c.Snapshot())
}
