package storage

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"signal-sentry/pkg/types"
)

const (
	cooldownKeyPrefix = "sentry:cooldown:"
	trendKeyPrefix    = "sentry:trend:"
	stateTTL          = 24 * time.Hour
)

// StateManager 流水线状态镜像：冷却时间戳与趋势状态快照
// Redis不可用时退化为纯内存模式
type StateManager struct {
	redisClient *redis.Client
	useRedis    bool

	mutex     sync.RWMutex
	cooldowns map[string]map[string]time.Time
	trends    map[string][]byte
}

// NewStateManager 创建状态管理器
func NewStateManager(redisConfig types.RedisConfig) *StateManager {
	sm := &StateManager{
		cooldowns: make(map[string]map[string]time.Time),
		trends:    make(map[string][]byte),
	}

	if redisConfig.URL == "" {
		zap.L().Info("🔧 未配置Redis，使用纯内存模式")
		return sm
	}

	sm.redisClient = redis.NewClient(&redis.Options{
		Addr:     redisConfig.URL,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sm.redisClient.Ping(ctx).Err(); err != nil {
		zap.L().Warn("⚠️ Redis连接失败，使用纯内存模式", zap.Error(err))
		_ = sm.redisClient.Close()
		sm.redisClient = nil
		return sm
	}

	sm.useRedis = true
	zap.L().Info("✅ Redis连接成功", zap.String("addr", redisConfig.URL))
	return sm
}

// UseRedis 是否启用Redis
func (sm *StateManager) UseRedis() bool {
	return sm.useRedis
}

// SaveCooldowns 保存某条流水线的冷却时间戳
func (sm *StateManager) SaveCooldowns(ctx context.Context, scope string, stamps map[string]time.Time) error {
	sm.mutex.Lock()
	copied := make(map[string]time.Time, len(stamps))
	for k, v := range stamps {
		copied[k] = v
	}
	sm.cooldowns[scope] = copied
	sm.mutex.Unlock()

	if !sm.useRedis || len(stamps) == 0 {
		return nil
	}

	key := cooldownKeyPrefix + scope
	values := make(map[string]interface{}, len(stamps))
	for signalType, ts := range stamps {
		values[signalType] = ts.UnixMilli()
	}

	pipe := sm.redisClient.TxPipeline()
	pipe.HSet(ctx, key, values)
	pipe.Expire(ctx, key, stateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("Redis保存冷却状态失败 %s: %w", scope, err)
	}
	return nil
}

// LoadCooldowns 读取冷却时间戳，优先Redis
func (sm *StateManager) LoadCooldowns(ctx context.Context, scope string) (map[string]time.Time, error) {
	if sm.useRedis {
		raw, err := sm.redisClient.HGetAll(ctx, cooldownKeyPrefix+scope).Result()
		if err != nil {
			return nil, fmt.Errorf("Redis读取冷却状态失败 %s: %w", scope, err)
		}
		stamps := make(map[string]time.Time, len(raw))
		for signalType, v := range raw {
			ms, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				continue
			}
			stamps[signalType] = time.UnixMilli(ms)
		}
		return stamps, nil
	}

	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	stamps := make(map[string]time.Time, len(sm.cooldowns[scope]))
	for k, v := range sm.cooldowns[scope] {
		stamps[k] = v
	}
	return stamps, nil
}

// SaveTrendStatus 发布趋势状态快照供外部只读消费
func (sm *StateManager) SaveTrendStatus(ctx context.Context, status *types.TrendStatus) error {
	value, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("序列化趋势状态失败: %w", err)
	}

	key := trendKey(status.Symbol, status.Timeframe)

	sm.mutex.Lock()
	sm.trends[key] = value
	sm.mutex.Unlock()

	if !sm.useRedis {
		return nil
	}

	if err := sm.redisClient.Set(ctx, key, value, stateTTL).Err(); err != nil {
		return fmt.Errorf("Redis保存趋势状态失败 %s: %w", key, err)
	}
	return nil
}

// LoadTrendStatus 读取趋势状态快照，不存在时返回nil
func (sm *StateManager) LoadTrendStatus(ctx context.Context, symbol, timeframe string) (*types.TrendStatus, error) {
	key := trendKey(symbol, timeframe)

	var value []byte
	if sm.useRedis {
		raw, err := sm.redisClient.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("Redis读取趋势状态失败 %s: %w", key, err)
		}
		value = raw
	} else {
		sm.mutex.RLock()
		value = sm.trends[key]
		sm.mutex.RUnlock()
		if value == nil {
			return nil, nil
		}
	}

	var status types.TrendStatus
	if err := json.Unmarshal(value, &status); err != nil {
		return nil, fmt.Errorf("解析趋势状态失败: %w", err)
	}
	return &status, nil
}

// GetStats 获取存储统计信息
func (sm *StateManager) GetStats(ctx context.Context) map[string]interface{} {
	sm.mutex.RLock()
	stats := map[string]interface{}{
		"redis_enabled":    sm.useRedis,
		"memory_scopes":    len(sm.cooldowns),
		"memory_snapshots": len(sm.trends),
	}
	sm.mutex.RUnlock()

	if sm.useRedis {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		keys, err := sm.redisClient.Keys(ctx, "sentry:*").Result()
		if err == nil {
			stats["redis_keys"] = len(keys)
		} else {
			stats["redis_error"] = err.Error()
		}
	}

	return stats
}

// Close 关闭Redis连接
func (sm *StateManager) Close() error {
	if sm.redisClient != nil {
		return sm.redisClient.Close()
	}
	return nil
}

func trendKey(symbol, timeframe string) string {
	return trendKeyPrefix + symbol + ":" + timeframe
}
