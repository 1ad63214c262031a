package websocket

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"signal-sentry/internal/storage"
	"signal-sentry/pkg/types"
)

// bufferSize 每个交易对缓存的K线数量
const bufferSize = 300

// Fallback REST行情源，用于预热与推送中断时兜底
type Fallback interface {
	Candles(ctx context.Context, symbol, timeframe string, limit int) ([]*types.KLine, error)
	Ticker(ctx context.Context, symbol string) (*types.Ticker, error)
}

// StreamSource 推送行情源：WebSocket实时K线 + REST预热兜底
type StreamSource struct {
	client     *Client
	fallback   Fallback
	staleAfter time.Duration
	now        func() time.Time

	mu      sync.RWMutex
	buffers map[string]*storage.BoundedQueue[*types.KLine]
	tickers map[string]types.Ticker

	wg sync.WaitGroup
}

// NewStreamSource 创建推送行情源
func NewStreamSource(config types.WebSocketConfig, proxy string, fallback Fallback) *StreamSource {
	client := NewClient(config, proxy)
	return &StreamSource{
		client:     client,
		fallback:   fallback,
		staleAfter: 2 * client.config.PingInterval,
		now:        func() time.Time { return time.Now().UTC() },
		buffers:    make(map[string]*storage.BoundedQueue[*types.KLine]),
		tickers:    make(map[string]types.Ticker),
	}
}

// Start 连接、订阅并开始收集推送K线
func (s *StreamSource) Start(ctx context.Context, symbols []string, timeframe string) error {
	if err := s.client.Connect(ctx); err != nil {
		return err
	}
	if err := s.client.Subscribe(symbols, timeframe); err != nil {
		return err
	}
	s.client.StartReading()

	s.wg.Add(1)
	go s.collect()
	return nil
}

func (s *StreamSource) collect() {
	defer s.wg.Done()

	source := s.client.KlineChannel()
	for {
		select {
		case <-s.client.ctx.Done():
			return
		case kline := <-source:
			if kline != nil {
				s.apply(kline, true)
			}
		}
	}
}

// apply 合并K线到缓存，live表示来自实时推送
func (s *StreamSource) apply(kline *types.KLine, live bool) {
	key := kline.Symbol + ":" + kline.Interval

	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[key]
	if !ok {
		buf = storage.NewBoundedQueue[*types.KLine](bufferSize)
		s.buffers[key] = buf
	}

	latest, ok := buf.Latest()
	switch {
	case !ok || kline.OpenTime.After(latest.OpenTime):
		buf.Push(kline)
	case kline.OpenTime.Equal(latest.OpenTime):
		buf.ReplaceLast(kline)
	}

	if live {
		s.tickers[kline.Symbol] = types.Ticker{Symbol: kline.Symbol, Price: kline.Close, Timestamp: s.now()}
	}
}

// Candles 优先返回推送缓存，缓存不足或连接断开时走REST并回填缓存
func (s *StreamSource) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]*types.KLine, error) {
	s.mu.RLock()
	buf := s.buffers[symbol+":"+timeframe]
	s.mu.RUnlock()

	if buf != nil && s.client.IsConnected() && buf.Len() >= limit {
		all := buf.Snapshot()
		return all[len(all)-limit:], nil
	}

	klines, err := s.fallback.Candles(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	for _, k := range klines {
		s.apply(k, false)
	}
	return klines, nil
}

// Ticker 最近一次推送的收盘价，过期或断开时走REST
func (s *StreamSource) Ticker(ctx context.Context, symbol string) (*types.Ticker, error) {
	s.mu.RLock()
	ticker, ok := s.tickers[symbol]
	s.mu.RUnlock()

	if ok && s.client.IsConnected() && s.now().Sub(ticker.Timestamp) <= s.staleAfter {
		return &ticker, nil
	}
	return s.fallback.Ticker(ctx, symbol)
}

// Close 关闭推送连接
func (s *StreamSource) Close() error {
	err := s.client.Close()
	s.wg.Wait()
	zap.L().Info("📴 WebSocket行情源已关闭")
	return err
}
