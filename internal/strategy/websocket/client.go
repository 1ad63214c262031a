package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"signal-sentry/pkg/types"
)

// Client OKX WebSocket客户端，断线后自动重连并重新订阅
type Client struct {
	endpoint string
	proxy    string
	config   types.WebSocketConfig

	conn        *websocket.Conn
	mu          sync.RWMutex
	writeMu     sync.Mutex
	isConnected bool
	args        []subscriptionArg

	reconnectChan chan struct{}
	klineChan     chan *types.KLine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient 创建WebSocket客户端
func NewClient(config types.WebSocketConfig, proxy string) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = 5 * time.Second
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 20 * time.Second
	}

	return &Client{
		endpoint:      config.OKXEndpoint,
		proxy:         proxy,
		config:        config,
		reconnectChan: make(chan struct{}, 1),
		klineChan:     make(chan *types.KLine, 1000),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Connect 建立WebSocket连接
func (c *Client) Connect(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	if c.proxy != "" {
		proxyURL, err := url.Parse(c.proxy)
		if err != nil {
			return fmt.Errorf("解析代理URL失败: %w", err)
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("WebSocket连接失败: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.isConnected = true
	c.mu.Unlock()

	zap.L().Info("✅ WebSocket连接建立成功",
		zap.String("endpoint", c.endpoint),
		zap.String("proxy", c.proxy))
	return nil
}

// Subscribe 订阅K线频道，重连后自动重新订阅
func (c *Client) Subscribe(symbols []string, interval string) error {
	args := make([]subscriptionArg, 0, len(symbols))
	for _, symbol := range symbols {
		args = append(args, subscriptionArg{Channel: candleChannel(interval), InstID: symbol})
	}

	c.mu.Lock()
	c.args = append(c.args, args...)
	c.mu.Unlock()

	if err := c.send(subscription{Op: "subscribe", Args: args}); err != nil {
		return err
	}

	zap.L().Info("📊 已订阅K线数据",
		zap.Strings("symbols", symbols),
		zap.String("interval", interval))
	return nil
}

func (c *Client) resubscribe() error {
	c.mu.RLock()
	args := append([]subscriptionArg(nil), c.args...)
	c.mu.RUnlock()

	if len(args) == 0 {
		return nil
	}
	return c.send(subscription{Op: "subscribe", Args: args})
}

func (c *Client) send(v interface{}) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("WebSocket未连接")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("发送WebSocket消息失败: %w", err)
	}
	return nil
}

// StartReading 启动读取、重连与心跳协程
func (c *Client) StartReading() {
	c.wg.Add(3)
	go c.readLoop()
	go c.reconnectLoop()
	go c.pingLoop()
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("WebSocket读取panic", zap.Any("error", r))
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			zap.L().Error("WebSocket读取消息失败", zap.Error(err))
			c.handleDisconnect(conn)
			continue
		}

		klines, err := parseMessage(message)
		if err != nil {
			zap.L().Warn("解析K线数据失败", zap.Error(err))
			continue
		}

		for _, kline := range klines {
			select {
			case c.klineChan <- kline:
			default:
				zap.L().Warn("K线数据通道满，丢弃数据", zap.String("symbol", kline.Symbol))
			}
		}
	}
}

func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	attempts := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.reconnectChan:
		}

		for {
			attempts++
			if c.config.MaxReconnectAttempts > 0 && attempts > c.config.MaxReconnectAttempts {
				zap.L().Error("达到最大重连次数，停止重连",
					zap.Int("max_attempts", c.config.MaxReconnectAttempts))
				return
			}

			zap.L().Info("🔄 尝试重连WebSocket",
				zap.Int("attempt", attempts),
				zap.Int("max_attempts", c.config.MaxReconnectAttempts))

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(c.config.ReconnectInterval):
			}

			if err := c.Connect(c.ctx); err != nil {
				zap.L().Error("重连失败", zap.Error(err))
				continue
			}
			if err := c.resubscribe(); err != nil {
				zap.L().Error("重新订阅失败", zap.Error(err))
				c.mu.RLock()
				conn := c.conn
				c.mu.RUnlock()
				c.handleDisconnect(conn)
				break
			}

			attempts = 0
			zap.L().Info("✅ WebSocket重连成功")
			break
		}
	}
}

// pingLoop OKX要求30秒内有消息，否则断开
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn == nil {
				continue
			}

			c.writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			c.writeMu.Unlock()
			if err != nil {
				zap.L().Error("发送心跳失败", zap.Error(err))
				c.handleDisconnect(conn)
			}
		}
	}
}

// handleDisconnect 关闭失效连接并触发重连，同一连接只处理一次
func (c *Client) handleDisconnect(conn *websocket.Conn) {
	c.mu.Lock()
	if conn == nil || c.conn != conn {
		c.mu.Unlock()
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.isConnected = false
	c.mu.Unlock()

	select {
	case c.reconnectChan <- struct{}{}:
	default:
	}
}

// KlineChannel K线数据通道
func (c *Client) KlineChannel() <-chan *types.KLine {
	return c.klineChan
}

// Close 关闭WebSocket连接并等待协程退出
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.isConnected = false
	c.mu.Unlock()

	c.wg.Wait()
	return err
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}
