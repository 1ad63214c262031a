package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"signal-sentry/pkg/types"
)

const (
	// DefaultBaseURL OKX REST行情地址
	DefaultBaseURL = "https://www.okx.com/api/v5/market"
	// maxCandleLimit 单次请求K线上限
	maxCandleLimit = 300
)

// OKXClient OKX REST行情客户端：K线与最新成交价
type OKXClient struct {
	baseURL    string
	retries    int
	backoff    time.Duration
	httpClient *http.Client
}

// okxResponse OKX API通用响应
type okxResponse[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

// okxTicker OKX ticker数据
type okxTicker struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	Ts     string `json:"ts"`
}

// Option 客户端选项
type Option func(*OKXClient)

// WithBaseURL 指定REST地址，测试使用
func WithBaseURL(baseURL string) Option {
	return func(c *OKXClient) { c.baseURL = baseURL }
}

// WithBackoff 指定重试退避间隔
func WithBackoff(backoff time.Duration) Option {
	return func(c *OKXClient) { c.backoff = backoff }
}

// NewOKXClient 创建OKX行情客户端
func NewOKXClient(network types.NetworkConfig, opts ...Option) *OKXClient {
	timeout := network.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if network.Proxy != "" {
		proxyURL, err := url.Parse(network.Proxy)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
			zap.L().Info("✅ 已配置HTTP代理", zap.String("proxy", network.Proxy))
		} else {
			zap.L().Warn("⚠️ 代理地址格式错误", zap.Error(err))
		}
	}

	retries := network.Retries
	if retries < 1 {
		retries = 3
	}

	c := &OKXClient{
		baseURL:    DefaultBaseURL,
		retries:    retries,
		backoff:    500 * time.Millisecond,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Candles 获取最近limit根K线，按时间正序返回
func (c *OKXClient) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]*types.KLine, error) {
	if limit <= 0 || limit > maxCandleLimit {
		limit = maxCandleLimit
	}

	query := url.Values{}
	query.Set("instId", symbol)
	query.Set("bar", timeframe)
	query.Set("limit", strconv.Itoa(limit))

	var resp okxResponse[[]string]
	if err := c.get(ctx, "/candles", query, &resp); err != nil {
		return nil, err
	}

	// OKX返回从新到旧，反转为从旧到新
	klines := make([]*types.KLine, 0, len(resp.Data))
	for i := len(resp.Data) - 1; i >= 0; i-- {
		kline, err := ParseCandle(symbol, timeframe, resp.Data[i])
		if err != nil {
			zap.L().Warn("解析K线数据失败", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		klines = append(klines, kline)
	}

	if len(klines) == 0 {
		return nil, fmt.Errorf("%w: %s %s 无K线数据", types.ErrFeedUnavailable, symbol, timeframe)
	}

	zap.L().Debug("✅ K线数据获取完成",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe),
		zap.Int("requested", limit),
		zap.Int("received", len(klines)))
	return klines, nil
}

// Ticker 获取最新成交价
func (c *OKXClient) Ticker(ctx context.Context, symbol string) (*types.Ticker, error) {
	query := url.Values{}
	query.Set("instId", symbol)

	var resp okxResponse[okxTicker]
	if err := c.get(ctx, "/ticker", query, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: %s 无最新价", types.ErrFeedUnavailable, symbol)
	}

	data := resp.Data[0]
	price, err := strconv.ParseFloat(data.Last, 64)
	if err != nil || price <= 0 {
		return nil, fmt.Errorf("%w: %s 最新价无效 %q", types.ErrFeedUnavailable, symbol, data.Last)
	}

	ts := time.Now().UTC()
	if ms, err := strconv.ParseInt(data.Ts, 10, 64); err == nil {
		ts = time.UnixMilli(ms).UTC()
	}

	return &types.Ticker{Symbol: symbol, Price: price, Timestamp: ts}, nil
}

// get 带重试的GET请求，失败统一包装为 types.ErrFeedUnavailable
func (c *OKXClient) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	requestURL := c.baseURL + path + "?" + query.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		lastErr = c.do(ctx, requestURL, out)
		if lastErr == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(lastErr, &apiErr) {
			break
		}

		zap.L().Warn("⚠️ 请求OKX失败，准备重试",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt == c.retries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", types.ErrFeedUnavailable, ctx.Err())
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}

	return fmt.Errorf("%w: %v", types.ErrFeedUnavailable, lastErr)
}

func (c *OKXClient) do(ctx context.Context, requestURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("User-Agent", "Signal-Sentry/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP响应错误: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	var head struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return fmt.Errorf("解析JSON失败: %w", err)
	}
	if head.Code != "0" {
		return &APIError{Code: head.Code, Msg: head.Msg}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("解析JSON失败: %w", err)
	}
	return nil
}

// APIError OKX业务错误，不重试
type APIError struct {
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("OKX API返回错误: code=%s, msg=%s", e.Code, e.Msg)
}

// ParseCandle 解析OKX K线数组 [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
func ParseCandle(symbol, timeframe string, data []string) (*types.KLine, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("K线数据格式不正确: %d个字段", len(data))
	}

	timestamp, err := strconv.ParseInt(data[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("解析时间戳失败: %w", err)
	}

	values := make([]float64, 5)
	for i := range values {
		v, err := strconv.ParseFloat(data[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("解析第%d个字段失败: %w", i+1, err)
		}
		values[i] = v
	}

	openTime := time.UnixMilli(timestamp).UTC()
	return &types.KLine{
		Symbol:    symbol,
		OpenTime:  openTime,
		CloseTime: openTime.Add(IntervalDuration(timeframe)),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		Interval:  timeframe,
	}, nil
}

// IntervalDuration K线周期字符串转Duration
func IntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1H", "1h":
		return time.Hour
	case "2H", "2h":
		return 2 * time.Hour
	case "4H", "4h":
		return 4 * time.Hour
	case "6H", "6h":
		return 6 * time.Hour
	case "12H", "12h":
		return 12 * time.Hour
	case "1D", "1d":
		return 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}
