package websocket

import (
	"bytes"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"signal-sentry/internal/strategy/fetcher"
	"signal-sentry/pkg/types"
)

const candlePrefix = "candle"

// subscriptionArg OKX订阅参数
type subscriptionArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

// subscription OKX订阅消息
type subscription struct {
	Op   string            `json:"op"`
	Args []subscriptionArg `json:"args"`
}

// pushMessage OKX推送消息：事件回执或频道数据
type pushMessage struct {
	Event string          `json:"event"`
	Code  string          `json:"code"`
	Msg   string          `json:"msg"`
	Arg   subscriptionArg `json:"arg"`
	Data  [][]string      `json:"data"`
}

func candleChannel(interval string) string {
	return candlePrefix + interval
}

// parseMessage 解析推送消息，非K线频道与事件回执返回空
func parseMessage(message []byte) ([]*types.KLine, error) {
	if bytes.Equal(message, []byte("pong")) {
		return nil, nil
	}

	var msg pushMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return nil, err
	}

	if msg.Event == "error" {
		return nil, fmt.Errorf("OKX订阅错误: code=%s, msg=%s", msg.Code, msg.Msg)
	}
	if msg.Event != "" || !strings.HasPrefix(msg.Arg.Channel, candlePrefix) {
		return nil, nil
	}

	interval := strings.TrimPrefix(msg.Arg.Channel, candlePrefix)
	klines := make([]*types.KLine, 0, len(msg.Data))
	for _, data := range msg.Data {
		kline, err := fetcher.ParseCandle(msg.Arg.InstID, interval, data)
		if err != nil {
			return klines, fmt.Errorf("解析单条K线数据失败: %w", err)
		}
		klines = append(klines, kline)
	}
	return klines, nil
}
