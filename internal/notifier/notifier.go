package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"signal-sentry/pkg/types"
)

// safePadding 安全地计算填充空格数量，避免负数
func safePadding(content string, totalWidth int) int {
	// 按字符数而不是字节数计算
	padding := totalWidth - utf8.RuneCountInString(content) - 4
	if padding < 0 {
		padding = 0
	}
	return padding
}

// buildTradingURL 根据交易对生成交易链接
func buildTradingURL(symbol string) string {
	return fmt.Sprintf("https://www.okx.com/trade-swap/%s", strings.ToLower(symbol))
}

// pct 百分比展示，带符号
func pct(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	if d.IsPositive() {
		return "+" + d.StringFixed(2) + "%"
	}
	return d.StringFixed(2) + "%"
}

// changePct 价格相对入场价的变化
func changePct(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

func directionArrow(d types.Direction) string {
	switch d {
	case types.DirectionLong:
		return "📈"
	case types.DirectionShort:
		return "📉"
	default:
		return "⚡"
	}
}

func eventIcon(kind types.TrendEventKind) string {
	switch kind {
	case types.EventGoldenCross:
		return "🌟"
	case types.EventDeathCross:
		return "💀"
	case types.EventWinRateReversal:
		return "🔄"
	case types.EventLongFailureWarning, types.EventShortFailureWarning:
		return "⚠️"
	default:
		return "🧭"
	}
}

// Interface 通知接口
type Interface interface {
	SendSignal(ctx context.Context, sig *types.Signal) error
	SendTrendEvent(ctx context.Context, event types.TrendEvent) error
}

// New 根据配置选择通知器，未配置webhook时使用控制台输出
func New(config types.DingTalkConfig, network types.NetworkConfig) Interface {
	if config.WebhookURL == "" {
		zap.L().Info("🔧 未配置钉钉Webhook URL，使用控制台输出模式")
		return NewConsoleNotifier()
	}
	return NewDingTalkNotifier(config.WebhookURL, config.Secret, network.Timeout)
}

// ConsoleNotifier 控制台通知器
type ConsoleNotifier struct {
	out func(string)
}

func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{out: func(s string) { fmt.Print(s) }}
}

func (cn *ConsoleNotifier) SendSignal(_ context.Context, sig *types.Signal) error {
	cn.out(formatSignalBox(sig))
	return nil
}

func (cn *ConsoleNotifier) SendTrendEvent(_ context.Context, event types.TrendEvent) error {
	cn.out(formatEventBox(event))
	return nil
}

func boxLine(content string) string {
	return "║ " + content + strings.Repeat(" ", safePadding(content, 62)) + " ║\n"
}

func formatSignalBox(sig *types.Signal) string {
	var sb strings.Builder
	sb.WriteString("\n╔" + strings.Repeat("═", 60) + "╗\n")
	sb.WriteString(boxLine(fmt.Sprintf("%s 🚨 %s %s", directionArrow(sig.Direction), sig.SignalType, sig.Direction)))
	sb.WriteString("║" + strings.Repeat(" ", 60) + "║\n")
	sb.WriteString(boxLine("交易对: " + sig.Symbol + " " + sig.Timeframe))
	sb.WriteString(boxLine(fmt.Sprintf("级别: %s  质量: %s  置信度: %s", sig.Severity, sig.SignalQuality,
		decimal.NewFromFloat(sig.Confidence).StringFixed(2))))
	sb.WriteString(boxLine("入场价格: $" + types.FormatPrice(sig.EntryPrice)))
	if sig.Direction != types.DirectionNeutral {
		sb.WriteString(boxLine(fmt.Sprintf("止盈: $%s (%s)", types.FormatPrice(sig.SuggestedTarget), pct(changePct(sig.EntryPrice, sig.SuggestedTarget)))))
		sb.WriteString(boxLine(fmt.Sprintf("止损: $%s (%s)", types.FormatPrice(sig.SuggestedStop), pct(changePct(sig.EntryPrice, sig.SuggestedStop)))))
	}
	sb.WriteString(boxLine("市场状态: " + string(sig.MarketCondition)))
	sb.WriteString(boxLine("信号时间: " + sig.Timestamp.Format("2006-01-02 15:04:05")))
	if sig.HasConflict {
		sb.WriteString("║" + strings.Repeat(" ", 60) + "║\n")
		sb.WriteString(boxLine("💡 多空信号冲突，不建议交易"))
	}
	sb.WriteString("╚" + strings.Repeat("═", 60) + "╝\n\n")
	return sb.String()
}

func formatEventBox(event types.TrendEvent) string {
	var sb strings.Builder
	sb.WriteString("\n╔" + strings.Repeat("═", 60) + "╗\n")
	sb.WriteString(boxLine(fmt.Sprintf("%s %s %s %s", eventIcon(event.Kind), event.Kind, event.Symbol, event.Timeframe)))
	sb.WriteString(boxLine(eventDetail(event)))
	sb.WriteString(boxLine("时间: " + event.Time.Format("2006-01-02 15:04:05")))
	sb.WriteString("╚" + strings.Repeat("═", 60) + "╝\n\n")
	return sb.String()
}

// eventDetail 事件一行描述
func eventDetail(event types.TrendEvent) string {
	switch event.Kind {
	case types.EventGoldenCross, types.EventDeathCross, types.EventModeChange:
		detail := fmt.Sprintf("趋势 %s 模式 %s", event.Trend, event.Mode)
		if event.Reason != "" {
			detail += " (" + event.Reason + ")"
		}
		for _, direction := range event.Close {
			detail += fmt.Sprintf(" 建议平仓 %s", direction)
		}
		return detail
	case types.EventWinRateReversal:
		return fmt.Sprintf("做多胜率 %s 做空胜率 %s 模式 %s",
			decimal.NewFromFloat(event.LongRate).StringFixed(2)+"%",
			decimal.NewFromFloat(event.ShortRate).StringFixed(2)+"%", event.Mode)
	case types.EventLongFailureWarning, types.EventShortFailureWarning:
		return fmt.Sprintf("%s 连续亏损 %d 次", event.Direction, event.Losses)
	default:
		return event.Reason
	}
}

// DingTalkNotifier 钉钉通知器
type DingTalkNotifier struct {
	webhookURL string
	secret     string
	httpClient *http.Client
	console    *ConsoleNotifier
	now        func() time.Time
}

// DingTalkMessage 钉钉消息结构
type DingTalkMessage struct {
	MsgType  string            `json:"msgtype"`
	Markdown *DingTalkMarkdown `json:"markdown,omitempty"`
	At       *DingTalkAt       `json:"at,omitempty"`
}

type DingTalkMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type DingTalkAt struct {
	AtAll bool `json:"isAtAll"`
}

// DingTalkResponse 钉钉API响应
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func NewDingTalkNotifier(webhookURL, secret string, timeout time.Duration) *DingTalkNotifier {
	if secret != "" {
		zap.L().Info("✅ 已配置钉钉通知服务（含加签验证）")
	} else {
		zap.L().Warn("⚠️ 钉钉通知已配置，但未设置secret（建议配置加签验证）")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &DingTalkNotifier{
		webhookURL: webhookURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
		console:    NewConsoleNotifier(),
		now:        time.Now,
	}
}

// SendSignal 推送信号，冲突信号只在控制台记录
func (dtn *DingTalkNotifier) SendSignal(ctx context.Context, sig *types.Signal) error {
	if sig.HasConflict {
		zap.L().Info("⏭️ 冲突信号不推送钉钉",
			zap.String("symbol", sig.Symbol),
			zap.String("signal_type", sig.SignalType),
			zap.String("direction", string(sig.Direction)))
		return dtn.console.SendSignal(ctx, sig)
	}

	title := fmt.Sprintf("%s %s %s", directionArrow(sig.Direction), sig.Symbol, sig.SignalType)
	if err := dtn.sendDingTalkMessage(ctx, title, buildSignalMarkdown(sig)); err != nil {
		zap.L().Error("❌ 钉钉发送失败，降级为控制台输出", zap.Error(err))
		return dtn.console.SendSignal(ctx, sig)
	}

	zap.L().Info("✅ 钉钉通知已发送",
		zap.String("symbol", sig.Symbol),
		zap.String("signal_type", sig.SignalType),
		zap.String("direction", string(sig.Direction)))
	return nil
}

// SendTrendEvent 推送趋势事件
func (dtn *DingTalkNotifier) SendTrendEvent(ctx context.Context, event types.TrendEvent) error {
	title := fmt.Sprintf("%s %s %s", eventIcon(event.Kind), event.Symbol, event.Kind)
	if err := dtn.sendDingTalkMessage(ctx, title, buildEventMarkdown(event)); err != nil {
		zap.L().Error("❌ 钉钉趋势通知失败，降级为控制台输出", zap.Error(err))
		return dtn.console.SendTrendEvent(ctx, event)
	}

	zap.L().Info("✅ 钉钉趋势通知已发送", zap.String("symbol", event.Symbol), zap.String("kind", string(event.Kind)))
	return nil
}

// generateSignature 生成钉钉加签
func (dtn *DingTalkNotifier) generateSignature(timestamp int64) string {
	// timestamp + "\n" + secret
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, dtn.secret)

	h := hmac.New(sha256.New, []byte(dtn.secret))
	h.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// buildSignedURL 构建带签名的URL
func (dtn *DingTalkNotifier) buildSignedURL() (string, error) {
	if dtn.secret == "" {
		return dtn.webhookURL, nil
	}

	u, err := url.Parse(dtn.webhookURL)
	if err != nil {
		return "", fmt.Errorf("解析webhook地址失败: %w", err)
	}

	timestamp := dtn.now().UnixMilli()
	query := u.Query()
	query.Set("timestamp", fmt.Sprintf("%d", timestamp))
	query.Set("sign", dtn.generateSignature(timestamp))
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func buildSignalMarkdown(sig *types.Signal) string {
	color := "green"
	if sig.Direction == types.DirectionShort {
		color = "red"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s %s\n\n", directionArrow(sig.Direction), sig.SignalType)
	fmt.Fprintf(&sb, "**交易对**: [%s](%s) %s  \n", sig.Symbol, buildTradingURL(sig.Symbol), sig.Timeframe)
	fmt.Fprintf(&sb, "**方向**: <font color=\"%s\">%s</font>  \n", color, sig.Direction)
	fmt.Fprintf(&sb, "**级别/质量**: %s / %s  \n", sig.Severity, sig.SignalQuality)
	fmt.Fprintf(&sb, "**置信度**: %s  \n", decimal.NewFromFloat(sig.Confidence).StringFixed(2))
	fmt.Fprintf(&sb, "**入场价格**: $%s  \n", types.FormatPrice(sig.EntryPrice))
	if sig.Direction != types.DirectionNeutral {
		fmt.Fprintf(&sb, "**止盈**: $%s (%s)  \n", types.FormatPrice(sig.SuggestedTarget), pct(changePct(sig.EntryPrice, sig.SuggestedTarget)))
		fmt.Fprintf(&sb, "**止损**: $%s (%s)  \n", types.FormatPrice(sig.SuggestedStop), pct(changePct(sig.EntryPrice, sig.SuggestedStop)))
	}
	fmt.Fprintf(&sb, "**RSI**: %s  **市场状态**: %s  \n", decimal.NewFromFloat(sig.RSI).StringFixed(1), sig.MarketCondition)
	fmt.Fprintf(&sb, "**信号时间**: %s  \n", sig.Timestamp.Format("2006-01-02 15:04:05"))
	if sig.EntryReason != "" {
		fmt.Fprintf(&sb, "\n> %s", sig.EntryReason)
	}
	return sb.String()
}

func buildEventMarkdown(event types.TrendEvent) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s %s\n\n", eventIcon(event.Kind), event.Kind)
	fmt.Fprintf(&sb, "**交易对**: [%s](%s) %s  \n", event.Symbol, buildTradingURL(event.Symbol), event.Timeframe)
	fmt.Fprintf(&sb, "**详情**: %s  \n", eventDetail(event))
	if event.Sample != nil {
		fmt.Fprintf(&sb, "**EMA50/EMA200**: %s / %s  \n", types.FormatPrice(event.Sample.EMA50), types.FormatPrice(event.Sample.EMA200))
	}
	fmt.Fprintf(&sb, "**时间**: %s  \n", event.Time.Format("2006-01-02 15:04:05"))
	return sb.String()
}

// sendDingTalkMessage 发送钉钉消息
func (dtn *DingTalkNotifier) sendDingTalkMessage(ctx context.Context, title, content string) error {
	signedURL, err := dtn.buildSignedURL()
	if err != nil {
		return fmt.Errorf("生成签名失败: %w", err)
	}

	message := &DingTalkMessage{
		MsgType: "markdown",
		Markdown: &DingTalkMarkdown{
			Title: title,
			Text:  content,
		},
		At: &DingTalkAt{AtAll: false},
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signedURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := dtn.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("钉钉HTTP状态异常: %d", resp.StatusCode)
	}

	var dingResp DingTalkResponse
	if err := json.NewDecoder(resp.Body).Decode(&dingResp); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	if dingResp.ErrCode != 0 {
		return fmt.Errorf("钉钉API错误 [%d]: %s", dingResp.ErrCode, dingResp.ErrMsg)
	}

	return nil
}
