package signals

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"signal-sentry/internal/strategy/regime"
	"signal-sentry/pkg/types"
)

// Input 单次tick的信号生成输入
type Input struct {
	Scope        types.Scope
	Time         time.Time
	Price        float64
	Snapshot     *types.IndicatorSnapshot
	PriceAction  types.PriceAction
	Regime       types.Regime
	Trend        types.TrendLabel
	History      map[types.Direction]types.DirectionHistory
	SessionID    string
	TradeGroupID string
}

// Generator 多条件信号生成与置信度评分
type Generator struct {
	strategyName    string
	strategyVersion string
	microPeriod     int
	fastPeriod      int
	signalConfig    types.SignalConfig
	riskConfig      types.RiskConfig
}

// NewGenerator 创建信号生成器
func NewGenerator(config types.StrategyConfig) *Generator {
	return &Generator{
		strategyName:    config.Name,
		strategyVersion: config.Version,
		microPeriod:     config.Indicators.EMAMicro,
		fastPeriod:      config.Indicators.EMAFast,
		signalConfig:    config.Signal,
		riskConfig:      config.Risk,
	}
}

// Generate 生成本tick的候选信号（可能为空）
// 同一tick内多空同时出现时双方都标记 has_conflict
func (g *Generator) Generate(in Input) []*types.Signal {
	if in.Snapshot == nil || in.Price <= 0 {
		return nil
	}

	var candidates []*types.Signal
	for _, direction := range []types.Direction{types.DirectionLong, types.DirectionShort} {
		if sig := g.evaluate(in, direction); sig != nil {
			candidates = append(candidates, sig)
		}
	}

	if len(candidates) == 2 {
		zap.L().Info("⚠️ 多空信号冲突，仅记录不建议交易",
			zap.String("scope", in.Scope.String()),
			zap.String("long", candidates[0].SignalType),
			zap.String("short", candidates[1].SignalType))
		for _, sig := range candidates {
			sig.HasConflict = true
			sig.Tags = append(sig.Tags, types.TagConflicted)
		}
	}

	for _, sig := range candidates {
		sig.SignalQuality = QualityTier(QualityScore(QualityInput{
			Direction:   sig.Direction,
			Snapshot:    in.Snapshot,
			PriceAction: in.PriceAction,
			Trend:       in.Trend,
			HasConflict: sig.HasConflict,
		}))
	}

	if rapid := g.rapidChange(in); rapid != nil {
		candidates = append(candidates, rapid)
	}

	return candidates
}

// evaluate 评估单方向：条件组 → 加权置信度 → 历史修正 → 市场状态修正 → 最小置信度过滤
func (g *Generator) evaluate(in Input, direction types.Direction) *types.Signal {
	matches := g.matchConditions(in, direction)
	if len(matches) == 0 {
		return nil
	}

	base := weightedConfidence(matches)
	confidence := AdjustForHistory(base, in.History[direction], g.signalConfig.HistoryWindow, g.signalConfig.MaxConfidence)
	confidence = clamp(confidence*regime.Multiplier(in.Regime), 0, g.signalConfig.MaxConfidence)

	if confidence < g.signalConfig.MinConfidence {
		zap.L().Debug("置信度不足，忽略信号",
			zap.String("scope", in.Scope.String()),
			zap.String("type", matches[0].signalType),
			zap.Float64("base", base),
			zap.Float64("confidence", confidence),
			zap.String("regime", string(in.Regime)))
		return nil
	}

	stop, target, dynamic := Levels(g.riskConfig, direction, in.Price, in.Snapshot)

	severity := types.SeverityMedium
	if confidence >= 0.8 {
		severity = types.SeverityHigh
	}

	targetTag := types.TagFixedTargets
	if dynamic {
		targetTag = types.TagATRDynamic
	}

	reasons := make([]string, 0, len(matches))
	for _, m := range matches {
		reasons = append(reasons, m.reason)
	}

	signalType := matches[0].signalType
	sig := g.newSignal(in, signalType, direction)
	sig.Severity = severity
	sig.Confidence = confidence
	sig.SuggestedStop = stop
	sig.SuggestedTarget = target
	sig.EntryReason = strings.Join(reasons, " | ")
	sig.Tags = []string{string(severity), string(direction), targetTag}
	sig.Message = fmt.Sprintf("%s %s @ %s 止损 %s 止盈 %s 置信度 %.2f",
		direction, signalType, types.FormatPrice(in.Price),
		types.FormatPrice(stop), types.FormatPrice(target), confidence)

	return sig
}

// rapidChange 单根K线急涨急跌提醒，方向为NEUTRAL，不参与交易
func (g *Generator) rapidChange(in Input) *types.Signal {
	threshold := g.signalConfig.RapidChangePct
	move := in.Snapshot.ROC1
	if threshold <= 0 || math.Abs(move) < threshold {
		return nil
	}

	severity := types.SeverityMedium
	if math.Abs(move) >= 2*threshold {
		severity = types.SeverityHigh
	}

	word := "急涨"
	if move < 0 {
		word = "急跌"
	}

	sig := g.newSignal(in, types.SignalRapidPriceChange, types.DirectionNeutral)
	sig.Severity = severity
	sig.Confidence = math.Min(math.Abs(move)/(2*threshold), 1) * g.signalConfig.MaxConfidence
	sig.SuggestedStop = in.Price
	sig.SuggestedTarget = in.Price
	sig.EntryReason = fmt.Sprintf("单根K线%s %+.2f%%", word, move)
	sig.Tags = []string{string(severity), string(types.DirectionNeutral)}
	sig.SignalQuality = QualityTier(QualityScore(QualityInput{
		Direction: types.DirectionNeutral,
		Snapshot:  in.Snapshot,
		Trend:     in.Trend,
	}))
	sig.Message = fmt.Sprintf("%s %s %+.2f%% @ %s", in.Scope.Symbol, word, move, types.FormatPrice(in.Price))

	return sig
}

func (g *Generator) newSignal(in Input, signalType string, direction types.Direction) *types.Signal {
	snap := in.Snapshot
	return &types.Signal{
		Timestamp:       in.Time,
		SessionID:       in.SessionID,
		Symbol:          in.Scope.Symbol,
		SignalType:      signalType,
		Direction:       direction,
		Price:           in.Price,
		EntryPrice:      in.Price,
		RSI:             snap.RSI,
		EMAFast:         snap.EMAFast,
		EMASlow:         snap.EMASlow,
		Support:         in.PriceAction.Support,
		Resistance:      in.PriceAction.Resistance,
		Notes:           fmt.Sprintf("regime=%s atr_slope=%.4f", in.Regime, snap.ATRSlope),
		HighestPrice:    in.Price,
		LowestPrice:     in.Price,
		Outcome:         types.OutcomePending,
		StrategyName:    g.strategyName,
		StrategyVersion: g.strategyVersion,
		Timeframe:       in.Scope.Timeframe,
		TradeGroupID:    in.TradeGroupID,
		MarketCondition: in.Trend,
	}
}
