// Package tracker 信号结果追踪：PENDING → WIN/LOSS/TIMEOUT/NEUTRAL 的单向状态机
package tracker

import (
	"fmt"
	"math"
	"time"

	"signal-sentry/pkg/types"
)

// 退出原因
const (
	ReasonTargetHit = "Take profit target reached"
	ReasonStopHit   = "Stop loss triggered"
	ReasonNeutral   = "Informational signal, not tracked"
)

// Observation 信号创建后观测到的价格极值
type Observation struct {
	High float64
	Low  float64
}

// Observe 汇总信号创建之后的K线与最新价，ok=false表示没有可用观测
func Observe(sig *types.Signal, candles []*types.KLine, ticker *types.Ticker) (obs Observation, ok bool) {
	obs = Observation{High: math.Inf(-1), Low: math.Inf(1)}

	for _, k := range candles {
		// 信号之前开盘的K线极值可能早于信号，不计入
		if k == nil || k.OpenTime.Before(sig.Timestamp) {
			continue
		}
		obs.High = math.Max(obs.High, k.High)
		obs.Low = math.Min(obs.Low, k.Low)
		ok = true
	}

	if ticker != nil && ticker.Price > 0 {
		obs.High = math.Max(obs.High, ticker.Price)
		obs.Low = math.Min(obs.Low, ticker.Price)
		ok = true
	}
	return obs, ok
}

// Resolve 用观测极值推进信号状态，返回是否在本次进入终态
// 已终结的信号不做任何修改
func Resolve(sig *types.Signal, obs Observation, now time.Time, timeout time.Duration) bool {
	if sig.Outcome.IsTerminal() {
		return false
	}

	if sig.HighestPrice == 0 {
		sig.HighestPrice = sig.EntryPrice
	}
	if sig.LowestPrice == 0 {
		sig.LowestPrice = sig.EntryPrice
	}
	// 极值只会扩张
	if obs.High > sig.HighestPrice {
		sig.HighestPrice = obs.High
	}
	if obs.Low > 0 && obs.Low < sig.LowestPrice {
		sig.LowestPrice = obs.Low
	}

	if sig.Direction != types.DirectionLong && sig.Direction != types.DirectionShort {
		finish(sig, types.OutcomeNeutral, ReasonNeutral, 0, now)
		return true
	}

	entry := sig.EntryPrice
	if entry <= 0 {
		return false
	}

	switch sig.Direction {
	case types.DirectionLong:
		sig.MaxGainPct = (sig.HighestPrice - entry) / entry * 100
		sig.MaxLossPct = (sig.LowestPrice - entry) / entry * 100
		sig.TargetHit = sig.HighestPrice >= sig.SuggestedTarget
		sig.StopHit = sig.LowestPrice <= sig.SuggestedStop
	case types.DirectionShort:
		sig.MaxGainPct = (entry - sig.LowestPrice) / entry * 100
		sig.MaxLossPct = (entry - sig.HighestPrice) / entry * 100
		sig.TargetHit = sig.LowestPrice <= sig.SuggestedTarget
		sig.StopHit = sig.HighestPrice >= sig.SuggestedStop
	}

	switch {
	case sig.TargetHit && sig.StopHit:
		// 无法判断先后，保守按止损处理
		finish(sig, types.OutcomeLoss, types.StopAssumedFirst, -math.Abs(sig.MaxLossPct), now)
	case sig.TargetHit:
		finish(sig, types.OutcomeWin, ReasonTargetHit, sig.MaxGainPct, now)
	case sig.StopHit:
		finish(sig, types.OutcomeLoss, ReasonStopHit, sig.MaxLossPct, now)
	case timeout > 0 && sig.Age(now) >= timeout:
		finish(sig, types.OutcomeTimeout, timeoutReason(timeout), 0, now)
	default:
		return false
	}
	return true
}

func finish(sig *types.Signal, outcome types.Outcome, reason string, profit float64, now time.Time) {
	checkedAt := now
	sig.Outcome = outcome
	sig.FinalResult = string(outcome)
	sig.ExitReason = reason
	sig.StrategyProfit = profit
	sig.CheckedAt = &checkedAt
}

func timeoutReason(timeout time.Duration) string {
	return fmt.Sprintf("Signal timeout (%s expired without hitting target/stop)", timeout)
}
