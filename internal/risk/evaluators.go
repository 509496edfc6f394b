package risk

import (
	"fmt"
	"math"
)

// evaluationContext bundles everything a limit evaluator needs: the account
// snapshot, the effective profile for this account, and the order under
// evaluation. referencePrice is the market price used for notional/leverage
// math — it comes from MarketDataService and may differ from the order's
// limit price.
type evaluationContext struct {
	account        *AccountSnapshot
	profile        *RiskProfile
	order          *OrderIntent
	referencePrice float64
	peakEquity     float64
	dailyPnL       float64
	tradesLastMin  int
}

// projectedPosition returns the post-trade signed size for the order's
// symbol: current size (signed per current Side) plus/minus order size
// along the order's side.
func projectedPosition(account *AccountSnapshot, order *OrderIntent) (current, projected float64) {
	pos, ok := account.Positions[order.Symbol]
	if ok {
		current = signedSize(pos)
	}
	delta := order.Size
	if order.Side == SideShort {
		delta = -delta
	}
	return current, current + delta
}

// signedSize returns a position's size signed by its side: positive for
// long, negative for short.
func signedSize(p Position) float64 {
	if p.Side == SideShort {
		return -p.Size
	}
	return p.Size
}

// evaluatePositionSize implements spec §4.1 POSITION_SIZE.
func evaluatePositionSize(ctx *evaluationContext) []Verdict {
	limit, ok := ctx.profile.positionLimitFor(ctx.order.Symbol)
	if !ok {
		return nil
	}
	_, projected := projectedPosition(ctx.account, ctx.order)

	var threshold float64
	if projected >= 0 {
		threshold = limit.MaxLongSize
	} else {
		threshold = limit.MaxShortSize
	}
	observed := math.Abs(projected)
	if observed <= threshold {
		return nil
	}
	action := ctx.profile.actionFor(LimitPositionSize)
	return []Verdict{{
		Kind: LimitPositionSize, Action: action,
		Observed: observed, Threshold: threshold,
		Message: fmt.Sprintf("projected position size %.8f exceeds limit %.8f", observed, threshold),
	}}
}

// evaluateNotionalValue implements spec §4.1 NOTIONAL_VALUE.
func evaluateNotionalValue(ctx *evaluationContext) []Verdict {
	limit, ok := ctx.profile.positionLimitFor(ctx.order.Symbol)
	if !ok {
		return nil
	}
	_, projected := projectedPosition(ctx.account, ctx.order)
	projectedValue := projected * ctx.referencePrice

	var threshold float64
	if projected >= 0 {
		threshold = limit.MaxLongValue
	} else {
		threshold = limit.MaxShortValue
	}
	observed := math.Abs(projectedValue)
	if observed <= threshold {
		return nil
	}
	action := ctx.profile.actionFor(LimitNotionalValue)
	return []Verdict{{
		Kind: LimitNotionalValue, Action: action,
		Observed: observed, Threshold: threshold,
		Message: fmt.Sprintf("projected notional %.2f exceeds limit %.2f", observed, threshold),
	}}
}

// evaluateOrderSize implements spec §4.1 ORDER_SIZE.
func evaluateOrderSize(ctx *evaluationContext) []Verdict {
	threshold := ctx.profile.OrderLimits.MaxOrderSize
	if ctx.order.Size <= threshold {
		return nil
	}
	action := ctx.profile.actionFor(LimitOrderSize)
	return []Verdict{{
		Kind: LimitOrderSize, Action: action,
		Observed: ctx.order.Size, Threshold: threshold,
		Message: fmt.Sprintf("order size %.8f exceeds limit %.8f", ctx.order.Size, threshold),
	}}
}

// evaluateOrderValue implements spec §4.1 ORDER_VALUE.
func evaluateOrderValue(ctx *evaluationContext) []Verdict {
	threshold := ctx.profile.OrderLimits.MaxOrderValue
	orderValue := ctx.order.Size * ctx.referencePrice
	if orderValue <= threshold {
		return nil
	}
	action := ctx.profile.actionFor(LimitOrderValue)
	return []Verdict{{
		Kind: LimitOrderValue, Action: action,
		Observed: orderValue, Threshold: threshold,
		Message: fmt.Sprintf("order value %.2f exceeds limit %.2f", orderValue, threshold),
	}}
}

// evaluateLeverage implements spec §4.1 LEVERAGE.
func evaluateLeverage(ctx *evaluationContext) []Verdict {
	if ctx.account.Equity == 0 {
		return nil
	}
	_, projected := projectedPosition(ctx.account, ctx.order)
	projectedNotional := math.Abs(projected * ctx.referencePrice)
	leverage := projectedNotional / ctx.account.Equity

	threshold := ctx.profile.OrderLimits.MaxLeverage
	if leverage <= threshold {
		return nil
	}
	action := ctx.profile.actionFor(LimitLeverage)
	return []Verdict{{
		Kind: LimitLeverage, Action: action,
		Observed: leverage, Threshold: threshold,
		Message: fmt.Sprintf("projected leverage %.2fx exceeds limit %.2fx", leverage, threshold),
	}}
}

// evaluateMarginUtilization implements spec §4.1 MARGIN_UTILIZATION. Used
// margin is the sum over existing positions of |notional| * initial margin
// ratio, plus the new order's own initial margin.
func evaluateMarginUtilization(ctx *evaluationContext) []Verdict {
	if ctx.account.Equity == 0 {
		return nil
	}
	ratio := ctx.profile.MarginLimits.InitialMarginRatio

	used := 0.0
	for _, pos := range ctx.account.Positions {
		if pos.Symbol == ctx.order.Symbol {
			continue // replaced by the projected figure below
		}
		used += math.Abs(pos.NotionalValue) * ratio
	}
	_, projected := projectedPosition(ctx.account, ctx.order)
	used += math.Abs(projected*ctx.referencePrice) * ratio

	utilization := used / ctx.account.Equity
	threshold := ctx.profile.MarginLimits.MaxMarginUtilization
	if utilization <= threshold {
		return nil
	}
	action := ctx.profile.actionFor(LimitMarginUtilization)
	return []Verdict{{
		Kind: LimitMarginUtilization, Action: action,
		Observed: utilization, Threshold: threshold,
		Message: fmt.Sprintf("projected margin utilization %.2f%% exceeds limit %.2f%%", utilization*100, threshold*100),
	}}
}

// evaluateConcentration implements spec §4.1 CONCENTRATION: for the order's
// asset, |notional| / total portfolio |notional| post-trade vs the limit.
func evaluateConcentration(ctx *evaluationContext) []Verdict {
	total := 0.0
	symbolValue := 0.0
	for symbol, pos := range ctx.account.Positions {
		v := math.Abs(pos.NotionalValue)
		if symbol == ctx.order.Symbol {
			continue
		}
		total += v
	}
	_, projected := projectedPosition(ctx.account, ctx.order)
	symbolValue = math.Abs(projected * ctx.referencePrice)
	total += symbolValue

	if total == 0 {
		return nil
	}
	concentration := symbolValue / total
	threshold := ctx.profile.RiskLimits.MaxConcentration
	if concentration <= threshold {
		return nil
	}
	action := ctx.profile.actionFor(LimitConcentration)
	return []Verdict{{
		Kind: LimitConcentration, Action: action,
		Observed: concentration, Threshold: threshold,
		Message: fmt.Sprintf("projected concentration %.2f%% exceeds limit %.2f%%", concentration*100, threshold*100),
	}}
}

// evaluateDrawdown implements spec §4.1 DRAWDOWN: (peakEquity-equity)/peakEquity
// vs the limit. peakEquity is supplied by the per-account session tracker.
func evaluateDrawdown(ctx *evaluationContext) []Verdict {
	if ctx.peakEquity <= 0 {
		return nil
	}
	drawdown := (ctx.peakEquity - ctx.account.Equity) / ctx.peakEquity
	if drawdown < 0 {
		drawdown = 0
	}
	if drawdown > 1 {
		drawdown = 1
	}
	threshold := ctx.profile.RiskLimits.MaxDrawdown
	if drawdown <= threshold {
		return nil
	}
	action := ctx.profile.actionFor(LimitDrawdown)
	return []Verdict{{
		Kind: LimitDrawdown, Action: action,
		Observed: drawdown, Threshold: threshold,
		Message: fmt.Sprintf("drawdown %.2f%% exceeds limit %.2f%%", drawdown*100, threshold*100),
	}}
}

// evaluateDailyLoss implements spec §4.1 DAILY_LOSS: session PnL (realized +
// unrealized) vs the limit. Only a net loss (negative PnL) can violate.
func evaluateDailyLoss(ctx *evaluationContext) []Verdict {
	if ctx.dailyPnL >= 0 {
		return nil
	}
	loss := -ctx.dailyPnL
	threshold := ctx.profile.RiskLimits.MaxDailyLoss
	if loss <= threshold {
		return nil
	}
	action := ctx.profile.actionFor(LimitDailyLoss)
	return []Verdict{{
		Kind: LimitDailyLoss, Action: action,
		Observed: loss, Threshold: threshold,
		Message: fmt.Sprintf("session loss %.2f exceeds limit %.2f", loss, threshold),
	}}
}

// evaluateTradeFrequency implements spec §4.1 TRADE_FREQUENCY: count of
// accepted orders in the rolling last 60s vs the limit.
func evaluateTradeFrequency(ctx *evaluationContext) []Verdict {
	threshold := ctx.profile.RiskLimits.MaxTradeFrequency
	if threshold <= 0 || ctx.tradesLastMin <= threshold {
		return nil
	}
	action := ctx.profile.actionFor(LimitTradeFrequency)
	return []Verdict{{
		Kind: LimitTradeFrequency, Action: action,
		Observed: float64(ctx.tradesLastMin), Threshold: float64(threshold),
		Message: fmt.Sprintf("trade frequency %d/60s exceeds limit %d/60s", ctx.tradesLastMin, threshold),
	}}
}

// allEvaluators is every evaluator in the order they run for a full
// checkOrderRisk pass.
var allEvaluators = []func(*evaluationContext) []Verdict{
	evaluatePositionSize,
	evaluateOrderSize,
	evaluateOrderValue,
	evaluateNotionalValue,
	evaluateMarginUtilization,
	evaluateLeverage,
	evaluateConcentration,
	evaluateDrawdown,
	evaluateDailyLoss,
	evaluateTradeFrequency,
}

// evaluatorsByKind indexes allEvaluators by the LimitKind they produce, so
// checkPositionRisk can restrict to a subset (spec §4.3).
var evaluatorsByKind = map[LimitKind]func(*evaluationContext) []Verdict{
	LimitPositionSize:      evaluatePositionSize,
	LimitOrderSize:         evaluateOrderSize,
	LimitOrderValue:        evaluateOrderValue,
	LimitNotionalValue:     evaluateNotionalValue,
	LimitMarginUtilization: evaluateMarginUtilization,
	LimitLeverage:          evaluateLeverage,
	LimitConcentration:     evaluateConcentration,
	LimitDrawdown:          evaluateDrawdown,
	LimitDailyLoss:         evaluateDailyLoss,
	LimitTradeFrequency:    evaluateTradeFrequency,
}

// runEvaluators runs the given evaluator set against ctx, skipping any kind
// present in exemptions (spec §4.1: "A limit is skipped when its kind
// appears in the account's effective exemption set").
func runEvaluators(ctx *evaluationContext, evaluators []func(*evaluationContext) []Verdict, exemptions map[LimitKind]struct{}) []Verdict {
	var verdicts []Verdict
	for _, eval := range evaluators {
		v := eval(ctx)
		for _, vv := range v {
			if _, exempt := exemptions[vv.Kind]; exempt {
				continue
			}
			verdicts = append(verdicts, vv)
		}
	}
	return verdicts
}
