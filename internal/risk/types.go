// Package risk implements the Risk Control Core: the Risk Evaluation Engine
// (order/position gating against configurable limits) and the Adaptive
// Position Sizer (recommended trade sizing from account and market state).
package risk

import "time"

// Symbol is an opaque instrument identifier, e.g. "BTC-USD".
type Symbol string

// Side is the direction of a position or order.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Action is the enforcement action attached to a limit violation. Actions
// are totally ordered from weakest to strongest.
type Action int

const (
	ActionNotify Action = iota
	ActionWarn
	ActionReduceOnly
	ActionReject
)

func (a Action) String() string {
	switch a {
	case ActionNotify:
		return "NOTIFY"
	case ActionWarn:
		return "WARN"
	case ActionReduceOnly:
		return "REDUCE_ONLY"
	case ActionReject:
		return "REJECT"
	default:
		return "UNKNOWN"
	}
}

// LimitKind is the closed set of limit categories the engine evaluates.
type LimitKind string

const (
	LimitPositionSize      LimitKind = "POSITION_SIZE"
	LimitOrderSize         LimitKind = "ORDER_SIZE"
	LimitOrderValue        LimitKind = "ORDER_VALUE"
	LimitNotionalValue     LimitKind = "NOTIONAL_VALUE"
	LimitMarginUtilization LimitKind = "MARGIN_UTILIZATION"
	LimitLeverage          LimitKind = "LEVERAGE"
	LimitConcentration     LimitKind = "CONCENTRATION"
	LimitDrawdown          LimitKind = "DRAWDOWN"
	LimitDailyLoss         LimitKind = "DAILY_LOSS"
	LimitTradeFrequency    LimitKind = "TRADE_FREQUENCY"
)

// positionCentricKinds are the limit kinds checkPositionRisk restricts to.
var positionCentricKinds = []LimitKind{
	LimitMarginUtilization,
	LimitDrawdown,
	LimitDailyLoss,
	LimitConcentration,
	LimitNotionalValue,
	LimitLeverage,
}

// OrderType mirrors the inbound order:created event payload.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderIntent is the prospective order under evaluation.
type OrderIntent struct {
	OrderID string
	Symbol  Symbol
	Side    Side
	Size    float64
	Price   float64
	Type    OrderType
}

// Position is a single open position on an account.
type Position struct {
	Symbol        Symbol
	Side          Side
	Size          float64 // base units, always >= 0
	NotionalValue float64 // quote units, signed with Side's sign convention
	EntryPrice    float64
	UnrealizedPnL float64
}

// Balance is a single free/locked asset balance.
type Balance struct {
	Free   float64
	Locked float64
}

// AccountSnapshot is a read-only view of account state supplied by
// AccountService/PositionService for a single evaluation.
type AccountSnapshot struct {
	AccountID string
	Equity    float64
	Balances  map[string]Balance
	Positions map[Symbol]Position
}

// Verdict is a single limit's finding.
type Verdict struct {
	Kind      LimitKind
	Action    Action
	Observed  float64
	Threshold float64
	Message   string
}

// Evaluation is the outcome of running every applicable evaluator through
// the action resolver.
type Evaluation struct {
	Verdicts       []Verdict
	ResolvedAction Action
	Allow          bool
}

// PositionLimit bounds long/short size and notional value for one symbol
// (or the "default" fallback).
type PositionLimit struct {
	MaxLongSize  float64
	MaxShortSize float64
	MaxLongValue float64
	MaxShortValue float64
}

// OrderLimits bounds a single order and the account's daily order count.
type OrderLimits struct {
	MaxOrderSize   float64
	MaxOrderValue  float64
	MaxLeverage    float64
	MaxDailyOrders int
}

// MarginLimits bounds margin usage. MaintenanceMarginRatio and
// LiquidationThreshold are carried but never consumed by any evaluator in
// this core — see spec §9 and DESIGN.md.
type MarginLimits struct {
	MaxMarginUtilization    float64
	InitialMarginRatio      float64
	MaintenanceMarginRatio  float64
	LiquidationThreshold    float64
}

// PortfolioRiskLimits bounds concentration, drawdown, daily loss and trade
// frequency.
type PortfolioRiskLimits struct {
	MaxConcentration  float64
	MaxDrawdown       float64
	MaxDailyLoss      float64
	MaxTradeFrequency int
}

const defaultSymbolKey = "default"

// RiskProfile is a named, reusable bundle of limits and per-limit actions.
type RiskProfile struct {
	ID              string
	PositionLimits  map[string]PositionLimit // symbol or "default" -> limit
	OrderLimits     OrderLimits
	MarginLimits    MarginLimits
	RiskLimits      PortfolioRiskLimits
	Actions         map[LimitKind]Action
	DefaultExemptions map[LimitKind]struct{}
}

// positionLimitFor resolves the applicable position limit for a symbol,
// falling back to the profile's "default" entry.
func (p *RiskProfile) positionLimitFor(symbol Symbol) (PositionLimit, bool) {
	if l, ok := p.PositionLimits[string(symbol)]; ok {
		return l, true
	}
	if l, ok := p.PositionLimits[defaultSymbolKey]; ok {
		return l, true
	}
	return PositionLimit{}, false
}

// actionFor returns the configured action for a limit kind, defaulting to
// NOTIFY when unconfigured (spec §9 design note).
func (p *RiskProfile) actionFor(kind LimitKind) Action {
	if a, ok := p.Actions[kind]; ok {
		return a
	}
	return ActionNotify
}

// AccountRiskLimitOverrides is the per-account override layer. Every field
// is a pointer so a nil field means "inherit from profile".
type AccountRiskLimitOverrides struct {
	PositionLimits map[string]*PositionLimit
	OrderLimits    *OrderLimits
	MarginLimits   *MarginLimits
	RiskLimits     *PortfolioRiskLimits
	Actions        map[LimitKind]Action
}

// AccountRiskLimits is a per-account override layer on top of a named
// profile. Effective limits are the profile with overrides applied section by
// section, overrides winning; exemptions are the union of both sets. A
// non-nil OrderLimits, MarginLimits or RiskLimits override replaces that whole
// section, and a PositionLimits entry replaces that symbol's whole limit;
// fields inside an overridden section do not fall through to the profile.
type AccountRiskLimits struct {
	AccountID string
	ProfileID string
	Overrides AccountRiskLimitOverrides
	Exemptions map[LimitKind]struct{}
}

// EffectiveProfile merges a base profile with this account's overrides,
// section by section (per-symbol for position limits, per-kind for actions),
// returning a new RiskProfile. The base profile is never mutated.
func (l *AccountRiskLimits) EffectiveProfile(base *RiskProfile) *RiskProfile {
	eff := &RiskProfile{
		ID:                base.ID,
		PositionLimits:    make(map[string]PositionLimit, len(base.PositionLimits)),
		OrderLimits:       base.OrderLimits,
		MarginLimits:      base.MarginLimits,
		RiskLimits:        base.RiskLimits,
		Actions:           make(map[LimitKind]Action, len(base.Actions)),
		DefaultExemptions: base.DefaultExemptions,
	}
	for k, v := range base.PositionLimits {
		eff.PositionLimits[k] = v
	}
	for k, v := range base.Actions {
		eff.Actions[k] = v
	}
	for symbol, ov := range l.Overrides.PositionLimits {
		if ov != nil {
			eff.PositionLimits[symbol] = *ov
		}
	}
	if l.Overrides.OrderLimits != nil {
		eff.OrderLimits = *l.Overrides.OrderLimits
	}
	if l.Overrides.MarginLimits != nil {
		eff.MarginLimits = *l.Overrides.MarginLimits
	}
	if l.Overrides.RiskLimits != nil {
		eff.RiskLimits = *l.Overrides.RiskLimits
	}
	for k, v := range l.Overrides.Actions {
		eff.Actions[k] = v
	}
	return eff
}

// effectiveExemptions is the union of the profile's default exemptions and
// the account's own exemption set.
func (l *AccountRiskLimits) effectiveExemptions(base *RiskProfile) map[LimitKind]struct{} {
	out := make(map[LimitKind]struct{}, len(base.DefaultExemptions)+len(l.Exemptions))
	for k := range base.DefaultExemptions {
		out[k] = struct{}{}
	}
	for k := range l.Exemptions {
		out[k] = struct{}{}
	}
	return out
}

// PositionSizingParams is the input to the Adaptive Position Sizer.
type PositionSizingParams struct {
	AccountID             string
	Symbol                Symbol
	PositionType          Side
	EntryPrice            float64
	StopLossPercentage    float64
	RiskPercentage        float64
	MaxPositionPercentage float64
	Confidence            float64 // [0,1]; ignored (treated as 1) unless HasConfidence is set
	HasConfidence         bool
	VolatilityAdjustment  bool
	MarketCapAdjustment   bool
}

// PositionSizingResult is the output of the Adaptive Position Sizer.
type PositionSizingResult struct {
	Symbol                  Symbol
	BaseSize                float64
	QuoteSize               float64
	EffectiveRiskPercentage float64
	StopLossPrice           float64
	MaxLossAmount           float64
	Leverage                float64
	AdjustmentFactors       map[string]float64
}

// timeNow is a seam for deterministic tests.
var timeNow = time.Now
