package risk

import (
	"context"
	"math"

	"go.uber.org/zap"
)

// PositionSizer implements the Adaptive Position Sizer: a strict seven-step
// calculation from account/market state to a recommended trade size (spec
// §4.4). Grounded on the teacher's risk_calculator.go RiskCalculator, which
// runs an analogous fixed pipeline (account risk -> stop distance -> base
// size -> caps) that this sizer generalizes with the adjustment stages and
// config hot-reload from SizerConfigManager.
type PositionSizer struct {
	log        *zap.Logger
	accountSvc AccountService
	positionSvc PositionService
	volatility VolatilityService
	configMgr  *SizerConfigManager
	metrics    *Metrics
}

// NewPositionSizer constructs a PositionSizer.
func NewPositionSizer(accountSvc AccountService, positionSvc PositionService, volatility VolatilityService, configMgr *SizerConfigManager, metrics *Metrics, log *zap.Logger) *PositionSizer {
	return &PositionSizer{
		log:         log,
		accountSvc:  accountSvc,
		positionSvc: positionSvc,
		volatility:  volatility,
		configMgr:   configMgr,
		metrics:     metrics,
	}
}

// CalculatePositionSize runs the seven-step sizing pipeline:
//  1. risk budget = equity * effective risk percentage
//  2. stop-loss price from entry price and stop-loss percentage
//  3. base size = risk budget / price-risk-per-unit
//  4. apply the max-position-percentage cap
//  5. apply multiplicative adjustments: volatility, market cap, confidence,
//     concentration, time-of-day — in that order
//  6. floor-round to the configured size increment
//  7. derive quote size, max loss amount and implied leverage
func (s *PositionSizer) CalculatePositionSize(ctx context.Context, params PositionSizingParams) (PositionSizingResult, error) {
	cfg := s.configMgr.Current()

	account, err := s.accountSvc.GetAccountSnapshot(ctx, params.AccountID)
	if err != nil {
		return PositionSizingResult{}, err
	}

	// Step 1: risk budget.
	riskPct := params.RiskPercentage
	if riskPct <= 0 {
		riskPct = cfg.DefaultRiskPercentage
	}
	riskBudget := account.Equity * riskPct

	// Step 2: stop-loss price.
	stopLossPrice, priceRiskPerUnit, err := resolveStopLoss(params)
	if err != nil {
		return PositionSizingResult{}, err
	}
	if priceRiskPerUnit <= 0 {
		return PositionSizingResult{}, errInvalidStop(params.AccountID)
	}

	// Step 3: base size.
	baseSize := riskBudget / priceRiskPerUnit

	// Step 4: caps, applied in order (spec §4.4 step 4).
	maxPositionPct := params.MaxPositionPercentage
	if maxPositionPct <= 0 {
		maxPositionPct = cfg.MaxPositionPercentage
	}
	maxAllowedQuote := account.Equity * maxPositionPct
	if quote := baseSize * params.EntryPrice; quote > maxAllowedQuote {
		baseSize = maxAllowedQuote / params.EntryPrice
	}
	if balance, ok := account.Balances[quoteAsset(params.Symbol)]; ok {
		if quote := baseSize * params.EntryPrice; quote > balance.Free {
			baseSize = balance.Free / params.EntryPrice
		}
	}

	// Step 5: multiplicative adjustments.
	adjustments := make(map[string]float64, 5)
	adjustedSize := baseSize

	if params.VolatilityAdjustment {
		sigma, err := s.volatility.GetHistoricalVolatility(ctx, params.Symbol)
		if err != nil {
			return PositionSizingResult{}, err
		}
		factor := cfg.VolatilityAdjustmentCurve[classifyVolatility(sigma)]
		adjustments["volatility"] = factor
		adjustedSize *= factor
	}

	if params.MarketCapAdjustment {
		cap, err := s.volatility.GetMarketCap(ctx, params.Symbol)
		if err != nil {
			return PositionSizingResult{}, err
		}
		factor := cfg.MarketCapAdjustmentCurve[classifyMarketCap(cap)]
		adjustments["market_cap"] = factor
		adjustedSize *= factor
	}

	confidence := params.Confidence
	if !params.HasConfidence {
		confidence = 1.0
	}
	confidenceFactor := math.Pow(confidence, cfg.ConfidenceScaleExponent)
	adjustments["confidence"] = confidenceFactor
	adjustedSize *= confidenceFactor

	plannedQuote := adjustedSize * params.EntryPrice
	concentrationFactor := s.concentrationAdjustment(ctx, params, cfg, plannedQuote)
	adjustments["concentration"] = concentrationFactor
	adjustedSize *= concentrationFactor

	sessionFactor := cfg.SessionAdjustmentCurve[classifySession(timeNow())]
	adjustments["time_of_day"] = sessionFactor
	adjustedSize *= sessionFactor

	// Step 6: floor-round to the configured increment.
	finalSize := floorRound(adjustedSize, cfg.SizeRoundingIncrement)
	if finalSize < 0 {
		finalSize = 0
	}

	// Step 7: derived outputs.
	quoteSize := finalSize * params.EntryPrice
	maxLossAmount := finalSize * priceRiskPerUnit
	var effectiveRiskPct float64
	if account.Equity > 0 {
		effectiveRiskPct = maxLossAmount / account.Equity
	}
	var leverage float64
	if account.Equity > 0 && maxPositionPct > 0 {
		leverage = quoteSize / (account.Equity * maxPositionPct)
		if leverage > cfg.MaxLeverage {
			leverage = cfg.MaxLeverage
		}
	}

	if s.metrics != nil {
		s.metrics.observeSizing()
	}

	return PositionSizingResult{
		Symbol:                  params.Symbol,
		BaseSize:                finalSize,
		QuoteSize:               quoteSize,
		EffectiveRiskPercentage: effectiveRiskPct,
		StopLossPrice:           stopLossPrice,
		MaxLossAmount:           maxLossAmount,
		Leverage:                leverage,
		AdjustmentFactors:       adjustments,
	}, nil
}

// resolveStopLoss derives the stop-loss price and the absolute per-unit
// price risk (|entry - stop|) from the sizing params.
func resolveStopLoss(params PositionSizingParams) (stopLossPrice, priceRisk float64, err error) {
	distance := params.EntryPrice * params.StopLossPercentage
	if params.PositionType == SideShort {
		stopLossPrice = params.EntryPrice + distance
	} else {
		stopLossPrice = params.EntryPrice - distance
	}
	priceRisk = math.Abs(params.EntryPrice - stopLossPrice)
	return stopLossPrice, priceRisk, nil
}

// concentrationAdjustment implements spec §4.4 step 5's concentration
// ladder: the planned trade's own quote size is added to both the affected
// symbol's existing notional and the portfolio total before computing
// projected concentration, then the highest threshold whose Level is <= that
// projected concentration wins (1.0 if none is reached).
func (s *PositionSizer) concentrationAdjustment(ctx context.Context, params PositionSizingParams, cfg *SizerConfig, plannedQuote float64) float64 {
	positions, err := s.positionSvc.GetPositions(ctx, params.AccountID)
	if err != nil {
		return 1.0
	}
	total := 0.0
	symbolValue := 0.0
	for symbol, pos := range positions {
		v := math.Abs(pos.NotionalValue)
		total += v
		if symbol == params.Symbol {
			symbolValue = v
		}
	}
	total += plannedQuote
	symbolValue += plannedQuote
	if total == 0 {
		return 1.0
	}
	concentration := symbolValue / total

	multiplier := 1.0
	for _, th := range cfg.ConcentrationThresholds {
		if th.Level <= concentration {
			multiplier = th.Multiplier
		}
	}
	return multiplier
}

// quoteAsset extracts the quote asset from a "BASE-QUOTE" symbol, used to
// look up the account's available balance for step 4's second cap.
func quoteAsset(symbol Symbol) string {
	s := string(symbol)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '-' {
			return s[i+1:]
		}
	}
	return s
}

// floorRound rounds down to the nearest multiple of increment (spec §4.4
// step 6: "round down, never up, so the recommended size never exceeds the
// calculated budget").
func floorRound(value, increment float64) float64 {
	if increment <= 0 {
		return value
	}
	return math.Floor(value/increment) * increment
}
