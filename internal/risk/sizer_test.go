package risk

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeAccountService struct {
	snapshot *AccountSnapshot
}

func (f *fakeAccountService) GetAccountSnapshot(ctx context.Context, accountID string) (*AccountSnapshot, error) {
	return f.snapshot, nil
}

type fakePositionService struct {
	positions map[Symbol]Position
	accounts  []string
}

func (f *fakePositionService) GetPositions(ctx context.Context, accountID string) (map[Symbol]Position, error) {
	return f.positions, nil
}

func (f *fakePositionService) ListAccountsWithOpenPositions(ctx context.Context) ([]string, error) {
	return f.accounts, nil
}

type fakeVolatilityService struct {
	sigma  float64
	capUSD float64
}

func (f *fakeVolatilityService) GetHistoricalVolatility(ctx context.Context, symbol Symbol) (float64, error) {
	return f.sigma, nil
}

func (f *fakeVolatilityService) GetMarketCap(ctx context.Context, symbol Symbol) (float64, error) {
	return f.capUSD, nil
}

func newTestSizer(t *testing.T, account *AccountSnapshot, positions map[Symbol]Position, sigma, capUSD float64) *PositionSizer {
	t.Helper()
	log := zaptest.NewLogger(t)
	configMgr := NewSizerConfigManager(viper.New(), log)
	return NewPositionSizer(
		&fakeAccountService{snapshot: account},
		&fakePositionService{positions: positions},
		&fakeVolatilityService{sigma: sigma, capUSD: capUSD},
		configMgr,
		nil,
		log,
	)
}

// TestCalculatePositionSize_BasicBudgetAndStop exercises steps 1-4: risk
// budget, stop-loss price, base size, and the equity cap, with the
// volatility and market-cap stages disabled, confidence unset and a peak-hour
// clock. The concentration stage still applies: with no existing positions
// the planned trade is 100% of the portfolio.
func TestCalculatePositionSize_BasicBudgetAndStop(t *testing.T) {
	account := &AccountSnapshot{AccountID: "acct-1", Equity: 100_000}
	sizer := newTestSizer(t, account, map[Symbol]Position{}, 0.01, 500e9)

	restore := freezeTime(time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)) // weekday peak hour
	defer restore()

	result, err := sizer.CalculatePositionSize(context.Background(), PositionSizingParams{
		AccountID:          "acct-1",
		Symbol:             "BTC-USD",
		PositionType:       SideLong,
		EntryPrice:         60_000,
		StopLossPercentage: 0.02, // 2% stop -> 1200 price risk per unit
		RiskPercentage:     0.01, // 1% of 100k = 1000 risk budget
	})
	require.NoError(t, err)

	// base size = 1000 / 1200 = 0.8333... is 50000 quote, over the 25% equity
	// cap, so the cap binds at 25000/60000 = 0.41666...; the concentration
	// ladder's top rung (projected concentration 1.0) then applies 0.1, and
	// floor-rounding to 0.0001 gives 0.0416.
	assert.InDelta(t, 0.0416, result.BaseSize, 1e-6)
	assert.InDelta(t, 58_800, result.StopLossPrice, 1)
	assert.Greater(t, result.QuoteSize, 0.0)
}

// TestCalculatePositionSize_VolatilityAndMarketCapAdjustments exercises step
// 5's volatility and market-cap factors together.
func TestCalculatePositionSize_VolatilityAndMarketCapAdjustments(t *testing.T) {
	account := &AccountSnapshot{AccountID: "acct-1", Equity: 100_000}
	sizer := newTestSizer(t, account, map[Symbol]Position{}, 0.09, 40e6) // EXTREME vol, NANO cap

	restore := freezeTime(time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC))
	defer restore()

	result, err := sizer.CalculatePositionSize(context.Background(), PositionSizingParams{
		AccountID:            "acct-1",
		Symbol:               "SHIB-USD",
		PositionType:         SideLong,
		EntryPrice:           1,
		StopLossPercentage:   0.05,
		RiskPercentage:       0.01,
		VolatilityAdjustment: true,
		MarketCapAdjustment:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, 0.4, result.AdjustmentFactors["volatility"])
	assert.Equal(t, 0.3, result.AdjustmentFactors["market_cap"])
}

// TestCalculatePositionSize_ConfidenceAppliesScaleExponent exercises the
// confidence adjustment: confidence^confidenceScaleExponent (default
// exponent 0.5), not a raw linear multiplier.
func TestCalculatePositionSize_ConfidenceAppliesScaleExponent(t *testing.T) {
	account := &AccountSnapshot{AccountID: "acct-1", Equity: 100_000}
	sizer := newTestSizer(t, account, map[Symbol]Position{}, 0.01, 500e9)

	restore := freezeTime(time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC))
	defer restore()

	result, err := sizer.CalculatePositionSize(context.Background(), PositionSizingParams{
		AccountID:          "acct-1",
		Symbol:             "BTC-USD",
		PositionType:       SideLong,
		EntryPrice:         60_000,
		StopLossPercentage: 0.02,
		RiskPercentage:     0.01,
		Confidence:         0.25,
		HasConfidence:      true,
	})
	require.NoError(t, err)
	// 0.25^0.5 = 0.5
	assert.InDelta(t, 0.5, result.AdjustmentFactors["confidence"], 1e-9)
}

// TestConcentrationAdjustment_EscalationLadder exercises spec scenario 6:
// existing BTC position worth 40k, portfolio 100k, planned 20k -> projected
// concentration (40k+20k)/(100k+20k) = 0.5 -> multiplier 0.4.
func TestConcentrationAdjustment_EscalationLadder(t *testing.T) {
	account := &AccountSnapshot{AccountID: "acct-1", Equity: 100_000}
	positions := map[Symbol]Position{
		"BTC-USD": {Symbol: "BTC-USD", Side: SideLong, Size: 1, NotionalValue: 40_000},
		"ETH-USD": {Symbol: "ETH-USD", Side: SideLong, Size: 1, NotionalValue: 60_000},
	}
	sizer := newTestSizer(t, account, positions, 0.01, 500e9)

	factor := sizer.concentrationAdjustment(context.Background(), PositionSizingParams{
		AccountID: "acct-1",
		Symbol:    "BTC-USD",
	}, sizer.configMgr.Current(), 20_000)

	assert.InDelta(t, 0.4, factor, 1e-9)
}

// TestCalculatePositionSize_WeekendDampensSize exercises the time-of-day
// adjustment.
func TestCalculatePositionSize_WeekendDampensSize(t *testing.T) {
	account := &AccountSnapshot{AccountID: "acct-1", Equity: 100_000}
	sizer := newTestSizer(t, account, map[Symbol]Position{}, 0.01, 500e9)

	restore := freezeTime(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)) // Saturday
	defer restore()

	result, err := sizer.CalculatePositionSize(context.Background(), PositionSizingParams{
		AccountID:          "acct-1",
		Symbol:             "BTC-USD",
		PositionType:       SideLong,
		EntryPrice:         60_000,
		StopLossPercentage: 0.02,
		RiskPercentage:     0.01,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.7, result.AdjustmentFactors["time_of_day"])
}

// TestCalculatePositionSize_InvalidStopRejected covers the zero-price-risk
// edge case (entry price equal to stop price).
func TestCalculatePositionSize_InvalidStopRejected(t *testing.T) {
	account := &AccountSnapshot{AccountID: "acct-1", Equity: 100_000}
	sizer := newTestSizer(t, account, map[Symbol]Position{}, 0.01, 500e9)

	_, err := sizer.CalculatePositionSize(context.Background(), PositionSizingParams{
		AccountID:          "acct-1",
		Symbol:             "BTC-USD",
		PositionType:       SideLong,
		EntryPrice:         60_000,
		StopLossPercentage: 0, // zero distance -> zero price risk
		RiskPercentage:     0.01,
	})
	require.Error(t, err)
	var riskErr *RiskError
	require.ErrorAs(t, err, &riskErr)
	assert.Equal(t, ErrInvalidStop, riskErr.Code)
}

// freezeTime overrides the package's timeNow seam for the duration of a
// test, returning a restore function.
func freezeTime(at time.Time) func() {
	prev := timeNow
	timeNow = func() time.Time { return at }
	return func() { timeNow = prev }
}
