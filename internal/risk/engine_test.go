package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type noopEventBus struct {
	published []string
}

func (b *noopEventBus) Subscribe(topic string, handler func(ctx context.Context, payload []byte) error) error {
	return nil
}

func (b *noopEventBus) Publish(ctx context.Context, topic string, payload interface{}) error {
	b.published = append(b.published, topic)
	return nil
}

func (b *noopEventBus) Connect() error    { return nil }
func (b *noopEventBus) Disconnect() error { return nil }

type fakeMarketDataService struct {
	prices map[Symbol]float64
}

func (f *fakeMarketDataService) GetReferencePrice(ctx context.Context, symbol Symbol) (float64, error) {
	return f.prices[symbol], nil
}

func newTestEngine(t *testing.T, account *AccountSnapshot, positions map[Symbol]Position, price float64) (*Engine, *noopEventBus) {
	t.Helper()
	log := zaptest.NewLogger(t)
	repo := NewInMemoryRepository(log)
	bus := &noopEventBus{}

	accountSvc := &fakeAccountService{snapshot: account}
	positionSvc := &fakePositionService{positions: positions}
	marketData := &fakeMarketDataService{prices: map[Symbol]float64{"BTC-USD": price, "ETH-USD": price}}
	volatility := &fakeVolatilityService{sigma: 0.01, capUSD: 500e9}

	configMgrLog := zaptest.NewLogger(t)
	_ = configMgrLog

	engine := NewEngine(EngineParams{
		Log:         log,
		Repository:  repo,
		AccountSvc:  accountSvc,
		PositionSvc: positionSvc,
		MarketData:  marketData,
		Volatility:  volatility,
		Bus:         bus,
		Metrics:     nil,
	})

	ctx := context.Background()
	require.NoError(t, engine.loadProfiles(ctx))
	require.NoError(t, engine.loadAccountLimits(ctx))

	return engine, bus
}

// TestCheckOrderRisk_WithinAllLimitsAllows covers scenario 1: a small order
// against a healthy account produces an Evaluation with no verdicts and
// NOTIFY/allow.
func TestCheckOrderRisk_WithinAllLimitsAllows(t *testing.T) {
	// A pre-existing ETH position keeps the new BTC order from reading as
	// 100% portfolio concentration.
	existing := map[Symbol]Position{
		"ETH-USD": {Symbol: "ETH-USD", Side: SideLong, Size: 100, NotionalValue: 2_000_000},
	}
	account := &AccountSnapshot{AccountID: "acct-1", Equity: 1_000_000, Positions: existing}
	engine, bus := newTestEngine(t, account, existing, 60_000)

	order := &OrderIntent{OrderID: "ord-1", Symbol: "BTC-USD", Side: SideLong, Size: 1, Type: OrderTypeMarket}
	eval, err := engine.CheckOrderRisk(context.Background(), "acct-1", order)
	require.NoError(t, err)

	assert.True(t, eval.Allow)
	assert.Equal(t, ActionNotify, eval.ResolvedAction)
	assert.NotContains(t, bus.published, topicRiskAction)
	assert.NotContains(t, bus.published, topicRiskViolation)
}

// TestCheckOrderRisk_ExceedsPositionSizeRejects covers scenario 2: an order
// whose projected position size exceeds the moderate profile's BTC-USD cap
// is rejected outright, regardless of any weaker verdicts.
func TestCheckOrderRisk_ExceedsPositionSizeRejects(t *testing.T) {
	account := &AccountSnapshot{AccountID: "acct-2", Equity: 10_000_000, Positions: map[Symbol]Position{}}
	engine, bus := newTestEngine(t, account, map[Symbol]Position{}, 60_000)

	order := &OrderIntent{OrderID: "ord-2", Symbol: "BTC-USD", Side: SideLong, Size: 50, Type: OrderTypeMarket} // moderate cap is 10
	eval, err := engine.CheckOrderRisk(context.Background(), "acct-2", order)
	require.NoError(t, err)

	assert.False(t, eval.Allow)
	assert.Equal(t, ActionReject, eval.ResolvedAction)
	assert.Contains(t, bus.published, topicRiskViolation)
}

// TestCheckOrderRisk_AccountOverrideNarrowsLimit covers scenario 3: a
// per-account override tightens the base profile's order-size limit below
// what the profile alone would allow.
func TestCheckOrderRisk_AccountOverrideNarrowsLimit(t *testing.T) {
	existing := map[Symbol]Position{
		"ETH-USD": {Symbol: "ETH-USD", Side: SideLong, Size: 100, NotionalValue: 2_000_000},
	}
	account := &AccountSnapshot{AccountID: "acct-3", Equity: 1_000_000, Positions: existing}
	engine, _ := newTestEngine(t, account, existing, 60_000)

	ctx := context.Background()
	tightened := OrderLimits{MaxOrderSize: 0.5, MaxOrderValue: 1_000_000, MaxLeverage: 10, MaxDailyOrders: 1000}
	require.NoError(t, engine.UpdateAccountLimits(ctx, &AccountRiskLimits{
		AccountID: "acct-3",
		ProfileID: ProfileModerate,
		Overrides: AccountRiskLimitOverrides{OrderLimits: &tightened},
	}))

	order := &OrderIntent{OrderID: "ord-3", Symbol: "BTC-USD", Side: SideLong, Size: 1, Type: OrderTypeMarket}
	eval, err := engine.CheckOrderRisk(ctx, "acct-3", order)
	require.NoError(t, err)

	assert.Equal(t, ActionWarn, eval.ResolvedAction)
	require.Len(t, eval.Verdicts, 1)
	assert.Equal(t, LimitOrderSize, eval.Verdicts[0].Kind)
}

// TestCheckPositionRisk_DrawdownDemotesToWarnWhenNotIncreasingExposure
// exercises the monitor path's position-centric subset together with the
// reduce-only demotion rule.
func TestCheckPositionRisk_DrawdownDemotesToWarnWhenNotIncreasingExposure(t *testing.T) {
	positions := map[Symbol]Position{
		"BTC-USD": {Symbol: "BTC-USD", Side: SideLong, Size: 1, NotionalValue: 60_000},
	}
	account := &AccountSnapshot{AccountID: "acct-4", Equity: 60_000, Positions: positions}
	engine, _ := newTestEngine(t, account, positions, 60_000)

	ctx := context.Background()
	// Prime the session's peak-equity tracker above current equity so
	// drawdown evaluates to a violation.
	engine.sessions.get("acct-4").peakEquity = 100_000

	eval, err := engine.CheckPositionRisk(ctx, "acct-4")
	require.NoError(t, err)

	assert.True(t, eval.Allow)
	assert.Equal(t, ActionWarn, eval.ResolvedAction)
}

func TestResolveEffective_FallsBackToModerateWhenNoOverride(t *testing.T) {
	account := &AccountSnapshot{AccountID: "acct-5", Equity: 1_000_000, Positions: map[Symbol]Position{}}
	engine, _ := newTestEngine(t, account, map[Symbol]Position{}, 60_000)

	profile, _ := engine.resolveEffective("unknown-account")
	assert.Equal(t, ProfileModerate, profile.ID)
}

func TestMain_TimeSeamIsDeterministic(t *testing.T) {
	restore := freezeTime(time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC))
	defer restore()
	assert.Equal(t, 2026, timeNow().Year())
}
