package risk

import "context"

// AccountService supplies account equity and balances. Grounded on the
// teacher's account-facing calls in internal/risk/risk_manager.go, narrowed
// to the read-only surface this core actually needs.
type AccountService interface {
	GetAccountSnapshot(ctx context.Context, accountID string) (*AccountSnapshot, error)
}

// PositionService supplies open positions for an account, kept separate
// from AccountService because the teacher's position_manager.go is its own
// collaborator with its own breaker and its own refresh cadence.
type PositionService interface {
	GetPositions(ctx context.Context, accountID string) (map[Symbol]Position, error)
	ListAccountsWithOpenPositions(ctx context.Context) ([]string, error)
}

// MarketDataService supplies the reference price used for notional,
// leverage and margin math.
type MarketDataService interface {
	GetReferencePrice(ctx context.Context, symbol Symbol) (float64, error)
}

// VolatilityService supplies the 30-day historical volatility and market
// capitalization figures the Adaptive Position Sizer's adjustment stages
// consume (spec §4.4).
type VolatilityService interface {
	GetHistoricalVolatility(ctx context.Context, symbol Symbol) (float64, error)
	GetMarketCap(ctx context.Context, symbol Symbol) (float64, error)
}
