package risk

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/riskcore/internal/architecture/fx/resilience"
)

// breakerSettings returns the gobreaker.Settings this core applies to every
// collaborator breaker: while fewer than 10 requests are counted in the
// window, trip after 5 consecutive failures; from 10 requests on, trip at a
// >=60% failure ratio. Half-open after 15s.
func breakerSettings(name string, log *zap.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return counts.ConsecutiveFailures >= 5
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("collaborator circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
}

// breakeredAccountService wraps an AccountService with a gobreaker, obtained
// from the shared CircuitBreakerFactory so every collaborator breaker in the
// process shares one registry. The wrappers call the breaker's Execute
// directly and breakerSettings supplies its own OnStateChange logger, so the
// factory's CircuitBreakerMetrics record neither their executions nor their
// state changes.
type breakeredAccountService struct {
	inner AccountService
	cb    *gobreaker.CircuitBreaker
}

func newBreakeredAccountService(inner AccountService, factory *resilience.CircuitBreakerFactory, log *zap.Logger) *breakeredAccountService {
	return &breakeredAccountService{inner: inner, cb: factory.GetCircuitBreakerWithSettings("account-service", breakerSettings("account-service", log))}
}

func (b *breakeredAccountService) GetAccountSnapshot(ctx context.Context, accountID string) (*AccountSnapshot, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetAccountSnapshot(ctx, accountID)
	})
	if err != nil {
		return nil, err
	}
	return out.(*AccountSnapshot), nil
}

// breakeredPositionService wraps a PositionService with a gobreaker.
type breakeredPositionService struct {
	inner PositionService
	cb    *gobreaker.CircuitBreaker
}

func newBreakeredPositionService(inner PositionService, factory *resilience.CircuitBreakerFactory, log *zap.Logger) *breakeredPositionService {
	return &breakeredPositionService{inner: inner, cb: factory.GetCircuitBreakerWithSettings("position-service", breakerSettings("position-service", log))}
}

func (b *breakeredPositionService) GetPositions(ctx context.Context, accountID string) (map[Symbol]Position, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetPositions(ctx, accountID)
	})
	if err != nil {
		return nil, err
	}
	return out.(map[Symbol]Position), nil
}

func (b *breakeredPositionService) ListAccountsWithOpenPositions(ctx context.Context) ([]string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.ListAccountsWithOpenPositions(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]string), nil
}

// breakeredMarketDataService wraps a MarketDataService with a gobreaker.
type breakeredMarketDataService struct {
	inner MarketDataService
	cb    *gobreaker.CircuitBreaker
}

func newBreakeredMarketDataService(inner MarketDataService, factory *resilience.CircuitBreakerFactory, log *zap.Logger) *breakeredMarketDataService {
	return &breakeredMarketDataService{inner: inner, cb: factory.GetCircuitBreakerWithSettings("market-data-service", breakerSettings("market-data-service", log))}
}

func (b *breakeredMarketDataService) GetReferencePrice(ctx context.Context, symbol Symbol) (float64, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		price, err := b.inner.GetReferencePrice(ctx, symbol)
		if err != nil {
			return 0.0, err
		}
		return price, nil
	})
	if err != nil {
		return 0, errMarketDataUnavailable(symbol, err)
	}
	return out.(float64), nil
}

// breakeredVolatilityService wraps a VolatilityService with a gobreaker.
type breakeredVolatilityService struct {
	inner VolatilityService
	cb    *gobreaker.CircuitBreaker
}

func newBreakeredVolatilityService(inner VolatilityService, factory *resilience.CircuitBreakerFactory, log *zap.Logger) *breakeredVolatilityService {
	return &breakeredVolatilityService{inner: inner, cb: factory.GetCircuitBreakerWithSettings("volatility-service", breakerSettings("volatility-service", log))}
}

func (b *breakeredVolatilityService) GetHistoricalVolatility(ctx context.Context, symbol Symbol) (float64, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetHistoricalVolatility(ctx, symbol)
	})
	if err != nil {
		return 0, err
	}
	return out.(float64), nil
}

func (b *breakeredVolatilityService) GetMarketCap(ctx context.Context, symbol Symbol) (float64, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.GetMarketCap(ctx, symbol)
	})
	if err != nil {
		return 0, err
	}
	return out.(float64), nil
}

// breakeredRepository wraps a RiskRepository's write path with a gobreaker.
// Reads are not breakered: they hit the repository's in-process maps and
// cannot fail in the way an external dependency call can.
type breakeredRepository struct {
	RiskRepository
	cb *gobreaker.CircuitBreaker
}

func newBreakeredRepository(inner RiskRepository, factory *resilience.CircuitBreakerFactory, log *zap.Logger) *breakeredRepository {
	return &breakeredRepository{RiskRepository: inner, cb: factory.GetCircuitBreakerWithSettings("risk-repository", breakerSettings("risk-repository", log))}
}

func (b *breakeredRepository) PutProfile(ctx context.Context, profile *RiskProfile) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.RiskRepository.PutProfile(ctx, profile)
	})
	return err
}

func (b *breakeredRepository) PutAccountLimits(ctx context.Context, limits *AccountRiskLimits) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.RiskRepository.PutAccountLimits(ctx, limits)
	})
	return err
}
