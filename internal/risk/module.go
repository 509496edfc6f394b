package risk

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/riskcore/internal/architecture/fx/resilience"
	"github.com/abdoElHodaky/riskcore/internal/architecture/fx/workerpool"
)

// ModuleParams bundles the collaborators the module needs from the rest of
// the application graph. The four services are supplied by constructors
// provided elsewhere in the binary (or by test fakes); this module only
// wraps them in circuit breakers and wires the engine/sizer/monitor around
// them.
type ModuleParams struct {
	fx.In

	Log         *zap.Logger
	Viper       *viper.Viper
	Registerer  prometheus.Registerer
	AccountSvc  AccountService
	PositionSvc PositionService
	MarketData  MarketDataService
	Volatility  VolatilityService
	BrokerType  string `name:"risk_broker_type" optional:"true"`
	PoolSize    int    `name:"risk_monitor_pool_size" optional:"true"`
}

// ModuleResult exposes the constructed Engine and PositionSizer to the rest
// of the application graph (e.g. a gRPC or HTTP facade that isn't part of
// this core).
type ModuleResult struct {
	fx.Out

	Engine     *Engine
	Sizer      *PositionSizer
	Repository RiskRepository
}

// NewModule builds the Risk Control Core's dependency graph: repository,
// breakered collaborators, metrics, sizer config, sizer, engine, and
// monitor, in that order. Grounded on the teacher's fx module constructor
// in internal/risk/module.go (RiskManagementModule / NewFxService).
func NewModule(p ModuleParams) (ModuleResult, error) {
	breakers := resilience.NewCircuitBreakerFactory(resilience.CircuitBreakerParams{Logger: p.Log})
	pools := workerpool.NewWorkerPoolFactory(workerpool.WorkerPoolParams{Logger: p.Log})

	repo := newBreakeredRepository(NewInMemoryRepository(p.Log), breakers, p.Log)

	accountSvc := newBreakeredAccountService(p.AccountSvc, breakers, p.Log)
	positionSvc := newBreakeredPositionService(p.PositionSvc, breakers, p.Log)
	marketData := newBreakeredMarketDataService(p.MarketData, breakers, p.Log)
	volatility := newBreakeredVolatilityService(p.Volatility, breakers, p.Log)

	metrics := NewMetrics(p.Registerer)

	v := p.Viper
	if v == nil {
		v = viper.New()
	}
	configMgr := NewSizerConfigManager(v, p.Log)
	sizer := NewPositionSizer(accountSvc, positionSvc, volatility, configMgr, metrics, p.Log)

	bus := NewEventBus(p.BrokerType, p.Log)

	engine := NewEngine(EngineParams{
		Log:         p.Log,
		Repository:  repo,
		AccountSvc:  accountSvc,
		PositionSvc: positionSvc,
		MarketData:  marketData,
		Volatility:  volatility,
		Bus:         bus,
		Sizer:       sizer,
		Metrics:     metrics,
	})

	poolSize := p.PoolSize
	monitor, err := NewMonitor(engine, positionSvc, poolSize, pools, p.Log)
	if err != nil {
		return ModuleResult{}, err
	}
	engine.AttachMonitor(monitor)

	return ModuleResult{Engine: engine, Sizer: sizer, Repository: repo}, nil
}

// registerLifecycle hooks Engine.Start/Stop into the fx application
// lifecycle.
func registerLifecycle(lc fx.Lifecycle, engine *Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return engine.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return engine.Stop(ctx)
		},
	})
}

// Module is the fx module applications embed to get a fully wired Risk
// Control Core.
var Module = fx.Module("risk",
	fx.Provide(NewModule),
	fx.Invoke(registerLifecycle),
)
