package risk

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/riskcore/internal/architecture/fx/workerpool"
)

// monitorPeriod is the default interval between monitor sweeps (spec §5:
// "the monitor loop runs on a 60s default period").
const monitorPeriod = 60 * time.Second

// monitorShutdownGrace bounds how long Stop waits for an in-flight sweep to
// finish before returning anyway.
const monitorShutdownGrace = 5 * time.Second

// Monitor periodically re-evaluates position risk for every account with
// open positions, bounded to a fixed worker count so a large account book
// cannot overwhelm the collaborator services.
type Monitor struct {
	log         *zap.Logger
	engine      *Engine
	positionSvc PositionService
	period      time.Duration

	pool *ants.Pool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// monitorPoolName identifies the monitor's sweep pool inside the shared
// WorkerPoolFactory registry.
const monitorPoolName = "risk-monitor-sweep"

// NewMonitor constructs a Monitor whose sweep pool (sized poolSize) is
// obtained from the shared WorkerPoolFactory.
func NewMonitor(engine *Engine, positionSvc PositionService, poolSize int, factory *workerpool.WorkerPoolFactory, log *zap.Logger) (*Monitor, error) {
	if poolSize <= 0 {
		poolSize = 16
	}
	pool, err := factory.GetWorkerPool(monitorPoolName, poolSize)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		log:         log,
		engine:      engine,
		positionSvc: positionSvc,
		period:      monitorPeriod,
		pool:        pool,
	}, nil
}

// Start begins the periodic sweep loop in a background goroutine.
func (m *Monitor) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop cancels the sweep loop and waits up to monitorShutdownGrace for any
// in-flight sweep to finish, then releases the worker pool.
func (m *Monitor) Stop(ctx context.Context) {
	if m.cancel != nil {
		m.cancel()
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(monitorShutdownGrace):
		m.log.Warn("monitor loop did not stop within grace window")
	}
	m.pool.Release()
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep lists every account with open positions and submits one
// CheckPositionRisk call per account to the worker pool, waiting for the
// whole batch before returning.
func (m *Monitor) sweep(ctx context.Context) {
	accountIDs, err := m.positionSvc.ListAccountsWithOpenPositions(ctx)
	if err != nil {
		m.log.Error("monitor sweep failed to list accounts", zap.Error(err))
		return
	}

	var wg sync.WaitGroup
	for _, accountID := range accountIDs {
		accountID := accountID
		wg.Add(1)
		err := m.pool.Submit(func() {
			defer wg.Done()
			m.checkOne(ctx, accountID)
		})
		if err != nil {
			wg.Done()
			m.log.Error("monitor sweep failed to submit task", zap.String("account_id", accountID), zap.Error(err))
		}
	}
	wg.Wait()
}

func (m *Monitor) checkOne(ctx context.Context, accountID string) {
	eval, err := m.engine.CheckPositionRisk(ctx, accountID)
	if err != nil {
		m.log.Error("position risk check failed", zap.String("account_id", accountID), zap.Error(err))
		return
	}
	if !eval.Allow || eval.ResolvedAction != ActionNotify {
		m.log.Warn("position risk action",
			zap.String("account_id", accountID),
			zap.String("action", eval.ResolvedAction.String()),
			zap.Int("verdict_count", len(eval.Verdicts)),
		)
	}
}
