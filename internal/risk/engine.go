package risk

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// engineSubmissionRateLimit bounds how fast CheckOrderRisk accepts new
// evaluations across all accounts, protecting the engine's own collaborator
// calls from being overwhelmed by a submission burst. This is distinct from
// the per-account TRADE_FREQUENCY limit evaluator: that is a trading policy
// enforced per account; this is an ambient self-protection limit on the
// engine process as a whole.
const engineSubmissionRateLimit = 2000 // evaluations/sec across all accounts

// orderEvaluationDeadline and positionEvaluationDeadline bound how long a
// single evaluation is allowed to run before it is abandoned with
// ErrEvaluationTimeout (spec §5: "the order path budgets 100ms end-to-end;
// the monitor path budgets 2s per account").
const (
	orderEvaluationDeadline    = 100 * time.Millisecond
	positionEvaluationDeadline = 2 * time.Second
)

// Engine is the Risk Evaluation Engine: it loads profiles and per-account
// overrides, listens for order/position/account events, and answers
// CheckOrderRisk/CheckPositionRisk against a lock-free snapshot of the
// current limit configuration. Grounded on the teacher's RiskEngine in
// internal/risk/engine.go, generalized from its fixed order-risk checks to
// the full evaluator set driven by RiskProfile.
type Engine struct {
	log *zap.Logger

	repository  RiskRepository
	accountSvc  AccountService
	positionSvc PositionService
	marketData  MarketDataService
	volatility  VolatilityService
	bus         EventBus

	sizer   *PositionSizer
	monitor *Monitor
	metrics *Metrics

	sessions *sessionStore

	// profiles and accountLimits are swapped atomically on every write so
	// CheckOrderRisk never blocks on a mutex held by a profile update —
	// the read-copy-update pattern from the teacher's HFTConfigManager,
	// applied here to the profile/limit maps instead of a config struct.
	profiles      atomic.Pointer[map[string]*RiskProfile]
	accountLimits atomic.Pointer[map[string]*AccountRiskLimits]

	submissionLimiter *rate.Limiter
}

// EngineParams bundles Engine's constructor dependencies for fx.
type EngineParams struct {
	Log         *zap.Logger
	Repository  RiskRepository
	AccountSvc  AccountService
	PositionSvc PositionService
	MarketData  MarketDataService
	Volatility  VolatilityService
	Bus         EventBus
	Sizer       *PositionSizer
	Metrics     *Metrics
}

// NewEngine constructs an Engine. Call Start to load state and begin
// listening for events.
func NewEngine(p EngineParams) *Engine {
	e := &Engine{
		log:         p.Log,
		repository:  p.Repository,
		accountSvc:  p.AccountSvc,
		positionSvc: p.PositionSvc,
		marketData:  p.MarketData,
		volatility:  p.Volatility,
		bus:         p.Bus,
		sizer:       p.Sizer,
		metrics:     p.Metrics,
		sessions:    newSessionStore(),
		submissionLimiter: rate.NewLimiter(rate.Limit(engineSubmissionRateLimit), engineSubmissionRateLimit/10),
	}
	empty := map[string]*RiskProfile{}
	e.profiles.Store(&empty)
	emptyLimits := map[string]*AccountRiskLimits{}
	e.accountLimits.Store(&emptyLimits)
	return e
}

// Start runs the init sequence: load profiles (seeding defaults if the
// repository reports none), load account overrides, subscribe to the event
// bus, then start the monitor loop.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.loadProfiles(ctx); err != nil {
		return err
	}
	if err := e.loadAccountLimits(ctx); err != nil {
		return err
	}
	if err := e.subscribeEvents(); err != nil {
		return err
	}
	if e.monitor != nil {
		e.monitor.Start(ctx)
	}
	e.log.Info("risk engine started")
	return nil
}

// AttachMonitor wires the monitor loop Start/Stop follows; called once
// during fx construction since Monitor itself depends on Engine.
func (e *Engine) AttachMonitor(m *Monitor) {
	e.monitor = m
}

// Stop tears down the event subscriptions and monitor loop.
func (e *Engine) Stop(ctx context.Context) error {
	if e.monitor != nil {
		e.monitor.Stop(ctx)
	}
	return e.bus.Disconnect()
}

func (e *Engine) loadProfiles(ctx context.Context) error {
	ids, err := e.repository.ListProfileIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		e.log.Info("no risk profiles found, seeding defaults")
		for _, p := range defaultProfiles() {
			if err := e.repository.PutProfile(ctx, p); err != nil {
				return err
			}
		}
		ids, err = e.repository.ListProfileIDs(ctx)
		if err != nil {
			return err
		}
	}
	loaded := make(map[string]*RiskProfile, len(ids))
	for _, id := range ids {
		p, err := e.repository.GetProfile(ctx, id)
		if err != nil {
			return err
		}
		loaded[id] = p
	}
	e.profiles.Store(&loaded)
	return nil
}

func (e *Engine) loadAccountLimits(ctx context.Context) error {
	ids, err := e.repository.ListAccountIDs(ctx)
	if err != nil {
		return err
	}
	loaded := make(map[string]*AccountRiskLimits, len(ids))
	for _, id := range ids {
		l, err := e.repository.GetAccountLimits(ctx, id)
		if err != nil {
			return err
		}
		loaded[id] = l
	}
	e.accountLimits.Store(&loaded)
	return nil
}

func (e *Engine) subscribeEvents() error {
	if err := e.bus.Connect(); err != nil {
		return err
	}
	subs := map[string]func(ctx context.Context, payload []byte) error{
		topicProfileUpdated:  e.handleProfileUpdated,
		topicLimitsUpdated:   e.handleLimitsUpdated,
		topicOrderCreated:    e.handleOrderCreated,
		topicPositionUpdated: e.handlePositionUpdated,
		topicAccountUpdated:  e.handleAccountUpdated,
	}
	for topic, handler := range subs {
		if err := e.bus.Subscribe(topic, handler); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) handleProfileUpdated(ctx context.Context, payload []byte) error {
	var evt ProfileUpdatedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	return e.loadProfiles(ctx)
}

func (e *Engine) handleLimitsUpdated(ctx context.Context, payload []byte) error {
	var evt LimitsUpdatedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	return e.loadAccountLimits(ctx)
}

// handleOrderCreated drives the order:created inbound event (spec §2
// Dataflow) into the same CheckOrderRisk path direct callers use.
func (e *Engine) handleOrderCreated(ctx context.Context, payload []byte) error {
	var evt OrderCreatedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	_, err := e.CheckOrderRisk(ctx, evt.AccountID, &evt.Order)
	return err
}

// handlePositionUpdated folds a fill or close's realized PnL delta into the
// account's session total, the only path that feeds DAILY_LOSS's realized
// component (spec §4.1).
func (e *Engine) handlePositionUpdated(ctx context.Context, payload []byte) error {
	var evt PositionUpdatedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	if evt.RealizedPnLDelta != 0 {
		e.sessions.get(evt.AccountID).recordRealized(timeNow(), evt.RealizedPnLDelta)
	}
	return nil
}

// handleAccountUpdated feeds a fresh equity reading into the session's
// peak-equity high-water mark as soon as it is known, rather than waiting
// for the next evaluation to observe it (spec §4.1 DRAWDOWN).
func (e *Engine) handleAccountUpdated(ctx context.Context, payload []byte) error {
	var evt AccountUpdatedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	e.sessions.get(evt.AccountID).observe(timeNow(), evt.Equity)
	return nil
}

// resolveEffective returns the effective profile and exemption set for an
// account, composing its AccountRiskLimits override (if any) over the
// base profile it names, falling back to the moderate profile when the
// account has no override on file (spec §3 default).
func (e *Engine) resolveEffective(accountID string) (*RiskProfile, map[LimitKind]struct{}) {
	profiles := *e.profiles.Load()
	limits := *e.accountLimits.Load()

	l, hasOverride := limits[accountID]
	profileID := ProfileModerate
	if hasOverride {
		profileID = l.ProfileID
	}
	base, ok := profiles[profileID]
	if !ok {
		base = profiles[ProfileModerate]
	}
	if base == nil {
		return &RiskProfile{Actions: defaultActionsByKind}, nil
	}
	if !hasOverride {
		return base, base.DefaultExemptions
	}
	return l.EffectiveProfile(base), l.effectiveExemptions(base)
}

// CheckOrderRisk evaluates a prospective order against the full evaluator
// set and publishes the outcome to the event bus. It is the Risk Evaluation
// Engine's primary entrypoint (spec §4.1/§4.3).
func (e *Engine) CheckOrderRisk(parent context.Context, accountID string, order *OrderIntent) (Evaluation, error) {
	ctx, cancel := context.WithTimeout(parent, orderEvaluationDeadline)
	defer cancel()

	if err := e.submissionLimiter.Wait(ctx); err != nil {
		return Evaluation{}, errEvaluationTimeout(accountID)
	}

	start := timeNow()
	eval, err := e.evaluate(ctx, accountID, order, allEvaluators)
	if e.metrics != nil {
		e.metrics.observeEvaluation("order", eval, timeNow().Sub(start), err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return Evaluation{}, errEvaluationTimeout(accountID)
		}
		return Evaluation{}, err
	}
	e.publishOutcome(ctx, accountID, order.Symbol, eval)
	return eval, nil
}

// CheckPositionRisk evaluates an account's existing position state against
// the position-centric subset of limits (spec §4.3: margin utilization,
// drawdown, daily loss, concentration, notional value, leverage), used by
// both on-demand callers and the monitor loop.
func (e *Engine) CheckPositionRisk(parent context.Context, accountID string) (Evaluation, error) {
	ctx, cancel := context.WithTimeout(parent, positionEvaluationDeadline)
	defer cancel()

	evaluators := make([]func(*evaluationContext) []Verdict, 0, len(positionCentricKinds))
	for _, kind := range positionCentricKinds {
		evaluators = append(evaluators, evaluatorsByKind[kind])
	}

	start := timeNow()
	eval, err := e.evaluate(ctx, accountID, nil, evaluators)
	if e.metrics != nil {
		e.metrics.observeEvaluation("position", eval, timeNow().Sub(start), err)
	}
	if err != nil {
		if ctx.Err() != nil {
			return Evaluation{}, errEvaluationTimeout(accountID)
		}
		return Evaluation{}, err
	}
	e.publishOutcome(ctx, accountID, "", eval)
	return eval, nil
}

// evaluate builds an evaluationContext from live collaborator state and
// runs the given evaluator set through the action resolver. When order is
// nil (a position-risk pass with no prospective order), a zero-size probe
// order on the account's largest position is substituted so notional,
// leverage and concentration evaluators have a symbol to reason about.
func (e *Engine) evaluate(ctx context.Context, accountID string, order *OrderIntent, evaluators []func(*evaluationContext) []Verdict) (Evaluation, error) {
	account, err := e.accountSvc.GetAccountSnapshot(ctx, accountID)
	if err != nil {
		return Evaluation{}, err
	}
	positions, err := e.positionSvc.GetPositions(ctx, accountID)
	if err != nil {
		return Evaluation{}, err
	}
	account.Positions = positions

	effectiveOrder := order
	if effectiveOrder == nil {
		effectiveOrder = largestPositionProbe(positions)
	}
	if effectiveOrder == nil {
		return Evaluation{ResolvedAction: ActionNotify, Allow: true}, nil
	}

	price, err := e.marketData.GetReferencePrice(ctx, effectiveOrder.Symbol)
	if err != nil {
		return Evaluation{}, err
	}

	session := e.sessions.get(accountID)
	now := timeNow()
	peakEquity, realizedPnL := session.observe(now, account.Equity)
	var unrealizedPnL float64
	for _, p := range positions {
		unrealizedPnL += p.UnrealizedPnL
	}
	dailyPnL := realizedPnL + unrealizedPnL

	// The order under review counts toward its own rolling window; it is
	// recorded in the session only once the resolver allows it.
	tradesLastMin := session.tradeCount(now)
	if order != nil {
		tradesLastMin++
	}

	profile, exemptions := e.resolveEffective(accountID)

	evalCtx := &evaluationContext{
		account:        account,
		profile:        profile,
		order:          effectiveOrder,
		referencePrice: price,
		peakEquity:     peakEquity,
		dailyPnL:       dailyPnL,
		tradesLastMin:  tradesLastMin,
	}

	verdicts := runEvaluators(evalCtx, evaluators, exemptions)
	current, projected := projectedPosition(account, effectiveOrder)
	increasesExposure := abs(projected) > abs(current)

	eval := resolveAction(verdicts, increasesExposure)
	if order != nil && eval.Allow {
		session.recordTrade(now)
	}
	return eval, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// largestPositionProbe builds a zero-size, same-side order against the
// account's largest absolute position, giving position-centric evaluators a
// symbol to project against when there is no real order under review.
func largestPositionProbe(positions map[Symbol]Position) *OrderIntent {
	var best *Position
	for symbol := range positions {
		p := positions[symbol]
		if best == nil || p.Size > best.Size {
			pCopy := p
			best = &pCopy
		}
	}
	if best == nil {
		return nil
	}
	return &OrderIntent{Symbol: best.Symbol, Side: best.Side, Size: 0, Type: OrderTypeMarket}
}

// publishOutcome emits one risk:violation per non-NOTIFY verdict and, only
// when the resolved action is WARN or stronger, one risk:action carrying the
// final decision (spec §6: NOTIFY-resolved evaluations publish neither).
func (e *Engine) publishOutcome(ctx context.Context, accountID string, symbol Symbol, eval Evaluation) {
	requestID := newRequestID()
	now := timeNow()
	for _, v := range eval.Verdicts {
		if v.Action == ActionNotify {
			continue
		}
		_ = e.bus.Publish(ctx, topicRiskViolation, RiskViolationEvent{
			RequestID: requestID, AccountID: accountID, Symbol: symbol,
			Verdict: v, At: now,
		})
	}
	if eval.ResolvedAction >= ActionWarn {
		_ = e.bus.Publish(ctx, topicRiskAction, RiskActionEvent{
			RequestID: requestID, AccountID: accountID,
			Action: eval.ResolvedAction.String(), Allow: eval.Allow, At: now,
		})
	}
}

// UpdateRiskProfile persists a profile and broadcasts risk:profile_updated
// so every engine instance reloads its snapshot.
func (e *Engine) UpdateRiskProfile(ctx context.Context, profile *RiskProfile) error {
	if err := e.repository.PutProfile(ctx, profile); err != nil {
		return err
	}
	if err := e.loadProfiles(ctx); err != nil {
		return err
	}
	return e.bus.Publish(ctx, topicProfileUpdated, ProfileUpdatedEvent{ProfileID: profile.ID})
}

// UpdateAccountLimits persists an account's override layer and broadcasts
// risk:limits_updated.
func (e *Engine) UpdateAccountLimits(ctx context.Context, limits *AccountRiskLimits) error {
	if err := e.repository.PutAccountLimits(ctx, limits); err != nil {
		return err
	}
	if err := e.loadAccountLimits(ctx); err != nil {
		return err
	}
	return e.bus.Publish(ctx, topicLimitsUpdated, LimitsUpdatedEvent{AccountID: limits.AccountID})
}
