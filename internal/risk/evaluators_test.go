package risk

import "testing"

func baseAccount() *AccountSnapshot {
	return &AccountSnapshot{
		AccountID: "acct-1",
		Equity:    100_000,
		Positions: map[Symbol]Position{},
	}
}

func TestEvaluatePositionSize_WithinLimit(t *testing.T) {
	profile := buildProfile(profileSeeds[1]) // moderate
	ctx := &evaluationContext{
		account:        baseAccount(),
		profile:        profile,
		order:          &OrderIntent{Symbol: "BTC-USD", Side: SideLong, Size: 1},
		referencePrice: 60_000,
	}
	if v := evaluatePositionSize(ctx); v != nil {
		t.Fatalf("expected no verdict, got %v", v)
	}
}

func TestEvaluatePositionSize_ExceedsLimit(t *testing.T) {
	profile := buildProfile(profileSeeds[0]) // conservative: btcMaxSize 5
	ctx := &evaluationContext{
		account:        baseAccount(),
		profile:        profile,
		order:          &OrderIntent{Symbol: "BTC-USD", Side: SideLong, Size: 10},
		referencePrice: 60_000,
	}
	v := evaluatePositionSize(ctx)
	if len(v) != 1 {
		t.Fatalf("expected exactly one verdict, got %d", len(v))
	}
	if v[0].Action != ActionReject {
		t.Fatalf("expected ActionReject, got %v", v[0].Action)
	}
}

func TestEvaluateLeverage_ExceedsLimit(t *testing.T) {
	profile := buildProfile(profileSeeds[0]) // conservative: maxLeverage 5
	account := baseAccount()
	account.Equity = 10_000
	ctx := &evaluationContext{
		account:        account,
		profile:        profile,
		order:          &OrderIntent{Symbol: "BTC-USD", Side: SideLong, Size: 1},
		referencePrice: 60_000, // notional 60k vs equity 10k = 6x
	}
	v := evaluateLeverage(ctx)
	if len(v) != 1 {
		t.Fatalf("expected one verdict, got %d", len(v))
	}
	if v[0].Action != ActionReject {
		t.Fatalf("expected ActionReject, got %v", v[0].Action)
	}
}

func TestEvaluateDrawdown_NoPeakYet(t *testing.T) {
	profile := buildProfile(profileSeeds[1])
	ctx := &evaluationContext{
		account:    baseAccount(),
		profile:    profile,
		order:      &OrderIntent{Symbol: "BTC-USD", Side: SideLong, Size: 1},
		peakEquity: 0,
	}
	if v := evaluateDrawdown(ctx); v != nil {
		t.Fatalf("expected no verdict with unset peak equity, got %v", v)
	}
}

func TestEvaluateDrawdown_ExceedsLimit(t *testing.T) {
	profile := buildProfile(profileSeeds[0]) // conservative: maxDrawdown 0.2
	account := baseAccount()
	account.Equity = 70_000
	ctx := &evaluationContext{
		account:    account,
		profile:    profile,
		order:      &OrderIntent{Symbol: "BTC-USD", Side: SideLong, Size: 1},
		peakEquity: 100_000, // drawdown 30%
	}
	v := evaluateDrawdown(ctx)
	if len(v) != 1 {
		t.Fatalf("expected one verdict, got %d", len(v))
	}
	if v[0].Action != ActionReduceOnly {
		t.Fatalf("expected ActionReduceOnly, got %v", v[0].Action)
	}
}

func TestEvaluateDailyLoss_OnlyTriggersOnNetLoss(t *testing.T) {
	profile := buildProfile(profileSeeds[1])
	ctx := &evaluationContext{
		account:  baseAccount(),
		profile:  profile,
		order:    &OrderIntent{Symbol: "BTC-USD", Side: SideLong, Size: 1},
		dailyPnL: 5_000, // positive, cannot trigger
	}
	if v := evaluateDailyLoss(ctx); v != nil {
		t.Fatalf("expected no verdict on positive PnL, got %v", v)
	}
}

func TestEvaluateTradeFrequency_Exempted(t *testing.T) {
	profile := buildProfile(profileSeeds[2]) // aggressive exempts TRADE_FREQUENCY
	ctx := &evaluationContext{
		account:       baseAccount(),
		profile:       profile,
		order:         &OrderIntent{Symbol: "BTC-USD", Side: SideLong, Size: 1},
		tradesLastMin: 10_000,
	}
	verdicts := runEvaluators(ctx, []func(*evaluationContext) []Verdict{evaluateTradeFrequency}, profile.DefaultExemptions)
	if len(verdicts) != 0 {
		t.Fatalf("expected exemption to suppress verdict, got %v", verdicts)
	}
}

func TestProjectedPosition_ShortOrderReducesLong(t *testing.T) {
	account := baseAccount()
	account.Positions["BTC-USD"] = Position{Symbol: "BTC-USD", Side: SideLong, Size: 5}
	order := &OrderIntent{Symbol: "BTC-USD", Side: SideShort, Size: 2}
	current, projected := projectedPosition(account, order)
	if current != 5 {
		t.Fatalf("expected current 5, got %f", current)
	}
	if projected != 3 {
		t.Fatalf("expected projected 3, got %f", projected)
	}
}
