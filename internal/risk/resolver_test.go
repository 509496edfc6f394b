package risk

import "testing"

func TestResolveAction_NoVerdicts(t *testing.T) {
	eval := resolveAction(nil, false)
	if eval.ResolvedAction != ActionNotify || !eval.Allow {
		t.Fatalf("expected NOTIFY/allow, got %v/%v", eval.ResolvedAction, eval.Allow)
	}
}

func TestResolveAction_RejectWins(t *testing.T) {
	verdicts := []Verdict{
		{Kind: LimitOrderSize, Action: ActionWarn},
		{Kind: LimitPositionSize, Action: ActionReject},
		{Kind: LimitLeverage, Action: ActionReduceOnly},
	}
	eval := resolveAction(verdicts, true)
	if eval.ResolvedAction != ActionReject {
		t.Fatalf("expected REJECT, got %v", eval.ResolvedAction)
	}
	if eval.Allow {
		t.Fatal("expected Allow=false on reject")
	}
}

func TestResolveAction_ReduceOnlyDemotesWhenNotIncreasingExposure(t *testing.T) {
	verdicts := []Verdict{{Kind: LimitDrawdown, Action: ActionReduceOnly}}
	eval := resolveAction(verdicts, false)
	if eval.ResolvedAction != ActionWarn {
		t.Fatalf("expected demotion to WARN, got %v", eval.ResolvedAction)
	}
	if !eval.Allow {
		t.Fatal("expected Allow=true after demotion")
	}
}

func TestResolveAction_ReduceOnlyHoldsWhenIncreasingExposure(t *testing.T) {
	verdicts := []Verdict{{Kind: LimitDrawdown, Action: ActionReduceOnly}}
	eval := resolveAction(verdicts, true)
	if eval.ResolvedAction != ActionReduceOnly {
		t.Fatalf("expected REDUCE_ONLY to hold, got %v", eval.ResolvedAction)
	}
	if eval.Allow {
		t.Fatal("expected Allow=false: the order increases exposure under reduce-only")
	}
}

func TestResolveAction_MaxByTotalOrder(t *testing.T) {
	verdicts := []Verdict{
		{Kind: LimitOrderSize, Action: ActionWarn},
		{Kind: LimitTradeFrequency, Action: ActionNotify},
	}
	eval := resolveAction(verdicts, false)
	if eval.ResolvedAction != ActionWarn {
		t.Fatalf("expected WARN as the max, got %v", eval.ResolvedAction)
	}
}
