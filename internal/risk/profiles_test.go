package risk

import "testing"

func TestDefaultProfiles_AllFourSeeded(t *testing.T) {
	profiles := defaultProfiles()
	if len(profiles) != 4 {
		t.Fatalf("expected 4 seed profiles, got %d", len(profiles))
	}
	ids := map[string]bool{}
	for _, p := range profiles {
		ids[p.ID] = true
	}
	for _, want := range []string{ProfileConservative, ProfileModerate, ProfileAggressive, ProfileInstitutional} {
		if !ids[want] {
			t.Fatalf("missing seed profile %q", want)
		}
	}
}

func TestBuildProfile_InstitutionalExemptsTradeFrequencyAndConcentration(t *testing.T) {
	profile := buildProfile(profileSeeds[3])
	if _, ok := profile.DefaultExemptions[LimitTradeFrequency]; !ok {
		t.Fatal("expected TRADE_FREQUENCY to be exempt for institutional")
	}
	if _, ok := profile.DefaultExemptions[LimitConcentration]; !ok {
		t.Fatal("expected CONCENTRATION to be exempt for institutional")
	}
}

func TestPositionLimitFor_FallsBackToDefault(t *testing.T) {
	profile := buildProfile(profileSeeds[1])
	_, ok := profile.positionLimitFor("DOGE-USD")
	if !ok {
		t.Fatal("expected fallback to default position limit")
	}
}

func TestEffectiveProfile_OverridesWinFieldwise(t *testing.T) {
	base := buildProfile(profileSeeds[1])
	overrideLeverage := OrderLimits{MaxOrderSize: base.OrderLimits.MaxOrderSize, MaxOrderValue: base.OrderLimits.MaxOrderValue, MaxLeverage: 2, MaxDailyOrders: base.OrderLimits.MaxDailyOrders}
	limits := &AccountRiskLimits{
		AccountID: "acct-1",
		ProfileID: ProfileModerate,
		Overrides: AccountRiskLimitOverrides{
			OrderLimits: &overrideLeverage,
		},
	}
	eff := limits.EffectiveProfile(base)
	if eff.OrderLimits.MaxLeverage != 2 {
		t.Fatalf("expected override leverage 2, got %f", eff.OrderLimits.MaxLeverage)
	}
	if eff.RiskLimits.MaxDrawdown != base.RiskLimits.MaxDrawdown {
		t.Fatal("expected unrelated fields to fall through from base")
	}
}

func TestEffectiveExemptions_UnionsBaseAndAccount(t *testing.T) {
	base := buildProfile(profileSeeds[1]) // moderate: no default exemptions
	limits := &AccountRiskLimits{
		AccountID:  "acct-1",
		ProfileID:  ProfileModerate,
		Exemptions: map[LimitKind]struct{}{LimitTradeFrequency: {}},
	}
	exemptions := limits.effectiveExemptions(base)
	if _, ok := exemptions[LimitTradeFrequency]; !ok {
		t.Fatal("expected account exemption to be present")
	}
}
