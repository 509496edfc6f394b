package risk

// Built-in profile identifiers, seeded when the profile store is empty.
const (
	ProfileConservative  = "conservative"
	ProfileModerate      = "moderate"
	ProfileAggressive    = "aggressive"
	ProfileInstitutional = "institutional"
)

type profileSeed struct {
	id                      string
	btcMaxSize, btcMaxValue float64
	ethMaxSize              float64
	defaultMaxSize          float64
	maxOrderSize            float64
	maxOrderValue           float64
	maxLeverage             float64
	maxDailyOrders          int
	maxMarginUtilization    float64
	initialMarginRatio      float64
	maintenanceMarginRatio  float64
	liquidationThreshold    float64
	maxConcentration        float64
	maxDrawdown             float64
	maxDailyLoss            float64
	maxTradeFrequency       int
	exemptions              []LimitKind
}

// profileSeeds holds the literal values from the spec's default-profile
// table (§6). Monetary values are in quote-currency units.
var profileSeeds = []profileSeed{
	{
		id: ProfileConservative,
		btcMaxSize: 5, btcMaxValue: 500_000,
		ethMaxSize:     50,
		defaultMaxSize: 5,
		maxOrderSize:   5, maxOrderValue: 50_000,
		maxLeverage: 5, maxDailyOrders: 500,
		maxMarginUtilization: 0.6, initialMarginRatio: 0.15,
		maintenanceMarginRatio: 0.075, liquidationThreshold: 0.85,
		maxConcentration: 0.2, maxDrawdown: 0.2,
		maxDailyLoss: 5_000, maxTradeFrequency: 30,
	},
	{
		id: ProfileModerate,
		btcMaxSize: 10, btcMaxValue: 1_000_000,
		ethMaxSize:     100,
		defaultMaxSize: 10,
		maxOrderSize:   10, maxOrderValue: 100_000,
		maxLeverage: 10, maxDailyOrders: 1000,
		maxMarginUtilization: 0.8, initialMarginRatio: 0.10,
		maintenanceMarginRatio: 0.05, liquidationThreshold: 0.90,
		maxConcentration: 0.25, maxDrawdown: 0.3,
		maxDailyLoss: 10_000, maxTradeFrequency: 60,
	},
	{
		id: ProfileAggressive,
		btcMaxSize: 20, btcMaxValue: 2_000_000,
		ethMaxSize:     200,
		defaultMaxSize: 20,
		maxOrderSize:   20, maxOrderValue: 200_000,
		maxLeverage: 20, maxDailyOrders: 2000,
		maxMarginUtilization: 0.9, initialMarginRatio: 0.05,
		maintenanceMarginRatio: 0.025, liquidationThreshold: 0.95,
		maxConcentration: 0.4, maxDrawdown: 0.4,
		maxDailyLoss: 20_000, maxTradeFrequency: 120,
		exemptions: []LimitKind{LimitTradeFrequency},
	},
	{
		id: ProfileInstitutional,
		btcMaxSize: 100, btcMaxValue: 10_000_000,
		ethMaxSize:     1000,
		defaultMaxSize: 50,
		maxOrderSize:   50, maxOrderValue: 1_000_000,
		maxLeverage: 10, maxDailyOrders: 5000,
		maxMarginUtilization: 0.85, initialMarginRatio: 0.08,
		maintenanceMarginRatio: 0.04, liquidationThreshold: 0.92,
		maxConcentration: 0.3, maxDrawdown: 0.35,
		maxDailyLoss: 100_000, maxTradeFrequency: 500,
		exemptions: []LimitKind{LimitTradeFrequency, LimitConcentration},
	},
}

// defaultActionsByKind is the action mapping shared by all four seed
// profiles; every profile escalates the same way, only the thresholds
// differ (spec §6: "Action mappings follow the source tables").
var defaultActionsByKind = map[LimitKind]Action{
	LimitPositionSize:      ActionReject,
	LimitOrderSize:         ActionWarn,
	LimitOrderValue:        ActionWarn,
	LimitNotionalValue:     ActionReject,
	LimitMarginUtilization: ActionReduceOnly,
	LimitLeverage:          ActionReject,
	LimitConcentration:     ActionWarn,
	LimitDrawdown:          ActionReduceOnly,
	LimitDailyLoss:         ActionReduceOnly,
	LimitTradeFrequency:    ActionNotify,
}

// buildProfile turns a literal seed into a RiskProfile.
func buildProfile(s profileSeed) *RiskProfile {
	actions := make(map[LimitKind]Action, len(defaultActionsByKind))
	for k, v := range defaultActionsByKind {
		actions[k] = v
	}

	exemptions := make(map[LimitKind]struct{}, len(s.exemptions))
	for _, k := range s.exemptions {
		exemptions[k] = struct{}{}
	}

	return &RiskProfile{
		ID: s.id,
		PositionLimits: map[string]PositionLimit{
			"BTC-USD": {
				MaxLongSize: s.btcMaxSize, MaxShortSize: s.btcMaxSize,
				MaxLongValue: s.btcMaxValue, MaxShortValue: s.btcMaxValue,
			},
			"ETH-USD": {
				MaxLongSize: s.ethMaxSize, MaxShortSize: s.ethMaxSize,
				MaxLongValue: s.ethMaxSize * s.btcMaxValue / s.btcMaxSize,
				MaxShortValue: s.ethMaxSize * s.btcMaxValue / s.btcMaxSize,
			},
			defaultSymbolKey: {
				MaxLongSize: s.defaultMaxSize, MaxShortSize: s.defaultMaxSize,
				MaxLongValue: s.defaultMaxSize * s.btcMaxValue / s.btcMaxSize,
				MaxShortValue: s.defaultMaxSize * s.btcMaxValue / s.btcMaxSize,
			},
		},
		OrderLimits: OrderLimits{
			MaxOrderSize: s.maxOrderSize, MaxOrderValue: s.maxOrderValue,
			MaxLeverage: s.maxLeverage, MaxDailyOrders: s.maxDailyOrders,
		},
		MarginLimits: MarginLimits{
			MaxMarginUtilization:   s.maxMarginUtilization,
			InitialMarginRatio:     s.initialMarginRatio,
			MaintenanceMarginRatio: s.maintenanceMarginRatio,
			LiquidationThreshold:   s.liquidationThreshold,
		},
		RiskLimits: PortfolioRiskLimits{
			MaxConcentration:  s.maxConcentration,
			MaxDrawdown:       s.maxDrawdown,
			MaxDailyLoss:      s.maxDailyLoss,
			MaxTradeFrequency: s.maxTradeFrequency,
		},
		Actions:           actions,
		DefaultExemptions: exemptions,
	}
}

// defaultProfiles builds the four built-in profiles, used to seed the
// repository when it reports no profiles. It only builds values and touches
// no repository; seeding is idempotent because engine.go's loadProfiles
// seeds only when ListProfileIDs reports none.
func defaultProfiles() []*RiskProfile {
	profiles := make([]*RiskProfile, 0, len(profileSeeds))
	for _, s := range profileSeeds {
		profiles = append(profiles, buildProfile(s))
	}
	return profiles
}
