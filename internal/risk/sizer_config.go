package risk

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SizerConfig holds the Adaptive Position Sizer's tunables: the caps and
// adjustment-curve parameters from spec §4.4. Grounded on the teacher's
// HFTConfigManager in internal/config/manager.go, which hot-reloads a
// config struct behind an atomic pointer on viper's change notification.
type SizerConfig struct {
	MaxPositionPercentage   float64 `mapstructure:"max_position_percentage"`
	DefaultRiskPercentage   float64 `mapstructure:"default_risk_percentage"`
	ConfidenceScaleExponent float64 `mapstructure:"confidence_scale_exponent"`
	MaxLeverage             float64 `mapstructure:"max_leverage"`

	VolatilityAdjustmentCurve map[VolatilityClass]float64
	MarketCapAdjustmentCurve  map[MarketCapClass]float64

	// ConcentrationThresholds is the concentrationAdjustment ladder (spec
	// §4.4 step 5): sorted ascending by Level, the highest entry whose
	// Level is <= the projected concentration wins.
	ConcentrationThresholds []ConcentrationThreshold

	SessionAdjustmentCurve map[SessionClass]float64
	SizeRoundingIncrement  float64 `mapstructure:"size_rounding_increment"`
}

// ConcentrationThreshold is one rung of the concentration-penalty ladder.
type ConcentrationThreshold struct {
	Level      float64 `mapstructure:"level"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// defaultSizerConfig returns the literal adjustment-curve values from spec
// §4.4.
func defaultSizerConfig() *SizerConfig {
	return &SizerConfig{
		MaxPositionPercentage:   0.25,
		DefaultRiskPercentage:   0.01,
		ConfidenceScaleExponent: 0.5,
		MaxLeverage:             10,
		VolatilityAdjustmentCurve: map[VolatilityClass]float64{
			VolatilityVeryLow:  1.2,
			VolatilityLow:      1.1,
			VolatilityMedium:   1.0,
			VolatilityHigh:     0.8,
			VolatilityVeryHigh: 0.6,
			VolatilityExtreme:  0.4,
		},
		MarketCapAdjustmentCurve: map[MarketCapClass]float64{
			MarketCapMega:  1.1,
			MarketCapLarge: 1.0,
			MarketCapMid:   0.9,
			MarketCapSmall: 0.7,
			MarketCapMicro: 0.5,
			MarketCapNano:  0.3,
		},
		ConcentrationThresholds: []ConcentrationThreshold{
			{Level: 0.0, Multiplier: 1.0},
			{Level: 0.3, Multiplier: 0.8},
			{Level: 0.5, Multiplier: 0.4},
			{Level: 0.7, Multiplier: 0.2},
			{Level: 0.9, Multiplier: 0.1},
		},
		SessionAdjustmentCurve: map[SessionClass]float64{
			SessionPeak:    1.0,
			SessionOffHour: 0.85,
			SessionWeekend: 0.7,
		},
		SizeRoundingIncrement: 0.0001,
	}
}

// SizerConfigManager hot-reloads SizerConfig from a viper instance, swapping
// an atomic pointer on every "position-sizing" section change so readers
// never block and never observe a half-updated config — the same shape as
// the teacher's HFTConfigManager.
type SizerConfigManager struct {
	log     *zap.Logger
	v       *viper.Viper
	current atomic.Pointer[SizerConfig]
}

// NewSizerConfigManager constructs a manager seeded with defaultSizerConfig,
// then overlays whatever the "position-sizing" section of v currently holds
// and arms viper's change watcher.
func NewSizerConfigManager(v *viper.Viper, log *zap.Logger) *SizerConfigManager {
	m := &SizerConfigManager{log: log, v: v}
	cfg := defaultSizerConfig()
	m.applyOverlay(cfg)
	m.current.Store(cfg)

	v.OnConfigChange(func(_ fsnotify.Event) {
		m.reload()
	})
	v.WatchConfig()
	return m
}

func (m *SizerConfigManager) applyOverlay(cfg *SizerConfig) {
	sub := m.v.Sub("position-sizing")
	if sub == nil {
		return
	}
	if err := sub.Unmarshal(cfg); err != nil {
		m.log.Warn("failed to unmarshal position-sizing config, keeping previous values", zap.Error(err))
	}
}

func (m *SizerConfigManager) reload() {
	cur := m.current.Load()
	next := *cur
	// Unmarshal writes into existing maps and slices, so next gets its own
	// copies while cur is still being read.
	next.VolatilityAdjustmentCurve = make(map[VolatilityClass]float64, len(cur.VolatilityAdjustmentCurve))
	for k, v := range cur.VolatilityAdjustmentCurve {
		next.VolatilityAdjustmentCurve[k] = v
	}
	next.MarketCapAdjustmentCurve = make(map[MarketCapClass]float64, len(cur.MarketCapAdjustmentCurve))
	for k, v := range cur.MarketCapAdjustmentCurve {
		next.MarketCapAdjustmentCurve[k] = v
	}
	next.SessionAdjustmentCurve = make(map[SessionClass]float64, len(cur.SessionAdjustmentCurve))
	for k, v := range cur.SessionAdjustmentCurve {
		next.SessionAdjustmentCurve[k] = v
	}
	next.ConcentrationThresholds = append([]ConcentrationThreshold(nil), cur.ConcentrationThresholds...)
	m.applyOverlay(&next)
	m.current.Store(&next)
	m.log.Info("position sizing configuration reloaded")
}

// Current returns the live SizerConfig snapshot.
func (m *SizerConfigManager) Current() *SizerConfig {
	return m.current.Load()
}
