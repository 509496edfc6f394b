package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config represents the Risk Control Core's application configuration.
type Config struct {
	// Server configuration
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	// Broker configuration for the EventBus transport
	Broker struct {
		Type string `mapstructure:"type"`
	} `mapstructure:"broker"`

	// Risk management configuration: the monitor's worker-pool size and sweep
	// period. MonitorPeriodSecs is loaded but not read by the monitor, which
	// sweeps on its fixed 60s period.
	Risk struct {
		MonitorPoolSize   int `mapstructure:"monitor_pool_size"`
		MonitorPeriodSecs int `mapstructure:"monitor_period_seconds"`
	} `mapstructure:"risk"`

	// Collaborators holds the base URLs for the external services the Risk
	// Control Core reads from but does not own: the account ledger, the
	// position book, the market data feed, and the volatility/market-cap
	// analytics feed.
	Collaborators struct {
		AccountServiceURL    string `mapstructure:"account_service_url"`
		PositionServiceURL   string `mapstructure:"position_service_url"`
		MarketDataServiceURL string `mapstructure:"market_data_service_url"`
		VolatilityServiceURL string `mapstructure:"volatility_service_url"`
	} `mapstructure:"collaborators"`

	// Monitoring configuration
	Monitoring struct {
		PrometheusPort int    `mapstructure:"prometheus_port"`
		LogLevel       string `mapstructure:"log_level"`
	} `mapstructure:"monitoring"`
}

var (
	config *Config
	once   sync.Once
)

// LoadConfig loads the configuration from the specified directory.
func LoadConfig(configPath string) (*Config, error) {
	var err error

	once.Do(func() {
		config = &Config{}

		setDefaults()

		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if configPath != "" {
			v.AddConfigPath(configPath)
		} else {
			v.AddConfigPath(".")
			v.AddConfigPath("./config")
			v.AddConfigPath("/etc/riskcore")
		}

		v.AutomaticEnv()
		v.SetEnvPrefix("RISKCORE")

		if err = v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				err = fmt.Errorf("failed to read config file: %w", err)
				return
			}
			err = nil
		}

		if err = v.Unmarshal(config); err != nil {
			err = fmt.Errorf("failed to unmarshal config: %w", err)
			return
		}
	})

	return config, err
}

// GetConfig returns the current configuration, loading defaults if LoadConfig
// has not yet been called.
func GetConfig() *Config {
	if config == nil {
		_, err := LoadConfig("")
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	}
	return config
}

// SaveConfig writes cfg to path as indented JSON.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func setDefaults() {
	config.Server.Host = "0.0.0.0"
	config.Server.Port = 8080

	config.Broker.Type = "memory"

	config.Risk.MonitorPoolSize = 16
	config.Risk.MonitorPeriodSecs = 60

	config.Collaborators.AccountServiceURL = "http://localhost:8081"
	config.Collaborators.PositionServiceURL = "http://localhost:8082"
	config.Collaborators.MarketDataServiceURL = "http://localhost:8083"
	config.Collaborators.VolatilityServiceURL = "http://localhost:8084"

	config.Monitoring.PrometheusPort = 9090
	config.Monitoring.LogLevel = "info"
}

// InitLogger builds a zap.Logger from the configured log level: "debug"
// selects zap's development logger, and every other value selects zap's
// production logger at its default info level.
func InitLogger(cfg *Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	switch cfg.Monitoring.LogLevel {
	case "debug":
		logger, err = zap.NewDevelopment()
	case "info", "warn", "error":
		logger, err = zap.NewProduction()
	default:
		logger, err = zap.NewProduction()
	}

	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger, nil
}
