// Package config loads service configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"strategylab/services/arrowpipeline"
	"strategylab/services/cache"
	"strategylab/services/clickhouse"
	"strategylab/services/engine"
	"strategylab/services/market"
	"strategylab/services/monitoring"
)

type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port"`
	GRPCPort        int           `yaml:"grpc_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RequestTimeout bounds one API call; zero disables the limit.
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

type EngineConfig struct {
	MaxWorkers     int              `yaml:"max_workers"`
	QueueSize      int              `yaml:"queue_size"`
	InitialBalance float64          `yaml:"initial_balance"`
	FeeRate        float64          `yaml:"fee_rate"`
	SlippageRate   float64          `yaml:"slippage_rate"`
	SpreadRate     float64          `yaml:"spread_rate"`
	Timeframe      market.Timeframe `yaml:"timeframe"`
}

// Options converts the engine section into simulator defaults.
func (e EngineConfig) Options() engine.Options {
	return engine.Options{
		InitialBalance: e.InitialBalance,
		FeeRate:        e.FeeRate,
		SlippageRate:   e.SlippageRate,
		SpreadRate:     e.SpreadRate,
		Timeframe:      e.Timeframe,
	}
}

type ClickHouseConfig struct {
	Enabled           bool `yaml:"enabled"`
	clickhouse.Config `yaml:",inline"`
}

type RedisConfig struct {
	Enabled      bool `yaml:"enabled"`
	cache.Config `yaml:",inline"`
}

// DataConfig locates CSV candles when ClickHouse is disabled: <csv_dir>/<SYMBOL>_<timeframe>.csv.
type DataConfig struct {
	CSVDir string `yaml:"csv_dir"`
}

type Config struct {
	Environment string               `yaml:"environment"`
	Server      ServerConfig         `yaml:"server"`
	Engine      EngineConfig         `yaml:"engine"`
	Data        DataConfig           `yaml:"data"`
	ClickHouse  ClickHouseConfig     `yaml:"clickhouse"`
	Redis       RedisConfig          `yaml:"redis"`
	Arrow       arrowpipeline.Config `yaml:"arrow"`
	Monitoring  monitoring.Config    `yaml:"monitoring"`
}

func Default() *Config {
	opts := engine.DefaultOptions()
	return &Config{
		Environment: "dev",
		Server:      ServerConfig{HTTPPort: 8080, GRPCPort: 9091, ShutdownTimeout: 10 * time.Second, RequestTimeout: 5 * time.Minute},
		Engine: EngineConfig{
			MaxWorkers:     0,
			QueueSize:      64,
			InitialBalance: opts.InitialBalance,
			FeeRate:        opts.FeeRate,
			SlippageRate:   opts.SlippageRate,
			SpreadRate:     opts.SpreadRate,
			Timeframe:      opts.Timeframe,
		},
		Data: DataConfig{CSVDir: "data"},
		ClickHouse: ClickHouseConfig{Config: clickhouse.Config{
			Addr:     "localhost:9000",
			Database: "backtest",
			Username: "backtest",
		}},
		Redis:      RedisConfig{Config: cache.Config{Addr: "localhost:6379", Prefix: "strategylab:", TTL: 24 * time.Hour}},
		Arrow:      arrowpipeline.Config{BatchSize: 65536},
		Monitoring: monitoring.Config{Namespace: "strategylab", Enabled: true},
	}
}

// Load reads path (when non-empty) over the defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port out of range: %d", c.Server.GRPCPort))
	}
	if c.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout must be >= 0"))
	}
	if c.Engine.MaxWorkers < 0 {
		errs = append(errs, fmt.Errorf("engine.max_workers must be >= 0"))
	}
	if c.Engine.InitialBalance <= 0 {
		errs = append(errs, fmt.Errorf("engine.initial_balance must be positive"))
	}
	for name, r := range map[string]float64{
		"fee_rate": c.Engine.FeeRate, "slippage_rate": c.Engine.SlippageRate, "spread_rate": c.Engine.SpreadRate,
	} {
		if r < 0 || r >= 1 {
			errs = append(errs, fmt.Errorf("engine.%s must be in [0, 1): %g", name, r))
		}
	}
	if _, err := c.Engine.Timeframe.Duration(); err != nil {
		errs = append(errs, fmt.Errorf("engine.timeframe: %w", err))
	}
	return errors.Join(errs...)
}

type getenv func(string) string

func applyEnv(c *Config, env getenv) error {
	str := func(k string, dst *string) {
		if v := strings.TrimSpace(env(k)); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(k string, dst *int) {
		if v := strings.TrimSpace(env(k)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				return
			}
			*dst = n
		}
	}
	flt := func(k string, dst *float64) {
		if v := strings.TrimSpace(env(k)); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				return
			}
			*dst = f
		}
	}
	flag := func(k string, dst *bool) {
		if v := strings.TrimSpace(env(k)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				return
			}
			*dst = b
		}
	}

	str("APP_ENV", &c.Environment)
	num("HTTP_PORT", &c.Server.HTTPPort)
	num("GRPC_PORT", &c.Server.GRPCPort)
	num("ENGINE_MAX_WORKERS", &c.Engine.MaxWorkers)
	flt("ENGINE_INITIAL_BALANCE", &c.Engine.InitialBalance)
	flt("ENGINE_FEE_RATE", &c.Engine.FeeRate)
	flt("ENGINE_SLIPPAGE_RATE", &c.Engine.SlippageRate)
	flt("ENGINE_SPREAD_RATE", &c.Engine.SpreadRate)
	if v := strings.TrimSpace(env("ENGINE_TIMEFRAME")); v != "" {
		c.Engine.Timeframe = market.Timeframe(v)
	}
	str("DATA_CSV_DIR", &c.Data.CSVDir)

	flag("CH_ENABLED", &c.ClickHouse.Enabled)
	str("CH_ADDR", &c.ClickHouse.Addr)
	str("CH_DATABASE", &c.ClickHouse.Database)
	str("CH_USER", &c.ClickHouse.Username)
	str("CH_PASSWORD", &c.ClickHouse.Password)

	flag("REDIS_ENABLED", &c.Redis.Enabled)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)
	return errors.Join(errs...)
}
