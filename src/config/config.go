package config

// Configuration layer for the backtesting service.
//
// Sources, in priority order:
//  1) built-in defaults (Default)
//  2) YAML file (./configs/odin.yaml, ./config.yaml or ./odin.yaml)
//  3) .env file loaded via godotenv (never overrides real env)
//  4) environment variables with the ODIN_ prefix
//
// Common variables:
//   ODIN_APP_NAME=odin
//   ODIN_APP_ENV=dev                  # dev|staging|prod
//   ODIN_APP_DATA_DIR=./data
//   ODIN_MARKET_HTTP_URL=https://www.okx.com
//   ODIN_MARKET_WS_URL=wss://ws.okx.com:8443/ws/v5/public
//   ODIN_MARKET_SYMBOL=BTC/USDT
//   ODIN_MARKET_TIMEFRAME=1h
//   ODIN_SERVER_ADDR=:8000
//   ODIN_BACKTEST_DATA_SOURCE=synthetic    # synthetic|rest
//   ODIN_BACKTEST_SEED=42
//   ODIN_BACKTEST_INITIAL_CAPITAL=10000
//   ODIN_LOG_LEVEL=info
//   ODIN_LOG_JSON=false

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"odin/src/market"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Market   MarketConfig   `yaml:"market"`
	Server   ServerConfig   `yaml:"server"`
	Backtest BacktestConfig `yaml:"backtest"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Env     string `yaml:"env"`     // dev|staging|prod
	DataDir string `yaml:"dataDir"` // results, CSV caches
}

type MarketConfig struct {
	HTTPURL   string `yaml:"httpURL"` // public REST base
	WSURL     string `yaml:"wsURL"`   // public websocket
	Symbol    string `yaml:"symbol"`  // e.g. BTC/USDT
	Timeframe string `yaml:"timeframe"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"` // listen address, e.g. :8000
}

type BacktestConfig struct {
	DataSource     string  `yaml:"dataSource"` // synthetic|rest
	Seed           int64   `yaml:"seed"`       // synthetic generator seed
	InitialCapital float64 `yaml:"initialCapital"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug|info|warn|error
	JSON  bool   `yaml:"json"`
}

// ===================== public API =====================

func Default() Config {
	return Config{
		App: AppConfig{
			Name:    "odin",
			Env:     "dev",
			DataDir: "./data",
		},
		Market: MarketConfig{
			HTTPURL:   "https://www.okx.com",
			WSURL:     "wss://ws.okx.com:8443/ws/v5/public",
			Symbol:    "BTC/USDT",
			Timeframe: "1h",
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
		Backtest: BacktestConfig{
			DataSource:     "synthetic",
			Seed:           42,
			InitialCapital: 10000,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// Load reads the first YAML file found, layers .env and ODIN_* environment
// overrides on top of the defaults, then validates the result. With no
// paths given it tries ./configs/odin.yaml, ./config.yaml and ./odin.yaml.
func Load(paths ...string) (*Config, error) {
	// .env is best effort: absence is not an error
	_ = godotenv.Load()

	c := Default()

	if len(paths) == 0 {
		paths = []string{
			"./configs/odin.yaml",
			"./config.yaml",
			"./odin.yaml",
		}
	}

	for _, p := range paths {
		abs := p
		if !filepath.IsAbs(p) {
			abs, _ = filepath.Abs(p)
		}
		if fi, err := os.Stat(abs); err == nil && !fi.IsDir() {
			b, err := os.ReadFile(abs)
			if err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
			break
		}
	}

	c.applyEnv("ODIN_")

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate normalizes empty fields to defaults and rejects values the
// rest of the system cannot work with.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return errors.New("app.name must not be empty")
	}
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	switch strings.ToLower(c.App.Env) {
	case "dev", "staging", "prod":
	default:
		return fmt.Errorf("app.env invalid: %s (allowed: dev|staging|prod)", c.App.Env)
	}
	if c.App.DataDir == "" {
		c.App.DataDir = "./data"
	}

	if c.Market.HTTPURL == "" || c.Market.WSURL == "" {
		return errors.New("market.httpURL / market.wsURL must not be empty")
	}
	if c.Market.Symbol == "" {
		c.Market.Symbol = "BTC/USDT"
	}
	if c.Market.Timeframe == "" {
		c.Market.Timeframe = "1h"
	}
	if !market.ValidTimeframe(c.Market.Timeframe) {
		return fmt.Errorf("market.timeframe invalid: %s", c.Market.Timeframe)
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}

	switch strings.ToLower(c.Backtest.DataSource) {
	case "":
		c.Backtest.DataSource = "synthetic"
	case "synthetic", "rest":
		c.Backtest.DataSource = strings.ToLower(c.Backtest.DataSource)
	default:
		return fmt.Errorf("backtest.dataSource invalid: %s (allowed: synthetic|rest)", c.Backtest.DataSource)
	}
	if c.Backtest.InitialCapital <= 0 {
		return errors.New("backtest.initialCapital must be > 0")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
		if c.Logging.Level == "" {
			c.Logging.Level = "info"
		}
	default:
		return fmt.Errorf("logging.level invalid: %s", c.Logging.Level)
	}
	return nil
}

// ===================== env overrides =====================

func (c *Config) applyEnv(prefix string) {
	c.App.Name = pickStr(os.Getenv(prefix+"APP_NAME"), c.App.Name)
	c.App.Env = pickStr(os.Getenv(prefix+"APP_ENV"), c.App.Env)
	c.App.DataDir = pickStr(os.Getenv(prefix+"APP_DATA_DIR"), c.App.DataDir)

	c.Market.HTTPURL = pickStr(os.Getenv(prefix+"MARKET_HTTP_URL"), c.Market.HTTPURL)
	c.Market.WSURL = pickStr(os.Getenv(prefix+"MARKET_WS_URL"), c.Market.WSURL)
	c.Market.Symbol = pickStr(os.Getenv(prefix+"MARKET_SYMBOL"), c.Market.Symbol)
	c.Market.Timeframe = pickStr(os.Getenv(prefix+"MARKET_TIMEFRAME"), c.Market.Timeframe)

	c.Server.Addr = pickStr(os.Getenv(prefix+"SERVER_ADDR"), c.Server.Addr)

	c.Backtest.DataSource = pickStr(os.Getenv(prefix+"BACKTEST_DATA_SOURCE"), c.Backtest.DataSource)
	c.Backtest.Seed = pickInt64(os.Getenv(prefix+"BACKTEST_SEED"), c.Backtest.Seed)
	c.Backtest.InitialCapital = pickFloat(os.Getenv(prefix+"BACKTEST_INITIAL_CAPITAL"), c.Backtest.InitialCapital)

	c.Logging.Level = pickStr(os.Getenv(prefix+"LOG_LEVEL"), c.Logging.Level)
	c.Logging.JSON = pickBool(os.Getenv(prefix+"LOG_JSON"), c.Logging.JSON)
}

// ===================== helpers =====================

func pickStr(env, cur string) string {
	if strings.TrimSpace(env) != "" {
		return strings.TrimSpace(env)
	}
	return cur
}

func pickInt64(env string, cur int64) int64 {
	if strings.TrimSpace(env) == "" {
		return cur
	}
	if v, err := strconv.ParseInt(strings.TrimSpace(env), 10, 64); err == nil {
		return v
	}
	return cur
}

func pickFloat(env string, cur float64) float64 {
	if strings.TrimSpace(env) == "" {
		return cur
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
		return v
	}
	return cur
}

func pickBool(env string, cur bool) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return cur
}
