package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if c.Market.Symbol != "BTC/USDT" || c.Market.Timeframe != "1h" {
		t.Fatalf("unexpected market defaults: %+v", c.Market)
	}
	if c.Backtest.DataSource != "synthetic" || c.Backtest.InitialCapital != 10000 {
		t.Fatalf("unexpected backtest defaults: %+v", c.Backtest)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "odin.yaml")
	body := `
app:
  name: odin-test
  env: staging
market:
  symbol: ETH/USDT
  timeframe: 4h
server:
  addr: ":9100"
backtest:
  dataSource: rest
  seed: 7
  initialCapital: 2500
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.App.Name != "odin-test" || c.App.Env != "staging" {
		t.Fatalf("yaml app section not applied: %+v", c.App)
	}
	if c.Market.Symbol != "ETH/USDT" || c.Market.Timeframe != "4h" {
		t.Fatalf("yaml market section not applied: %+v", c.Market)
	}
	if c.Server.Addr != ":9100" {
		t.Fatalf("yaml server section not applied: %+v", c.Server)
	}
	if c.Backtest.DataSource != "rest" || c.Backtest.Seed != 7 || c.Backtest.InitialCapital != 2500 {
		t.Fatalf("yaml backtest section not applied: %+v", c.Backtest)
	}
	// fields the file omits keep their defaults
	if c.Market.HTTPURL == "" {
		t.Fatalf("omitted fields must keep defaults")
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "odin.yaml")
	if err := os.WriteFile(path, []byte("market:\n  symbol: ETH/USDT\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ODIN_MARKET_SYMBOL", "SOL/USDT")
	t.Setenv("ODIN_BACKTEST_SEED", "99")
	t.Setenv("ODIN_LOG_JSON", "true")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.Market.Symbol != "SOL/USDT" {
		t.Fatalf("env must win over yaml, got %s", c.Market.Symbol)
	}
	if c.Backtest.Seed != 99 {
		t.Fatalf("env seed not applied, got %d", c.Backtest.Seed)
	}
	if !c.Logging.JSON {
		t.Fatalf("env bool not applied")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("a missing file is not an error: %v", err)
	}
	if c.App.Name != "odin" {
		t.Fatalf("expected defaults, got %+v", c.App)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.App.Env = "production" },
		func(c *Config) { c.Market.Timeframe = "7m" },
		func(c *Config) { c.Backtest.DataSource = "oracle" },
		func(c *Config) { c.Backtest.InitialCapital = -5 },
		func(c *Config) { c.Logging.Level = "trace" },
		func(c *Config) { c.Market.HTTPURL = "" },
	}
	for i, mutate := range cases {
		c := Default()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected a validation error", i)
		}
	}
}

func TestPickHelpers(t *testing.T) {
	if pickStr("  x  ", "y") != "x" {
		t.Fatalf("pickStr must trim and prefer the env value")
	}
	if pickStr("", "y") != "y" {
		t.Fatalf("pickStr must keep the current value when env is empty")
	}
	if pickInt64("12", 5) != 12 || pickInt64("junk", 5) != 5 {
		t.Fatalf("pickInt64 parsing broken")
	}
	if pickFloat("1.5", 0) != 1.5 || pickFloat("", 2) != 2 {
		t.Fatalf("pickFloat parsing broken")
	}
	if !pickBool("on", false) || pickBool("off", true) || !pickBool("junk", true) {
		t.Fatalf("pickBool parsing broken")
	}
}
