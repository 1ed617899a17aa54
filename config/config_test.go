package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ValidateConfig())
	assert.Equal(t, 3, cfg.Router.MaxHops)
	assert.Equal(t, 0.2, cfg.Allocation.PositionFraction)
}

func TestValidateConfigAggregatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Router.MaxHops = 5
	cfg.Allocation.TotalCapitalUSD = 0
	cfg.Venues = append(cfg.Venues, VenueConfig{ID: "uniswap_v2", Kind: "balancer"})
	cfg.Pairs = append(cfg.Pairs, PairConfig{TokenIn: "0x01", TokenOut: "nope", AmountIn: "-5"})

	err := cfg.ValidateConfig()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)

	msg := err.Error()
	assert.Contains(t, msg, "configuration validation failed")
	assert.Contains(t, msg, "max hops must be between 2 and 4")
	assert.Contains(t, msg, "total capital must be positive")
	assert.Contains(t, msg, "duplicate id uniswap_v2")
	assert.Contains(t, msg, `unknown kind "balancer"`)
	assert.Contains(t, msg, "pairs[2]: unknown token")
	assert.Contains(t, msg, "pairs[2]: amount_in")
}

func TestValidateSubConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative gas price", func(c *Config) { c.Chain.GasPriceGwei = -1 }, "gas_price_gwei"},
		{"negative min profit pct", func(c *Config) { c.Scan.MinProfitPct = -1 }, "min profit pct"},
		{"deadline shorter than venue timeout", func(c *Config) { c.Scan.CycleDeadline = Duration{time.Millisecond} }, "cycle deadline"},
		{"missing hop floor", func(c *Config) { delete(c.Router.HopFloorsUSD, 3) }, "hop floor for 3 hops"},
		{"confidence out of range", func(c *Config) { c.Ranking.MinConfidence = 1.5 }, "min confidence"},
		{"position fraction", func(c *Config) { c.Allocation.PositionFraction = 0 }, "position fraction"},
		{"breaker success rate", func(c *Config) { c.CircuitBreaker.MinSuccessRate = 2 }, "min success rate"},
		{"redis without address", func(c *Config) { c.Execution.Kind = ExecutionRedis }, "redis address"},
		{"bad rate limit", func(c *Config) { c.Venues[0].RateLimit.BurstSize = -1 }, "burst size"},
		{"route hops above router max", func(c *Config) { c.Routes[0].MaxHops = 4 }, "routes[0]: max_hops"},
		{"no venues", func(c *Config) { c.Venues = nil }, "at least one venue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.ValidateConfig()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfigYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "omniarb.yaml")
	raw := `
scan:
  interval: 6s
  cycle_deadline: 10s
  venue_timeout: 500ms
  min_profit_pct: 0.1
router:
  max_hops: 4
  parallelism: 4
allocation:
  total_capital_usd: 250000
  allocatable_fraction: 0.8
  position_fraction: 0.1
  min_position_usd: 100
venues:
  - id: sim
    kind: static
    fee_bps: 30
    rates:
      - token_in: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
        token_out: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
        numerator: 1
        denominator: 2000000000000
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 6*time.Second, cfg.Scan.Interval.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.Scan.VenueTimeout.Duration)
	assert.Equal(t, 4, cfg.Router.MaxHops)
	assert.Equal(t, 5, cfg.Router.IntermediateLimits[4], "defaults survive partial files")
	assert.Equal(t, 250000.0, cfg.Allocation.TotalCapitalUSD)
	require.Len(t, cfg.Venues, 1)
	assert.Equal(t, VenueStatic, cfg.Venues[0].Kind)
	require.Len(t, cfg.Venues[0].Rates, 1)
}

func TestLoadConfigJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "omniarb.json")

	cfg := DefaultConfig()
	cfg.Scan.MinProfitPct = 0.25
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, loaded.Scan.MinProfitPct)
	assert.Equal(t, cfg.Scan.Interval, loaded.Scan.Interval)
	assert.Equal(t, cfg.Router.HopFloorsUSD, loaded.Router.HopFloorsUSD)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"router": {"max_hops": 9}}`), 0o600))

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvRPCEndpoint, "http://node:8545")
	t.Setenv(EnvTotalCapital, "5000")

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(cfg))
	assert.Equal(t, "http://node:8545", cfg.Chain.RPCEndpoint)
	assert.Equal(t, 5000.0, cfg.Allocation.TotalCapitalUSD)

	t.Setenv(EnvTotalCapital, "lots")
	assert.ErrorIs(t, ApplyEnv(cfg), ErrConfiguration)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("OMNIARB_REDIS_ADDR=localhost:6379\n"), 0o600))
	t.Setenv(EnvRedisAddr, "")
	os.Unsetenv(EnvRedisAddr)

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "localhost:6379", os.Getenv(EnvRedisAddr))

	assert.NoError(t, LoadEnv(filepath.Join(dir, "absent.env")))
}
