package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
)

// ErrConfiguration marks a configuration that must stop the pipeline before
// any scan cycle begins.
var ErrConfiguration = errors.New("configuration validation failed")

// Venue kinds
const (
	VenueUniswapV2 = "uniswap_v2"
	VenueSushiswap = "sushiswap"
	VenueStatic    = "static"
)

// Execution kinds
const (
	ExecutionLog   = "log"
	ExecutionPaper = "paper"
	ExecutionRedis = "redis"
)

type Config struct {
	Chain          ChainConfig          `json:"chain" yaml:"chain"`
	Venues         []VenueConfig        `json:"venues" yaml:"venues"`
	Tokens         []TokenConfig        `json:"tokens" yaml:"tokens"`
	Pairs          []PairConfig         `json:"pairs" yaml:"pairs"`
	Routes         []RouteConfig        `json:"routes" yaml:"routes"`
	Scan           ScanConfig           `json:"scan" yaml:"scan"`
	Router         RouterConfig         `json:"router" yaml:"router"`
	Ranking        RankingConfig        `json:"ranking" yaml:"ranking"`
	Allocation     AllocationConfig     `json:"allocation" yaml:"allocation"`
	Risk           RiskConfig           `json:"risk" yaml:"risk"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	Metrics        MetricsConfig        `json:"metrics" yaml:"metrics"`
	Execution      ExecutionConfig      `json:"execution" yaml:"execution"`
}

type ChainConfig struct {
	RPCEndpoint       string   `json:"rpc_endpoint" yaml:"rpc_endpoint"`
	ChainID           uint64   `json:"chain_id" yaml:"chain_id"`
	NativeToken       string   `json:"native_token" yaml:"native_token"`
	GasUpdateInterval Duration `json:"gas_update_interval" yaml:"gas_update_interval"`
	// GasPriceGwei prices gas when no RPC endpoint is dialled; zero leaves
	// gas unpriced.
	GasPriceGwei      float64  `json:"gas_price_gwei" yaml:"gas_price_gwei"`
}

type VenueConfig struct {
	ID        string          `json:"id" yaml:"id"`
	Kind      string          `json:"kind" yaml:"kind"`
	FeeBps    uint32          `json:"fee_bps" yaml:"fee_bps"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	// Static venues only
	Rates    []RateConfig    `json:"rates,omitempty" yaml:"rates,omitempty"`
	Reserves []ReserveConfig `json:"reserves,omitempty" yaml:"reserves,omitempty"`
}

type RateConfig struct {
	TokenIn     string `json:"token_in" yaml:"token_in"`
	TokenOut    string `json:"token_out" yaml:"token_out"`
	Numerator   int64  `json:"numerator" yaml:"numerator"`
	Denominator int64  `json:"denominator" yaml:"denominator"`
}

type ReserveConfig struct {
	Token0   string `json:"token0" yaml:"token0"`
	Token1   string `json:"token1" yaml:"token1"`
	Reserve0 string `json:"reserve0" yaml:"reserve0"`
	Reserve1 string `json:"reserve1" yaml:"reserve1"`
}

type TokenConfig struct {
	Address       string  `json:"address" yaml:"address"`
	Symbol        string  `json:"symbol" yaml:"symbol"`
	Decimals      int32   `json:"decimals" yaml:"decimals"`
	PriceUSD      float64 `json:"price_usd" yaml:"price_usd"`
	LiquidityRank int     `json:"liquidity_rank" yaml:"liquidity_rank"`
}

// PairConfig is a token pair scanned by the pairwise detector.
type PairConfig struct {
	TokenIn  string `json:"token_in" yaml:"token_in"`
	TokenOut string `json:"token_out" yaml:"token_out"`
	AmountIn string `json:"amount_in" yaml:"amount_in"`
}

// RouteConfig is a multi-hop search request.
type RouteConfig struct {
	Start   string `json:"start" yaml:"start"`
	End     string `json:"end" yaml:"end"`
	Amount  string `json:"amount" yaml:"amount"`
	MaxHops int    `json:"max_hops,omitempty" yaml:"max_hops,omitempty"`
}

type ScanConfig struct {
	Interval      Duration `json:"interval" yaml:"interval"`
	CycleDeadline Duration `json:"cycle_deadline" yaml:"cycle_deadline"`
	VenueTimeout  Duration `json:"venue_timeout" yaml:"venue_timeout"`
	MinProfitPct  float64  `json:"min_profit_pct" yaml:"min_profit_pct"`
}

type RouterConfig struct {
	MaxHops            int             `json:"max_hops" yaml:"max_hops"`
	MinProfitUSD       float64         `json:"min_profit_usd" yaml:"min_profit_usd"`
	HopFloorsUSD       map[int]float64 `json:"hop_floors_usd" yaml:"hop_floors_usd"`
	IntermediateLimits map[int]int     `json:"intermediate_limits" yaml:"intermediate_limits"`
	VenueLimits        map[int]int     `json:"venue_limits" yaml:"venue_limits"`
	Parallelism        int             `json:"parallelism" yaml:"parallelism"`
}

type RankingConfig struct {
	MinConfidence   float64 `json:"min_confidence" yaml:"min_confidence"`
	MinNetProfitUSD float64 `json:"min_net_profit_usd" yaml:"min_net_profit_usd"`
}

type AllocationConfig struct {
	TotalCapitalUSD     float64 `json:"total_capital_usd" yaml:"total_capital_usd"`
	AllocatableFraction float64 `json:"allocatable_fraction" yaml:"allocatable_fraction"`
	PositionFraction    float64 `json:"position_fraction" yaml:"position_fraction"`
	MinPositionUSD      float64 `json:"min_position_usd" yaml:"min_position_usd"`
}

type RiskConfig struct {
	PairwiseConfidence      float64            `json:"pairwise_confidence" yaml:"pairwise_confidence"`
	DefaultVolatility       float64            `json:"default_volatility" yaml:"default_volatility"`
	Volatility              map[string]float64 `json:"volatility" yaml:"volatility"`
	DefaultPoolLiquidityUSD float64            `json:"default_pool_liquidity_usd" yaml:"default_pool_liquidity_usd"`
}

type CircuitBreakerConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	MaxLossPerTradeUSD float64 `json:"max_loss_per_trade_usd" yaml:"max_loss_per_trade_usd"`
	MaxDailyLossUSD    float64 `json:"max_daily_loss_usd" yaml:"max_daily_loss_usd"`
	MinSuccessRate     float64 `json:"min_success_rate" yaml:"min_success_rate"`
	MinTrades          int     `json:"min_trades" yaml:"min_trades"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int     `json:"burst_size" yaml:"burst_size"`
}

type MetricsConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

type ExecutionConfig struct {
	Kind         string `json:"kind" yaml:"kind"`
	RedisAddr    string `json:"redis_addr" yaml:"redis_addr"`
	RedisChannel string `json:"redis_channel" yaml:"redis_channel"`
}

// Duration decodes from either a Go duration string ("2s") or nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v interface{}
	if err := unmarshal(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v interface{}) error {
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
	case int:
		d.Duration = time.Duration(value)
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// ValidateConfig reports every problem at once, wrapped in ErrConfiguration.
func (c *Config) ValidateConfig() error {
	var errs []string

	if c.Chain.NativeToken != "" && !common.IsHexAddress(c.Chain.NativeToken) {
		errs = append(errs, "chain.native_token must be an address")
	}
	if c.Chain.GasPriceGwei < 0 {
		errs = append(errs, "chain.gas_price_gwei must not be negative")
	}

	// Token universe
	tokens := make(map[string]bool)
	for i, tok := range c.Tokens {
		if !common.IsHexAddress(tok.Address) {
			errs = append(errs, fmt.Sprintf("tokens[%d]: invalid address %q", i, tok.Address))
			continue
		}
		key := strings.ToLower(tok.Address)
		if tokens[key] {
			errs = append(errs, fmt.Sprintf("tokens[%d]: duplicate address %s", i, tok.Address))
		}
		tokens[key] = true
		if tok.Decimals < 0 || tok.Decimals > 36 {
			errs = append(errs, fmt.Sprintf("tokens[%d]: decimals out of range", i))
		}
		if tok.PriceUSD <= 0 {
			errs = append(errs, fmt.Sprintf("tokens[%d]: price_usd must be positive", i))
		}
	}
	knownToken := func(addr string) bool {
		return common.IsHexAddress(addr) && tokens[strings.ToLower(addr)]
	}

	// Venues
	if len(c.Venues) == 0 {
		errs = append(errs, "at least one venue must be configured")
	}
	venues := make(map[string]bool)
	for i, v := range c.Venues {
		if v.ID == "" {
			errs = append(errs, fmt.Sprintf("venues[%d]: id must be specified", i))
		} else if venues[v.ID] {
			errs = append(errs, fmt.Sprintf("venues[%d]: duplicate id %s", i, v.ID))
		}
		venues[v.ID] = true
		switch v.Kind {
		case VenueUniswapV2, VenueSushiswap:
		case VenueStatic:
			for j, r := range v.Rates {
				if !knownToken(r.TokenIn) || !knownToken(r.TokenOut) {
					errs = append(errs, fmt.Sprintf("venues[%d].rates[%d]: unknown token", i, j))
				}
				if r.Numerator <= 0 || r.Denominator <= 0 {
					errs = append(errs, fmt.Sprintf("venues[%d].rates[%d]: rate must be positive", i, j))
				}
			}
			for j, r := range v.Reserves {
				if !knownToken(r.Token0) || !knownToken(r.Token1) {
					errs = append(errs, fmt.Sprintf("venues[%d].reserves[%d]: unknown token", i, j))
				}
				if _, err := ParseAmount(r.Reserve0); err != nil {
					errs = append(errs, fmt.Sprintf("venues[%d].reserves[%d]: reserve0: %v", i, j, err))
				}
				if _, err := ParseAmount(r.Reserve1); err != nil {
					errs = append(errs, fmt.Sprintf("venues[%d].reserves[%d]: reserve1: %v", i, j, err))
				}
			}
		default:
			errs = append(errs, fmt.Sprintf("venues[%d]: unknown kind %q", i, v.Kind))
		}
		if v.FeeBps >= 10000 {
			errs = append(errs, fmt.Sprintf("venues[%d]: fee_bps must be below 10000", i))
		}
		if v.RateLimit != (RateLimitConfig{}) {
			if err := v.RateLimit.Validate(); err != nil {
				errs = append(errs, fmt.Sprintf("venues[%d]: rate limit error: %v", i, err))
			}
		}
	}

	// Scan requests
	for i, p := range c.Pairs {
		if !knownToken(p.TokenIn) || !knownToken(p.TokenOut) {
			errs = append(errs, fmt.Sprintf("pairs[%d]: unknown token", i))
		} else if strings.EqualFold(p.TokenIn, p.TokenOut) {
			errs = append(errs, fmt.Sprintf("pairs[%d]: identical tokens", i))
		}
		if _, err := ParseAmount(p.AmountIn); err != nil {
			errs = append(errs, fmt.Sprintf("pairs[%d]: amount_in: %v", i, err))
		}
	}
	for i, r := range c.Routes {
		if !knownToken(r.Start) || !knownToken(r.End) {
			errs = append(errs, fmt.Sprintf("routes[%d]: unknown token", i))
		}
		if _, err := ParseAmount(r.Amount); err != nil {
			errs = append(errs, fmt.Sprintf("routes[%d]: amount: %v", i, err))
		}
		if r.MaxHops != 0 && (r.MaxHops < 2 || r.MaxHops > c.Router.MaxHops) {
			errs = append(errs, fmt.Sprintf("routes[%d]: max_hops must be between 2 and %d", i, c.Router.MaxHops))
		}
	}

	if err := c.Scan.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("scan config error: %v", err))
	}
	if err := c.Router.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("router config error: %v", err))
	}
	if err := c.Ranking.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("ranking config error: %v", err))
	}
	if err := c.Allocation.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("allocation config error: %v", err))
	}
	if err := c.Risk.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("risk config error: %v", err))
	}
	if err := c.CircuitBreaker.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("circuit breaker error: %v", err))
	}
	if err := c.Execution.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("execution config error: %v", err))
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		errs = append(errs, "metrics.listen_addr must be specified when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(errs, "; "))
	}

	return nil
}

func (s *ScanConfig) Validate() error {
	if s.Interval.Duration <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if s.VenueTimeout.Duration <= 0 {
		return fmt.Errorf("venue timeout must be positive")
	}
	if s.CycleDeadline.Duration < s.VenueTimeout.Duration {
		return fmt.Errorf("cycle deadline must not be shorter than the venue timeout")
	}
	if s.MinProfitPct < 0 {
		return fmt.Errorf("min profit pct must not be negative")
	}
	return nil
}

func (r *RouterConfig) Validate() error {
	if r.MaxHops < 2 || r.MaxHops > 4 {
		return fmt.Errorf("max hops must be between 2 and 4")
	}
	if r.MinProfitUSD < 0 {
		return fmt.Errorf("min profit must not be negative")
	}
	for h := 2; h <= r.MaxHops; h++ {
		floor, ok := r.HopFloorsUSD[h]
		if !ok || floor < 0 {
			return fmt.Errorf("hop floor for %d hops must be set and not negative", h)
		}
		if r.IntermediateLimits[h] <= 0 {
			return fmt.Errorf("intermediate limit for %d hops must be positive", h)
		}
		if limit, ok := r.VenueLimits[h]; ok && limit <= 0 {
			return fmt.Errorf("venue limit for %d hops must be positive", h)
		}
	}
	if r.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	return nil
}

func (r *RankingConfig) Validate() error {
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be within [0, 1]")
	}
	if r.MinNetProfitUSD < 0 {
		return fmt.Errorf("min net profit must not be negative")
	}
	return nil
}

func (a *AllocationConfig) Validate() error {
	if a.TotalCapitalUSD <= 0 {
		return fmt.Errorf("total capital must be positive")
	}
	if a.AllocatableFraction <= 0 || a.AllocatableFraction > 1 {
		return fmt.Errorf("allocatable fraction must be within (0, 1]")
	}
	if a.PositionFraction <= 0 || a.PositionFraction > 1 {
		return fmt.Errorf("position fraction must be within (0, 1]")
	}
	if a.MinPositionUSD < 0 {
		return fmt.Errorf("min position must not be negative")
	}
	return nil
}

func (r *RiskConfig) Validate() error {
	if r.PairwiseConfidence < 0 || r.PairwiseConfidence > 1 {
		return fmt.Errorf("pairwise confidence must be within [0, 1]")
	}
	if r.DefaultVolatility < 0 || r.DefaultVolatility > 1 {
		return fmt.Errorf("default volatility must be within [0, 1]")
	}
	for pair, v := range r.Volatility {
		if v < 0 || v > 1 {
			return fmt.Errorf("volatility of %s must be within [0, 1]", pair)
		}
	}
	if r.DefaultPoolLiquidityUSD < 0 {
		return fmt.Errorf("default pool liquidity must not be negative")
	}
	return nil
}

func (c *CircuitBreakerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.MaxLossPerTradeUSD <= 0 {
		return fmt.Errorf("max loss per trade must be positive")
	}
	if c.MaxDailyLossUSD <= 0 {
		return fmt.Errorf("max daily loss must be positive")
	}
	if c.MinSuccessRate < 0 || c.MinSuccessRate > 1 {
		return fmt.Errorf("min success rate must be within [0, 1]")
	}
	if c.MinTrades < 0 {
		return fmt.Errorf("min trades must not be negative")
	}

	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}

	return nil
}

func (e *ExecutionConfig) Validate() error {
	switch e.Kind {
	case ExecutionLog, ExecutionPaper:
	case ExecutionRedis:
		if e.RedisAddr == "" {
			return fmt.Errorf("redis address must be specified")
		}
		if e.RedisChannel == "" {
			return fmt.Errorf("redis channel must be specified")
		}
	default:
		return fmt.Errorf("unknown execution kind %q", e.Kind)
	}
	return nil
}

// ParseAmount parses a positive base-10 integer amount in smallest units.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q must be positive", s)
	}
	return v, nil
}

// LoadConfig reads cfgFile over DefaultConfig, applies environment overrides
// and validates the result. Files ending in .yaml or .yml are decoded as YAML,
// anything else as JSON.
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfgFile = filepath.Join(home, ".omniarb.json")
	}

	raw, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(cfgFile)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig writes cfg as indented JSON.
func SaveConfig(cfg *Config, cfgFile string) error {
	file, err := os.Create(cfgFile)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "    ")
	return encoder.Encode(cfg)
}

// DefaultConfig returns a valid configuration scanning mainnet Uniswap V2 and
// Sushiswap over the major tokens.
func DefaultConfig() *Config {
	const (
		weth = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
		usdc = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
		usdt = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
		dai  = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
		wbtc = "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"
	)

	return &Config{
		Chain: ChainConfig{
			RPCEndpoint:       "http://localhost:8545",
			ChainID:           1,
			NativeToken:       weth,
			GasUpdateInterval: Duration{time.Second * 12},
		},
		Venues: []VenueConfig{
			{ID: "uniswap_v2", Kind: VenueUniswapV2, FeeBps: 30, RateLimit: RateLimitConfig{RequestsPerSecond: 50, BurstSize: 100}},
			{ID: "sushiswap", Kind: VenueSushiswap, FeeBps: 30, RateLimit: RateLimitConfig{RequestsPerSecond: 50, BurstSize: 100}},
		},
		Tokens: []TokenConfig{
			{Address: weth, Symbol: "WETH", Decimals: 18, PriceUSD: 2000, LiquidityRank: 0},
			{Address: usdc, Symbol: "USDC", Decimals: 6, PriceUSD: 1, LiquidityRank: 1},
			{Address: usdt, Symbol: "USDT", Decimals: 6, PriceUSD: 1, LiquidityRank: 2},
			{Address: dai, Symbol: "DAI", Decimals: 18, PriceUSD: 1, LiquidityRank: 3},
			{Address: wbtc, Symbol: "WBTC", Decimals: 8, PriceUSD: 40000, LiquidityRank: 4},
		},
		Pairs: []PairConfig{
			{TokenIn: usdc, TokenOut: weth, AmountIn: "10000000000"}, // 10k USDC
			{TokenIn: weth, TokenOut: usdc, AmountIn: "5000000000000000000"},
		},
		Routes: []RouteConfig{
			{Start: usdc, End: usdc, Amount: "10000000000"},
		},
		Scan: ScanConfig{
			Interval:      Duration{time.Second * 12},
			CycleDeadline: Duration{time.Second * 12},
			VenueTimeout:  Duration{time.Second * 2},
			MinProfitPct:  0.5,
		},
		Router: RouterConfig{
			MaxHops:            3,
			MinProfitUSD:       0,
			HopFloorsUSD:       map[int]float64{2: 10, 3: 20, 4: 30},
			IntermediateLimits: map[int]int{2: 10, 3: 8, 4: 5},
			VenueLimits:        map[int]int{3: 3, 4: 2},
			Parallelism:        8,
		},
		Ranking: RankingConfig{
			MinConfidence:   0.7,
			MinNetProfitUSD: 20,
		},
		Allocation: AllocationConfig{
			TotalCapitalUSD:     100000,
			AllocatableFraction: 0.8,
			PositionFraction:    0.2,
			MinPositionUSD:      100,
		},
		Risk: RiskConfig{
			PairwiseConfidence:      0.85,
			DefaultVolatility:       0.05,
			Volatility:              map[string]float64{},
			DefaultPoolLiquidityUSD: 1000000,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:            true,
			MaxLossPerTradeUSD: 10000,
			MaxDailyLossUSD:    50000,
			MinSuccessRate:     0.8,
			MinTrades:          10,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9090",
		},
		Execution: ExecutionConfig{
			Kind:         ExecutionLog,
			RedisChannel: "omniarb:allocations",
		},
	}
}
