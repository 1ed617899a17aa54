package bot

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/omniarb/config"
	"github.com/michaelpento.lv/omniarb/dex"
	"github.com/michaelpento.lv/omniarb/dex/static"
	"github.com/michaelpento.lv/omniarb/dex/sushiswap"
	"github.com/michaelpento.lv/omniarb/dex/uniswap"
	"github.com/michaelpento.lv/omniarb/pricing"
	"github.com/michaelpento.lv/omniarb/strategies/arbitrage"
	"github.com/michaelpento.lv/omniarb/strategies/multihop"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// BuildTokenBook indexes the configured tokens.
func BuildTokenBook(cfg *config.Config) (*pricing.TokenBook, error) {
	tokens := make([]pricing.Token, 0, len(cfg.Tokens))
	for _, tok := range cfg.Tokens {
		tokens = append(tokens, pricing.Token{
			Address:       common.HexToAddress(tok.Address),
			Symbol:        tok.Symbol,
			Decimals:      tok.Decimals,
			PriceUSD:      decimal.NewFromFloat(tok.PriceUSD),
			LiquidityRank: tok.LiquidityRank,
		})
	}
	book, err := pricing.NewTokenBook(tokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	return book, nil
}

// BuildRegistry creates a quote source per configured venue. On-chain venues
// read pairs through caller, which may be nil when only static venues are
// configured. Venues with a rate limit are wrapped in a limiter.
func BuildRegistry(cfg *config.Config, caller bind.ContractCaller) (*dex.Registry, error) {
	reg, err := dex.NewRegistry()
	if err != nil {
		return nil, err
	}

	for _, vc := range cfg.Venues {
		src, err := buildVenue(vc, caller)
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", vc.ID, err)
		}
		if vc.RateLimit.RequestsPerSecond > 0 {
			limiter := rate.NewLimiter(rate.Limit(vc.RateLimit.RequestsPerSecond), vc.RateLimit.BurstSize)
			src = dex.RateLimited(src, limiter)
		}
		if err := reg.Register(src); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildVenue(vc config.VenueConfig, caller bind.ContractCaller) (dex.QuoteSource, error) {
	switch vc.Kind {
	case config.VenueUniswapV2:
		if caller == nil {
			return nil, fmt.Errorf("%w: uniswap_v2 needs an RPC connection", config.ErrConfiguration)
		}
		return uniswap.NewV2(caller, uniswap.MainnetParams(), venueOptions(vc)...)
	case config.VenueSushiswap:
		if caller == nil {
			return nil, fmt.Errorf("%w: sushiswap needs an RPC connection", config.ErrConfiguration)
		}
		return sushiswap.NewSushiswapV2(caller, venueOptions(vc)...)
	case config.VenueStatic:
		return buildStatic(vc)
	}
	return nil, fmt.Errorf("%w: unknown venue kind %q", config.ErrConfiguration, vc.Kind)
}

func venueOptions(vc config.VenueConfig) []uniswap.Option {
	opts := []uniswap.Option{uniswap.WithName(vc.ID)}
	if vc.FeeBps > 0 {
		opts = append(opts, uniswap.WithFeeBps(vc.FeeBps))
	}
	return opts
}

func buildStatic(vc config.VenueConfig) (*static.Venue, error) {
	fee := vc.FeeBps
	if fee == 0 {
		fee = dex.DefaultFeeBps
	}
	v := static.New(vc.ID, fee)
	for _, r := range vc.Rates {
		v.SetRate(common.HexToAddress(r.TokenIn), common.HexToAddress(r.TokenOut),
			big.NewInt(r.Numerator), big.NewInt(r.Denominator))
	}
	for _, r := range vc.Reserves {
		r0, err := config.ParseAmount(r.Reserve0)
		if err != nil {
			return nil, fmt.Errorf("%w: reserve0: %v", config.ErrConfiguration, err)
		}
		r1, err := config.ParseAmount(r.Reserve1)
		if err != nil {
			return nil, fmt.Errorf("%w: reserve1: %v", config.ErrConfiguration, err)
		}
		v.SetReserves(common.HexToAddress(r.Token0), common.HexToAddress(r.Token1), r0, r1)
	}
	return v, nil
}

// RouterConfig merges the configured floors and limits over the default hop
// policies.
func RouterConfig(cfg config.RouterConfig) multihop.Config {
	policies := multihop.DefaultHopPolicies()
	for hops, policy := range policies {
		if floor, ok := cfg.HopFloorsUSD[hops]; ok {
			policy.Floor = decimal.NewFromFloat(floor)
		}
		if limit, ok := cfg.IntermediateLimits[hops]; ok {
			policy.IntermediateLimit = limit
		}
		if limit, ok := cfg.VenueLimits[hops]; ok {
			policy.VenueLimit = limit
		}
		policies[hops] = policy
	}

	return multihop.Config{
		MaxHops:     cfg.MaxHops,
		MinProfit:   decimal.NewFromFloat(cfg.MinProfitUSD),
		Policies:    policies,
		Parallelism: cfg.Parallelism,
	}
}

// routeRequest is one configured multi-hop search.
type routeRequest struct {
	start, end common.Address
	amount     *big.Int
	maxHops    int
}

func parseRequests(cfg *config.Config) ([]arbitrage.Pair, []routeRequest, error) {
	pairs := make([]arbitrage.Pair, 0, len(cfg.Pairs))
	for i, p := range cfg.Pairs {
		amount, err := config.ParseAmount(p.AmountIn)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: pairs[%d]: %v", config.ErrConfiguration, i, err)
		}
		pairs = append(pairs, arbitrage.Pair{
			TokenIn:  common.HexToAddress(p.TokenIn),
			TokenOut: common.HexToAddress(p.TokenOut),
			AmountIn: amount,
		})
	}

	routes := make([]routeRequest, 0, len(cfg.Routes))
	for i, r := range cfg.Routes {
		amount, err := config.ParseAmount(r.Amount)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: routes[%d]: %v", config.ErrConfiguration, i, err)
		}
		routes = append(routes, routeRequest{
			start:   common.HexToAddress(r.Start),
			end:     common.HexToAddress(r.End),
			amount:  amount,
			maxHops: r.MaxHops,
		})
	}
	return pairs, routes, nil
}
