package multihop

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/omniarb/dex"
	"github.com/michaelpento.lv/omniarb/pricing"
	"github.com/michaelpento.lv/omniarb/types"
	bigmath "github.com/michaelpento.lv/omniarb/utils/math"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	MinHops = 2
	MaxHops = 4
)

var (
	// ErrInvalidPath marks a candidate path that could not be fully quoted.
	ErrInvalidPath = errors.New("invalid path")
	ErrNoValuer    = errors.New("router requires a valuer")
)

// HopPolicy bounds and prices the search at one hop count.
type HopPolicy struct {
	// Floor is the net profit, in value terms, a route must exceed.
	Floor decimal.Decimal
	// IntermediateLimit caps how many intermediate tokens are tried.
	IntermediateLimit int
	// VenueLimit caps how many venues are tried per hop; zero means all.
	VenueLimit  int
	GasEstimate uint64
	Confidence  float64
}

// DefaultHopPolicies returns the search bounds for 2, 3 and 4 hops.
func DefaultHopPolicies() map[int]HopPolicy {
	return map[int]HopPolicy{
		2: {Floor: decimal.NewFromInt(10), IntermediateLimit: 10, GasEstimate: 250000, Confidence: 0.85},
		3: {Floor: decimal.NewFromInt(20), IntermediateLimit: 8, VenueLimit: 3, GasEstimate: 350000, Confidence: 0.75},
		4: {Floor: decimal.NewFromInt(30), IntermediateLimit: 5, VenueLimit: 2, GasEstimate: 450000, Confidence: 0.65},
	}
}

// Config holds router settings.
type Config struct {
	MaxHops     int
	MinProfit   decimal.Decimal
	Policies    map[int]HopPolicy
	Parallelism int
}

// Venues lists the venues available to every hop.
type Venues interface {
	List() []dex.QuoteSource
}

// Tokens orders the intermediate token universe.
type Tokens interface {
	ByLiquidity(exclude ...common.Address) []common.Address
}

// Quoter fetches a single bounded quote.
type Quoter interface {
	Quote(ctx context.Context, src dex.QuoteSource, tokenIn, tokenOut common.Address, amountIn *big.Int) (*types.Quote, error)
}

// GasCoster prices gas units in smallest units of token.
type GasCoster interface {
	GasCost(ctx context.Context, token common.Address, gasUnits uint64) (*big.Int, error)
}

// Router enumerates 2-4 hop routes. Every hop picks its venue independently
// from the first VenueLimit venues.
type Router struct {
	cfg    Config
	venues Venues
	tokens Tokens
	quoter Quoter
	valuer pricing.Valuer
	gas    GasCoster
	logger *zap.Logger
}

// NewRouter creates a router. The valuer converts between tokens and prices
// the floors. gas may be nil, in which case gas estimates are recorded on
// routes but not deducted.
func NewRouter(cfg Config, venues Venues, tokens Tokens, quoter Quoter, valuer pricing.Valuer, gas GasCoster, logger *zap.Logger) (*Router, error) {
	if valuer == nil {
		return nil, ErrNoValuer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Policies == nil {
		cfg.Policies = DefaultHopPolicies()
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.MaxHops == 0 {
		cfg.MaxHops = 3
	}
	return &Router{
		cfg:    cfg,
		venues: venues,
		tokens: tokens,
		quoter: quoter,
		valuer: valuer,
		gas:    gas,
		logger: logger,
	}, nil
}

// FindProfitableRoutes searches all hop counts from 2 up to maxHops (the
// configured maximum when zero) and returns routes clearing their floor,
// sorted by net profit descending.
func (r *Router) FindProfitableRoutes(ctx context.Context, start, end common.Address, amount *big.Int, maxHops int) []*types.Route {
	if maxHops == 0 {
		maxHops = r.cfg.MaxHops
	}
	if maxHops > MaxHops {
		maxHops = MaxHops
	}
	if !bigmath.IsPositive(amount) || maxHops < MinHops {
		return nil
	}

	venues := r.venues.List()
	if len(venues) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		routes []*types.Route
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)

	for hops := MinHops; hops <= maxHops; hops++ {
		policy, ok := r.cfg.Policies[hops]
		if !ok {
			continue
		}

		hopVenues := venues
		if policy.VenueLimit > 0 && policy.VenueLimit < len(hopVenues) {
			hopVenues = hopVenues[:policy.VenueLimit]
		}

		intermediates := r.tokens.ByLiquidity(start, end)
		if len(intermediates) > policy.IntermediateLimit {
			intermediates = intermediates[:policy.IntermediateLimit]
		}

		hops := hops
		permutations(intermediates, hops-1, func(mid []common.Address) {
			path := make([]common.Address, 0, hops+1)
			path = append(path, start)
			path = append(path, mid...)
			path = append(path, end)

			g.Go(func() error {
				found := r.explore(gctx, path, hopVenues, amount, policy)
				if len(found) > 0 {
					mu.Lock()
					routes = append(routes, found...)
					mu.Unlock()
				}
				return nil
			})
		})
	}
	_ = g.Wait()

	SortRoutes(routes)
	r.logger.Debug("Route search finished",
		zap.String("start", start.Hex()),
		zap.String("end", end.Hex()),
		zap.Int("max_hops", maxHops),
		zap.Int("routes", len(routes)))
	return routes
}

// explore walks every venue assignment for one token path, sharing quotes
// between assignments with a common prefix. A hop without a quote prunes
// every assignment below it.
func (r *Router) explore(ctx context.Context, path []common.Address, venues []dex.QuoteSource, amount *big.Int, policy HopPolicy) []*types.Route {
	var (
		routes []*types.Route
		quotes = make([]*types.Quote, 0, len(path)-1)
	)

	var walk func(hop int, amountIn *big.Int)
	walk = func(hop int, amountIn *big.Int) {
		if hop == len(path)-1 {
			route, err := r.buildRoute(ctx, path, quotes, amount, policy)
			if err != nil {
				r.logger.Debug("Route dropped", zap.Error(err))
				return
			}
			if route != nil {
				routes = append(routes, route)
			}
			return
		}

		for _, src := range venues {
			if ctx.Err() != nil {
				return
			}
			q, err := r.quoter.Quote(ctx, src, path[hop], path[hop+1], amountIn)
			if err != nil {
				continue
			}
			quotes = append(quotes, q)
			walk(hop+1, q.AmountOut)
			quotes = quotes[:len(quotes)-1]
		}
	}
	walk(0, amount)

	return routes
}

// buildRoute costs a fully quoted path. It returns nil without error when the
// route is valid but does not clear its floor.
func (r *Router) buildRoute(ctx context.Context, path []common.Address, quotes []*types.Quote, amount *big.Int, policy HopPolicy) (*types.Route, error) {
	hops := len(quotes)
	steps := make([]types.SwapStep, hops)
	venuePath := make([]string, hops)
	for i, q := range quotes {
		if !bigmath.IsPositive(q.AmountIn) || !bigmath.IsPositive(q.AmountOut) {
			return nil, fmt.Errorf("hop %d: %w", i, ErrInvalidPath)
		}
		steps[i] = types.StepFromQuote(q)
		venuePath[i] = q.Venue
	}

	start, end := path[0], path[len(path)-1]
	final := new(big.Int).Set(quotes[hops-1].AmountOut)
	returned, err := r.convert(end, start, final)
	if err != nil {
		return nil, fmt.Errorf("convert final amount: %w", err)
	}
	gross := new(big.Int).Sub(returned, amount)

	totalFees, err := r.feesIn(start, quotes)
	if err != nil {
		return nil, err
	}

	gasCost := new(big.Int)
	if r.gas != nil {
		cost, err := r.gas.GasCost(ctx, start, policy.GasEstimate)
		if err != nil {
			return nil, fmt.Errorf("gas cost: %w", err)
		}
		gasCost = cost
	}

	net := new(big.Int).Sub(gross, totalFees)
	net.Sub(net, gasCost)
	if net.Sign() <= 0 {
		return nil, nil
	}

	value, err := r.valuer.Value(start, net)
	if err != nil {
		return nil, fmt.Errorf("value net profit: %w", err)
	}
	if !value.GreaterThan(policy.Floor) || !value.GreaterThan(r.cfg.MinProfit) {
		return nil, nil
	}

	tokenPath := make([]common.Address, len(path))
	copy(tokenPath, path)

	return &types.Route{
		ID:            RouteID(tokenPath, venuePath),
		TokenPath:     tokenPath,
		VenuePath:     venuePath,
		HopCount:      hops,
		Steps:         steps,
		InitialAmount: new(big.Int).Set(amount),
		FinalAmount:   final,
		TotalFees:     totalFees,
		GrossProfit:   gross,
		NetProfit:     net,
		ProfitPercent: bigmath.PercentOf(net, amount, 4),
		GasEstimate:   policy.GasEstimate,
		GasCost:       gasCost,
		Confidence:    policy.Confidence,
	}, nil
}

// feesIn sums hop fees in units of token. Each fee is charged in its hop's
// input token.
func (r *Router) feesIn(token common.Address, quotes []*types.Quote) (*big.Int, error) {
	total := new(big.Int)
	for _, q := range quotes {
		if q.Fee == nil {
			continue
		}
		units, err := r.convert(q.TokenIn, token, q.Fee)
		if err != nil {
			return nil, fmt.Errorf("fee on %s: %w", q.Venue, err)
		}
		total.Add(total, units)
	}
	return total, nil
}

// convert re-expresses amount of from in smallest units of to at book prices.
func (r *Router) convert(from, to common.Address, amount *big.Int) (*big.Int, error) {
	if from == to {
		return new(big.Int).Set(amount), nil
	}
	value, err := r.valuer.Value(from, amount)
	if err != nil {
		return nil, err
	}
	return r.valuer.Units(to, value)
}

// RouteID names a route by its token path and venue assignment.
func RouteID(tokenPath []common.Address, venuePath []string) string {
	tokens := make([]string, len(tokenPath))
	for i, tok := range tokenPath {
		tokens[i] = tok.Hex()
	}
	return fmt.Sprintf("%dhop:%s:%s", len(venuePath), strings.Join(tokens, ">"), strings.Join(venuePath, ","))
}

// SortRoutes orders routes by net profit descending, then id.
func SortRoutes(routes []*types.Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		if c := routes[i].NetProfit.Cmp(routes[j].NetProfit); c != 0 {
			return c > 0
		}
		return routes[i].ID < routes[j].ID
	})
}

// permutations calls fn with every ordered selection of k distinct items.
func permutations(items []common.Address, k int, fn func([]common.Address)) {
	if k <= 0 || k > len(items) {
		return
	}
	used := make([]bool, len(items))
	current := make([]common.Address, 0, k)

	var rec func()
	rec = func() {
		if len(current) == k {
			out := make([]common.Address, k)
			copy(out, current)
			fn(out)
			return
		}
		for i, item := range items {
			if used[i] {
				continue
			}
			used[i] = true
			current = append(current, item)
			rec()
			current = current[:len(current)-1]
			used[i] = false
		}
	}
	rec()
}
