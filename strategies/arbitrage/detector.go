package arbitrage

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/omniarb/types"
	bigmath "github.com/michaelpento.lv/omniarb/utils/math"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// percentPlaces is the rounding applied to profit percentages.
const percentPlaces = 4

// Comparer returns venue quotes for a pair sorted by amount out descending.
type Comparer interface {
	Compare(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) []*types.Quote
}

// Pair is one token pair to scan.
type Pair struct {
	TokenIn  common.Address
	TokenOut common.Address
	AmountIn *big.Int
}

// Detector finds cross-venue spreads on single token pairs.
type Detector struct {
	comparer    Comparer
	parallelism int
	logger      *zap.Logger
}

// NewDetector creates a new pairwise detector
func NewDetector(comparer Comparer, parallelism int, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Detector{
		comparer:    comparer,
		parallelism: parallelism,
		logger:      logger,
	}
}

// FindOpportunities compares every venue pair for tokenIn -> tokenOut.
func (d *Detector) FindOpportunities(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, minProfitPct decimal.Decimal) []*types.Opportunity {
	quotes := d.comparer.Compare(ctx, tokenIn, tokenOut, amountIn)
	if len(quotes) < 2 {
		d.logger.Debug("Not enough venues for pair",
			zap.String("token_in", tokenIn.Hex()),
			zap.String("token_out", tokenOut.Hex()),
			zap.Int("quotes", len(quotes)))
		return nil
	}
	return Detect(quotes, minProfitPct)
}

// ScanTokenPairs runs FindOpportunities for every pair and merges the results.
func (d *Detector) ScanTokenPairs(ctx context.Context, pairs []Pair, minProfitPct decimal.Decimal) []*types.Opportunity {
	var (
		mu  sync.Mutex
		all []*types.Opportunity
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallelism)
	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			found := d.FindOpportunities(gctx, pair.TokenIn, pair.TokenOut, pair.AmountIn, minProfitPct)
			mu.Lock()
			all = append(all, found...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sortOpportunities(all)
	return all
}

// Detect pairs each quote with every better-priced quote. quotes must be
// sorted by amount out descending. Buying happens on the venue with the lower
// output and selling on the one with the higher output.
func Detect(quotes []*types.Quote, minProfitPct decimal.Decimal) []*types.Opportunity {
	var opportunities []*types.Opportunity

	for i, buy := range quotes {
		for _, sell := range quotes[:i] {
			profit := new(big.Int).Sub(sell.AmountOut, buy.AmountOut)
			if profit.Sign() <= 0 {
				continue
			}

			pct := bigmath.PercentOf(profit, buy.AmountOut, percentPlaces)
			if pct.LessThan(minProfitPct) {
				continue
			}

			opportunities = append(opportunities, &types.Opportunity{
				BuyVenue:      buy.Venue,
				SellVenue:     sell.Venue,
				TokenIn:       buy.TokenIn,
				TokenOut:      buy.TokenOut,
				AmountIn:      new(big.Int).Set(buy.AmountIn),
				BuyPrice:      new(big.Int).Set(buy.AmountOut),
				SellPrice:     new(big.Int).Set(sell.AmountOut),
				Profit:        profit,
				ProfitPercent: pct,
				PoolDepth:     shallower(buy.ReserveIn, sell.ReserveIn),
			})
		}
	}

	sortOpportunities(opportunities)
	return opportunities
}

// shallower returns the smaller reserve, or nil when either is unknown.
func shallower(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return nil
	}
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// BestOpportunity returns the highest-percentage opportunity.
func BestOpportunity(opportunities []*types.Opportunity) (*types.Opportunity, bool) {
	if len(opportunities) == 0 {
		return nil, false
	}
	return opportunities[0], true
}

func sortOpportunities(opps []*types.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if c := a.ProfitPercent.Cmp(b.ProfitPercent); c != 0 {
			return c > 0
		}
		if c := a.Profit.Cmp(b.Profit); c != 0 {
			return c > 0
		}
		return a.ID() < b.ID()
	})
}
