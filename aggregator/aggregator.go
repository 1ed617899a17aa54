package aggregator

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/omniarb/dex"
	"github.com/michaelpento.lv/omniarb/types"
	"github.com/michaelpento.lv/omniarb/utils/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sources lists the venues to query.
type Sources interface {
	List() []dex.QuoteSource
}

// Aggregator fans a quote request out to every venue and ranks the answers.
type Aggregator struct {
	sources      Sources
	venueTimeout time.Duration
	metrics      *metrics.ScanMetrics
	logger       *zap.Logger
}

// New creates an aggregator. venueTimeout bounds every single venue call.
func New(sources Sources, venueTimeout time.Duration, m *metrics.ScanMetrics, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		sources:      sources,
		venueTimeout: venueTimeout,
		metrics:      m,
		logger:       logger,
	}
}

// Compare quotes amountIn of tokenIn for tokenOut on every venue concurrently.
// Venues that fail, time out or return nothing are left out. The result is
// sorted by amount out descending, ties by venue name.
func (a *Aggregator) Compare(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) []*types.Quote {
	sources := a.sources.List()

	var (
		mu     sync.Mutex
		quotes = make([]*types.Quote, 0, len(sources))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			q, err := a.quote(gctx, src, tokenIn, tokenOut, amountIn)
			if err != nil {
				a.logger.Debug("Venue excluded from comparison",
					zap.String("venue", src.Name()),
					zap.String("token_in", tokenIn.Hex()),
					zap.String("token_out", tokenOut.Hex()),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			quotes = append(quotes, q)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	SortQuotes(quotes)
	return quotes
}

// BestQuote returns the highest-output quote, if any venue answered.
func (a *Aggregator) BestQuote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*types.Quote, bool) {
	quotes := a.Compare(ctx, tokenIn, tokenOut, amountIn)
	if len(quotes) == 0 {
		return nil, false
	}
	return quotes[0], true
}

// Quote asks a single venue, bounded by the venue timeout.
func (a *Aggregator) Quote(ctx context.Context, src dex.QuoteSource, tokenIn, tokenOut common.Address, amountIn *big.Int) (*types.Quote, error) {
	return a.quote(ctx, src, tokenIn, tokenOut, amountIn)
}

func (a *Aggregator) quote(ctx context.Context, src dex.QuoteSource, tokenIn, tokenOut common.Address, amountIn *big.Int) (*types.Quote, error) {
	if a.venueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.venueTimeout)
		defer cancel()
	}

	q, err := dex.FetchQuote(ctx, src, tokenIn, tokenOut, amountIn)
	if a.metrics != nil {
		a.metrics.ObserveQuote(src.Name(), err)
	}
	return q, err
}

// SortQuotes orders quotes by amount out descending, then venue name.
func SortQuotes(quotes []*types.Quote) {
	sort.SliceStable(quotes, func(i, j int) bool {
		if c := quotes[i].AmountOut.Cmp(quotes[j].AmountOut); c != 0 {
			return c > 0
		}
		return quotes[i].Venue < quotes[j].Venue
	})
}
