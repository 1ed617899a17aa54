package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/omniarb/types"
	bigmath "github.com/michaelpento.lv/omniarb/utils/math"
)

// DefaultFeeBps is the swap fee charged per hop when a venue does not report its own.
const DefaultFeeBps = 30

var (
	// ErrVenueUnavailable is returned when a venue cannot produce a quote.
	ErrVenueUnavailable = errors.New("venue unavailable")
	// ErrUnknownVenue is returned by the registry for an unregistered id.
	ErrUnknownVenue = errors.New("unknown venue")
	// ErrZeroAmount is returned for a quote with no output.
	ErrZeroAmount = errors.New("zero amount")
)

// QuoteSource prices swaps on one venue. Implementations must be safe for
// concurrent use and must honour ctx cancellation.
type QuoteSource interface {
	// Name returns the venue id
	Name() string

	// GetAmountOut returns the output of swapping amountIn of tokenIn into tokenOut
	GetAmountOut(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error)
}

// FeeQuoter is implemented by venues that report their own swap fee.
type FeeQuoter interface {
	SwapFee(amountIn *big.Int) *big.Int
}

// DepthQuoter is implemented by reserve-priced venues that can report the
// pool's input-side reserve along with a quote. reserveIn may be nil.
type DepthQuoter interface {
	QuoteWithDepth(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (amountOut, reserveIn *big.Int, err error)
}

// FetchQuote asks src for a quote and wraps the answer. Any failure, including
// a nil or non-positive output, is reported as ErrVenueUnavailable or ErrZeroAmount.
func FetchQuote(ctx context.Context, src QuoteSource, tokenIn, tokenOut common.Address, amountIn *big.Int) (*types.Quote, error) {
	if !bigmath.IsPositive(amountIn) {
		return nil, fmt.Errorf("%s: amount in: %w", src.Name(), ErrZeroAmount)
	}

	var (
		amountOut, reserveIn *big.Int
		err                  error
	)
	if dq, ok := src.(DepthQuoter); ok {
		amountOut, reserveIn, err = dq.QuoteWithDepth(ctx, tokenIn, tokenOut, amountIn)
	} else {
		amountOut, err = src.GetAmountOut(ctx, tokenIn, tokenOut, amountIn)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", src.Name(), ErrVenueUnavailable, err)
	}
	if !bigmath.IsPositive(amountOut) {
		return nil, fmt.Errorf("%s: amount out: %w", src.Name(), ErrZeroAmount)
	}

	var fee *big.Int
	if fq, ok := src.(FeeQuoter); ok {
		fee = fq.SwapFee(amountIn)
	}
	if fee == nil {
		fee = bigmath.ApplyBps(amountIn, DefaultFeeBps)
	}

	return &types.Quote{
		Venue:     src.Name(),
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: new(big.Int).Set(amountOut),
		Fee:       fee,
		ReserveIn: reserveIn,
	}, nil
}

// Registry maps venue ids to quote sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]QuoteSource
}

// NewRegistry creates a registry holding the given sources.
func NewRegistry(sources ...QuoteSource) (*Registry, error) {
	r := &Registry{sources: make(map[string]QuoteSource)}
	for _, src := range sources {
		if err := r.Register(src); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a source under its name.
func (r *Registry) Register(src QuoteSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := src.Name()
	if name == "" {
		return errors.New("venue name must not be empty")
	}
	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("venue %q already registered", name)
	}
	r.sources[name] = src
	return nil
}

// Get returns the source registered under name.
func (r *Registry) Get(name string) (QuoteSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownVenue)
	}
	return src, nil
}

// List returns all sources ordered by name.
func (r *Registry) List() []QuoteSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]QuoteSource, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of registered venues.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}
