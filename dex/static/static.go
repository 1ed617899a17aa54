package static

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	bigmath "github.com/michaelpento.lv/omniarb/utils/math"
)

type pairKey struct {
	in, out common.Address
}

type rate struct {
	num, den *big.Int
}

type reserves struct {
	in, out *big.Int
}

// Venue is an in-memory venue priced from fixed rates or constant-product
// reserves. It backs simulation mode and tests.
type Venue struct {
	name     string
	feeBps   uint32
	mu       sync.RWMutex
	rates    map[pairKey]rate
	reserves map[pairKey]reserves
}

// New creates an empty venue.
func New(name string, feeBps uint32) *Venue {
	return &Venue{
		name:     name,
		feeBps:   feeBps,
		rates:    make(map[pairKey]rate),
		reserves: make(map[pairKey]reserves),
	}
}

// Name returns the venue id
func (v *Venue) Name() string {
	return v.name
}

// SetRate prices tokenIn -> tokenOut at num/den output units per input unit.
func (v *Venue) SetRate(tokenIn, tokenOut common.Address, num, den *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rates[pairKey{tokenIn, tokenOut}] = rate{num: new(big.Int).Set(num), den: new(big.Int).Set(den)}
}

// SetReserves installs a constant-product pool in both directions.
func (v *Venue) SetReserves(token0, token1 common.Address, reserve0, reserve1 *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reserves[pairKey{token0, token1}] = reserves{in: new(big.Int).Set(reserve0), out: new(big.Int).Set(reserve1)}
	v.reserves[pairKey{token1, token0}] = reserves{in: new(big.Int).Set(reserve1), out: new(big.Int).Set(reserve0)}
}

// GetAmountOut prices a swap. Fixed rates take precedence over reserves.
func (v *Venue) GetAmountOut(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	out, _, err := v.QuoteWithDepth(ctx, tokenIn, tokenOut, amountIn)
	return out, err
}

// QuoteWithDepth prices a swap and reports the tokenIn reserve of a
// reserve-priced market. Rate-priced markets have no depth.
func (v *Venue) QuoteWithDepth(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, *big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	key := pairKey{tokenIn, tokenOut}
	if r, ok := v.rates[key]; ok {
		return bigmath.MulDiv(amountIn, r.num, r.den), nil, nil
	}
	if res, ok := v.reserves[key]; ok {
		return bigmath.GetAmountOut(amountIn, res.in, res.out, v.feeBps), new(big.Int).Set(res.in), nil
	}
	return nil, nil, fmt.Errorf("no market for %s/%s", tokenIn.Hex(), tokenOut.Hex())
}

// SwapFee returns the venue's fee on amountIn.
func (v *Venue) SwapFee(amountIn *big.Int) *big.Int {
	return bigmath.ApplyBps(amountIn, v.feeBps)
}
