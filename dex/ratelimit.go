package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

type rateLimited struct {
	QuoteSource
	limiter *rate.Limiter
}

// RateLimited wraps src so every quote first waits on limiter. A wait that
// fails (deadline, cancellation or burst exceeded) counts as an unavailable venue.
func RateLimited(src QuoteSource, limiter *rate.Limiter) QuoteSource {
	if limiter == nil {
		return src
	}
	return &rateLimited{QuoteSource: src, limiter: limiter}
}

func (r *rateLimited) GetAmountOut(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.QuoteSource.GetAmountOut(ctx, tokenIn, tokenOut, amountIn)
}

// QuoteWithDepth waits like GetAmountOut and forwards to the wrapped source,
// reporting no depth when it has none.
func (r *rateLimited) QuoteWithDepth(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, *big.Int, error) {
	dq, ok := r.QuoteSource.(DepthQuoter)
	if !ok {
		out, err := r.GetAmountOut(ctx, tokenIn, tokenOut, amountIn)
		return out, nil, err
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limit: %w", err)
	}
	return dq.QuoteWithDepth(ctx, tokenIn, tokenOut, amountIn)
}

// SwapFee forwards to the wrapped source when it reports fees.
func (r *rateLimited) SwapFee(amountIn *big.Int) *big.Int {
	if fq, ok := r.QuoteSource.(FeeQuoter); ok {
		return fq.SwapFee(amountIn)
	}
	return nil
}
