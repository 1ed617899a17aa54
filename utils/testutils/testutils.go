package testutils

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Well-known mainnet token addresses used across tests.
var (
	WETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	USDC = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	DAI  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	USDT = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	WBTC = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	LINK = common.HexToAddress("0x514910771AF9Ca656af840dff83E8264EcF986CA")
)

// ErrNoQuote is returned by FakeSource for unconfigured markets.
var ErrNoQuote = errors.New("no quote")

type leg struct {
	in, out common.Address
}

type exact struct {
	leg
	amountIn string
}

// FakeSource is a scriptable quote source. Answers come from exact
// (pair, amount) entries first, then from per-pair ratios.
type FakeSource struct {
	name   string
	mu     sync.RWMutex
	ratios map[leg][2]int64
	exacts map[exact]*big.Int
	fees   map[string]*big.Int
	depth  map[leg]*big.Int
	fail   map[leg]bool
	delay  time.Duration
	calls  atomic.Int64
}

// NewFakeSource creates a source with no markets.
func NewFakeSource(name string) *FakeSource {
	return &FakeSource{
		name:   name,
		ratios: make(map[leg][2]int64),
		exacts: make(map[exact]*big.Int),
		fees:   make(map[string]*big.Int),
		depth:  make(map[leg]*big.Int),
		fail:   make(map[leg]bool),
	}
}

// WithRatio quotes in -> out at num/den.
func (f *FakeSource) WithRatio(in, out common.Address, num, den int64) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratios[leg{in, out}] = [2]int64{num, den}
	return f
}

// WithExact quotes exactly amountOut for amountIn of in -> out.
func (f *FakeSource) WithExact(in, out common.Address, amountIn, amountOut int64) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exacts[exact{leg{in, out}, big.NewInt(amountIn).String()}] = big.NewInt(amountOut)
	return f
}

// WithFee reports fee for swaps of amountIn.
func (f *FakeSource) WithFee(amountIn, fee int64) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fees[big.NewInt(amountIn).String()] = big.NewInt(fee)
	return f
}

// WithDepth reports reserve as the tokenIn reserve of in -> out quotes.
func (f *FakeSource) WithDepth(in, out common.Address, reserve *big.Int) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.depth[leg{in, out}] = new(big.Int).Set(reserve)
	return f
}

// Failing makes in -> out return an error.
func (f *FakeSource) Failing(in, out common.Address) *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[leg{in, out}] = true
	return f
}

// WithDelay makes every quote wait d or until ctx is done.
func (f *FakeSource) WithDelay(d time.Duration) *FakeSource {
	f.delay = d
	return f
}

// Name returns the venue id
func (f *FakeSource) Name() string {
	return f.name
}

// Calls returns how many quotes were requested.
func (f *FakeSource) Calls() int64 {
	return f.calls.Load()
}

// GetAmountOut answers from the scripted markets.
func (f *FakeSource) GetAmountOut(ctx context.Context, in, out common.Address, amountIn *big.Int) (*big.Int, error) {
	f.calls.Add(1)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	l := leg{in, out}
	if f.fail[l] {
		return nil, fmt.Errorf("%s: %w", f.name, ErrNoQuote)
	}
	if v, ok := f.exacts[exact{l, amountIn.String()}]; ok {
		return new(big.Int).Set(v), nil
	}
	if r, ok := f.ratios[l]; ok {
		v := new(big.Int).Mul(amountIn, big.NewInt(r[0]))
		return v.Quo(v, big.NewInt(r[1])), nil
	}
	return nil, ErrNoQuote
}

// QuoteWithDepth answers like GetAmountOut plus any scripted depth.
func (f *FakeSource) QuoteWithDepth(ctx context.Context, in, out common.Address, amountIn *big.Int) (*big.Int, *big.Int, error) {
	amountOut, err := f.GetAmountOut(ctx, in, out, amountIn)
	if err != nil {
		return nil, nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if d, ok := f.depth[leg{in, out}]; ok {
		return amountOut, new(big.Int).Set(d), nil
	}
	return amountOut, nil, nil
}

// SwapFee returns a scripted fee, or nil to fall back to the default fee.
func (f *FakeSource) SwapFee(amountIn *big.Int) *big.Int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if fee, ok := f.fees[amountIn.String()]; ok {
		return new(big.Int).Set(fee)
	}
	return nil
}
