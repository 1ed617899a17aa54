package uniswap

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
	bigmath "github.com/michaelpento.lv/omniarb/utils/math"
)

// Contract addresses
var (
	MainnetFactory  = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	MainnetInitCode = common.FromHex("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")
)

const defaultPairCacheSize = 1024

// Params describes one V2-style deployment.
type Params struct {
	Name     string
	Factory  common.Address
	InitCode []byte
	FeeBps   uint32
}

// MainnetParams returns the Uniswap V2 mainnet deployment.
func MainnetParams() Params {
	return Params{
		Name:     "uniswap_v2",
		Factory:  MainnetFactory,
		InitCode: MainnetInitCode,
		FeeBps:   30,
	}
}

// PairFactory binds a pair reader for a pair address.
type PairFactory func(pair common.Address) (PairReader, error)

// Option configures a V2 venue.
type Option func(*V2)

// WithPairFactory overrides how pair readers are created.
func WithPairFactory(f PairFactory) Option {
	return func(v *V2) { v.newPair = f }
}

// WithCacheSize sets the number of pair bindings kept.
func WithCacheSize(n int) Option {
	return func(v *V2) { v.cacheSize = n }
}

// WithName registers the venue under a different id.
func WithName(name string) Option {
	return func(v *V2) { v.params.Name = name }
}

// WithFeeBps overrides the deployment's swap fee.
func WithFeeBps(bps uint32) Option {
	return func(v *V2) { v.params.FeeBps = bps }
}

// V2 is a constant-product venue quoting from on-chain pair reserves.
type V2 struct {
	params    Params
	newPair   PairFactory
	cacheSize int
	pairs     *lru.Cache
}

// NewV2 creates a venue reading pairs through caller.
func NewV2(caller bind.ContractCaller, params Params, opts ...Option) (*V2, error) {
	v := &V2{
		params:    params,
		cacheSize: defaultPairCacheSize,
		newPair: func(pair common.Address) (PairReader, error) {
			if caller == nil {
				return nil, fmt.Errorf("no contract caller for pair %s", pair.Hex())
			}
			return NewPair(pair, caller), nil
		},
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.params.Name == "" {
		return nil, fmt.Errorf("venue name must be set")
	}
	if v.params.FeeBps >= bigmath.BpsDenominator {
		return nil, fmt.Errorf("%s: fee %d bps out of range", v.params.Name, v.params.FeeBps)
	}

	cache, err := lru.New(v.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create pair cache: %w", err)
	}
	v.pairs = cache
	return v, nil
}

// Name returns the venue id
func (v *V2) Name() string {
	return v.params.Name
}

// GetAmountOut quotes amountIn of tokenIn against the pair's current reserves.
func (v *V2) GetAmountOut(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	out, _, err := v.QuoteWithDepth(ctx, tokenIn, tokenOut, amountIn)
	return out, err
}

// QuoteWithDepth quotes like GetAmountOut and also returns the pair's
// tokenIn reserve.
func (v *V2) QuoteWithDepth(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, *big.Int, error) {
	if tokenIn == tokenOut {
		return nil, nil, fmt.Errorf("identical tokens %s", tokenIn.Hex())
	}

	pair, err := v.getPair(tokenIn, tokenOut)
	if err != nil {
		return nil, nil, err
	}

	reserve0, reserve1, err := pair.GetReserves(ctx)
	if err != nil {
		return nil, nil, err
	}

	reserveIn, reserveOut := reserve0, reserve1
	if token0, _ := sortTokens(tokenIn, tokenOut); token0 != tokenIn {
		reserveIn, reserveOut = reserve1, reserve0
	}
	if !bigmath.IsPositive(reserveIn) || !bigmath.IsPositive(reserveOut) {
		return nil, nil, fmt.Errorf("insufficient liquidity")
	}

	out := bigmath.GetAmountOut(amountIn, reserveIn, reserveOut, v.params.FeeBps)
	return out, new(big.Int).Set(reserveIn), nil
}

// SwapFee returns the LP fee taken from amountIn.
func (v *V2) SwapFee(amountIn *big.Int) *big.Int {
	return bigmath.ApplyBps(amountIn, v.params.FeeBps)
}

// getPair returns the pair reader for two tokens
func (v *V2) getPair(tokenA, tokenB common.Address) (PairReader, error) {
	pairAddr := v.PairFor(tokenA, tokenB)
	if cached, ok := v.pairs.Get(pairAddr); ok {
		return cached.(PairReader), nil
	}

	pair, err := v.newPair(pairAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create pair contract: %w", err)
	}

	v.pairs.Add(pairAddr, pair)
	return pair, nil
}

// PairFor calculates the CREATE2 pair address for two tokens
func (v *V2) PairFor(tokenA, tokenB common.Address) common.Address {
	token0, token1 := sortTokens(tokenA, tokenB)
	salt := crypto.Keccak256(token0.Bytes(), token1.Bytes())
	return common.BytesToAddress(crypto.Keccak256([]byte{0xff}, v.params.Factory.Bytes(), salt, v.params.InitCode)[12:])
}

func sortTokens(tokenA, tokenB common.Address) (common.Address, common.Address) {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		return tokenB, tokenA
	}
	return tokenA, tokenB
}
