package uniswap

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

type mockPair struct {
	reserve0, reserve1 *big.Int
	err                error
}

func (m *mockPair) GetReserves(ctx context.Context) (*big.Int, *big.Int, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.reserve0, m.reserve1, nil
}

func newTestVenue(t *testing.T, pair PairReader, created *int32) *V2 {
	t.Helper()
	v, err := NewV2(nil, MainnetParams(), WithPairFactory(func(common.Address) (PairReader, error) {
		if created != nil {
			atomic.AddInt32(created, 1)
		}
		return pair, nil
	}))
	require.NoError(t, err)
	return v
}

func TestPairFor(t *testing.T) {
	v, err := NewV2(nil, MainnetParams())
	require.NoError(t, err)

	want := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	assert.Equal(t, want, v.PairFor(usdc, weth))
	assert.Equal(t, want, v.PairFor(weth, usdc))
}

func TestGetAmountOut(t *testing.T) {
	ctx := context.Background()

	// USDC sorts before WETH, so reserve0 is USDC.
	pair := &mockPair{
		reserve0: big.NewInt(5000000000),                                         // 5000 USDC
		reserve1: new(big.Int).Mul(big.NewInt(10), big.NewInt(1000000000000000000)), // 10 ETH
	}
	var created int32
	v := newTestVenue(t, pair, &created)

	amountOut, err := v.GetAmountOut(ctx, weth, usdc, big.NewInt(1000000000000000000))
	require.NoError(t, err)
	assert.Equal(t, int64(453305446), amountOut.Int64())

	back, err := v.GetAmountOut(ctx, usdc, weth, big.NewInt(500000000))
	require.NoError(t, err)
	assert.True(t, back.Sign() > 0)
	assert.True(t, back.Cmp(big.NewInt(1000000000000000000)) < 0)

	_, depth, err := v.QuoteWithDepth(ctx, weth, usdc, big.NewInt(1000000000000000000))
	require.NoError(t, err)
	assert.Equal(t, pair.reserve1.String(), depth.String())
	_, depth, err = v.QuoteWithDepth(ctx, usdc, weth, big.NewInt(500000000))
	require.NoError(t, err)
	assert.Equal(t, pair.reserve0.String(), depth.String())

	assert.Equal(t, int32(1), atomic.LoadInt32(&created), "pair binding should be cached")
	assert.Equal(t, int64(3), v.SwapFee(big.NewInt(1000)).Int64())
}

func TestGetAmountOutErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("reserve read fails", func(t *testing.T) {
		v := newTestVenue(t, &mockPair{err: errors.New("rpc down")}, nil)
		_, err := v.GetAmountOut(ctx, weth, usdc, big.NewInt(1))
		assert.Error(t, err)
	})

	t.Run("empty pool", func(t *testing.T) {
		v := newTestVenue(t, &mockPair{reserve0: big.NewInt(0), reserve1: big.NewInt(0)}, nil)
		_, err := v.GetAmountOut(ctx, weth, usdc, big.NewInt(1))
		assert.Error(t, err)
	})

	t.Run("identical tokens", func(t *testing.T) {
		v := newTestVenue(t, &mockPair{}, nil)
		_, err := v.GetAmountOut(ctx, weth, weth, big.NewInt(1))
		assert.Error(t, err)
	})

	t.Run("no caller", func(t *testing.T) {
		v, err := NewV2(nil, MainnetParams())
		require.NoError(t, err)
		_, err = v.GetAmountOut(ctx, weth, usdc, big.NewInt(1))
		assert.Error(t, err)
	})
}

func TestNewV2Validation(t *testing.T) {
	params := MainnetParams()
	params.Name = ""
	_, err := NewV2(nil, params)
	assert.Error(t, err)

	params = MainnetParams()
	params.FeeBps = 10000
	_, err = NewV2(nil, params)
	assert.Error(t, err)
}

func TestV2Options(t *testing.T) {
	v, err := NewV2(nil, MainnetParams(), WithName("uni-fork"), WithFeeBps(25))
	require.NoError(t, err)
	assert.Equal(t, "uni-fork", v.Name())
	assert.Equal(t, big.NewInt(25), v.SwapFee(big.NewInt(10000)))

	_, err = NewV2(nil, MainnetParams(), WithName(""))
	assert.Error(t, err)
}
