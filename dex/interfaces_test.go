package dex_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/omniarb/dex"
	"github.com/michaelpento.lv/omniarb/utils/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestFetchQuote(t *testing.T) {
	ctx := context.Background()

	t.Run("default fee", func(t *testing.T) {
		src := testutils.NewFakeSource("uni").WithRatio(testutils.USDC, testutils.WETH, 2, 1)

		q, err := dex.FetchQuote(ctx, src, testutils.USDC, testutils.WETH, big.NewInt(10000))
		require.NoError(t, err)
		assert.Equal(t, "uni", q.Venue)
		assert.Equal(t, int64(20000), q.AmountOut.Int64())
		assert.Equal(t, int64(30), q.Fee.Int64())
	})

	t.Run("reported fee", func(t *testing.T) {
		src := testutils.NewFakeSource("uni").
			WithRatio(testutils.USDC, testutils.WETH, 1, 1).
			WithFee(10000, 5)

		q, err := dex.FetchQuote(ctx, src, testutils.USDC, testutils.WETH, big.NewInt(10000))
		require.NoError(t, err)
		assert.Equal(t, int64(5), q.Fee.Int64())
	})

	t.Run("source error", func(t *testing.T) {
		src := testutils.NewFakeSource("uni").Failing(testutils.USDC, testutils.WETH)

		_, err := dex.FetchQuote(ctx, src, testutils.USDC, testutils.WETH, big.NewInt(1))
		assert.ErrorIs(t, err, dex.ErrVenueUnavailable)
	})

	t.Run("zero output", func(t *testing.T) {
		src := testutils.NewFakeSource("uni").WithRatio(testutils.USDC, testutils.WETH, 0, 1)

		_, err := dex.FetchQuote(ctx, src, testutils.USDC, testutils.WETH, big.NewInt(100))
		assert.ErrorIs(t, err, dex.ErrZeroAmount)
	})

	t.Run("pool depth", func(t *testing.T) {
		src := testutils.NewFakeSource("uni").
			WithRatio(testutils.USDC, testutils.WETH, 1, 1).
			WithDepth(testutils.USDC, testutils.WETH, big.NewInt(5000000))

		q, err := dex.FetchQuote(ctx, src, testutils.USDC, testutils.WETH, big.NewInt(100))
		require.NoError(t, err)
		assert.Equal(t, int64(5000000), q.ReserveIn.Int64())
	})

	t.Run("zero input", func(t *testing.T) {
		src := testutils.NewFakeSource("uni").WithRatio(testutils.USDC, testutils.WETH, 1, 1)

		_, err := dex.FetchQuote(ctx, src, testutils.USDC, testutils.WETH, big.NewInt(0))
		assert.ErrorIs(t, err, dex.ErrZeroAmount)
		assert.Zero(t, src.Calls())
	})
}

func TestRegistry(t *testing.T) {
	reg, err := dex.NewRegistry(testutils.NewFakeSource("sushi"), testutils.NewFakeSource("uni"))
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	err = reg.Register(testutils.NewFakeSource("uni"))
	assert.Error(t, err)

	src, err := reg.Get("uni")
	require.NoError(t, err)
	assert.Equal(t, "uni", src.Name())

	_, err = reg.Get("curve")
	assert.ErrorIs(t, err, dex.ErrUnknownVenue)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "sushi", list[0].Name())
	assert.Equal(t, "uni", list[1].Name())
}

func TestRateLimited(t *testing.T) {
	inner := testutils.NewFakeSource("uni").
		WithRatio(testutils.USDC, testutils.WETH, 1, 1).
		WithFee(100, 1)
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	src := dex.RateLimited(inner, limiter)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	q, err := dex.FetchQuote(ctx, src, testutils.USDC, testutils.WETH, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, int64(1), q.Fee.Int64())

	// burst spent; the next token is an hour away
	_, err = dex.FetchQuote(ctx, src, testutils.USDC, testutils.WETH, big.NewInt(100))
	assert.ErrorIs(t, err, dex.ErrVenueUnavailable)
	assert.Equal(t, int64(1), inner.Calls())

	assert.Same(t, inner, dex.RateLimited(inner, nil))
}

// plainSource quotes 1:1 and exposes neither fees nor depth.
type plainSource struct{}

func (plainSource) Name() string { return "plain" }

func (plainSource) GetAmountOut(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	return new(big.Int).Set(amountIn), nil
}

func TestRateLimitedDepth(t *testing.T) {
	ctx := context.Background()
	limiter := func() *rate.Limiter { return rate.NewLimiter(rate.Inf, 1) }

	deep := testutils.NewFakeSource("uni").
		WithRatio(testutils.USDC, testutils.WETH, 1, 1).
		WithDepth(testutils.USDC, testutils.WETH, big.NewInt(7000))
	q, err := dex.FetchQuote(ctx, dex.RateLimited(deep, limiter()), testutils.USDC, testutils.WETH, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, int64(7000), q.ReserveIn.Int64())
	assert.Equal(t, int64(1), deep.Calls())

	q, err = dex.FetchQuote(ctx, dex.RateLimited(plainSource{}, limiter()), testutils.USDC, testutils.WETH, big.NewInt(100))
	require.NoError(t, err)
	assert.Nil(t, q.ReserveIn)
	assert.Equal(t, int64(30), q.Fee.Int64())
}
