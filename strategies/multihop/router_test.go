package multihop

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/omniarb/aggregator"
	"github.com/michaelpento.lv/omniarb/dex"
	"github.com/michaelpento.lv/omniarb/pricing"
	"github.com/michaelpento.lv/omniarb/utils/testutils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixedGas struct {
	cost int64
	err  error
}

func (f fixedGas) GasCost(ctx context.Context, token common.Address, gasUnits uint64) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return big.NewInt(f.cost), nil
}

// unitBook values every token at one dollar per smallest unit.
func unitBook(t *testing.T, tokens ...common.Address) *pricing.TokenBook {
	t.Helper()
	entries := make([]pricing.Token, len(tokens))
	for i, tok := range tokens {
		entries[i] = pricing.Token{Address: tok, PriceUSD: decimal.NewFromInt(1), LiquidityRank: i}
	}
	book, err := pricing.NewTokenBook(entries)
	require.NoError(t, err)
	return book
}

func newRouter(t *testing.T, cfg Config, book *pricing.TokenBook, gas GasCoster, sources ...dex.QuoteSource) *Router {
	t.Helper()
	reg, err := dex.NewRegistry(sources...)
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	agg := aggregator.New(reg, time.Second, nil, logger)
	r, err := NewRouter(cfg, reg, book, agg, book, gas, logger)
	require.NoError(t, err)
	return r
}

func TestNewRouterRequiresValuer(t *testing.T) {
	reg, err := dex.NewRegistry(testutils.NewFakeSource("uni"))
	require.NoError(t, err)
	book := unitBook(t, testutils.USDC)

	_, err = NewRouter(Config{}, reg, book, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoValuer)
}

func TestTwoHopRouteCosting(t *testing.T) {
	a, b, c := testutils.USDC, testutils.WETH, testutils.DAI
	uni := testutils.NewFakeSource("uni").
		WithExact(a, b, 10000, 10500).
		WithExact(b, c, 10500, 10800).
		WithFee(10000, 30).
		WithFee(10500, 32)

	r := newRouter(t, Config{MaxHops: 2, Parallelism: 2}, unitBook(t, a, b, c), nil, uni)

	routes := r.FindProfitableRoutes(context.Background(), a, c, big.NewInt(10000), 2)
	require.Len(t, routes, 1)

	route := routes[0]
	require.NoError(t, route.Validate())
	assert.Equal(t, 2, route.HopCount)
	assert.Equal(t, []common.Address{a, b, c}, route.TokenPath)
	assert.Equal(t, []string{"uni", "uni"}, route.VenuePath)
	assert.Equal(t, int64(10800), route.FinalAmount.Int64())
	assert.Equal(t, int64(800), route.GrossProfit.Int64())
	assert.Equal(t, int64(62), route.TotalFees.Int64())
	assert.Equal(t, int64(738), route.NetProfit.Int64())
	assert.True(t, route.ProfitPercent.Equal(decimal.RequireFromString("7.38")), route.ProfitPercent.String())
	assert.Equal(t, uint64(250000), route.GasEstimate)
	assert.Equal(t, 0.85, route.Confidence)
	assert.Zero(t, route.GasCost.Sign())
}

func TestMissingHopDropsCandidate(t *testing.T) {
	usdc, weth, dai := testutils.USDC, testutils.WETH, testutils.DAI
	uni := testutils.NewFakeSource("uni").
		WithRatio(usdc, weth, 1, 1).
		Failing(weth, dai).
		WithRatio(dai, usdc, 2, 1).
		WithRatio(usdc, dai, 1, 1)

	cfg := Config{
		MaxHops:     3,
		Parallelism: 2,
		Policies:    map[int]HopPolicy{3: DefaultHopPolicies()[3]},
	}
	r := newRouter(t, cfg, unitBook(t, usdc, weth, dai), nil, uni)

	assert.NotPanics(t, func() {
		routes := r.FindProfitableRoutes(context.Background(), usdc, usdc, big.NewInt(10000), 3)
		assert.Empty(t, routes)
	})
}

func TestHopFloors(t *testing.T) {
	usdc, weth := testutils.USDC, testutils.WETH

	tests := []struct {
		name    string
		final   int64
		wantLen int
	}{
		{"below floor", 10008, 0},
		{"at floor", 10010, 0},
		{"above floor", 10011, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uni := testutils.NewFakeSource("uni").
				WithExact(usdc, weth, 10000, 10000).
				WithExact(weth, usdc, 10000, tt.final).
				WithFee(10000, 0)

			r := newRouter(t, Config{MaxHops: 2, Parallelism: 1}, unitBook(t, usdc, weth), nil, uni)
			routes := r.FindProfitableRoutes(context.Background(), usdc, usdc, big.NewInt(10000), 0)
			assert.Len(t, routes, tt.wantLen)
			for _, route := range routes {
				assert.True(t, route.NetProfit.Sign() > 0)
			}
		})
	}
}

func TestRouterMinProfit(t *testing.T) {
	usdc, weth := testutils.USDC, testutils.WETH
	uni := testutils.NewFakeSource("uni").
		WithExact(usdc, weth, 10000, 10000).
		WithExact(weth, usdc, 10000, 10040).
		WithFee(10000, 0)

	r := newRouter(t, Config{MaxHops: 2, MinProfit: decimal.NewFromInt(50)}, unitBook(t, usdc, weth), nil, uni)
	assert.Empty(t, r.FindProfitableRoutes(context.Background(), usdc, usdc, big.NewInt(10000), 2))
}

func twoVenueMarket() (*testutils.FakeSource, *testutils.FakeSource) {
	usdc, weth := testutils.USDC, testutils.WETH
	a := testutils.NewFakeSource("a").
		WithRatio(usdc, weth, 11, 10).
		WithRatio(weth, usdc, 9, 10).
		WithFee(10000, 0).
		WithFee(11000, 0)
	b := testutils.NewFakeSource("b").
		WithRatio(usdc, weth, 1, 1).
		WithRatio(weth, usdc, 1, 1).
		WithFee(10000, 0).
		WithFee(11000, 0)
	return a, b
}

func TestVenuePerHop(t *testing.T) {
	usdc, weth := testutils.USDC, testutils.WETH
	a, b := twoVenueMarket()

	r := newRouter(t, Config{MaxHops: 2, Parallelism: 4}, unitBook(t, usdc, weth), nil, a, b)
	routes := r.FindProfitableRoutes(context.Background(), usdc, usdc, big.NewInt(10000), 2)
	require.Len(t, routes, 1)
	assert.Equal(t, []string{"a", "b"}, routes[0].VenuePath)
	assert.Equal(t, int64(1000), routes[0].NetProfit.Int64())
	assert.Equal(t, RouteID([]common.Address{usdc, weth, usdc}, []string{"a", "b"}), routes[0].ID)
}

func TestVenueLimit(t *testing.T) {
	usdc, weth := testutils.USDC, testutils.WETH
	a, b := twoVenueMarket()

	policy := DefaultHopPolicies()[2]
	policy.VenueLimit = 1
	cfg := Config{MaxHops: 2, Policies: map[int]HopPolicy{2: policy}}

	r := newRouter(t, cfg, unitBook(t, usdc, weth), nil, a, b)
	assert.Empty(t, r.FindProfitableRoutes(context.Background(), usdc, usdc, big.NewInt(10000), 2))
	assert.Zero(t, b.Calls())
}

func TestGasCostDeducted(t *testing.T) {
	usdc, weth := testutils.USDC, testutils.WETH

	tests := []struct {
		name    string
		gas     fixedGas
		wantLen int
		wantNet int64
	}{
		{"cheap gas", fixedGas{cost: 500}, 1, 500},
		{"gas eats profit", fixedGas{cost: 990}, 0, 0},
		{"gas unavailable", fixedGas{err: errors.New("no base fee yet")}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := twoVenueMarket()
			r := newRouter(t, Config{MaxHops: 2}, unitBook(t, usdc, weth), tt.gas, a, b)

			routes := r.FindProfitableRoutes(context.Background(), usdc, usdc, big.NewInt(10000), 2)
			require.Len(t, routes, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantNet, routes[0].NetProfit.Int64())
				assert.Equal(t, tt.gas.cost, routes[0].GasCost.Int64())
			}
		})
	}
}

func TestRoutesAcrossHopCounts(t *testing.T) {
	usdc, weth, dai, link := testutils.USDC, testutils.WETH, testutils.DAI, testutils.LINK
	uni := testutils.NewFakeSource("uni").
		WithRatio(usdc, weth, 1, 1).
		WithRatio(weth, usdc, 101, 100).
		WithRatio(weth, dai, 1, 1).
		WithRatio(dai, usdc, 102, 100).
		WithRatio(dai, link, 1, 1).
		WithRatio(link, usdc, 104, 100)

	r := newRouter(t, Config{MaxHops: 4, Parallelism: 4}, unitBook(t, usdc, weth, dai, link), nil, uni)
	routes := r.FindProfitableRoutes(context.Background(), usdc, usdc, big.NewInt(100000), 4)
	require.NotEmpty(t, routes)

	hopCounts := make(map[int]bool)
	for i, route := range routes {
		require.NoError(t, route.Validate())
		hopCounts[route.HopCount] = true
		assert.True(t, route.NetProfit.Sign() > 0)
		if i > 0 {
			assert.True(t, routes[i-1].NetProfit.Cmp(route.NetProfit) >= 0)
		}
		for j, step := range route.Steps {
			assert.Equal(t, route.TokenPath[j+1], step.TokenOut)
			if j > 0 {
				assert.Equal(t, route.Steps[j-1].TokenOut, step.TokenIn)
			}
		}
	}
	assert.True(t, hopCounts[2])
	assert.True(t, hopCounts[3])
	assert.True(t, hopCounts[4])

	// 4 hops: 100000 * 1.04 = 104000, fees 4 * 300 = 1200, net 2800
	assert.Equal(t, 4, routes[0].HopCount)
	assert.Equal(t, int64(2800), routes[0].NetProfit.Int64())
	assert.Equal(t, 0.65, routes[0].Confidence)

	again := r.FindProfitableRoutes(context.Background(), usdc, usdc, big.NewInt(100000), 4)
	require.Len(t, again, len(routes))
	for i := range routes {
		assert.Equal(t, routes[i].ID, again[i].ID)
		assert.Equal(t, 0, routes[i].NetProfit.Cmp(again[i].NetProfit))
	}
}

func TestInvalidInputs(t *testing.T) {
	usdc, weth := testutils.USDC, testutils.WETH
	uni := testutils.NewFakeSource("uni").
		WithRatio(usdc, weth, 0, 1).
		WithRatio(weth, usdc, 2, 1)

	r := newRouter(t, Config{MaxHops: 2}, unitBook(t, usdc, weth), nil, uni)
	ctx := context.Background()

	assert.Empty(t, r.FindProfitableRoutes(ctx, usdc, usdc, big.NewInt(0), 2))
	assert.Empty(t, r.FindProfitableRoutes(ctx, usdc, usdc, big.NewInt(1000), 1))
	// zero output on the first hop invalidates the path
	assert.Empty(t, r.FindProfitableRoutes(ctx, usdc, usdc, big.NewInt(1000), 2))
}

func TestFeesConvertedToStartToken(t *testing.T) {
	usdc, weth := testutils.USDC, testutils.WETH
	book, err := pricing.NewTokenBook([]pricing.Token{
		{Address: usdc, Decimals: 0, PriceUSD: decimal.NewFromInt(1)},
		{Address: weth, Decimals: 0, PriceUSD: decimal.NewFromInt(10), LiquidityRank: 1},
	})
	require.NoError(t, err)

	// 10000 USDC -> 1000 WETH -> 10500 USDC
	uni := testutils.NewFakeSource("uni").
		WithExact(usdc, weth, 10000, 1000).
		WithExact(weth, usdc, 1000, 10500).
		WithFee(10000, 30).
		WithFee(1000, 3)

	r := newRouter(t, Config{MaxHops: 2}, book, nil, uni)
	routes := r.FindProfitableRoutes(context.Background(), usdc, usdc, big.NewInt(10000), 2)
	require.Len(t, routes, 1)

	// the 3 WETH fee costs 30 USDC
	assert.Equal(t, int64(60), routes[0].TotalFees.Int64())
	assert.Equal(t, int64(440), routes[0].NetProfit.Int64())
}

// decimalBook prices tokens with their real decimals.
func decimalBook(t *testing.T) *pricing.TokenBook {
	t.Helper()
	book, err := pricing.NewTokenBook([]pricing.Token{
		{Address: testutils.USDC, Symbol: "USDC", Decimals: 6, PriceUSD: decimal.NewFromInt(1), LiquidityRank: 0},
		{Address: testutils.DAI, Symbol: "DAI", Decimals: 18, PriceUSD: decimal.NewFromInt(1), LiquidityRank: 1},
		{Address: testutils.WETH, Symbol: "WETH", Decimals: 18, PriceUSD: decimal.NewFromInt(2000), LiquidityRank: 2},
	})
	require.NoError(t, err)
	return book
}

func TestOpenRouteProfitInStartToken(t *testing.T) {
	usdc, dai, weth := testutils.USDC, testutils.DAI, testutils.WETH

	tests := []struct {
		name      string
		wethNum   int64
		wantLen   int
		wantGross int64
		wantNet   int64
	}{
		// 10000 USDC -> 10000 DAI -> 5 WETH is worth exactly what went in
		{"fair prices", 1, 0, 0, 0},
		// 5.1 WETH back is $200 over the $10000 spent, less $30 per hop
		{"cheap weth", 102, 1, 200000000, 140000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			denom := int64(2000)
			if tt.wethNum != 1 {
				denom = 200000
			}
			uni := testutils.NewFakeSource("uni").
				WithRatio(usdc, dai, 1000000000000, 1).
				WithRatio(dai, weth, tt.wethNum, denom)

			r := newRouter(t, Config{MaxHops: 2}, decimalBook(t), nil, uni)
			routes := r.FindProfitableRoutes(context.Background(), usdc, weth, big.NewInt(10000000000), 2)
			require.Len(t, routes, tt.wantLen)
			if tt.wantLen == 0 {
				return
			}

			route := routes[0]
			require.NoError(t, route.Validate())
			assert.Equal(t, []common.Address{usdc, dai, weth}, route.TokenPath)
			assert.Equal(t, "5100000000000000000", route.FinalAmount.String())
			assert.Equal(t, tt.wantGross, route.GrossProfit.Int64())
			assert.Equal(t, int64(60000000), route.TotalFees.Int64())
			assert.Equal(t, tt.wantNet, route.NetProfit.Int64())
			assert.True(t, route.ProfitPercent.Equal(decimal.RequireFromString("1.4")), route.ProfitPercent.String())
		})
	}
}

func TestCancelledSearch(t *testing.T) {
	usdc, weth := testutils.USDC, testutils.WETH
	a, b := twoVenueMarket()
	r := newRouter(t, Config{MaxHops: 2}, unitBook(t, usdc, weth), nil, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, r.FindProfitableRoutes(ctx, usdc, usdc, big.NewInt(10000), 2))
}

func TestPermutations(t *testing.T) {
	items := []common.Address{testutils.USDC, testutils.WETH, testutils.DAI}

	var got [][]common.Address
	permutations(items, 2, func(p []common.Address) { got = append(got, p) })
	assert.Len(t, got, 6)
	for _, p := range got {
		assert.NotEqual(t, p[0], p[1])
	}

	count := 0
	permutations(items, 4, func([]common.Address) { count++ })
	assert.Zero(t, count)
}
