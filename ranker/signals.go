package ranker

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/omniarb/pricing"
	"github.com/michaelpento.lv/omniarb/risk"
	"github.com/michaelpento.lv/omniarb/types"
	"github.com/shopspring/decimal"
)

// PairwiseGasEstimate is the gas of a buy and a sell on two venues.
const PairwiseGasEstimate = 250000

// Book values token amounts and names tokens.
type Book interface {
	pricing.Valuer
	Symbol(addr common.Address) string
}

// GasCoster prices gas units in smallest units of token.
type GasCoster interface {
	GasCost(ctx context.Context, token common.Address, gasUnits uint64) (*big.Int, error)
}

// SignalBuilder normalizes detector and router output into signals.
type SignalBuilder struct {
	book               Book
	assessor           risk.Assessor
	gas                GasCoster
	pairwiseConfidence float64
	now                func() time.Time
}

// NewSignalBuilder creates a builder. pairwiseConfidence is the confidence
// attached to cross-venue opportunities before risk assessment. gas prices
// the pairwise trade; when nil, spreads are taken net of fees only.
func NewSignalBuilder(book Book, assessor risk.Assessor, pairwiseConfidence float64, gas GasCoster) *SignalBuilder {
	return &SignalBuilder{
		book:               book,
		assessor:           assessor,
		gas:                gas,
		pairwiseConfidence: pairwiseConfidence,
		now:                time.Now,
	}
}

// FromOpportunity wraps a cross-venue opportunity. The spread and its gas are
// valued in tokenOut and the capital in tokenIn. ProfitEstimate is the raw
// spread; NetProfit has PairwiseGasEstimate gas deducted.
func (b *SignalBuilder) FromOpportunity(ctx context.Context, opp *types.Opportunity) (*types.OpportunitySignal, error) {
	profit, err := b.book.Value(opp.TokenOut, opp.Profit)
	if err != nil {
		return nil, fmt.Errorf("value profit of %s: %w", opp.ID(), err)
	}
	capital, err := b.book.Value(opp.TokenIn, opp.AmountIn)
	if err != nil {
		return nil, fmt.Errorf("value capital of %s: %w", opp.ID(), err)
	}

	net := profit
	if b.gas != nil {
		cost, err := b.gas.GasCost(ctx, opp.TokenOut, PairwiseGasEstimate)
		if err != nil {
			return nil, fmt.Errorf("gas cost of %s: %w", opp.ID(), err)
		}
		gasValue, err := b.book.Value(opp.TokenOut, cost)
		if err != nil {
			return nil, fmt.Errorf("value gas of %s: %w", opp.ID(), err)
		}
		net = profit.Sub(gasValue)
	}

	liquidity, err := b.depthValue(opp.TokenIn, opp.PoolDepth)
	if err != nil {
		return nil, fmt.Errorf("value pool depth of %s: %w", opp.ID(), err)
	}

	assessment := b.assessor.Assess(risk.Input{
		Venues:           []string{opp.BuyVenue, opp.SellVenue},
		Pair:             risk.PairKey(b.book.Symbol(opp.TokenIn), b.book.Symbol(opp.TokenOut)),
		TradeUSD:         capital,
		PoolLiquidityUSD: liquidity,
		Hops:             2,
		Confidence:       b.pairwiseConfidence,
	})

	return &types.OpportunitySignal{
		Key:             types.SignalKey(opp.ID()),
		Kind:            types.StrategyCrossVenue,
		ProfitEstimate:  profit,
		NetProfit:       net,
		Confidence:      assessment.Confidence,
		RiskScore:       assessment.RiskScore,
		CapitalRequired: capital,
		GasEstimate:     PairwiseGasEstimate,
		Opportunity:     opp,
		CreatedAt:       b.now(),
	}, nil
}

// FromRoute wraps a multi-hop route. Every figure is valued in the start token.
func (b *SignalBuilder) FromRoute(route *types.Route) (*types.OpportunitySignal, error) {
	if len(route.TokenPath) == 0 {
		return nil, fmt.Errorf("route %s has no tokens", route.ID)
	}
	start := route.TokenPath[0]

	gross, err := b.book.Value(start, route.GrossProfit)
	if err != nil {
		return nil, fmt.Errorf("value gross profit of %s: %w", route.ID, err)
	}
	net, err := b.book.Value(start, route.NetProfit)
	if err != nil {
		return nil, fmt.Errorf("value net profit of %s: %w", route.ID, err)
	}
	capital, err := b.book.Value(start, route.InitialAmount)
	if err != nil {
		return nil, fmt.Errorf("value capital of %s: %w", route.ID, err)
	}

	end := route.TokenPath[len(route.TokenPath)-1]
	pairEnd := end
	if end == start && len(route.TokenPath) > 2 {
		pairEnd = route.TokenPath[1]
	}

	var liquidity decimal.Decimal
	for _, step := range route.Steps {
		depth, err := b.depthValue(step.TokenIn, step.ReserveIn)
		if err != nil {
			return nil, fmt.Errorf("value pool depth of %s: %w", route.ID, err)
		}
		if depth.IsPositive() && (liquidity.IsZero() || depth.LessThan(liquidity)) {
			liquidity = depth
		}
	}

	assessment := b.assessor.Assess(risk.Input{
		Venues:           route.VenuePath,
		Pair:             risk.PairKey(b.book.Symbol(start), b.book.Symbol(pairEnd)),
		TradeUSD:         capital,
		PoolLiquidityUSD: liquidity,
		Hops:             route.HopCount,
		Confidence:       route.Confidence,
	})

	return &types.OpportunitySignal{
		Key:             types.SignalKey(route.ID),
		Kind:            types.StrategyMultiHop,
		ProfitEstimate:  gross,
		NetProfit:       net,
		Confidence:      assessment.Confidence,
		RiskScore:       assessment.RiskScore,
		CapitalRequired: capital,
		GasEstimate:     route.GasEstimate,
		Route:           route,
		CreatedAt:       b.now(),
	}, nil
}

// depthValue values a two-sided constant-product pool from its tokenIn
// reserve. An unknown reserve is zero.
func (b *SignalBuilder) depthValue(token common.Address, reserveIn *big.Int) (decimal.Decimal, error) {
	if reserveIn == nil {
		return decimal.Zero, nil
	}
	side, err := b.book.Value(token, reserveIn)
	if err != nil {
		return decimal.Zero, err
	}
	return side.Mul(decimal.NewFromInt(2)), nil
}

// Build converts a cycle's opportunities and routes into signals. Candidates
// that cannot be valued or priced for gas are returned in skipped rather than
// failing the batch.
func (b *SignalBuilder) Build(ctx context.Context, opps []*types.Opportunity, routes []*types.Route) (signals []*types.OpportunitySignal, skipped []error) {
	signals = make([]*types.OpportunitySignal, 0, len(opps)+len(routes))
	for _, opp := range opps {
		s, err := b.FromOpportunity(ctx, opp)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		signals = append(signals, s)
	}
	for _, route := range routes {
		s, err := b.FromRoute(route)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		signals = append(signals, s)
	}
	return signals, skipped
}
