package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Quote is a single venue's answer for swapping AmountIn of TokenIn into TokenOut.
// Amounts are in the smallest unit of their token. ReserveIn is the pool's
// TokenIn reserve, nil when the venue does not expose one.
type Quote struct {
	Venue     string
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	Fee       *big.Int
	ReserveIn *big.Int
}

// SwapStep is one edge of a route, derived from exactly one Quote.
type SwapStep struct {
	Venue          string
	TokenIn        common.Address
	TokenOut       common.Address
	AmountIn       *big.Int
	AmountOut      *big.Int
	EffectivePrice decimal.Decimal
	Fee            *big.Int
	ReserveIn      *big.Int
}

// StepFromQuote converts a quote into a route step.
func StepFromQuote(q *Quote) SwapStep {
	price := decimal.Zero
	if q.AmountIn.Sign() > 0 {
		price = decimal.NewFromBigInt(q.AmountOut, 0).DivRound(decimal.NewFromBigInt(q.AmountIn, 0), 18)
	}
	return SwapStep{
		Venue:          q.Venue,
		TokenIn:        q.TokenIn,
		TokenOut:       q.TokenOut,
		AmountIn:       q.AmountIn,
		AmountOut:      q.AmountOut,
		EffectivePrice: price,
		Fee:            q.Fee,
		ReserveIn:      q.ReserveIn,
	}
}

// Route is an ordered chain of 2-4 swaps. InitialAmount, TotalFees,
// GrossProfit, NetProfit and GasCost are in smallest units of the start
// token; FinalAmount is in units of the end token and is converted at book
// prices before GrossProfit is taken against InitialAmount.
type Route struct {
	ID            string
	TokenPath     []common.Address
	VenuePath     []string
	HopCount      int
	Steps         []SwapStep
	InitialAmount *big.Int
	FinalAmount   *big.Int
	TotalFees     *big.Int
	GrossProfit   *big.Int
	NetProfit     *big.Int
	ProfitPercent decimal.Decimal
	GasEstimate   uint64
	GasCost       *big.Int
	Confidence    float64
}

// Validate checks the structural invariants of a route.
func (r *Route) Validate() error {
	if r.HopCount != len(r.Steps) || r.HopCount != len(r.TokenPath)-1 {
		return fmt.Errorf("route %s: hop count %d, %d steps, %d tokens", r.ID, r.HopCount, len(r.Steps), len(r.TokenPath))
	}
	for i, step := range r.Steps {
		if r.TokenPath[i] != step.TokenIn || r.TokenPath[i+1] != step.TokenOut {
			return fmt.Errorf("route %s: step %d does not follow token path", r.ID, i)
		}
		if i+1 < len(r.Steps) && step.TokenOut != r.Steps[i+1].TokenIn {
			return fmt.Errorf("route %s: step %d output is not step %d input", r.ID, i, i+1)
		}
	}
	return nil
}

// Opportunity is a buy-low/sell-high spread between two venues on one pair.
// PoolDepth is the smaller TokenIn reserve of the two pools, nil when either
// venue does not expose reserves.
type Opportunity struct {
	BuyVenue      string
	SellVenue     string
	TokenIn       common.Address
	TokenOut      common.Address
	AmountIn      *big.Int
	BuyPrice      *big.Int
	SellPrice     *big.Int
	Profit        *big.Int
	ProfitPercent decimal.Decimal
	PoolDepth     *big.Int
}

// ID identifies the opportunity within a cycle.
func (o *Opportunity) ID() string {
	return fmt.Sprintf("pair:%s>%s:%s,%s", o.TokenIn.Hex(), o.TokenOut.Hex(), o.BuyVenue, o.SellVenue)
}

// StrategyKind tags where a signal came from.
type StrategyKind string

const (
	StrategyCrossVenue StrategyKind = "cross_venue"
	StrategyMultiHop   StrategyKind = "multi_hop"
)

// OpportunitySignal wraps either a pairwise Opportunity or a Route with the
// value-term figures used for ranking and allocation. Exactly one of
// Opportunity and Route is set.
type OpportunitySignal struct {
	Key             uint64
	Kind            StrategyKind
	ProfitEstimate  decimal.Decimal
	NetProfit       decimal.Decimal
	Confidence      float64
	RiskScore       float64
	CapitalRequired decimal.Decimal
	GasEstimate     uint64
	Opportunity     *Opportunity
	Route           *Route
	CreatedAt       time.Time
}

// SignalKey hashes an opportunity or route id into a signal key.
func SignalKey(id string) uint64 {
	return xxhash.Sum64String(id)
}

// SourceID returns the id of the underlying opportunity or route.
func (s *OpportunitySignal) SourceID() string {
	switch {
	case s.Route != nil:
		return s.Route.ID
	case s.Opportunity != nil:
		return s.Opportunity.ID()
	}
	return ""
}

// Allocation is capital committed to one signal for one cycle.
type Allocation struct {
	Signal *OpportunitySignal
	Amount decimal.Decimal
}
