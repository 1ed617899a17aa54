package risk

import (
	"math"

	"github.com/michaelpento.lv/omniarb/config"
	"github.com/shopspring/decimal"
)

// Factor weights of the composite score.
const (
	SlippageWeight   = 0.3
	VolatilityWeight = 0.25
	LiquidityWeight  = 0.25
	ExecutionWeight  = 0.2
)

const (
	baseSlippage      = 0.001
	slippageSizeScale = 100000
	baseFailureRate   = 0.05
	perHopFailureRate = 0.02
	maxFailureRate    = 0.5
)

// Input describes one candidate trade.
type Input struct {
	Venues []string
	// Pair is a "SYMBOL/SYMBOL" key used for volatility lookups.
	Pair string
	// TradeUSD is the capital the trade would commit.
	TradeUSD decimal.Decimal
	// PoolLiquidityUSD is the shallowest pool depth on the path; zero means unknown.
	PoolLiquidityUSD decimal.Decimal
	Hops             int
	// Confidence is the detector's or router's own confidence in the candidate.
	Confidence float64
}

// Factors are the individual risk components, each within [0, 1].
type Factors struct {
	Slippage   float64
	Volatility float64
	Liquidity  float64
	Execution  float64
}

// Assessment is the risk verdict for one candidate.
type Assessment struct {
	RiskScore  float64
	Confidence float64
	Factors    Factors
}

// Assessor scores candidate trades. Implementations may be arbitrary models;
// the pipeline only relies on RiskScore and Confidence lying in [0, 1].
type Assessor interface {
	Assess(in Input) Assessment
}

// CompositeAssessor is a weighted blend of slippage, volatility, liquidity and
// execution failure estimates.
type CompositeAssessor struct {
	defaultVolatility float64
	volatility        map[string]float64
	defaultLiquidity  decimal.Decimal
}

// NewCompositeAssessor builds an assessor from the risk configuration.
func NewCompositeAssessor(cfg config.RiskConfig) *CompositeAssessor {
	vol := make(map[string]float64, len(cfg.Volatility))
	for pair, v := range cfg.Volatility {
		vol[pair] = v
	}
	return &CompositeAssessor{
		defaultVolatility: cfg.DefaultVolatility,
		volatility:        vol,
		defaultLiquidity:  decimal.NewFromFloat(cfg.DefaultPoolLiquidityUSD),
	}
}

// Assess implements Assessor. Confidence is passed through unchanged.
func (a *CompositeAssessor) Assess(in Input) Assessment {
	f := Factors{
		Slippage:   a.slippage(in.TradeUSD),
		Volatility: a.volatilityOf(in.Pair),
		Liquidity:  a.liquidity(in.PoolLiquidityUSD),
		Execution:  ExecutionRisk(in.Hops),
	}

	score := SlippageWeight*f.Slippage +
		VolatilityWeight*f.Volatility +
		LiquidityWeight*f.Liquidity +
		ExecutionWeight*f.Execution

	return Assessment{
		RiskScore:  clamp(score),
		Confidence: clamp(in.Confidence),
		Factors:    f,
	}
}

func (a *CompositeAssessor) slippage(tradeUSD decimal.Decimal) float64 {
	size := tradeUSD.Div(decimal.NewFromInt(slippageSizeScale)).InexactFloat64()
	if size < 0 {
		size = 0
	}
	return clamp(baseSlippage * (1 + size))
}

func (a *CompositeAssessor) volatilityOf(pair string) float64 {
	if v, ok := a.volatility[pair]; ok {
		return v
	}
	if v, ok := a.volatility[reversePair(pair)]; ok {
		return v
	}
	return a.defaultVolatility
}

func (a *CompositeAssessor) liquidity(poolUSD decimal.Decimal) float64 {
	if poolUSD.Sign() <= 0 {
		poolUSD = a.defaultLiquidity
	}
	switch {
	case poolUSD.LessThan(decimal.NewFromInt(100000)):
		return 0.5
	case poolUSD.LessThan(decimal.NewFromInt(1000000)):
		return 0.2
	default:
		return 0.05
	}
}

// ExecutionRisk estimates the probability a trade of hops swaps fails on chain.
func ExecutionRisk(hops int) float64 {
	if hops < 0 {
		hops = 0
	}
	return math.Min(baseFailureRate+perHopFailureRate*float64(hops), maxFailureRate)
}

// PairKey joins two symbols into a volatility key.
func PairKey(a, b string) string {
	return a + "/" + b
}

func reversePair(pair string) string {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '/' {
			return pair[i+1:] + "/" + pair[:i]
		}
	}
	return pair
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
