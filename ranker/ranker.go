package ranker

import (
	"sort"

	"github.com/michaelpento.lv/omniarb/config"
	"github.com/michaelpento.lv/omniarb/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// scorePlaces bounds the precision of the risk-adjusted score.
const scorePlaces = 18

// Config holds the ranking filters.
type Config struct {
	// MinConfidence is exclusive: signals at exactly this confidence are dropped.
	MinConfidence float64
	// MinNetProfit is exclusive, in value terms.
	MinNetProfit decimal.Decimal
}

// ConfigFrom converts the loaded ranking section.
func ConfigFrom(cfg config.RankingConfig) Config {
	return Config{
		MinConfidence: cfg.MinConfidence,
		MinNetProfit:  decimal.NewFromFloat(cfg.MinNetProfitUSD),
	}
}

// Ranker filters and orders signals by risk-adjusted return.
type Ranker struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a ranker
func New(cfg Config, logger *zap.Logger) *Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{cfg: cfg, logger: logger}
}

type scored struct {
	signal *types.OpportunitySignal
	score  decimal.Decimal
}

// Rank drops signals that fail the confidence, profit or position filters and
// sorts the rest by score descending, then net profit descending. A
// non-positive maxPosition disables the position filter. The input slice is
// not modified.
func (r *Ranker) Rank(signals []*types.OpportunitySignal, maxPosition decimal.Decimal) []*types.OpportunitySignal {
	kept := make([]scored, 0, len(signals))
	for _, s := range signals {
		if !r.accept(s, maxPosition) {
			continue
		}
		kept = append(kept, scored{signal: s, score: Score(s)})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if c := a.score.Cmp(b.score); c != 0 {
			return c > 0
		}
		if c := a.signal.NetProfit.Cmp(b.signal.NetProfit); c != 0 {
			return c > 0
		}
		return a.signal.SourceID() < b.signal.SourceID()
	})

	ranked := make([]*types.OpportunitySignal, len(kept))
	for i, k := range kept {
		ranked[i] = k.signal
	}

	r.logger.Debug("Ranked signals",
		zap.Int("candidates", len(signals)),
		zap.Int("ranked", len(ranked)))
	return ranked
}

func (r *Ranker) accept(s *types.OpportunitySignal, maxPosition decimal.Decimal) bool {
	if s.Confidence <= r.cfg.MinConfidence {
		return false
	}
	if !s.NetProfit.GreaterThan(r.cfg.MinNetProfit) {
		return false
	}
	if maxPosition.IsPositive() && s.CapitalRequired.GreaterThan(maxPosition) {
		return false
	}
	return true
}

// Score is (net profit / capital) / risk * confidence, or zero when capital
// or risk is zero.
func Score(s *types.OpportunitySignal) decimal.Decimal {
	if s.CapitalRequired.IsZero() || s.RiskScore == 0 {
		return decimal.Zero
	}
	roi := s.NetProfit.DivRound(s.CapitalRequired, scorePlaces)
	return roi.
		DivRound(decimal.NewFromFloat(s.RiskScore), scorePlaces).
		Mul(decimal.NewFromFloat(s.Confidence))
}
