package execution

import (
	"sync"

	"github.com/shopspring/decimal"
)

// recentWindow is how many settled trades the recent PnL covers.
const recentWindow = 24

// TradeRecorder is fed every settled trade, typically a circuit breaker.
type TradeRecorder interface {
	RecordTrade(profitUSD decimal.Decimal, success bool)
}

// Summary is a snapshot of rolling performance.
type Summary struct {
	TotalCapitalUSD decimal.Decimal
	TotalProfitUSD  decimal.Decimal
	RecentPnLUSD    decimal.Decimal
	Submitted       int
	Failed          int
	TradesSettled   int
	Successes       int
	SuccessRate     float64
	ROIPercent      decimal.Decimal
}

// Tracker keeps rolling counters over execution results.
type Tracker struct {
	mu sync.Mutex

	capital   decimal.Decimal
	profit    decimal.Decimal
	recent    []decimal.Decimal
	submitted int
	failed    int
	settled   int
	successes int

	recorder TradeRecorder
}

// NewTracker creates a tracker. recorder may be nil.
func NewTracker(capital decimal.Decimal, recorder TradeRecorder) *Tracker {
	return &Tracker{
		capital:  capital,
		profit:   decimal.Zero,
		recorder: recorder,
	}
}

// Record folds a cycle's results into the counters.
func (t *Tracker) Record(results []Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range results {
		switch r.Status {
		case StatusFailed:
			t.failed++
		case StatusDryRun, StatusPublished:
			t.submitted++
		case StatusSettled:
			t.submitted++
			t.settle(r)
		}
	}
}

func (t *Tracker) settle(r Result) {
	t.settled++
	if r.Success {
		t.successes++
	}
	t.profit = t.profit.Add(r.ProfitUSD)

	t.recent = append(t.recent, r.ProfitUSD)
	if len(t.recent) > recentWindow {
		t.recent = t.recent[len(t.recent)-recentWindow:]
	}

	if t.recorder != nil {
		t.recorder.RecordTrade(r.ProfitUSD, r.Success)
	}
}

// Summary returns the current counters.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{
		TotalCapitalUSD: t.capital,
		TotalProfitUSD:  t.profit,
		RecentPnLUSD:    decimal.Sum(decimal.Zero, t.recent...),
		Submitted:       t.submitted,
		Failed:          t.failed,
		TradesSettled:   t.settled,
		Successes:       t.successes,
		ROIPercent:      decimal.Zero,
	}
	if t.settled > 0 {
		s.SuccessRate = float64(t.successes) / float64(t.settled)
	}
	if t.capital.IsPositive() {
		s.ROIPercent = t.profit.Div(t.capital).Mul(decimal.NewFromInt(100)).Round(4)
	}
	return s
}
