package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/michaelpento.lv/omniarb/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Message is the JSON payload published for each allocation.
type Message struct {
	CycleID      string    `json:"cycle_id"`
	Rank         int       `json:"rank"`
	Key          string    `json:"key"`
	Kind         string    `json:"kind"`
	SourceID     string    `json:"source_id"`
	AmountUSD    string    `json:"amount_usd"`
	NetProfitUSD string    `json:"net_profit_usd"`
	Confidence   float64   `json:"confidence"`
	RiskScore    float64   `json:"risk_score"`
	TokenPath    []string  `json:"token_path"`
	VenuePath    []string  `json:"venue_path"`
	AmountIn     string    `json:"amount_in"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewMessage describes one allocation for an external executor.
func NewMessage(cycleID string, rank int, alloc types.Allocation) Message {
	s := alloc.Signal
	m := Message{
		CycleID:      cycleID,
		Rank:         rank,
		Key:          fmt.Sprintf("%016x", s.Key),
		Kind:         string(s.Kind),
		SourceID:     s.SourceID(),
		AmountUSD:    alloc.Amount.StringFixed(2),
		NetProfitUSD: s.NetProfit.StringFixed(2),
		Confidence:   s.Confidence,
		RiskScore:    s.RiskScore,
		CreatedAt:    s.CreatedAt,
	}

	switch {
	case s.Route != nil:
		for _, tok := range s.Route.TokenPath {
			m.TokenPath = append(m.TokenPath, tok.Hex())
		}
		m.VenuePath = append(m.VenuePath, s.Route.VenuePath...)
		if s.Route.InitialAmount != nil {
			m.AmountIn = s.Route.InitialAmount.String()
		}
	case s.Opportunity != nil:
		o := s.Opportunity
		m.TokenPath = []string{o.TokenIn.Hex(), o.TokenOut.Hex()}
		m.VenuePath = []string{o.BuyVenue, o.SellVenue}
		if o.AmountIn != nil {
			m.AmountIn = o.AmountIn.String()
		}
	}
	return m
}

// NewRedisClient connects to addr and checks the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return rdb, nil
}

// RedisPublisher publishes allocations on a Redis Pub/Sub channel for an
// external executor.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher creates a publisher on channel.
func NewRedisPublisher(rdb *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{rdb: rdb, channel: channel, logger: logger}
}

// Execute implements Executor. A failed publish is reported on its result and
// does not stop the remaining allocations.
func (p *RedisPublisher) Execute(ctx context.Context, cycleID string, allocations []types.Allocation) ([]Result, error) {
	results := make([]Result, 0, len(allocations))
	var errs []error

	for i, alloc := range allocations {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		r := resultFor(alloc, StatusPublished)
		if err := p.publish(ctx, NewMessage(cycleID, i, alloc)); err != nil {
			r.Status = StatusFailed
			r.Err = err
			errs = append(errs, err)
			p.logger.Warn("Failed to publish allocation",
				append(allocationFields(cycleID, i, alloc), zap.Error(err))...)
		} else {
			p.logger.Debug("Allocation published", allocationFields(cycleID, i, alloc)...)
		}
		results = append(results, r)
	}

	return results, errors.Join(errs...)
}

func (p *RedisPublisher) publish(ctx context.Context, m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode allocation: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", p.channel, err)
	}
	return nil
}

// Close closes the underlying client.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
