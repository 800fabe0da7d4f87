// Package redis mirrors live bot events into Redis so external dashboards
// can follow a run without talking to the bot's own API. Each event goes
// out twice: a PUBLISH for live subscribers and a capped RPUSH list for
// late joiners.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"paperbot/internal/model"
)

const (
	tradesChannel = "paperbot:trades"
	equityChannel = "paperbot:equity"

	// List history caps: equity samples arrive every poll, trades rarely.
	tradesMaxLen = 1000
	equityMaxLen = 10000
)

// Config configures the event mirror connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher mirrors trades and equity samples to Redis.
type Publisher struct {
	client *goredis.Client
	symbol string
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg Config, symbol string) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client, symbol: symbol}, nil
}

// PublishTrade mirrors one executed trade.
func (p *Publisher) PublishTrade(ctx context.Context, trade model.Trade) {
	payload, err := json.Marshal(map[string]any{
		"symbol": p.symbol,
		"type":   trade.Side,
		"price":  trade.Price,
		"qty":    trade.Qty,
		"ts":     trade.TS,
	})
	if err != nil {
		return
	}
	p.mirror(ctx, tradesChannel, payload, tradesMaxLen)
}

// PublishEquity mirrors one equity sample.
func (p *Publisher) PublishEquity(ctx context.Context, point model.EquityPoint) {
	payload, err := json.Marshal(map[string]any{
		"symbol": p.symbol,
		"equity": point.Equity,
		"ts":     point.TS,
	})
	if err != nil {
		return
	}
	p.mirror(ctx, equityChannel, payload, equityMaxLen)
}

// mirror publishes for live subscribers and appends to the capped history
// list under the same key. Failures are logged, never propagated: the
// mirror must not disturb the trading loop.
func (p *Publisher) mirror(ctx context.Context, channel string, payload []byte, maxLen int64) {
	opCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := p.client.Publish(opCtx, channel, payload).Err(); err != nil {
		log.Printf("[redis] publish %s: %v", channel, err)
		return
	}
	pipe := p.client.Pipeline()
	pipe.RPush(opCtx, channel, payload)
	pipe.LTrim(opCtx, channel, -maxLen, -1)
	if _, err := pipe.Exec(opCtx); err != nil {
		log.Printf("[redis] history append %s: %v", channel, err)
	}
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
