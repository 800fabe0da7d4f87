// Package worker runs the live paper trading loop: poll candles, recompute
// signals, and act on signal edges through the order gateway. The worker
// holds a two-state position machine (flat or long) that only advances when
// an order succeeds.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"paperbot/internal/logger"
	"paperbot/internal/metrics"
	"paperbot/internal/model"
	"paperbot/internal/strategy"
)

// Gateway places validated market orders. Satisfied by execution.SafeGateway.
type Gateway interface {
	SafeMarketBuy(ctx context.Context, usdAmount float64) (model.OrderRecord, error)
	SafeMarketSellAll(ctx context.Context) (model.OrderRecord, error)
}

// Config configures one live worker.
type Config struct {
	Symbol    string
	Timeframe string
	Params    strategy.Params
	// FetchLimit is the number of candles fetched per poll; defaults to 200.
	FetchLimit int
}

// Worker polls the exchange and trades signal edges.
type Worker struct {
	client  model.ExchangeClient
	gateway Gateway
	cfg     Config
	buffers *Buffers
	metrics *metrics.Metrics
	base    string
	quote   string

	// OnTrade and OnEquity, when set, run after each executed trade or
	// equity sample. The journal, the event mirror and notifications hang
	// off these. OnTickError runs for every failed tick.
	OnTrade     func(model.Trade)
	OnEquity    func(model.EquityPoint)
	OnTickError func(error)

	compute func([]model.Candle, strategy.Params) ([]model.AnnotatedCandle, error)

	mu         sync.Mutex
	inPosition bool
}

// New creates a worker. Buffers may be shared with the control surface.
func New(client model.ExchangeClient, gateway Gateway, cfg Config, buffers *Buffers, m *metrics.Metrics) *Worker {
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 200
	}
	base, quote := splitSymbol(cfg.Symbol)
	return &Worker{
		client:  client,
		gateway: gateway,
		cfg:     cfg,
		buffers: buffers,
		metrics: m,
		base:    base,
		quote:   quote,
		compute: strategy.Compute,
	}
}

func splitSymbol(symbol string) (string, string) {
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' {
			return symbol[:i], symbol[i+1:]
		}
	}
	return symbol, ""
}

// InPosition reports whether the worker currently holds the base asset.
func (w *Worker) InPosition() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inPosition
}

// Params returns a snapshot of the current strategy parameters.
func (w *Worker) Params() strategy.Params {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg.Params
}

// SetParams replaces the strategy parameters used from the next tick on.
// Callers should apply it while the worker is stopped.
func (w *Worker) SetParams(p strategy.Params) {
	w.mu.Lock()
	w.cfg.Params = p
	w.mu.Unlock()
}

// Run polls until ctx is cancelled. Tick errors are logged and the loop
// continues; only cancellation stops it.
func (w *Worker) Run(ctx context.Context) {
	interval := w.Params().PollInterval()
	w.buffers.AppendLog("worker started: %s %s every %s", w.cfg.Symbol, w.cfg.Timeframe, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.Tick(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.buffers.AppendLog("error: %v", err)
			log.Printf("[worker] tick error: %v", err)
			if w.metrics != nil {
				w.metrics.TickErrors.Inc()
			}
			if w.OnTickError != nil {
				w.OnTickError(err)
			}
		}
		select {
		case <-ctx.Done():
			w.buffers.AppendLog("worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one polling iteration: fetch, compute, act on the latest edge,
// then sample equity.
func (w *Worker) Tick(ctx context.Context) error {
	started := time.Now()
	if w.metrics != nil {
		w.metrics.TicksTotal.Inc()
		defer func() {
			w.metrics.TickDur.Observe(time.Since(started).Seconds())
		}()
	}

	p := w.Params()

	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	candles, err := w.client.FetchOHLCV(fetchCtx, w.cfg.Symbol, w.cfg.Timeframe, w.cfg.FetchLimit)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	if len(candles) < p.MinCandles() {
		w.buffers.AppendLog("only %d candles, need %d; waiting", len(candles), p.MinCandles())
		return nil
	}

	ann, err := w.compute(candles, p)
	if err != nil {
		return fmt.Errorf("compute signals: %w", err)
	}
	if len(ann) < 2 {
		return nil
	}

	prev, last := ann[len(ann)-2], ann[len(ann)-1]
	if w.metrics != nil {
		w.metrics.SignalState.Set(float64(last.Signal))
	}

	// An order failure must not skip the mark-to-market sample; the error
	// still reaches the run loop after equity is recorded.
	orderErr := w.actOnEdge(ctx, p, prev, last)
	if orderErr != nil {
		w.buffers.AppendLog("order error: %v", orderErr)
	}
	if err := w.sampleEquity(ctx, last.Close); err != nil {
		if orderErr != nil {
			return orderErr
		}
		return err
	}
	return orderErr
}

// actOnEdge trades the 0/-1 to 1 edge (enter) and the 0/1 to -1 edge (exit).
// The position flips only after the gateway confirms the order. Each order
// attempt carries a trace ID that ties its log lines together.
func (w *Worker) actOnEdge(ctx context.Context, p strategy.Params, prev, last model.AnnotatedCandle) error {
	w.mu.Lock()
	inPosition := w.inPosition
	w.mu.Unlock()

	switch {
	case !inPosition && prev.Signal <= 0 && last.Signal == 1:
		usd := p.InitialCash * p.RiskPerTrade
		traceID := logger.GenerateTraceID(w.cfg.Symbol, time.Now())
		orderCtx, cancel := context.WithTimeout(logger.WithTraceID(ctx, traceID), 30*time.Second)
		order, err := w.gateway.SafeMarketBuy(orderCtx, usd)
		cancel()
		if err != nil {
			if w.metrics != nil {
				w.metrics.OrderErrors.Inc()
			}
			return fmt.Errorf("buy signal [%s]: %w", traceID, err)
		}
		w.mu.Lock()
		w.inPosition = true
		w.mu.Unlock()
		if w.metrics != nil {
			w.metrics.OrdersTotal.WithLabelValues("buy").Inc()
			w.metrics.PositionQty.Set(orderQty(order))
		}
		w.recordTrade(orderCtx, model.TradeBuy, order, last)

	case inPosition && prev.Signal >= 0 && last.Signal == -1:
		traceID := logger.GenerateTraceID(w.cfg.Symbol, time.Now())
		orderCtx, cancel := context.WithTimeout(logger.WithTraceID(ctx, traceID), 30*time.Second)
		order, err := w.gateway.SafeMarketSellAll(orderCtx)
		cancel()
		if err != nil {
			if w.metrics != nil {
				w.metrics.OrderErrors.Inc()
			}
			return fmt.Errorf("sell signal [%s]: %w", traceID, err)
		}
		w.mu.Lock()
		w.inPosition = false
		w.mu.Unlock()
		if w.metrics != nil {
			w.metrics.OrdersTotal.WithLabelValues("sell").Inc()
			w.metrics.PositionQty.Set(0)
		}
		w.recordTrade(orderCtx, model.TradeSell, order, last)
	}
	return nil
}

func orderQty(order model.OrderRecord) float64 {
	if order.Filled > 0 {
		return order.Filled
	}
	return order.Qty
}

func (w *Worker) recordTrade(ctx context.Context, side model.TradeSide, order model.OrderRecord, last model.AnnotatedCandle) {
	price := order.Price
	if price <= 0 {
		price = last.Close
	}
	qty := orderQty(order)
	o := order
	trade := model.Trade{
		Side:  side,
		Price: price,
		Qty:   qty,
		TS:    last.TS,
		Order: &o,
	}
	w.buffers.AppendTrade(trade)
	if tid := logger.TraceID(ctx); tid != "" {
		w.buffers.AppendLog("%s %v %s @ %v (order %s %s trace %s)", side, qty, w.base, price, order.ID, order.Status, tid)
	} else {
		w.buffers.AppendLog("%s %v %s @ %v (order %s %s)", side, qty, w.base, price, order.ID, order.Status)
	}
	if w.OnTrade != nil {
		w.OnTrade(trade)
	}
}

// sampleEquity values the account as free quote plus free base at the last
// close.
func (w *Worker) sampleEquity(ctx context.Context, lastClose float64) error {
	balCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	balances, err := w.client.FetchFreeBalance(balCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}

	equity := balances[w.quote] + balances[w.base]*lastClose
	point := model.EquityPoint{TS: time.Now().UnixMilli(), Equity: equity}
	w.buffers.AppendEquity(point)
	if w.metrics != nil {
		w.metrics.EquityUSD.Set(equity)
	}
	if w.OnEquity != nil {
		w.OnEquity(point)
	}
	return nil
}
