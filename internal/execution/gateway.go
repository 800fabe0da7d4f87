// Package execution wraps the exchange client with order safety checks:
// minimum notional enforcement and lot-step quantity rounding. Orders that
// fail a check are rejected with a sentinel error before touching the
// exchange.
package execution

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	"paperbot/internal/model"
)

// SafeGateway validates and rounds orders before forwarding them to the
// exchange. It caches market metadata from LoadMarkets on first use.
type SafeGateway struct {
	client      model.ExchangeClient
	symbol      string
	base        string
	quote       string
	minOrderUSD float64

	mu      sync.Mutex
	markets map[string]model.Market
}

// NewSafeGateway builds a gateway for one symbol in BASE/QUOTE form.
func NewSafeGateway(client model.ExchangeClient, symbol string, minOrderUSD float64) *SafeGateway {
	base, quote := SplitSymbol(symbol)
	return &SafeGateway{
		client:      client,
		symbol:      symbol,
		base:        base,
		quote:       quote,
		minOrderUSD: minOrderUSD,
	}
}

// SplitSymbol splits "BTC/USDT" into base and quote assets.
func SplitSymbol(symbol string) (base, quote string) {
	parts := strings.SplitN(symbol, "/", 2)
	base = parts[0]
	if len(parts) == 2 {
		quote = parts[1]
	}
	return base, quote
}

// BaseAsset returns the base asset of the gateway's symbol.
func (g *SafeGateway) BaseAsset() string { return g.base }

// QuoteAsset returns the quote asset of the gateway's symbol.
func (g *SafeGateway) QuoteAsset() string { return g.quote }

// RoundToStep floors qty to the market's lot step. A step of zero leaves
// qty unchanged.
func RoundToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	precision := 0
	if step < 1 {
		precision = int(math.Round(-math.Log10(step)))
	}
	factor := math.Pow(10, float64(precision))
	return math.Floor(qty*factor) / factor
}

// stepFor returns the lot step for the gateway's symbol, fetching market
// metadata on first use. Missing metadata yields step 0 (no rounding).
func (g *SafeGateway) stepFor(ctx context.Context) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.markets == nil {
		markets, err := g.client.LoadMarkets(ctx)
		if err != nil {
			log.Printf("[gateway] load markets: %v (skipping step rounding)", err)
			return 0
		}
		g.markets = markets
	}
	return g.markets[g.symbol].StepSize
}

// SafeMarketBuy spends usdAmount of quote currency on a market buy. The
// quantity is derived from the last traded price and floored to the lot
// step. Returns a sentinel error when a safety check fails.
func (g *SafeGateway) SafeMarketBuy(ctx context.Context, usdAmount float64) (model.OrderRecord, error) {
	if usdAmount < g.minOrderUSD {
		return model.OrderRecord{}, fmt.Errorf("%w: %.2f < %.2f %s",
			ErrOrderTooSmall, usdAmount, g.minOrderUSD, g.quote)
	}

	ticker, err := g.client.FetchTicker(ctx, g.symbol)
	if err != nil {
		return model.OrderRecord{}, fmt.Errorf("fetch ticker: %w", err)
	}
	price := ticker.Last
	if price <= 0 {
		price = ticker.Close
	}
	if price <= 0 {
		return model.OrderRecord{}, ErrPriceUnavailable
	}

	qty := RoundToStep(usdAmount/price, g.stepFor(ctx))
	if qty <= 0 {
		return model.OrderRecord{}, ErrQtyZeroAfterRounding
	}

	order, err := g.client.CreateMarketBuyOrder(ctx, g.symbol, qty)
	if err != nil {
		return model.OrderRecord{}, fmt.Errorf("market buy %s: %w", g.symbol, err)
	}
	log.Printf("[gateway] market buy %s qty=%v price~%v id=%s", g.symbol, qty, price, order.ID)
	return order, nil
}

// SafeMarketSellAll sells the entire free base balance, floored to the lot
// step.
func (g *SafeGateway) SafeMarketSellAll(ctx context.Context) (model.OrderRecord, error) {
	balances, err := g.client.FetchFreeBalance(ctx)
	if err != nil {
		return model.OrderRecord{}, fmt.Errorf("fetch balance: %w", err)
	}

	qty := RoundToStep(balances[g.base], g.stepFor(ctx))
	if qty <= 0 {
		return model.OrderRecord{}, fmt.Errorf("%w: %s", ErrNoBaseAsset, g.base)
	}

	order, err := g.client.CreateMarketSellOrder(ctx, g.symbol, qty)
	if err != nil {
		return model.OrderRecord{}, fmt.Errorf("market sell %s: %w", g.symbol, err)
	}
	log.Printf("[gateway] market sell %s qty=%v id=%s", g.symbol, qty, order.ID)
	return order, nil
}
