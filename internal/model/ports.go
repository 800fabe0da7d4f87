package model

import "context"

// The exchange port decouples the worker and order gateway from the
// concrete exchange client so they can be driven by fakes in tests.

// Ticker is the subset of a ticker response the bot needs. Last is preferred;
// Close is the fallback when the exchange omits a last price.
type Ticker struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Close  float64 `json:"close"`
}

// Market holds per-symbol trading metadata.
type Market struct {
	Symbol string  `json:"symbol"`
	Base   string  `json:"base"`
	Quote  string  `json:"quote"`
	// StepSize is the minimum quantity increment, 0 when unknown.
	StepSize float64 `json:"step_size"`
}

// ExchangeClient is the capability set the bot requires from an exchange.
// Symbols are in BASE/QUOTE form ("BTC/USDT").
type ExchangeClient interface {
	// FetchOHLCV returns up to limit candles in chronological order.
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)

	// FetchTicker returns the current ticker for a symbol.
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)

	// FetchFreeBalance returns free (unlocked) balances per asset.
	FetchFreeBalance(ctx context.Context) (map[string]float64, error)

	// CreateMarketBuyOrder submits a market buy for qty of the base asset.
	CreateMarketBuyOrder(ctx context.Context, symbol string, qty float64) (OrderRecord, error)

	// CreateMarketSellOrder submits a market sell for qty of the base asset.
	CreateMarketSellOrder(ctx context.Context, symbol string, qty float64) (OrderRecord, error)

	// LoadMarkets returns trading metadata keyed by BASE/QUOTE symbol.
	LoadMarkets(ctx context.Context) (map[string]Market, error)
}
