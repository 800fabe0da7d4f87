package model

// TradeSide is the direction of a trade.
type TradeSide string

const (
	TradeBuy  TradeSide = "buy"
	TradeSell TradeSide = "sell"
)

// Trade is one executed (or simulated) trade. Backtest trades carry Index
// into the candle sequence; live trades carry TS and the raw exchange order.
type Trade struct {
	Side  TradeSide    `json:"type"`
	Price float64      `json:"price"`
	Qty   float64      `json:"qty"`
	Index int          `json:"index"`
	TS    int64        `json:"ts,omitempty"`
	Order *OrderRecord `json:"order,omitempty"`
}

// EquityPoint is one sample of total account value in quote currency.
type EquityPoint struct {
	TS     int64   `json:"ts"`
	Equity float64 `json:"equity"`
}

// OrderRecord is the exchange's view of a submitted order.
type OrderRecord struct {
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Status string  `json:"status"`
	Qty    float64 `json:"qty"`
	Filled float64 `json:"filled"`
	// Price is the average fill price when the exchange reports one, else 0.
	Price float64 `json:"price"`
}
