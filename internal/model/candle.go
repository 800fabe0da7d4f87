// Package model defines the shared data types for candles, trades, and the
// exchange port interface used across the bot.
package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLCV bar for a single symbol.
// TS is the bucket open time in Unix milliseconds; sequences are expected to
// be chronological with uniform spacing equal to the timeframe.
type Candle struct {
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Time converts the candle timestamp to time.Time (UTC).
func (c *Candle) Time() time.Time {
	return time.UnixMilli(c.TS).UTC()
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// AnnotatedCandle is a Candle extended with indicator values and the discrete
// trading signal. EMAFast, EMASlow, and RSI are NaN while the corresponding
// indicator window is not yet filled.
type AnnotatedCandle struct {
	Candle

	EMAFast float64
	EMASlow float64
	RSI     float64

	// Signal is the instantaneous regime: 1 long, -1 exit, 0 neutral.
	Signal int

	// SignalChange is Signal[i] - Signal[i-1], 0 at index 0. It is the edge
	// trigger consumed by the backtest simulator.
	SignalChange int
}
