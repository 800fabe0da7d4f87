package strategy

import (
	"errors"

	"paperbot/internal/indicator"
	"paperbot/internal/model"
)

// ErrNoCandles is returned when Compute receives an empty sequence.
var ErrNoCandles = errors.New("strategy: no candles")

// Compute annotates a candle sequence with EMA fast/slow, RSI, and the
// discrete signal. The output has the same length and order as the input.
//
// Per row:
//
//	long: ema_fast > ema_slow AND rsi > buy threshold
//	      AND (volume floor, when configured)
//	exit: ema_fast < ema_slow OR rsi > sell threshold
//
// Exit overrides long when both hold on the same row, so a latched
// long-then-exit is never swallowed. While an indicator window is unfilled
// its value is NaN and every comparison on it is false, leaving the row
// neutral. Compute is pure: identical input yields identical output.
func Compute(candles []model.Candle, p Params) ([]model.AnnotatedCandle, error) {
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}

	emaFast := indicator.NewEMA(p.Fast)
	emaSlow := indicator.NewEMA(p.Slow)
	rsi := indicator.NewRSI(p.RSIPeriod)

	out := make([]model.AnnotatedCandle, len(candles))
	for i, c := range candles {
		emaFast.Update(c.Close)
		emaSlow.Update(c.Close)
		rsi.Update(c.Close)

		fast := emaFast.Value()
		slow := emaSlow.Value()
		momentum := rsi.Value()

		long := fast > slow && momentum > float64(p.RSIBuyThreshold)
		if p.MinVolume > 0 {
			long = long && c.Volume >= p.MinVolume
		}
		exit := fast < slow || momentum > float64(p.RSISellThreshold)

		sig := 0
		if long {
			sig = 1
		}
		if exit {
			sig = -1 // exit wins
		}

		out[i] = model.AnnotatedCandle{
			Candle:  c,
			EMAFast: fast,
			EMASlow: slow,
			RSI:     momentum,
			Signal:  sig,
		}
		if i > 0 {
			out[i].SignalChange = sig - out[i-1].Signal
		}
	}
	return out, nil
}
