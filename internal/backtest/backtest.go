// Package backtest replays historical candles through the signal generator
// and simulates cash and a single long position against the closes.
package backtest

import (
	"paperbot/internal/model"
	"paperbot/internal/strategy"
)

// Result summarizes one backtest run.
type Result struct {
	FinalEquity float64       `json:"final_equity"`
	EquityCurve []float64     `json:"equity_curve"`
	Trades      []model.Trade `json:"trades"`
	// MaxDrawdown is the worst fractional decline from a running equity
	// maximum; non-positive, 0 when the curve never declines.
	MaxDrawdown float64 `json:"max_drawdown"`
}

// Run computes signals for the candle sequence and simulates them.
// It surfaces any strategy error directly and never performs I/O.
func Run(candles []model.Candle, p strategy.Params) (*Result, error) {
	ann, err := strategy.Compute(candles, p)
	if err != nil {
		return nil, err
	}
	return Simulate(ann, p.InitialCash, p.RiskPerTrade), nil
}

// Simulate walks an annotated sequence once in index order. Entries trigger
// only on a +1 signal edge while flat; a standing long signal without an
// edge never re-enters. Exits liquidate the whole position on a -1 edge.
// Equity (cash + position marked at the row close) is appended every row.
func Simulate(ann []model.AnnotatedCandle, initialCash, riskPerTrade float64) *Result {
	cash := initialCash
	position := 0.0

	res := &Result{
		EquityCurve: make([]float64, 0, len(ann)),
	}

	for i, row := range ann {
		price := row.Close

		switch {
		case row.SignalChange == 1 && position == 0:
			usdToRisk := cash * riskPerTrade
			qty := usdToRisk / price
			position = qty
			cash -= qty * price
			res.Trades = append(res.Trades, model.Trade{
				Side:  model.TradeBuy,
				Price: price,
				Qty:   qty,
				Index: i,
				TS:    row.TS,
			})
		case row.SignalChange == -1 && position > 0:
			cash += position * price
			res.Trades = append(res.Trades, model.Trade{
				Side:  model.TradeSell,
				Price: price,
				Qty:   position,
				Index: i,
				TS:    row.TS,
			})
			position = 0
		}

		res.EquityCurve = append(res.EquityCurve, cash+position*price)
	}

	if n := len(ann); n > 0 {
		res.FinalEquity = cash + position*ann[n-1].Close
	}
	res.MaxDrawdown = maxDrawdown(res.EquityCurve)
	return res
}

// maxDrawdown returns min over i of (equity[i] - runningMax) / runningMax.
func maxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	runningMax := equity[0]
	worst := 0.0
	for _, e := range equity {
		if e > runningMax {
			runningMax = e
		}
		if dd := (e - runningMax) / runningMax; dd < worst {
			worst = dd
		}
	}
	return worst
}
