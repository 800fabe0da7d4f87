// Package report writes backtest artifacts: trade and equity CSVs plus an
// equity curve chart.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"paperbot/internal/model"
)

// SaveTradesCSV writes trades with a header row.
func SaveTradesCSV(path string, trades []model.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"type", "price", "qty", "index"}); err != nil {
		return err
	}
	for _, t := range trades {
		record := []string{
			string(t.Side),
			strconv.FormatFloat(t.Price, 'f', -1, 64),
			strconv.FormatFloat(t.Qty, 'f', -1, 64),
			strconv.Itoa(t.Index),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// SaveEquityCSV writes the per-candle equity curve with a header row.
func SaveEquityCSV(path string, equity []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"equity"}); err != nil {
		return err
	}
	for _, v := range equity {
		if err := w.Write([]string{strconv.FormatFloat(v, 'f', -1, 64)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// PlotEquity renders the equity curve to an image file. The format follows
// the path extension (.png, .svg, .pdf).
func PlotEquity(path string, equity []float64) error {
	if len(equity) == 0 {
		return fmt.Errorf("empty equity curve")
	}

	p := plot.New()
	p.Title.Text = "Equity curve"
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "Equity"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(equity))
	for i, v := range equity {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("build line: %w", err)
	}
	p.Add(line)

	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
