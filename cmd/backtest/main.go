// cmd/backtest runs the EMA/RSI strategy over historical candles and prints
// a performance summary. Candles come from a CSV file or straight from the
// exchange's public kline endpoint.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=BTC/USDT --timeframe=1h --limit=500
//	go run ./cmd/backtest --csv=candles.csv --params=params.yaml --out=reports
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"paperbot/internal/backtest"
	"paperbot/internal/exchange"
	"paperbot/internal/model"
	"paperbot/internal/report"
	"paperbot/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// Flags
	csvPath := flag.String("csv", "", "Read candles from a CSV file (ts,open,high,low,close,volume) instead of the exchange")
	symbol := flag.String("symbol", "BTC/USDT", "Trading pair in BASE/QUOTE form")
	timeframe := flag.String("timeframe", "1h", "Candle timeframe, e.g. 15m, 1h, 4h")
	limit := flag.Int("limit", 500, "Number of candles to fetch from the exchange")
	paramsPath := flag.String("params", "", "YAML strategy parameter file (defaults apply when empty)")
	outDir := flag.String("out", "", "Write trades.csv, equity.csv and equity.png to this directory")
	testnet := flag.Bool("testnet", true, "Use the exchange sandbox for candle fetches")
	flag.Parse()

	params := strategy.Defaults()
	if *paramsPath != "" {
		var err error
		params, err = strategy.LoadFile(*paramsPath)
		if err != nil {
			log.Fatalf("[backtest] params: %v", err)
		}
	}

	var (
		candles []model.Candle
		err     error
	)
	if *csvPath != "" {
		candles, err = readCandlesCSV(*csvPath)
		if err != nil {
			log.Fatalf("[backtest] read csv: %v", err)
		}
		log.Printf("[backtest] loaded %d candles from %s", len(candles), *csvPath)
	} else {
		client := exchange.New(exchange.Config{Testnet: *testnet})
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		candles, err = client.FetchOHLCV(ctx, *symbol, *timeframe, *limit)
		cancel()
		if err != nil {
			log.Fatalf("[backtest] fetch candles: %v", err)
		}
		log.Printf("[backtest] fetched %d %s candles for %s", len(candles), *timeframe, *symbol)
	}

	result, err := backtest.Run(candles, params)
	if err != nil {
		log.Fatalf("[backtest] run: %v", err)
	}

	ret := 0.0
	if params.InitialCash > 0 {
		ret = (result.FinalEquity - params.InitialCash) / params.InitialCash * 100
	}

	// Print summary
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Candles:        %-19d ║\n", len(candles))
	fmt.Printf("║  Trades:         %-19d ║\n", len(result.Trades))
	fmt.Printf("║  Final equity:   %-19.2f ║\n", result.FinalEquity)
	fmt.Printf("║  Return:         %-18.2f%% ║\n", ret)
	fmt.Printf("║  Max drawdown:   %-18.2f%% ║\n", result.MaxDrawdown*100)
	fmt.Println("╚══════════════════════════════════════╝")

	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			log.Fatalf("[backtest] create out dir: %v", err)
		}
		if err := report.SaveTradesCSV(filepath.Join(*outDir, "trades.csv"), result.Trades); err != nil {
			log.Fatalf("[backtest] write trades: %v", err)
		}
		if err := report.SaveEquityCSV(filepath.Join(*outDir, "equity.csv"), result.EquityCurve); err != nil {
			log.Fatalf("[backtest] write equity: %v", err)
		}
		if err := report.PlotEquity(filepath.Join(*outDir, "equity.png"), result.EquityCurve); err != nil {
			log.Fatalf("[backtest] plot equity: %v", err)
		}
		log.Printf("[backtest] reports written to %s", *outDir)
	}
}

// readCandlesCSV parses ts,open,high,low,close,volume rows. A header row is
// skipped when the first field is not numeric.
func readCandlesCSV(path string) ([]model.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}

	var candles []model.Candle
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("row %d: want 6 fields, got %d", i+1, len(row))
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			if i == 0 {
				continue // header
			}
			return nil, fmt.Errorf("row %d: bad timestamp %q", i+1, row[0])
		}
		var vals [5]float64
		for j := 0; j < 5; j++ {
			v, err := strconv.ParseFloat(row[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad value %q", i+1, row[j+1])
			}
			vals[j] = v
		}
		candles = append(candles, model.Candle{
			TS: ts, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4],
		})
	}
	return candles, nil
}
