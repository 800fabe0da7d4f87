package indicator

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEMA_SeedAndRecursion(t *testing.T) {
	e := NewEMA(2)

	e.Update(10)
	if e.Ready() {
		t.Fatal("EMA(2) should not be ready after 1 sample")
	}
	if !math.IsNaN(e.Value()) {
		t.Fatalf("expected NaN before ready, got %v", e.Value())
	}

	e.Update(11)
	if !e.Ready() {
		t.Fatal("EMA(2) should be ready after 2 samples")
	}
	// SMA seed over first 2 samples
	if !almostEqual(e.Value(), 10.5) {
		t.Fatalf("expected seed 10.5, got %v", e.Value())
	}

	e.Update(12)
	// alpha = 2/3: 12*2/3 + 10.5*1/3 = 11.5
	if !almostEqual(e.Value(), 11.5) {
		t.Fatalf("expected 11.5, got %v", e.Value())
	}
}

func TestEMA_ConstantSeries(t *testing.T) {
	e := NewEMA(5)
	for i := 0; i < 50; i++ {
		e.Update(42.0)
	}
	if !almostEqual(e.Value(), 42.0) {
		t.Fatalf("constant series: expected 42.0, got %v", e.Value())
	}
}

func TestRSI_ReadyTiming(t *testing.T) {
	r := NewRSI(2)
	r.Update(10)
	r.Update(11)
	if r.Ready() {
		t.Fatal("RSI(2) needs 3 samples, ready too early")
	}
	if !math.IsNaN(r.Value()) {
		t.Fatalf("expected NaN before ready, got %v", r.Value())
	}
	r.Update(12)
	if !r.Ready() {
		t.Fatal("RSI(2) should be ready after 3 samples")
	}
}

func TestRSI_AllGains(t *testing.T) {
	r := NewRSI(3)
	for i := 0; i < 10; i++ {
		r.Update(float64(100 + i))
	}
	if !almostEqual(r.Value(), 100.0) {
		t.Fatalf("all gains: expected RSI=100, got %v", r.Value())
	}
}

func TestRSI_AllLosses(t *testing.T) {
	r := NewRSI(3)
	for i := 0; i < 10; i++ {
		r.Update(float64(100 - i))
	}
	if !almostEqual(r.Value(), 0.0) {
		t.Fatalf("all losses: expected RSI=0, got %v", r.Value())
	}
}

func TestRSI_WilderSmoothing(t *testing.T) {
	// period 2, closes 10, 11, 10, 11: deltas +1, -1, +1
	r := NewRSI(2)
	r.Update(10)
	r.Update(11)
	r.Update(10)
	// seed: avgGain = 0.5, avgLoss = 0.5 -> RSI 50
	if !almostEqual(r.Value(), 50.0) {
		t.Fatalf("expected RSI=50 after seed, got %v", r.Value())
	}

	r.Update(11)
	// Wilder: avgGain = (0.5*1 + 1)/2 = 0.75, avgLoss = (0.5*1 + 0)/2 = 0.25
	// RS = 3 -> RSI = 75
	if !almostEqual(r.Value(), 75.0) {
		t.Fatalf("expected RSI=75, got %v", r.Value())
	}
}

func TestReset(t *testing.T) {
	e := NewEMA(2)
	e.Update(10)
	e.Update(20)
	e.Reset()
	if e.Ready() {
		t.Fatal("EMA should not be ready after Reset")
	}

	r := NewRSI(2)
	for i := 0; i < 5; i++ {
		r.Update(float64(i))
	}
	r.Reset()
	if r.Ready() {
		t.Fatal("RSI should not be ready after Reset")
	}
}
