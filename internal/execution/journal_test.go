package execution

import (
	"path/filepath"
	"testing"

	"paperbot/internal/model"
)

func TestJournalRecordAndGet(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	defer j.Close()

	trades := []model.Trade{
		{Side: model.TradeBuy, Price: 20000, Qty: 0.005, TS: 1700000000000,
			Order: &model.OrderRecord{ID: "a1", Status: "FILLED"}},
		{Side: model.TradeSell, Price: 21000, Qty: 0.005, TS: 1700003600000,
			Order: &model.OrderRecord{ID: "a2", Status: "FILLED"}},
	}
	for _, tr := range trades {
		if err := j.RecordTrade("BTC/USDT", "live", tr); err != nil {
			t.Fatalf("RecordTrade: %v", err)
		}
	}

	got, err := j.GetTrades(10)
	if err != nil {
		t.Fatalf("GetTrades: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].Side != "sell" || got[0].OrderID != "a2" {
		t.Errorf("first row = %+v, want sell a2", got[0])
	}
	if got[1].Side != "buy" || got[1].Price != 20000 {
		t.Errorf("second row = %+v, want buy @20000", got[1])
	}
	if got[0].Source != "live" {
		t.Errorf("Source = %q, want live", got[0].Source)
	}
}

func TestJournalLimit(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	defer j.Close()

	for i := 0; i < 5; i++ {
		tr := model.Trade{Side: model.TradeBuy, Price: float64(100 + i), Qty: 1}
		if err := j.RecordTrade("ETH/USDT", "backtest", tr); err != nil {
			t.Fatalf("RecordTrade: %v", err)
		}
	}

	got, err := j.GetTrades(3)
	if err != nil {
		t.Fatalf("GetTrades: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Price != 104 {
		t.Errorf("newest price = %v, want 104", got[0].Price)
	}
}
