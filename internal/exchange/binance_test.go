package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:    "test-key",
		APISecret: "test-secret",
		BaseURL:   srv.URL,
	})
}

func TestFetchOHLCV(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("path = %q, want /api/v3/klines", r.URL.Path)
		}
		q := r.URL.Query()
		if got := q.Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol = %q, want BTCUSDT", got)
		}
		if got := q.Get("interval"); got != "1h" {
			t.Errorf("interval = %q, want 1h", got)
		}
		if got := q.Get("limit"); got != "2" {
			t.Errorf("limit = %q, want 2", got)
		}
		w.Write([]byte(`[
			[1700000000000,"100.0","110.0","90.0","105.0","12.5",1700003599999,"0","0","0","0","0"],
			[1700003600000,"105.0","120.0","104.0","118.0","8.0",1700007199999,"0","0","0","0","0"]
		]`))
	})

	candles, err := c.FetchOHLCV(context.Background(), "BTC/USDT", "1h", 2)
	if err != nil {
		t.Fatalf("FetchOHLCV: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("len(candles) = %d, want 2", len(candles))
	}
	first := candles[0]
	if first.TS != 1700000000000 {
		t.Errorf("TS = %d, want 1700000000000", first.TS)
	}
	if first.Open != 100 || first.High != 110 || first.Low != 90 || first.Close != 105 {
		t.Errorf("OHLC = %v/%v/%v/%v", first.Open, first.High, first.Low, first.Close)
	}
	if first.Volume != 12.5 {
		t.Errorf("Volume = %v, want 12.5", first.Volume)
	}
	if candles[1].Close != 118 {
		t.Errorf("second close = %v, want 118", candles[1].Close)
	}
}

func TestFetchTicker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/24hr" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","lastPrice":"50123.45","prevClosePrice":"49800.00"}`))
	})

	tk, err := c.FetchTicker(context.Background(), "BTC/USDT")
	if err != nil {
		t.Fatalf("FetchTicker: %v", err)
	}
	if tk.Symbol != "BTC/USDT" {
		t.Errorf("Symbol = %q, want BTC/USDT", tk.Symbol)
	}
	if tk.Last != 50123.45 {
		t.Errorf("Last = %v, want 50123.45", tk.Last)
	}
	if tk.Close != 49800 {
		t.Errorf("Close = %v, want 49800", tk.Close)
	}
}

func TestFetchFreeBalance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/account" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("X-MBX-APIKEY"); got != "test-key" {
			t.Errorf("X-MBX-APIKEY = %q, want test-key", got)
		}
		q := r.URL.Query()
		if q.Get("signature") == "" {
			t.Error("missing signature")
		}
		if q.Get("timestamp") == "" {
			t.Error("missing timestamp")
		}
		w.Write([]byte(`{"balances":[
			{"asset":"BTC","free":"0.5","locked":"0.1"},
			{"asset":"USDT","free":"1200.25","locked":"0"}
		]}`))
	})

	bal, err := c.FetchFreeBalance(context.Background())
	if err != nil {
		t.Fatalf("FetchFreeBalance: %v", err)
	}
	if bal["BTC"] != 0.5 {
		t.Errorf("BTC = %v, want 0.5", bal["BTC"])
	}
	if bal["USDT"] != 1200.25 {
		t.Errorf("USDT = %v, want 1200.25", bal["USDT"])
	}
}

func TestFetchFreeBalanceRequiresCredentials(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0"})
	if _, err := c.FetchFreeBalance(context.Background()); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestCreateMarketBuyOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.URL.Path != "/api/v3/order" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if got := r.PostForm.Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol = %q", got)
		}
		if got := r.PostForm.Get("side"); got != "BUY" {
			t.Errorf("side = %q", got)
		}
		if got := r.PostForm.Get("type"); got != "MARKET" {
			t.Errorf("type = %q", got)
		}
		if got := r.PostForm.Get("quantity"); got != "0.002" {
			t.Errorf("quantity = %q, want 0.002", got)
		}
		if r.PostForm.Get("signature") == "" {
			t.Error("missing signature")
		}
		w.Write([]byte(`{
			"orderId": 12345,
			"status": "FILLED",
			"origQty": "0.002",
			"executedQty": "0.002",
			"cummulativeQuoteQty": "100.00"
		}`))
	})

	rec, err := c.CreateMarketBuyOrder(context.Background(), "BTC/USDT", 0.002)
	if err != nil {
		t.Fatalf("CreateMarketBuyOrder: %v", err)
	}
	if rec.ID != "12345" {
		t.Errorf("ID = %q, want 12345", rec.ID)
	}
	if rec.Side != "buy" {
		t.Errorf("Side = %q, want buy", rec.Side)
	}
	if rec.Status != "FILLED" {
		t.Errorf("Status = %q, want FILLED", rec.Status)
	}
	if rec.Filled != 0.002 {
		t.Errorf("Filled = %v, want 0.002", rec.Filled)
	}
	if rec.Price != 50000 {
		t.Errorf("Price = %v, want 50000", rec.Price)
	}
}

func TestCreateMarketSellOrderError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	})

	if _, err := c.CreateMarketSellOrder(context.Background(), "BTC/USDT", 1); err == nil {
		t.Fatal("expected error on HTTP 400")
	}
}

func TestLoadMarketsCaches(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","baseAsset":"BTC","quoteAsset":"USDT","filters":[
				{"filterType":"PRICE_FILTER","tickSize":"0.01"},
				{"filterType":"LOT_SIZE","stepSize":"0.00001"}
			]},
			{"symbol":"ETHUSDT","baseAsset":"ETH","quoteAsset":"USDT","filters":[
				{"filterType":"LOT_SIZE","stepSize":"0.0001"}
			]}
		]}`))
	})

	markets, err := c.LoadMarkets(context.Background())
	if err != nil {
		t.Fatalf("LoadMarkets: %v", err)
	}
	btc, ok := markets["BTC/USDT"]
	if !ok {
		t.Fatal("missing BTC/USDT")
	}
	if btc.Base != "BTC" || btc.Quote != "USDT" {
		t.Errorf("Base/Quote = %q/%q", btc.Base, btc.Quote)
	}
	if btc.StepSize != 0.00001 {
		t.Errorf("StepSize = %v, want 0.00001", btc.StepSize)
	}
	if _, ok := markets["ETH/USDT"]; !ok {
		t.Error("missing ETH/USDT")
	}

	if _, err := c.LoadMarkets(context.Background()); err != nil {
		t.Fatalf("second LoadMarkets: %v", err)
	}
	if calls != 1 {
		t.Errorf("exchangeInfo calls = %d, want 1 (cached)", calls)
	}
}

func TestSign(t *testing.T) {
	// Reference vector from the Binance API docs.
	got := sign("symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559",
		"NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j")
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"
	if got != want {
		t.Errorf("sign() = %q, want %q", got, want)
	}
}

func TestWireSymbol(t *testing.T) {
	if got := wireSymbol("BTC/USDT"); got != "BTCUSDT" {
		t.Errorf("wireSymbol = %q, want BTCUSDT", got)
	}
	if got := wireSymbol("ETHBTC"); got != "ETHBTC" {
		t.Errorf("wireSymbol = %q, want ETHBTC", got)
	}
}
