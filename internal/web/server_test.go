package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"paperbot/internal/model"
	"paperbot/internal/strategy"
	"paperbot/internal/worker"
)

type stubClient struct {
	candles []model.Candle
}

func (s *stubClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	return s.candles, nil
}

func (s *stubClient) FetchTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	return model.Ticker{Last: 100}, nil
}

func (s *stubClient) FetchFreeBalance(ctx context.Context) (map[string]float64, error) {
	return map[string]float64{"USDT": 10000}, nil
}

func (s *stubClient) CreateMarketBuyOrder(ctx context.Context, symbol string, qty float64) (model.OrderRecord, error) {
	return model.OrderRecord{}, nil
}

func (s *stubClient) CreateMarketSellOrder(ctx context.Context, symbol string, qty float64) (model.OrderRecord, error) {
	return model.OrderRecord{}, nil
}

func (s *stubClient) LoadMarkets(ctx context.Context) (map[string]model.Market, error) {
	return nil, nil
}

type stubGateway struct{}

func (stubGateway) SafeMarketBuy(ctx context.Context, usd float64) (model.OrderRecord, error) {
	return model.OrderRecord{}, nil
}

func (stubGateway) SafeMarketSellAll(ctx context.Context) (model.OrderRecord, error) {
	return model.OrderRecord{}, nil
}

func declineCandles(n int) []model.Candle {
	candles := make([]model.Candle, n)
	price := 200.0
	for i := range candles {
		candles[i] = model.Candle{TS: int64(i) * 60_000, Close: price, Volume: 1}
		price -= 1
	}
	return candles
}

func newTestServer(t *testing.T, totpSecret string) (*Server, *http.ServeMux) {
	t.Helper()
	params := strategy.Defaults()
	params.PollIntervalSeconds = 3600

	buffers := worker.NewBuffers()
	client := &stubClient{candles: declineCandles(120)}
	w := worker.New(client, stubGateway{}, worker.Config{
		Symbol:    "BTC/USDT",
		Timeframe: "1h",
		Params:    params,
	}, buffers, nil)

	srv := &Server{
		Manager:    worker.NewManager(w, nil),
		Worker:     w,
		Buffers:    buffers,
		Client:     client,
		Hub:        NewHub(buffers),
		Params:     params,
		Symbol:     "BTC/USDT",
		Timeframe:  "1h",
		TOTPSecret: totpSecret,
		ReportDir:  t.TempDir(),
	}
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return srv, mux
}

func TestStatusEndpoint(t *testing.T) {
	_, mux := newTestServer(t, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Running    bool   `json:"running"`
		InPosition bool   `json:"in_position"`
		Symbol     string `json:"symbol"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Running {
		t.Error("worker should not be running")
	}
	if body.Symbol != "BTC/USDT" {
		t.Errorf("symbol = %q", body.Symbol)
	}
}

func TestStartStopEndpoints(t *testing.T) {
	srv, mux := newTestServer(t, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/start", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("start = %d: %s", rec.Code, rec.Body)
	}
	if !srv.Manager.Running() {
		t.Fatal("worker should be running after /api/start")
	}

	// second start conflicts
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/start", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("second start = %d, want 409", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stop", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stop = %d: %s", rec.Code, rec.Body)
	}
	if srv.Manager.Running() {
		t.Error("worker should be stopped after /api/stop")
	}

	// stop without a running worker conflicts
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stop", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("second stop = %d, want 409", rec.Code)
	}
}

func TestStartAcceptsParams(t *testing.T) {
	srv, mux := newTestServer(t, "")

	body := `{"params":{"fast":5,"slow":30,"rsi_period":14,"rsi_buy_threshold":40,"rsi_sell_threshold":60,"risk_per_trade":0.02,"initial_cash":5000,"min_order_usd":10,"poll_interval_seconds":3600}}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/start", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("start with params = %d: %s", rec.Code, rec.Body)
	}
	defer srv.Manager.Stop(5 * time.Second)

	if got := srv.Worker.Params(); got.Fast != 5 || got.InitialCash != 5000 {
		t.Errorf("worker params = %+v, want the posted override", got)
	}

	// /api/params reflects the applied override
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/params", nil))
	var p strategy.Params
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Fast != 5 || p.Slow != 30 {
		t.Errorf("params endpoint = %+v, want the posted override", p)
	}
}

func TestStartRejectsBadParams(t *testing.T) {
	srv, mux := newTestServer(t, "")

	body := `{"params":{"fast":50,"slow":10,"rsi_period":14,"rsi_buy_threshold":40,"rsi_sell_threshold":60,"risk_per_trade":0.01,"initial_cash":10000,"min_order_usd":10,"poll_interval_seconds":3600}}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/start", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("start with fast>slow = %d, want 400", rec.Code)
	}
	if srv.Manager.Running() {
		t.Error("worker must not start on invalid params")
	}
}

func TestStartRequiresGET(t *testing.T) {
	_, mux := newTestServer(t, "")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/start", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/start = %d, want 405", rec.Code)
	}
}

func TestTOTPGuard(t *testing.T) {
	secret := "JBSWY3DPEHPK3PXP"
	srv, mux := newTestServer(t, secret)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/start", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("start without code = %d, want 401", rec.Code)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/start", nil)
	req.Header.Set("X-Auth-Code", code)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("start with code = %d: %s", rec.Code, rec.Body)
	}
	defer srv.Manager.Stop(5 * time.Second)

	// read endpoints stay open
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status with guard enabled = %d, want 200", rec.Code)
	}
}

func TestLogsEndpoint(t *testing.T) {
	srv, mux := newTestServer(t, "")
	srv.Buffers.AppendLog("hello")
	srv.Buffers.AppendLog("world")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?limit=1", nil))
	var logs []string
	if err := json.NewDecoder(rec.Body).Decode(&logs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(logs) != 1 || !strings.Contains(logs[0], "world") {
		t.Errorf("logs = %v, want last line only", logs)
	}
}

func TestBacktestEndpoint(t *testing.T) {
	_, mux := newTestServer(t, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/backtest", strings.NewReader(`{"limit":120}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("backtest = %d: %s", rec.Code, rec.Body)
	}

	var result struct {
		FinalEquity float64   `json:"final_equity"`
		EquityCurve []float64 `json:"equity_curve"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Monotone decline never triggers an entry, equity stays at initial cash.
	if result.FinalEquity != strategy.Defaults().InitialCash {
		t.Errorf("final equity = %v, want %v", result.FinalEquity, strategy.Defaults().InitialCash)
	}
	if len(result.EquityCurve) != 120 {
		t.Errorf("equity curve length = %d, want 120", len(result.EquityCurve))
	}
}

func TestBacktestRejectsBadParams(t *testing.T) {
	_, mux := newTestServer(t, "")

	body := `{"params":{"fast":50,"slow":10,"rsi_period":14,"rsi_buy_threshold":40,"rsi_sell_threshold":60,"risk_per_trade":0.01,"initial_cash":10000,"min_order_usd":10,"poll_interval_seconds":10}}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/backtest", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("backtest with fast>slow = %d, want 400", rec.Code)
	}
}

func TestReportEndpoint(t *testing.T) {
	_, mux := newTestServer(t, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/report", strings.NewReader(`{"limit":120}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("report = %d: %s", rec.Code, rec.Body)
	}

	var body struct {
		Files []string `json:"files"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Files) != 3 {
		t.Errorf("files = %v, want 3 entries", body.Files)
	}
}

func TestJournalEndpointWithoutJournal(t *testing.T) {
	_, mux := newTestServer(t, "")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/journal", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("journal = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want empty array", got)
	}
}
