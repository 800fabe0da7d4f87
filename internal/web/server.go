package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"paperbot/internal/backtest"
	"paperbot/internal/execution"
	"paperbot/internal/metrics"
	"paperbot/internal/model"
	"paperbot/internal/report"
	"paperbot/internal/strategy"
	"paperbot/internal/worker"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Code")
}

// Server wires the control surface over the live worker and its history.
type Server struct {
	Manager *worker.Manager
	Worker  *worker.Worker
	Buffers *worker.Buffers
	Client  model.ExchangeClient
	Journal *execution.Journal // optional
	Metrics *metrics.Metrics   // optional
	Hub     *Hub

	Params    strategy.Params
	Symbol    string
	Timeframe string

	// TOTPSecret guards the start/stop endpoints when set.
	TOTPSecret string
	// ReportDir is where POST /api/report writes its files.
	ReportDir string
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[web] ws upgrade error: %v", err)
			return
		}
		s.Hub.HandleWSRequest(conn)
	})

	mux.HandleFunc("/api/params", func(w http.ResponseWriter, r *http.Request) {
		if s.Worker != nil {
			writeJSON(w, http.StatusOK, s.Worker.Params())
			return
		}
		writeJSON(w, http.StatusOK, s.Params)
	})

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/equity", s.handleEquity)
	mux.HandleFunc("/api/journal", s.handleJournal)

	mux.HandleFunc("/api/start", RequireTOTP(s.TOTPSecret, s.handleStart))
	mux.HandleFunc("/api/stop", RequireTOTP(s.TOTPSecret, s.handleStop))

	mux.HandleFunc("/api/backtest", s.handleBacktest)
	mux.HandleFunc("/api/report", s.handleReport)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"running":     s.Manager.Running(),
		"in_position": s.Worker.InPosition(),
		"symbol":      s.Symbol,
		"timeframe":   s.Timeframe,
		"ws_clients":  s.Hub.ClientCount(),
		"ts":          time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 5000 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.Buffers.Logs(limit))
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Buffers.Trades())
}

func (s *Server) handleEquity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Buffers.Equity())
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		writeJSON(w, http.StatusOK, []execution.TradeRecord{})
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	trades, err := s.Journal.GetTrades(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if trades == nil {
		trades = []execution.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		SetCORS(w)
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	// Optional parameter override for this run, same body shape as
	// /api/backtest.
	var req struct {
		Params *strategy.Params `json:"params"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Params != nil {
		if err := req.Params.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if s.Manager.Running() {
			writeError(w, http.StatusConflict, "worker already running")
			return
		}
		s.Worker.SetParams(*req.Params)
	}

	if err := s.Manager.Start(context.Background()); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	log.Printf("[web] worker started via API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		SetCORS(w)
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	if err := s.Manager.Stop(10 * time.Second); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	log.Printf("[web] worker stopped via API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

type backtestRequest struct {
	Limit  int              `json:"limit"`
	Params *strategy.Params `json:"params"`
	// Dir overrides the server's report directory (report endpoint only).
	Dir string `json:"dir"`
}

// runBacktest fetches candles and runs the simulation for the API handlers.
func (s *Server) runBacktest(ctx context.Context, req backtestRequest) (*backtest.Result, strategy.Params, error) {
	params := s.Params
	if req.Params != nil {
		params = *req.Params
		if err := params.Validate(); err != nil {
			return nil, params, err
		}
	}
	limit := req.Limit
	if limit <= 0 || limit > 1000 {
		limit = 500
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	candles, err := s.Client.FetchOHLCV(fetchCtx, s.Symbol, s.Timeframe, limit)
	if err != nil {
		return nil, params, err
	}

	result, err := backtest.Run(candles, params)
	if err != nil {
		return nil, params, err
	}
	if s.Metrics != nil {
		s.Metrics.BacktestsTotal.Inc()
	}
	return result, params, nil
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		SetCORS(w)
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req backtestRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	result, _, err := s.runBacktest(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		SetCORS(w)
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req backtestRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	result, _, err := s.runBacktest(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dir := req.Dir
	if dir == "" {
		dir = s.ReportDir
	}
	if dir == "" {
		dir = "."
	}
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")
	plotPath := filepath.Join(dir, "equity.png")

	if err := report.SaveTradesCSV(tradesPath, result.Trades); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := report.SaveEquityCSV(equityPath, result.EquityCurve); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := report.PlotEquity(plotPath, result.EquityCurve); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"final_equity": result.FinalEquity,
		"max_drawdown": result.MaxDrawdown,
		"trades":       len(result.Trades),
		"files":        []string{tradesPath, equityPath, plotPath},
	})
}
