// cmd/livebot runs the live paper trading bot: the polling worker, the
// control surface API with its WebSocket feed, and the metrics endpoint.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"paperbot/config"
	"paperbot/internal/exchange"
	"paperbot/internal/execution"
	"paperbot/internal/logger"
	"paperbot/internal/metrics"
	"paperbot/internal/model"
	"paperbot/internal/notification"
	redisstore "paperbot/internal/store/redis"
	"paperbot/internal/strategy"
	"paperbot/internal/web"
	"paperbot/internal/worker"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[livebot] starting...")

	cfg := config.Load()
	logger.Init("livebot", logger.ParseLevel(cfg.LogLevel))

	params := strategy.Defaults()
	if cfg.ParamsFile != "" {
		var err error
		params, err = strategy.LoadFile(cfg.ParamsFile)
		if err != nil {
			log.Fatalf("[livebot] params: %v", err)
		}
		log.Printf("[livebot] loaded params from %s", cfg.ParamsFile)
	}

	client := exchange.New(exchange.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.UseTestnet,
	})
	gateway := execution.NewSafeGateway(client, cfg.Symbol, params.MinOrderUSD)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Exchange connectivity check ----
	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	probeCtx, probeCancel := context.WithTimeout(ctx, 10*time.Second)
	if _, err := client.FetchTicker(probeCtx, cfg.Symbol); err != nil {
		log.Printf("[livebot] WARNING: exchange probe failed: %v", err)
	} else {
		health.SetExchangeOK(true)
		log.Printf("[livebot] exchange reachable (testnet=%v)", cfg.UseTestnet)
	}
	probeCancel()

	// ---- Trade journal ----
	var journal *execution.Journal
	if cfg.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			log.Fatalf("[livebot] journal dir: %v", err)
		}
		var err error
		journal, err = execution.NewJournal(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("[livebot] journal: %v", err)
		}
		defer journal.Close()
	}

	// ---- Redis event mirror (optional) ----
	var publisher *redisstore.Publisher
	if cfg.RedisAddr != "" {
		var err error
		publisher, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}, cfg.Symbol)
		if err != nil {
			log.Printf("[livebot] WARNING: redis mirror disabled: %v", err)
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	// ---- Notifications ----
	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.WebhookURL != "" {
		notifier = notification.NewWebhookNotifier(cfg.WebhookURL)
		log.Printf("[livebot] trade alerts via webhook")
	}

	// ---- Worker ----
	buffers := worker.NewBuffers()
	w := worker.New(client, gateway, worker.Config{
		Symbol:    cfg.Symbol,
		Timeframe: cfg.Timeframe,
		Params:    params,
	}, buffers, m)

	w.OnTrade = func(trade model.Trade) {
		if journal != nil {
			start := time.Now()
			if err := journal.RecordTrade(cfg.Symbol, "live", trade); err != nil {
				log.Printf("[livebot] journal write: %v", err)
			}
			m.JournalWriteDur.Observe(time.Since(start).Seconds())
		}
		if publisher != nil {
			publisher.PublishTrade(ctx, trade)
		}
		alertCtx, alertCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := notifier.Send(alertCtx, notification.TradeAlert(cfg.Symbol, trade)); err != nil {
			log.Printf("[livebot] notify: %v", err)
		}
		alertCancel()
	}
	w.OnEquity = func(point model.EquityPoint) {
		if publisher != nil {
			publisher.PublishEquity(ctx, point)
		}
	}
	w.OnTickError = func(err error) {
		alertCtx, alertCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := notifier.Send(alertCtx, notification.TickErrorAlert(cfg.Symbol, err)); err != nil {
			log.Printf("[livebot] notify: %v", err)
		}
		alertCancel()
	}

	mgr := worker.NewManager(w, m)

	// ---- Metrics and health server ----
	metricsServer := metrics.NewServer(cfg.MetricsAddr, health)
	metricsServer.Start()
	var (
		probeRdb *goredis.Client
		probeDB  *sql.DB
	)
	if publisher != nil {
		probeRdb = publisher.Client()
	}
	if journal != nil {
		probeDB = journal.DB()
	}
	if probeRdb != nil || probeDB != nil {
		health.StartLivenessChecker(ctx, probeRdb, probeDB, 30*time.Second)
	}

	// ---- Control surface ----
	hub := web.NewHub(buffers)
	go hub.Run(ctx)

	srv := &web.Server{
		Manager:    mgr,
		Worker:     w,
		Buffers:    buffers,
		Client:     client,
		Journal:    journal,
		Metrics:    m,
		Hub:        hub,
		Params:     params,
		Symbol:     cfg.Symbol,
		Timeframe:  cfg.Timeframe,
		TOTPSecret: cfg.DashboardTOTPSecret,
		ReportDir:  cfg.ReportDir,
	}
	if cfg.ReportDir != "" {
		os.MkdirAll(cfg.ReportDir, 0o755)
	}
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Printf("[livebot] control surface listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[livebot] http server: %v", err)
		}
	}()

	// ---- Start trading ----
	if err := mgr.Start(ctx); err != nil {
		log.Fatalf("[livebot] start worker: %v", err)
	}
	health.SetWorkerRunning(true)
	log.Printf("[livebot] worker running: %s %s poll=%s testnet=%v",
		cfg.Symbol, cfg.Timeframe, params.PollInterval(), cfg.UseTestnet)

	// ---- Wait for shutdown signal ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[livebot] shutting down...")

	if err := mgr.Stop(15 * time.Second); err != nil && err != worker.ErrNotRunning {
		log.Printf("[livebot] worker stop: %v", err)
	}
	health.SetWorkerRunning(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	httpServer.Shutdown(shutdownCtx)
	metricsServer.Stop(shutdownCtx)
	shutdownCancel()

	log.Println("[livebot] bye")
}
