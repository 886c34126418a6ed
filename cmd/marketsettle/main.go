package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MarketSettle/internal/config"
	"MarketSettle/internal/engine"
	"MarketSettle/internal/event"
	"MarketSettle/internal/ledger"
	"MarketSettle/internal/observability"
	"MarketSettle/internal/publish"
	"MarketSettle/internal/query"
	"MarketSettle/internal/server"
	"MarketSettle/internal/store"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := observability.NewLogger("main")
	logger.Info().Msg("marketsettle starting")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("postgres ping")
	}
	logger.Info().Msg("postgres connected")

	// --- Migrations ---
	migrator := store.NewMigrator(db, cfg.MigrationsDir, logger)
	if err := migrator.Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	records := store.NewPostgres(db)

	// Resume event sequencing after the last logged event.
	startSeq, err := records.LastEventSequence(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("read event log head")
	}

	// --- NATS ---
	nc, js, err := publish.ConnectNATS(cfg.NATSURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	logger.Info().Msg("nats connected")

	if err := publish.EnsureStream(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure outbound stream")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Ledger ---
	escrow := ledger.NewEscrowTracker()

	// Mirror executed transfers into the durable journal. The observer runs
	// under the tracker lock, so the write is handed to a worker.
	transferChan := make(chan ledger.Journal, 1024)
	escrow.SetJournalObserver(func(j ledger.Journal) {
		select {
		case transferChan <- j:
		default:
			logger.Warn().Msg("transfer journal channel full, entry dropped from durable mirror")
		}
	})

	// --- Engine + outbound events ---
	eventChan := make(chan event.Envelope, cfg.EventBufferSize)
	eng := engine.New(records, escrow, event.NewChannelEmitter(eventChan), engine.Config{
		MinBet:              cfg.MinBet,
		MinInitialLiquidity: cfg.MinInitialLiquidity,
		Admin:               cfg.AdminID,
	}, metrics, logger)
	eng.SetStartSequence(startSeq)

	publisher := publish.New(js, eventChan, records, metrics, logger)

	queryService := query.NewService(records, records)
	httpServer := server.New(eng, queryService, escrow, healthChecker, metrics, logger)

	// --- Goroutines ---
	errChan := make(chan error, 4)

	// The publisher and the journal worker outlive ctx: they stop when their
	// input channel closes during shutdown, after the HTTP server drained.
	pubDone := make(chan error, 1)
	go func() {
		pubDone <- publisher.Run(context.Background())
	}()

	journalDone := make(chan struct{})
	go func() {
		defer close(journalDone)
		for j := range transferChan {
			rec := store.TransferRecord{
				FromAccount: j.From.AccountPath(),
				ToAccount:   j.To.AccountPath(),
				Amount:      j.Amount,
				Reference:   j.Reference,
				Timestamp:   j.Timestamp,
			}
			if err := records.AppendTransfer(context.Background(), rec); err != nil {
				logger.Error().Err(err).Msg("append transfer journal")
			}
		}
	}()

	httpDone := make(chan error, 1)
	go func() {
		httpDone <- httpServer.Run(ctx, cfg.HTTPAddr)
	}()

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	healthChecker.SetReady(true)
	logger.Info().
		Int64("start_sequence", startSeq).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("marketsettle ready")

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	case err := <-httpDone:
		logger.Error().Err(err).Msg("http server exited, shutting down")
	case err := <-pubDone:
		logger.Error().Err(err).Msg("publisher exited, shutting down")
	}

	healthChecker.SetReady(false)
	cancel()

	// Drain in order: in-flight requests finish, then the publisher flushes
	// remaining events, then the journal worker flushes transfers.
	select {
	case <-httpDone:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("http server drain timed out")
	}

	close(eventChan)
	select {
	case <-pubDone:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("publisher drain timed out")
	}

	close(transferChan)
	select {
	case <-journalDone:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("journal worker drain timed out")
	}

	logger.Info().Msg("marketsettle shutdown complete")
}
