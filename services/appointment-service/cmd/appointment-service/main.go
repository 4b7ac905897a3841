package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/garageboard/garageboard/libs/config"
	"github.com/garageboard/garageboard/libs/db"
	"github.com/garageboard/garageboard/libs/httpx"
	"github.com/garageboard/garageboard/libs/kafkax"
	otelx "github.com/garageboard/garageboard/libs/otel"
	"github.com/garageboard/garageboard/libs/runtime"
	"github.com/garageboard/garageboard/services/appointment-service/internal/appointments"
	"github.com/garageboard/garageboard/services/appointment-service/internal/board"
	"github.com/garageboard/garageboard/services/appointment-service/internal/handlers"
	"github.com/garageboard/garageboard/services/appointment-service/internal/idempotency"
	"github.com/garageboard/garageboard/services/appointment-service/internal/migrate"
	"github.com/garageboard/garageboard/services/appointment-service/internal/outbox"
	"github.com/garageboard/garageboard/services/appointment-service/internal/storage"
	"github.com/garageboard/garageboard/services/appointment-service/internal/tenant"
)

func main() {
	service := config.String("SERVICE_NAME", "appointment-service")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if err := migrate.Migrate(ctx, pool); err != nil {
		logger.Error("migrations failed", "err", err)
		panic(err)
	}

	outboxRepo := outbox.NewRepository()
	idemTTL := config.Duration("IDEMPOTENCY_TTL", 24*time.Hour)
	repo := storage.NewRepository(pool, outboxRepo, idemTTL)
	svc := appointments.NewService(repo, logger)
	reader := board.NewReader(pool)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	reaper := idempotency.NewReaper(pool, logger, idempotency.ReaperConfig{
		PollEvery: config.Duration("IDEMPOTENCY_REAP_EVERY", time.Minute),
		BatchSize: config.Int("IDEMPOTENCY_REAP_BATCH", 500),
	})
	go reaper.Run(ctx)

	apptHandler := handlers.NewAppointmentHandler(svc, logger)
	boardHandler := handlers.NewBoardHandler(reader, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("POST /api/v1/appointments", tenant.Require(http.HandlerFunc(apptHandler.Create)))
	mux.Handle("POST /api/v1/appointments/{id}/move", tenant.Require(http.HandlerFunc(apptHandler.Move)))
	mux.Handle("GET /api/v1/appointments/board", tenant.Require(http.HandlerFunc(boardHandler.Board)))
	mux.Handle("GET /api/v1/dashboard/stats", tenant.Require(http.HandlerFunc(boardHandler.Stats)))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "appointment")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
