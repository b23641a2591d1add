package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/joao-fontenele/brewrules/internal/audit"
	"github.com/joao-fontenele/brewrules/internal/configstore"
	"github.com/joao-fontenele/brewrules/internal/domain"
	"github.com/joao-fontenele/brewrules/internal/loyalty"
	"github.com/joao-fontenele/brewrules/internal/messaging"
	"github.com/joao-fontenele/brewrules/internal/metrics"
	"github.com/joao-fontenele/brewrules/internal/rules"
	"github.com/joao-fontenele/brewrules/internal/telemetry"
)

const (
	serviceName    = "rules"
	serviceVersion = "0.1.0"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	engineMetrics := metrics.New(metrics.WithLogger(logger))

	source := configstore.NewPostgresSource(db)
	store := configstore.New(source,
		configstore.WithRecorder(engineMetrics),
		configstore.WithLogger(logger),
	)

	auditSink := audit.NewPostgresSink(db)
	auditLogger := audit.NewLogger(auditSink, logger, 0)
	defer auditLogger.Close()

	balances := loyalty.NewPostgresBalanceStore(db)
	engine := rules.NewEngine(store, balances, auditLogger, engineMetrics, logger)

	if err := engine.Warm(ctx); err != nil {
		logger.Error("failed to warm configuration cache", "error", err)
		os.Exit(1)
	}

	var producer *messaging.Producer
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		producer = messaging.NewProducer(brokers)
		defer func() { _ = producer.Close() }()

		groupID := serviceName + "-" + hostname()
		consumer := messaging.NewConsumer(brokers, groupID)
		defer func() { _ = consumer.Close() }()

		consumeCtx, cancelConsume := context.WithCancel(ctx)
		defer cancelConsume()
		go consumeConfigChanges(consumeCtx, consumer, store, logger)
	}

	handler := rules.NewHandler(engine, source, auditSink, publisherOrNil(producer), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders/evaluate", telemetry.WithHTTPRoute(handler.HandleEvaluate))
	mux.HandleFunc("POST /orders/{id}/settle", telemetry.WithHTTPRoute(handler.HandleSettle))
	mux.HandleFunc("GET /orders/{id}/audit", telemetry.WithHTTPRoute(handler.HandleOrderAudit))
	mux.HandleFunc("GET /rules/metrics", telemetry.WithHTTPRoute(handler.HandleMetricsSummary))
	mux.HandleFunc("GET /rules/availability", telemetry.WithHTTPRoute(handler.HandleListAvailability))
	mux.HandleFunc("PUT /rules/availability/{itemId}", telemetry.WithHTTPRoute(handler.HandleUpdateAvailability))
	mux.HandleFunc("GET /rules/pricing", telemetry.WithHTTPRoute(handler.HandleListPricingRules))
	mux.HandleFunc("GET /rules/loyalty", telemetry.WithHTTPRoute(handler.HandleGetLoyaltySettings))
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting rules service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func consumeConfigChanges(ctx context.Context, consumer *messaging.Consumer, store *configstore.Store, logger *slog.Logger) {
	err := consumer.Consume(ctx, func(_ context.Context, event domain.ConfigChangedEvent) error {
		logger.Info("configuration changed, invalidating cache",
			"kind", event.Kind, "item_id", event.ItemID)
		store.Invalidate(event.Kind)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		logger.Error("config change consumer stopped", "error", err)
	}
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

// publisherOrNil avoids handing the handler a non-nil interface wrapping a
// nil *Producer.
func publisherOrNil(p *messaging.Producer) rules.Publisher {
	if p == nil {
		return nil
	}
	return p
}
