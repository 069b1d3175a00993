package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"innkeeper/internal/api"
	"innkeeper/internal/audit"
	"innkeeper/internal/cache"
	"innkeeper/internal/calendar"
	"innkeeper/internal/config"
	"innkeeper/internal/database"
	"innkeeper/internal/events"
	"innkeeper/internal/metrics"
	"innkeeper/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("INNKEEPER_CONFIG"))
	if err != nil {
		bootLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg.Logging)

	clock, err := calendar.NewSystemClock(cfg.Booking.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid booking timezone")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus(&logger)

	var rdb *redis.Client
	var gridCache *cache.GridCache
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		backend := cache.NewFailoverBackend(cache.NewRedisBackend(rdb, "innkeeper:"), cache.NewMemoryBackend(), &logger)
		gridCache = cache.NewGridCache(backend, cfg.CacheTTL(), &logger)
		bus.Subscribe(events.All, gridCache.HandleEvent)
	}

	if cfg.Kafka.Enabled {
		sink := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, &logger)
		defer sink.Close()
		bus.Subscribe(events.All, sink.Handle)
		go sink.Run(ctx)
	}

	opts := service.Options{
		CodePrefix:     cfg.Booking.CodePrefix,
		CodeDigits:     cfg.Booking.CodeDigits,
		CodeAttempts:   cfg.Booking.CodeAttempts,
		TrustCaller:    cfg.Booking.TrustCaller,
		MaxStayNights:  cfg.Booking.MaxStayNights,
		MaxGuestsCount: cfg.Booking.MaxGuestsCount,
	}
	svc := api.Services{
		Reservations: service.NewReservationService(db, clock, bus, opts, &logger),
		Pricing:      service.NewPricingService(db, clock, bus, &logger),
	}
	// The cache interface must stay nil when Redis is off.
	if gridCache != nil {
		svc.Inventory = service.NewInventoryService(db, clock, bus, gridCache, &logger)
	} else {
		svc.Inventory = service.NewInventoryService(db, clock, bus, nil, &logger)
	}

	scheduler := cron.New(cron.WithLocation(clock.Location))
	if err := database.NewBackupService(db, cfg.Backup, &logger).Register(scheduler); err != nil {
		logger.Fatal().Err(err).Msg("backup schedule error")
	}
	auditSvc := audit.NewService(cfg.Audit, db, audit.NewExcelizeWriter, db, clock, &logger)
	if err := auditSvc.Register(scheduler); err != nil {
		logger.Fatal().Err(err).Msg("audit schedule error")
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(cfg.HTTP, svc, &logger)
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
	}()

	logger.Info().Str("db", db.Path()).Msg("Innkeeper started")
	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("api server error")
		stop()
	}
	logger.Info().Msg("Innkeeper stopped")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if cfg.Format == "json" {
		return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
