package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slotbook/internal/api"
	"slotbook/internal/booking"
	"slotbook/internal/cache"
	"slotbook/internal/config"
	"slotbook/internal/events"
	"slotbook/internal/metrics"
	"slotbook/internal/slots"
	"slotbook/internal/store"
	"slotbook/internal/store/postgres"
	"slotbook/internal/store/sqlite"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("SLOTBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store error")
	}
	defer st.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}
	slotCache := cache.New(rdb, cfg.CacheTTL(), &logger)

	bus := events.NewBus()
	if slotCache.Enabled() {
		bus.SubscribeAll(events.Types, func(event events.Event) {
			slotCache.Invalidate(context.Background(), event.ServiceID)
		})
	}

	coordinator := booking.New(st, bus, booking.Policy{
		AutoConfirm: cfg.Booking.AutoConfirm,
		MinAdvance:  cfg.BookingMinAdvance(),
		MaxAdvance:  cfg.BookingMaxAdvance(),
		OpTimeout:   cfg.BookingTimeout(),
	}, &logger)
	calculator := slots.New(st)

	metrics.Register()
	server := api.New(st, calculator, coordinator, slotCache, bus, api.Config{
		AdminKey:     cfg.API.AdminKey,
		MaxRangeDays: cfg.API.MaxRangeDays,
		RateLimit:    cfg.API.RateLimit,
		RateBurst:    cfg.API.RateBurst,
	}, &logger)

	if cfg.Monitoring.HealthCheckPort > 0 {
		go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, st, rdb, &logger)
	}
	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Backup.Enabled && cfg.Database.Driver == "sqlite" {
		if sq, ok := st.(*sqlite.Store); ok {
			go startBackupLoop(ctx, sq, cfg, &logger)
		}
	}

	srv := &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("addr", cfg.API.ListenAddr).Str("driver", cfg.Database.Driver).Msg("slotbook started")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("api server error")
	}
	logger.Info().Msg("slotbook stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return postgres.Open(ctx, cfg.Database.URL)
	default:
		return sqlite.Open(cfg.Database.Path)
	}
}

func startBackupLoop(ctx context.Context, st *sqlite.Store, cfg *config.Config, logger *zerolog.Logger) {
	if cfg.Backup.Path == "" {
		cfg.Backup.Path = "backups"
	}
	if err := os.MkdirAll(cfg.Backup.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("failed to create backup directory")
		return
	}

	ticker := time.NewTicker(cfg.BackupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runBackup(ctx, st, cfg.Backup.Path, logger)
		case <-ctx.Done():
			return
		}
	}
}

func runBackup(ctx context.Context, st *sqlite.Store, dir string, logger *zerolog.Logger) {
	timestamp := time.Now().Format("20060102_150405")
	dest := filepath.Join(dir, fmt.Sprintf("slotbook_%s.db", timestamp))

	logger.Info().Str("path", dest).Msg("starting database backup")
	if err := st.Backup(ctx, dest); err != nil {
		logger.Error().Err(err).Msg("backup failed")
		return
	}
	logger.Info().Msg("backup completed successfully")
}

func startHealthServer(ctx context.Context, port int, st store.Store, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := st.Ping(ctxPing); err != nil {
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

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
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

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
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
