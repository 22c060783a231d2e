package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/patient-service/internal/config"
	"github.com/ehr/patient-service/internal/domain/patient"
	"github.com/ehr/patient-service/internal/platform/db"
	"github.com/ehr/patient-service/internal/platform/messaging"
	"github.com/ehr/patient-service/internal/platform/metrics"
	"github.com/ehr/patient-service/internal/platform/middleware"
	"github.com/ehr/patient-service/internal/platform/redis"
)

const (
	bodyLimit       = "1M"
	healthTimeout   = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// storage is the repository selected by STORAGE_DRIVER plus what the server
// needs to report on and release it.
type storage struct {
	patients patient.Repository
	health   echo.HandlerFunc
	close    func()
}

func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to postgres")
		return &storage{
			patients: patient.NewPatientRepo(pool),
			health:   db.HealthHandler(pool, healthTimeout),
			close:    pool.Close,
		}, nil

	case config.StorageRedis:
		client, err := redis.New(ctx, redis.Options{URL: cfg.RedisURL})
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to redis")
		return &storage{
			patients: patient.NewRedisRepo(client),
			health:   redisHealth(client),
			close:    func() { _ = client.Close() },
		}, nil

	default:
		logger.Warn().Msg("using in-memory storage; patients are lost on restart")
		return &storage{patients: patient.NewMemoryRepo(), close: func() {}}, nil
	}
}

func redisHealth(client *redis.Client) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		if err := client.Health(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// openPublisher returns the EventPublisher selected by EVENT_PUBLISHER.
func openPublisher(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (patient.EventPublisher, func(), error) {
	if cfg.EventPublisher == config.PublisherKafka {
		// -1 lets the broker pick partition count and replication factor.
		if err := messaging.EnsureTopic(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, -1, -1); err != nil {
			return nil, nil, err
		}
		p, err := messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	}
	return messaging.NewLogPublisher(logger), func() {}, nil
}

type serverDeps struct {
	cfg     *config.Config
	logger  zerolog.Logger
	service *patient.Service
	metrics *metrics.Metrics
	dbCheck echo.HandlerFunc
}

// newServer builds the echo instance with the middleware chain and routes.
func newServer(d serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(d.logger)

	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     d.cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, middleware.RequestIDHeader},
		AllowCredentials: true,
	}))
	e.Use(echomw.BodyLimit(bodyLimit))
	// Metrics wrap the timeout so a 504 is recorded as 504.
	if d.metrics != nil {
		e.Use(d.metrics.Middleware())
	}
	e.Use(middleware.RequestTimeout(d.cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.dbCheck != nil {
		e.GET("/health/db", d.dbCheck)
	}
	if d.metrics != nil && d.cfg.MetricsEnabled {
		e.GET("/metrics", d.metrics.Handler())
	}

	patient.NewHandler(d.service).RegisterRoutes(e.Group(""))
	return e
}

func runServer(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	events, closePublisher, err := openPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := patient.NewService(store.patients, events,
		patient.WithMetrics(m),
		patient.WithLogger(logger.With().Str("component", "patient").Logger()),
	)

	e := newServer(serverDeps{cfg: cfg, logger: logger, service: svc, metrics: m, dbCheck: store.health})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("storage", cfg.StorageDriver).Str("publisher", cfg.EventPublisher).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
