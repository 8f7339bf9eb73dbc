package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/nir/leitos/internal/config"
	"github.com/nir/leitos/internal/domain/occupancy"
	"github.com/nir/leitos/internal/domain/ward"
	"github.com/nir/leitos/internal/platform/auth"
	"github.com/nir/leitos/internal/platform/cache"
	"github.com/nir/leitos/internal/platform/clock"
	"github.com/nir/leitos/internal/platform/db"
	"github.com/nir/leitos/internal/platform/metrics"
	"github.com/nir/leitos/internal/platform/middleware"
	"github.com/nir/leitos/internal/platform/sandbox"
	"github.com/nir/leitos/internal/platform/websocket"
)

const apiPrefix = "/nir/v1"

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

func newClock(cfg *config.Config) (clock.Clock, error) {
	loc, err := clock.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	return clock.System(loc), nil
}

// store bundles the configured ward repository with its health probe and
// release hook.
type store struct {
	repo   ward.Repository
	pinger db.Pinger
	close  func()
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*store, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		s, err := ward.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite store")
		return &store{repo: s, close: func() { _ = s.Close() }}, nil
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")
		return &store{repo: ward.NewPGRepo(pool), pinger: pool, close: pool.Close}, nil
	default:
		return &store{repo: ward.NewMemoryStore(), close: func() {}}, nil
	}
}

func openCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.KVStore, func()) {
	if cfg.RedisURL == "" {
		return cache.NewMemoryKVStore(), func() {}
	}
	kv, err := cache.NewRedisKVStoreFromURL(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using in-process cache")
		return cache.NewMemoryKVStore(), func() {}
	}
	logger.Info().Msg("connected to redis")
	return kv, func() { _ = kv.Close() }
}

// wardEvent maps a committed ward mutation onto the websocket envelope.
func wardEvent(ch ward.Change) websocket.Event {
	ev := websocket.Event{
		Type:        ch.Type,
		Topic:       websocket.TopicWard,
		PatientID:   ch.PatientID,
		AdmissionID: ch.AdmissionID,
		BedID:       ch.BedID,
	}
	if ch.DischargeType != "" {
		ev.Data, _ = json.Marshal(map[string]string{"tipo_alta": string(ch.DischargeType)})
	}
	return ev
}

type server struct {
	echo    *echo.Echo
	hub     *websocket.Hub
	closers []func()
}

func (s *server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Close releases the cache and store in reverse order of acquisition.
func (s *server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*server, error) {
	clk, err := newClock(cfg)
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	srv := &server{closers: []func(){st.close}}

	kv, closeCache := openCache(ctx, cfg, logger)
	srv.closers = append(srv.closers, closeCache)

	m := metrics.New()
	hub := websocket.NewHub(logger)
	srv.hub = hub

	wardSvc := ward.NewService(st.repo, clk)
	wardSvc.SetLogger(logger)

	occSvc := occupancy.NewService(st.repo, clk)
	occSvc.SetCache(kv, cfg.CacheTTL)
	occSvc.SetRecorder(m)
	occSvc.SetLogger(logger)

	wardSvc.OnChange(func(ctx context.Context, ch ward.Change) {
		occSvc.Invalidate(ctx)
		if ch.Type == ward.ChangeAdmissionDischarged {
			m.IncDischarge(string(ch.DischargeType))
		}
		if err := hub.Publish(ctx, wardEvent(ch)); err != nil {
			logger.Warn().Err(err).Str("type", ch.Type).Msg("failed to publish ward event")
		}
	})

	sc := sandbox.DefaultSeedConfig()
	sc.ExtraBeds = cfg.SeedExtraBeds
	seeder := sandbox.NewSeeder(st.repo, clk, sc)
	seeder.SetLogger(logger)
	seeder.OnSeeded(occSvc.Invalidate)
	if cfg.SeedDemo {
		if _, err := seeder.Seed(ctx); err != nil {
			srv.Close()
			return nil, fmt.Errorf("failed to seed demo ward: %w", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/ws"))
	e.Use(middleware.Recovery(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if st.pinger != nil {
		e.GET("/health/db", db.HealthHandler(st.pinger))
	}
	e.GET("/metrics", m.Handler())
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e)

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.AuthMode == config.AuthModeDevelopment {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	}

	api := e.Group(apiPrefix,
		authMW,
		middleware.BodyLimit(cfg.BodyLimit),
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		}),
		middleware.Audit(logger, apiPrefix),
	)
	ward.NewHandler(wardSvc).RegisterRoutes(api)
	occupancy.NewHandler(occSvc).RegisterRoutes(api)
	if cfg.IsDev() {
		sandbox.NewSeedHandler(seeder).RegisterRoutes(api)
	}

	srv.echo = e
	return srv, nil
}
