package main // HTTP API entry point

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/community-events/internal/config"
	"github.com/iliyamo/community-events/internal/database"
	"github.com/iliyamo/community-events/internal/handler"
	"github.com/iliyamo/community-events/internal/logging"
	"github.com/iliyamo/community-events/internal/middleware"
	"github.com/iliyamo/community-events/internal/obs"
	"github.com/iliyamo/community-events/internal/queue"
	"github.com/iliyamo/community-events/internal/repository"
	"github.com/iliyamo/community-events/internal/router"
	"github.com/iliyamo/community-events/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.Tracing, "events-api", cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	db, dialect, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(ctx, db, dialect); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema migrated", zap.String("dialect", string(dialect)))
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}

	pub := queue.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
	defer pub.Close()

	store := repository.NewStore(db, dialect)
	auth := service.NewAuth(repository.NewUserRepo(db, dialect), repository.NewTokenRepo(db, dialect), cfg.Auth, log)
	events := service.NewEvents(store, pub, cfg.DB.TxTimeout, log)
	regs := service.NewRegistrations(store, pub, cfg.Registration, cfg.DB.TxTimeout, log)

	cache := middleware.NewResponseCache(cfg.Cache, rdb, log)
	limiter := middleware.NewRateLimiter(cfg.RateLimit, rdb, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))
	e.Use(limiter.Middleware())

	router.RegisterRoutes(e, &handler.HealthHandler{DB: db, Redis: rdb})
	router.RegisterAuth(e, handler.NewAuthHandler(auth, cfg.Auth.JWTSecret), cfg.Auth.JWTSecret)
	router.RegisterEvents(e,
		handler.NewEventHandler(events, regs),
		handler.NewAttendeeHandler(events, regs),
		cache, cfg.Auth.JWTSecret)

	addr := ":" + cfg.Port
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}
