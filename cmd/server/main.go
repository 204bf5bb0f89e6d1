package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/batch-admission/internal/app"
	"github.com/iliyamo/batch-admission/internal/config"
	"github.com/iliyamo/batch-admission/internal/handler"
	"github.com/iliyamo/batch-admission/internal/logger"
	"github.com/iliyamo/batch-admission/internal/middleware"
	"github.com/iliyamo/batch-admission/internal/queue"
	"github.com/iliyamo/batch-admission/internal/router"
	"github.com/iliyamo/batch-admission/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		CollectorAddr:  cfg.Telemetry.CollectorAddr,
	})
	if err != nil {
		log.Fatal("init tracing", zap.Error(err))
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("build app", zap.Error(err))
	}
	defer a.Close()

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn("redis unreachable, rate limiting and response cache disabled", zap.String("addr", cfg.Redis.Address()))
	} else {
		defer func() { _ = rdb.Close() }()
	}

	if cfg.AMQP.Enabled && cfg.AMQP.ConsumerEnabled {
		c := &queue.Consumer{
			URL:    cfg.AMQP.URL,
			Queues: []string{cfg.AMQP.SettledQueue, cfg.AMQP.ReconcileQueue},
			LogDir: cfg.AMQP.LogDir,
			Log:    log.Named("consumer"),
		}
		go func() {
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("settlement consumer stopped", zap.Error(err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log.Named("http")))

	svc := a.Services
	reservations := handler.NewReservationHandler(svc.Reservation, log)
	payments := handler.NewPaymentHandler(svc.Finalization, svc.Reservation, cfg.Gateway.FrontendURL, log)
	recon := handler.NewReconciliationHandler(svc.Reconciliation, log)

	var db handler.Pinger
	if a.DB != nil {
		db = a.DB
	}
	router.RegisterRoutes(e, db)
	router.RegisterApplicant(e, reservations, payments, cfg.JWT.Secret,
		middleware.RateLimit(cfg.RateLimit, rdb, log.Named("ratelimit")),
		middleware.ResponseCache(cfg.Cache, rdb))
	router.RegisterPayments(e, payments, cfg.Gateway.StripeHook)
	router.RegisterAdmin(e, recon, cfg.JWT.Secret)

	go func() {
		addr := ":" + cfg.App.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.App.Env),
			zap.String("store", cfg.App.StoreDriver), zap.String("gateway", a.Gateway.Name()))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown", zap.Error(err))
	}
}
