package app

import (
	"context"
	"net/http"
	"time"

	"dinein_backend/internal/config"
	"dinein_backend/internal/database"
	"dinein_backend/internal/handlers"
	"dinein_backend/internal/messaging"
	"dinein_backend/internal/metrics"
	"dinein_backend/internal/middleware"
	"dinein_backend/internal/payments"
	"dinein_backend/internal/repositories"
	"dinein_backend/internal/router"
	"dinein_backend/internal/services"
	"dinein_backend/internal/workers"
	"dinein_backend/internal/workers/pendingexpiry"
	"dinein_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type closer func()

const limiterSweepInterval = time.Minute

// App holds everything the process starts and later shuts down.
type App struct {
	Config        config.Config
	DB            *sqlx.DB
	API           *http.Server
	Observability *http.Server
	Workers       *workers.Manager

	closers []closer
}

// Setup loads configuration and wires the dependency graph. Only the rate
// limiter sweeper is started here; servers and workers are started by the caller.
func Setup(ctx context.Context) (*App, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	utils.InitLogger(cfg.Logger.Level, cfg.Logger.Pretty)

	a := &App{Config: cfg}
	if err := a.wire(ctx, prometheus.DefaultRegisterer); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, reg prometheus.Registerer) error {
	cfg := a.Config

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	a.DB = db
	a.closers = append(a.closers, func() {
		if err := db.Close(); err != nil {
			utils.LogError(err, "Failed to close database")
		}
	})

	publisher, err := messaging.New(cfg.RabbitMQ)
	if err != nil {
		return errors.Wrap(err, "connect rabbitmq")
	}
	a.closers = append(a.closers, func() {
		if err := publisher.Close(); err != nil {
			utils.LogError(err, "Failed to close publisher")
		}
	})

	m := metrics.New(reg)

	txm := repositories.NewTxManager(db)
	visitRepo := repositories.NewVisitRepository()
	guestRepo := repositories.NewGuestRepository()
	orderRepo := repositories.NewOrderRepository()
	paymentRepo := repositories.NewPaymentRepository()
	paymentLogRepo := repositories.NewPaymentLogRepository()
	userRepo := repositories.NewUserRepository(paymentRepo)
	otpRepo := repositories.NewOTPRepository()

	visitService := services.NewVisitService(txm, visitRepo, guestRepo, orderRepo, userRepo, paymentRepo, m)
	orderService := services.NewOrderService(txm, visitRepo, orderRepo)
	paymentService := services.NewPaymentService(txm, paymentRepo, visitRepo, guestRepo, orderRepo, userRepo,
		payments.NewRegistry(cfg.Payments), publisher, m)
	accountService := services.NewAccountService(txm, userRepo, otpRepo)
	callbackService := services.NewCallbackService(paymentService, cfg.Payments)
	paymentLogService := services.NewPaymentLogService(txm, paymentLogRepo)

	if err := handlers.RegisterValidators(); err != nil {
		return errors.Wrap(err, "register validators")
	}

	limiter := middleware.NewRateLimiter(cfg.Payments.RateLimit.RPS, cfg.Payments.RateLimit.Burst)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go limiter.RunSweeper(sweepCtx, limiterSweepInterval)
	a.closers = append(a.closers, closer(stopSweep))

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.Setup(engine, router.Handlers{
		Visits:    handlers.NewVisitHandler(visitService),
		Orders:    handlers.NewOrderHandler(orderService),
		Payments:  handlers.NewPaymentHandler(paymentService),
		Callbacks: handlers.NewCallbackHandler(callbackService, accountService),
		Accounts:  handlers.NewAccountHandler(accountService),
	}, router.Options{
		Tokens:         utils.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTTL),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimiter:    limiter,
		Observer:       m,
		PaymentLogs:    paymentLogService,
	})

	a.API = &http.Server{
		Handler:           engine,
		Addr:              cfg.HTTP.ADDR(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}
	if cfg.Observability.Enabled {
		a.Observability = newObservabilityServer(cfg.Observability, db)
	}

	a.Workers = workers.NewManager(
		pendingexpiry.NewWorker(paymentService, m, cfg.Workers.PendingExpirySchedule, cfg.Payments.PendingTTL, cfg.Workers.PendingExpiryBatch),
	)
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
