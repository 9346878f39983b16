package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dispatch-be/internal/alert"
	"dispatch-be/internal/api"
	"dispatch-be/internal/broker"
	"dispatch-be/internal/config"
	"dispatch-be/internal/db"
	"dispatch-be/internal/dispatch"
	"dispatch-be/internal/establishment"
	"dispatch-be/internal/fee"
	"dispatch-be/internal/feed"
	"dispatch-be/internal/logger"
	"dispatch-be/internal/metrics"
	"dispatch-be/internal/middleware"
	"dispatch-be/internal/neighborhood"
	"dispatch-be/internal/order"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second

	courierSweepInterval = time.Minute
	courierIdleTTL       = 30 * time.Minute
)

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := db.InitDB(cfg)
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, database)
	if err != nil {
		logger.L().Fatal("failed to build server", zap.Error(err))
	}
	defer a.close()

	if err := a.run(ctx, func(ctx context.Context) (feed.Source, error) {
		return feed.NewPQSource(db.DSN(cfg))
	}); err != nil {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}

type app struct {
	cfg        *config.Config
	server     *http.Server
	hub        *feed.Hub
	limiter    *middleware.Limiter
	dispatcher *dispatch.Dispatcher
	publisher  *broker.Publisher
	registry   *metrics.Registry
}

func newRouter(cfg *config.Config) fee.Router {
	switch cfg.RouterProvider {
	case "osrm":
		return fee.NewOSRMRouter(cfg.RouterURL)
	case "haversine":
		return fee.HaversineRouter{}
	}
	return nil
}

func newApp(cfg *config.Config, database *sql.DB) (*app, error) {
	log := logger.L()

	schedule, err := fee.LoadSchedule(cfg.FeeSchedulePath)
	if err != nil {
		return nil, err
	}

	neighborhoods := neighborhood.NewRepository(database)
	establishments := establishment.NewRepository(database)
	calculator := fee.NewCalculator(newRouter(cfg), neighborhoods, schedule, cfg.DefaultDeliveryFee)

	a := &app{
		cfg:      cfg,
		hub:      feed.NewHub(0),
		limiter:  middleware.NewLimiter(),
		registry: metrics.NewRegistry(),
	}

	// Status events are best-effort; the API runs without a broker.
	var events order.EventPublisher
	if cfg.RabbitMQURL != "" {
		p, err := broker.NewPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Warn("status events disabled, broker unavailable", zap.Error(err))
		} else {
			a.publisher = p
			events = p
			a.registry.Register("broker.published", &p.Published)
			a.registry.Register("broker.failed", &p.Failed)
		}
	}

	orders := order.NewRepository(database)
	lifecycle := order.NewService(orders, establishments, calculator, events)
	dispatcher := dispatch.NewDispatcher(orders, lifecycle, events)
	a.dispatcher = dispatcher

	a.registry.Register("fee.quotes", &calculator.Quotes)
	a.registry.Register("fee.degraded", &calculator.Degrades)
	a.registry.Register("dispatch.claims_won", &dispatcher.Won)
	a.registry.Register("dispatch.claims_lost", &dispatcher.Lost)
	a.registry.Register("dispatch.claims_refused", &dispatcher.Refused)
	a.registry.Register("dispatch.claims_unknown", &dispatcher.Unknown)
	a.registry.Register("dispatch.delivered", &dispatcher.Delivers)
	a.registry.Register("dispatch.sessions_evicted", &dispatcher.Evicted)
	a.registry.Register("feed.events", &a.hub.Events)
	a.registry.Register("feed.dropped", &a.hub.Dropped)
	a.registry.Register("feed.resyncs", &a.hub.Resyncs)

	h := api.NewHandler(api.Deps{
		Orders:         lifecycle,
		Dispatcher:     dispatcher,
		Establishments: establishments,
		Quoter:         calculator,
		Hub:            a.hub,
		DB:             database,
		Metrics:        a.registry,
		Alerts:         alert.Options{Period: cfg.AlertPeriod},
	})

	a.server = &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           setupRouter(h.Routes(), cfg, a.limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// setupRouter wraps the API in the middleware chain, outermost first:
// request id, access log, service auth, bearer auth, rate limit.
func setupRouter(routes http.Handler, cfg *config.Config, limiter *middleware.Limiter) http.Handler {
	var h http.Handler = routes
	h = limiter.Middleware(h)
	h = middleware.Auth([]byte(cfg.JWTSecret))(h)
	h = middleware.Internal(cfg.InternalSecretKey)(h)
	h = logger.LoggingMiddleware(h)
	h = logger.RequestIDMiddleware(h)
	return h
}

// run serves until ctx is done, then drains in-flight requests.
func (a *app) run(ctx context.Context, openFeed func(context.Context) (feed.Source, error)) error {
	log := logger.L()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		src, err := openFeed(gctx)
		if err != nil {
			return err
		}
		defer src.Close()
		return a.hub.Run(gctx, src)
	})

	g.Go(func() error {
		a.limiter.Run(gctx)
		return nil
	})

	g.Go(func() error {
		a.dispatcher.Run(gctx, courierSweepInterval, courierIdleTTL)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down HTTP server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *app) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logger.L().Warn("failed to close broker publisher", zap.Error(err))
		}
	}
}
