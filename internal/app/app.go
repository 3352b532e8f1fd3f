package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/eventpass/internal/domain/auth"
	"github.com/xenking/eventpass/internal/domain/checkout"
	"github.com/xenking/eventpass/internal/domain/promo"
	"github.com/xenking/eventpass/internal/domain/ticket"
	"github.com/xenking/eventpass/internal/handler"
	"github.com/xenking/eventpass/internal/payment/webpay"
	"github.com/xenking/eventpass/internal/storage/postgres"
	"github.com/xenking/eventpass/pkg/health"
	"github.com/xenking/eventpass/pkg/httpmiddleware"
)

const serviceName = "eventpass-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.Database.URL, postgres.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	db := postgres.New(pool, cfg.Database.LockTimeout)

	// Health check service.
	healthSvc := health.New(health.Options{Logger: lg.Named("health")})
	healthSvc.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck("postgres", pool))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()

	// Domain services.
	loc, err := time.LoadLocation(cfg.Promo.Location)
	if err != nil {
		return errors.Wrap(err, "load promo location")
	}
	coordinator, err := promo.NewCoordinator(postgres.NewPromoStore(db), promo.CoordinatorConfig{
		Location:       loc,
		SharedCodeTTL:  cfg.Promo.SharedCodeTTL,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create promo coordinator")
	}
	catalogRepo := postgres.NewCatalogRepository(db)
	gateway := webpay.NewClient(webpay.Config{
		BaseURL:           cfg.Webpay.BaseURL,
		CommerceCode:      cfg.Webpay.CommerceCode,
		APIKey:            cfg.Webpay.APIKey,
		Timeout:           cfg.Webpay.Timeout,
		RequestsPerSecond: cfg.Webpay.RequestsPerSecond,
		Burst:             cfg.Webpay.Burst,
		TracerProvider:    m.TracerProvider(),
	}, nil)
	checkoutSvc := checkout.NewService(catalogRepo, coordinator, postgres.NewOrderStore(db), gateway, checkout.Config{
		MaxQuantity:       cfg.Checkout.MaxQuantity,
		MaxExemptQuantity: cfg.Checkout.MaxExemptQuantity,
	})

	// HTTP handlers.
	h := handler.NewHandler(
		handler.Config{PublicBaseURL: cfg.Checkout.PublicBaseURL},
		catalogRepo,
		checkoutSvc,
		promo.NewAdmin(postgres.NewPromoStore(db)),
		ticket.NewService(postgres.NewTicketStore(db)),
		auth.NewAuthenticator(postgres.NewAPIKeyRepository(db), []byte(cfg.APIKeyPepper)),
	)

	// Route-aware middlewares run inside the router so they see the chi
	// route pattern.
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.RequestID(),
		httpmiddleware.Instrument(serviceName, m),
		httpmiddleware.LogRequests(),
	)
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Routes(r)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Webpay.Timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", handler.HeaderAPIKey, httpmiddleware.HeaderRequestID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
		),
	}

	healthSvc.SetReady(true)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown: fail readiness, let the balancer notice, drain.
		<-gCtx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	return g.Wait()
}
