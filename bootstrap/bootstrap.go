// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/artpar/paycore/adapters/auth"
	"github.com/artpar/paycore/adapters/clock"
	apihttp "github.com/artpar/paycore/adapters/http"
	"github.com/artpar/paycore/adapters/idgen"
	"github.com/artpar/paycore/adapters/memory"
	"github.com/artpar/paycore/adapters/metrics"
	"github.com/artpar/paycore/adapters/payment"
	"github.com/artpar/paycore/adapters/sqlite"
	"github.com/artpar/paycore/app"
	"github.com/artpar/paycore/config"
	"github.com/artpar/paycore/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	DB         *sqlite.DB // nil with the memory driver
	Processor  ports.Processor
	Metrics    *metrics.Collector
	Tokens     *auth.TokenService // nil when the API is open
	HTTPServer *http.Server

	// Local stores
	Customers ports.CustomerStore
	ChargeLog ports.ChargeLog

	// Services
	Provisioner   *app.ProvisionerService
	Subscriptions *app.SubscriptionService
	Charges       *app.ChargeService
	Coupons       *app.CouponService
	Ledger        *app.LedgerService
	Checkout      *app.CheckoutService

	registry *prometheus.Registry
	clock    clock.Settlement
}

// Options overrides pieces of the wiring. Zero values use the defaults.
type Options struct {
	// LogOutput receives log lines. Default: os.Stdout.
	LogOutput io.Writer

	// Processor replaces the processor built from configuration.
	Processor ports.Processor
}

// New creates and initializes the application from cfg.
func New(cfg *config.Config) (*App, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates and initializes the application with overrides.
func NewWithOptions(cfg *config.Config, opts Options) (*App, error) {
	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logger := SetupLogger(cfg.Logging, out)

	logger.Info().
		Str("processor", cfg.Processor.Mode).
		Str("currency", cfg.Billing.Currency).
		Msg("initializing paycore")

	a := &App{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(a.registry)
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	loc, err := cfg.Billing.Location()
	if err != nil {
		return nil, fmt.Errorf("billing timezone: %w", err)
	}
	a.clock = clock.New(loc)

	if err := a.initStores(); err != nil {
		return nil, fmt.Errorf("init stores: %w", err)
	}

	if opts.Processor != nil {
		a.Processor = opts.Processor
	} else if err := a.initProcessor(); err != nil {
		a.closeDB()
		return nil, fmt.Errorf("init processor: %w", err)
	}

	if err := a.initServices(); err != nil {
		a.closeDB()
		return nil, fmt.Errorf("init services: %w", err)
	}

	if secret := cfg.Server.AuthSecret; secret != "" {
		tokens, err := auth.NewTokenService(secret, cfg.Server.TokenTTL)
		if err != nil {
			a.closeDB()
			return nil, fmt.Errorf("init auth: %w", err)
		}
		a.Tokens = tokens
	} else {
		logger.Warn().Msg("server.auth_secret is not set; the billing API is unauthenticated")
	}

	a.initHTTPServer()

	return a, nil
}

func (a *App) initStores() error {
	if a.Config.Database.Driver == "memory" {
		a.Customers = memory.NewCustomerStore()
		a.ChargeLog = memory.NewChargeLog()
		a.Logger.Warn().Msg("using in-memory customer store; records are lost on exit")
		return nil
	}

	dsn := a.Config.Database.DSN
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	a.DB = db
	a.Customers = sqlite.NewCustomerStore(db)
	a.ChargeLog = sqlite.NewChargeLog(db)
	a.Logger.Info().Str("dsn", dsn).Msg("database initialized")
	return nil
}

func (a *App) initProcessor() error {
	pc := a.Config.Processor

	opts := payment.Options{
		Mode: pc.Mode,
		Stripe: payment.StripeConfig{
			SecretKey:         pc.APIKey,
			Currency:          a.Config.Billing.Currency,
			MaxNetworkRetries: pc.MaxNetworkRetries,
			RateLimit:         pc.RateLimit,
			RateBurst:         pc.RateBurst,
			Timeout:           pc.Timeout,
			URL:               pc.URL,
		},
		IDs:   idgen.UUID{},
		Clock: a.clock,
	}
	if a.Metrics != nil {
		opts.Observer = a.Metrics
	}

	proc, err := payment.NewProcessor(opts, a.Logger)
	if err != nil {
		return err
	}
	a.Processor = proc
	return nil
}

func (a *App) initServices() error {
	loc, err := a.Config.Billing.Location()
	if err != nil {
		return err
	}
	money := a.Config.Billing.Money()
	logger := a.Logger

	a.Provisioner = app.NewProvisionerService(a.Processor, money, logger.With().Str("component", "provisioner").Logger())
	a.Subscriptions = app.NewSubscriptionService(a.Processor, logger.With().Str("component", "subscriptions").Logger())
	a.Charges = app.NewChargeService(a.Processor, money, logger.With().Str("component", "charges").Logger())
	a.Coupons = app.NewCouponService(a.Processor, money, logger.With().Str("component", "coupons").Logger())
	a.Ledger = app.NewLedgerService(a.Processor, loc, logger.With().Str("component", "ledger").Logger())
	a.Checkout = app.NewCheckoutService(a.Processor, logger.With().Str("component", "checkout").Logger())
	return nil
}

func (a *App) initHTTPServer() {
	sc := a.Config.Server

	billingHandler := apihttp.NewBillingHandler(apihttp.Deps{
		Provisioner:   a.Provisioner,
		Subscriptions: a.Subscriptions,
		Charges:       a.Charges,
		Coupons:       a.Coupons,
		Ledger:        a.Ledger,
		Checkout:      a.Checkout,
		Customers:     a.Customers,
		ChargeLog:     a.ChargeLog,
		Clock:         a.clock,
		Currency:      a.Config.Billing.Money().Currency,
		Logger:        a.Logger.With().Str("component", "http").Logger(),
	})

	routerCfg := apihttp.RouterConfig{
		Metrics:        a.Metrics,
		MetricsPath:    a.Config.Metrics.Path,
		Processor:      a.Processor.Name(),
		RequestTimeout: sc.WriteTimeout,
	}
	if a.Tokens != nil {
		routerCfg.Auth = a.Tokens
	}
	if a.registry != nil {
		routerCfg.MetricsHandler = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	}

	a.HTTPServer = &http.Server{
		Addr:         net.JoinHostPort(sc.Host, strconv.Itoa(sc.Port)),
		Handler:      apihttp.NewRouter(billingHandler, a.Logger, routerCfg),
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
	}
}

// SyncCatalog provisions the configured products and plans.
func (a *App) SyncCatalog(ctx context.Context) error {
	cat := a.Config.Catalog
	if len(cat.Products) == 0 && len(cat.Plans) == 0 {
		return nil
	}

	plans, err := a.Provisioner.EnsureCatalog(ctx, cat.ProductRefs(), cat.PlanSpecs())
	if err != nil {
		return err
	}
	a.Logger.Info().
		Int("products", len(cat.Products)).
		Int("plans", len(plans)).
		Msg("catalog synchronized")
	return nil
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	if a.Config.Catalog.SyncOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err := a.SyncCatalog(ctx)
		cancel()
		if err != nil {
			a.Shutdown()
			return fmt.Errorf("sync catalog: %w", err)
		}
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	a.closeDB()

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func (a *App) closeDB() {
	if a.DB == nil {
		return
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("database close error")
	}
	a.DB = nil
}

// SetupLogger builds the root logger from the logging configuration.
func SetupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
