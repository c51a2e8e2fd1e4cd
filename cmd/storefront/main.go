package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/Skotchmaster/pharmacy_shop/internal/backend"
	"github.com/Skotchmaster/pharmacy_shop/internal/cart"
	"github.com/Skotchmaster/pharmacy_shop/internal/dashboard"
	"github.com/Skotchmaster/pharmacy_shop/internal/events"
	"github.com/Skotchmaster/pharmacy_shop/internal/guard"
	"github.com/Skotchmaster/pharmacy_shop/internal/httpserver"
	"github.com/Skotchmaster/pharmacy_shop/internal/identity"
	"github.com/Skotchmaster/pharmacy_shop/internal/payment"
	"github.com/Skotchmaster/pharmacy_shop/internal/repo"
	"github.com/Skotchmaster/pharmacy_shop/internal/search"
	"github.com/Skotchmaster/pharmacy_shop/internal/storefront"
	"github.com/Skotchmaster/pharmacy_shop/pkg/config"
	pkgdb "github.com/Skotchmaster/pharmacy_shop/pkg/db"
	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
	"github.com/Skotchmaster/pharmacy_shop/pkg/middleware/csrf"
	loggingmw "github.com/Skotchmaster/pharmacy_shop/pkg/middleware/logging"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	addr := pflag.String("addr", "", "listen address (overrides LISTEN_ADDR)")
	pflag.Parse()

	config.LoadEnvFile(*envFile)
	cfg := config.Load()
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	var closers []func() error

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	storage, closeStorage, err := openStorage(initCtx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("cart storage: %v", err)
	}
	closers = append(closers, closeStorage)
	logger.Info("cart_storage_ready", "kind", cfg.CartStorage)

	var idp identity.Factory
	switch cfg.IdentityMode {
	case "local":
		idp = identity.NewLocalDirectory(cfg.IdentitySecret, 0).Factory()
		logger.Warn("identity_local_mode", "detail", "in-process accounts; not for production")
	default:
		idp = identity.NewRemoteClient(cfg.IdentityURL, cfg.IdentityAPIKey).Factory()
	}

	var processor payment.Processor = payment.Sandbox{}
	if cfg.PaymentURL != "" {
		processor = payment.NewHTTPProcessor(cfg.PaymentURL, cfg.PaymentAPIKey)
	} else {
		logger.Warn("payment_sandbox_mode")
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		if err := events.EnsureTopics(cfg.KafkaBrokers[0], events.Topics...); err != nil {
			logger.Warn("kafka_topics_error", "error", err)
		}
		publisher = events.NewProducer(cfg.KafkaBrokers)
	}
	closers = append(closers, publisher.Close)

	var index *search.Index
	if cfg.ESURL != "" {
		esCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		es, err := search.NewClient(esCtx, search.Config{
			URL:      cfg.ESURL,
			User:     cfg.ESUser,
			Password: cfg.ESPassword,
			Index:    cfg.ESIndex,
		}, logger)
		cancel()
		if err != nil {
			logger.Warn("search_disabled", "error", err)
		} else {
			index = search.New(es, cfg.ESIndex)
		}
	}

	api := backend.New(cfg.BackendURL, backend.NewHTTPClient(15*time.Second), nil)

	registry := storefront.NewRegistry(storefront.Deps{
		Identity: idp,
		Storage:  storage,
		Backend:  api,
		Log:      logger,
		IdleTTL:  cfg.VisitorIdleTTL,
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(loggingmw.RequestLogger(loggingmw.Config{
		Logger:        logger,
		VisitorCookie: storefront.VisitorCookie,
		QuietPrefixes: []string{"/health/"},
	}))
	e.Use(echomw.Secure())
	e.Use(echomw.CORS())

	csrfCfg := csrf.DefaultConfig()
	csrfCfg.Secure = cfg.SecureCookies

	checks := []httpserver.Check{{Name: "backend", Fn: api.Ping}}
	if p, ok := storage.(pinger); ok {
		checks = append(checks, httpserver.Check{Name: "cart_storage", Fn: p.Ping})
	}

	httpserver.Register(e, &httpserver.Deps{
		Registry:      registry,
		Guard:         guard.New(storefront.GuardSource, cfg.GuardPendingWait),
		SecureCookies: cfg.SecureCookies,
		CSRF:          &csrfCfg,
		Checks:        checks,

		AuthHandler:      &httpserver.AuthHTTP{Events: publisher},
		RoleHandler:      &httpserver.RoleHTTP{},
		CatalogHandler:   &httpserver.CatalogHTTP{Search: index},
		CartHandler:      &httpserver.CartHTTP{Events: publisher},
		CheckoutHandler:  &httpserver.CheckoutHTTP{Processor: processor, Events: publisher},
		DashboardHandler: &httpserver.DashboardHTTP{Menu: dashboard.Default(), RoleWait: cfg.GuardPendingWait},
		AdminHandler:     &httpserver.AdminHTTP{},
		SellerHandler:    &httpserver.SellerHTTP{Search: index},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go registry.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("storefront_listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}

	registry.Close()
	for _, c := range closers {
		if err := c(); err != nil {
			logger.Error("close_error", "error", err)
		}
	}
	logger.Info("storefront_stopped")
}

// openStorage builds the cart snapshot store the config selects.
func openStorage(ctx context.Context, cfg config.Config) (cart.Storage, func() error, error) {
	switch cfg.CartStorage {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return repo.NewRedisSnapshots(rdb, 0), rdb.Close, nil
	case "sql":
		db, err := pkgdb.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		st := &repo.GormSnapshots{DB: db}
		if err := st.Migrate(); err != nil {
			_ = pkgdb.Close(db)
			return nil, nil, err
		}
		return st, func() error { return pkgdb.Close(db) }, nil
	}
	return repo.NewMemorySnapshots(), func() error { return nil }, nil
}
