package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nordmart/shopcore/internal/cart"
	"github.com/nordmart/shopcore/internal/checkout"
	"github.com/nordmart/shopcore/internal/config"
	"github.com/nordmart/shopcore/internal/db"
	"github.com/nordmart/shopcore/internal/events"
	"github.com/nordmart/shopcore/internal/httpapi"
	"github.com/nordmart/shopcore/internal/logging"
	"github.com/nordmart/shopcore/internal/order"
	"github.com/nordmart/shopcore/internal/payment"
	"github.com/nordmart/shopcore/internal/product"
	"github.com/nordmart/shopcore/internal/shipping"
)

func main() {
	cfg := config.Load()
	logger := logging.MustNewLogger("shopcore", cfg.Env)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.RunMigrations(cfg.DatabaseURL, logger); err != nil {
		logger.Fatal("run migrations", zap.Error(err))
	}

	pool, err := db.OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer pool.Close()

	productRepo := product.NewPostgresRepository(pool)
	cartSvc := cart.NewService(pool, cart.NewPostgresStore(), productRepo)
	shippingSvc := shipping.NewService(pool, shipping.NewPostgresStore(), defaultZoneTable())
	orderRepo := order.NewPostgresRepository(pool)

	verifier, err := payment.NewVerifier(payment.Provider(cfg.PaymentProvider), cfg.PaymentGatewayURL)
	if err != nil {
		logger.Fatal("configure payment provider", zap.Error(err))
	}

	var publisher checkout.Publisher
	if cfg.RabbitURL != "" {
		conn, err := events.Dial(cfg.RabbitURL)
		if err != nil {
			logger.Fatal("connect to RabbitMQ", zap.Error(err))
		}
		defer conn.Close()

		pub, err := events.NewPublisher(conn)
		if err != nil {
			logger.Fatal("open publisher channel", zap.Error(err))
		}
		defer pub.Close()
		publisher = pub
	}

	coordinator := checkout.NewCoordinator(pool, verifier, cartSvc, shippingSvc, orderRepo, productRepo, publisher, logger)

	handler := httpapi.NewHandler(cartSvc, shippingSvc, orderRepo, productRepo, coordinator, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpapi.NewRouter(handler),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func defaultZoneTable() *shipping.ZoneTable {
	return shipping.NewZoneTable(nil, decimalFromEnv("SHIPPING_DEFAULT_PRICE", "1400"))
}

func decimalFromEnv(key, def string) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		v = def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.RequireFromString(def)
	}
	return d
}
