package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/photopixel/internal/cache"
	"github.com/fjod/photopixel/internal/catalog"
	"github.com/fjod/photopixel/internal/checkout"
	"github.com/fjod/photopixel/internal/config"
	h "github.com/fjod/photopixel/internal/http"
	"github.com/fjod/photopixel/internal/logger"
	"github.com/fjod/photopixel/internal/metrics"
	"github.com/fjod/photopixel/internal/orders"
	"github.com/fjod/photopixel/internal/pricing"
	"github.com/fjod/photopixel/internal/publisher"
	"github.com/fjod/photopixel/internal/repository"
	"github.com/fjod/photopixel/internal/service"
	"github.com/fjod/photopixel/pkg/circuitbreaker"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, os.Stdout)
	slog.SetDefault(log)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	if err := run(cfg, log); err != nil {
		log.Error("storefront stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checks := map[string]h.HealthCheck{}

	// Catalog
	catalogRepo, err := catalog.NewRepository(cfg.Catalog.DBPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer catalogRepo.Close()
	if err := catalogRepo.RunMigrations(cfg.Catalog.MigrationsPath); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	products := catalog.NewGuarded(catalogRepo, breakerConfig("catalog", log))
	log.Info("catalog ready", "path", cfg.Catalog.DBPath)

	// Cart repository
	var cartRepo repository.CartRepository
	switch cfg.Cart.Store {
	case config.CartStoreMemory:
		cartRepo = repository.NewMemoryRepository()
		log.Warn("using in-memory cart store, carts are lost on restart")
	default:
		mongoConn, err := repository.ConnectMongoDB(ctx, repository.MongoOptions{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.DBName,
			MaxPoolSize:    cfg.Mongo.MaxPoolSize,
			MinPoolSize:    cfg.Mongo.MinPoolSize,
			ConnectTimeout: cfg.Mongo.ConnectTimeout,
		})
		if err != nil {
			return err
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoConn.Close(dctx)
		}()
		mongoRepo := repository.NewMongoRepository(mongoConn.Database())
		if err := mongoRepo.CreateIndexes(ctx); err != nil {
			return err
		}
		cartRepo = mongoRepo
		checks["mongo"] = mongoConn.Ping
		log.Info("connected to MongoDB", "db", cfg.Mongo.DBName)
	}

	// Redis cart cache and checkout attempts
	var (
		cartCache cache.CartCache
		attempts  checkout.AttemptStore
	)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		cartCache = cache.NewRedisCache(redisClient)
		attempts = checkout.NewRedisAttemptStore(redisClient)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		log.Info("redis ping succeeded", "addr", cfg.Redis.Addr)
	} else {
		attempts = checkout.NewMemoryAttemptStore()
		log.Warn("redis disabled, cart cache off and checkout attempts kept in memory")
	}

	// Order ledger
	ordersRepo, err := orders.NewRepository(&orders.Credentials{
		Host:              cfg.DB.Host,
		Port:              cfg.DB.Port,
		User:              cfg.DB.User,
		Password:          cfg.DB.Password,
		DBName:            cfg.DB.Name,
		MigrationsDirPath: cfg.DB.MigrationsPath,
	})
	if err != nil {
		return fmt.Errorf("connect order ledger: %w", err)
	}
	defer ordersRepo.Close()
	if err := ordersRepo.RunMigrations(cfg.DB.MigrationsPath); err != nil {
		return fmt.Errorf("migrate order ledger: %w", err)
	}
	ledger := orders.NewGuarded(ordersRepo, breakerConfig("orders", log))
	checks["orders"] = ordersRepo.Ping
	log.Info("connected to order ledger", "host", cfg.DB.Host, "db", cfg.DB.Name)

	// Domain services
	calc := pricing.NewCalculator(cfg.Pricing.FreeShippingThreshold, cfg.Pricing.FlatShippingFee, cfg.Pricing.Currency)
	carts := service.NewCartService(cartRepo, cartCache, service.Options{
		EnforceStock:    cfg.Cart.EnforceStock,
		MaxLineQuantity: cfg.Cart.MaxLineQuantity,
		Stock:           products,
		Metrics:         m,
		Logger:          log,
	})
	buyNow := service.NewBuyNow(carts)
	orchestrator := checkout.NewOrchestrator(checkout.Dependencies{
		Carts:    carts,
		Catalog:  products,
		Ledger:   ledger,
		Payments: checkout.MockAuthorizer{},
		Attempts: attempts,
		Pricing:  calc,
		Metrics:  m,
		Logger:   log,
	}, checkout.Config{
		RepriceAtCheckout: cfg.Checkout.RepriceAtCheckout,
		RequestTimeout:    cfg.Checkout.RequestTimeout,
	})

	// Outbox publisher
	var wg sync.WaitGroup
	if len(cfg.Kafka.Brokers) > 0 {
		writer := publisher.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
		poller := publisher.NewOutboxPoller(ordersRepo, writer, m, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
		log.Info("outbox publisher started", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	} else {
		log.Warn("KAFKA_BROKERS not set, order events stay in the outbox")
	}

	// HTTP
	timeout := cfg.HTTP.RequestTimeout
	router := h.NewRouter(h.RouterConfig{
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		RequestTimeout: timeout,
		Logger:         log,
		Metrics:        m.Handler(),
		HealthChecks:   checks,
	}, h.Handlers{
		Products: h.NewProductHandler(products, timeout, log),
		Cart:     h.NewCartHandler(carts, products, calc, timeout, log),
		BuyNow:   h.NewBuyNowHandler(buyNow, products, calc, timeout, log),
		Checkout: h.NewCheckoutHandler(orchestrator, log),
		Orders:   h.NewOrdersHandler(ledger, timeout, log),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("storefront listening", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down storefront")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	wg.Wait()

	log.Info("storefront stopped")
	return nil
}

func breakerConfig(name string, log *slog.Logger) circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig(name)
	cfg.OnStateChange = func(name, from, to string) {
		log.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
	}
	return cfg
}
