// Package config loads storefront settings from the environment, with an
// optional .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	CartStoreMongo  = "mongo"
	CartStoreMemory = "memory"
)

type Config struct {
	HTTP     HTTPConfig
	Log      LogConfig
	Auth     AuthConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	DB       DBConfig
	Catalog  CatalogConfig
	Kafka    KafkaConfig
	Cart     CartConfig
	Pricing  PricingConfig
	Checkout CheckoutConfig
}

type HTTPConfig struct {
	Port            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level string
}

type AuthConfig struct {
	JWTSecret string
}

type MongoConfig struct {
	URI            string
	DBName         string
	MaxPoolSize    uint64
	MinPoolSize    uint64
	ConnectTimeout time.Duration
}

// RedisConfig with an empty Addr disables the cart cache and keeps checkout
// attempts in process memory.
type RedisConfig struct {
	Addr     string
	Password string
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	MigrationsPath string
}

type CatalogConfig struct {
	DBPath         string
	MigrationsPath string
}

// KafkaConfig with no brokers disables the outbox publisher.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type CartConfig struct {
	Store           string
	EnforceStock    bool
	MaxLineQuantity int
}

type PricingConfig struct {
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
	Currency              string
}

type CheckoutConfig struct {
	RepriceAtCheckout bool
	RequestTimeout    time.Duration
}

var envAliases = map[string]string{
	"db.migrations_path": "MIGRATIONS_PATH",
	"auth.jwt_secret":    "JWT_SECRET",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.request_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.db_name", "cartdb")
	v.SetDefault("mongo.max_pool_size", 50)
	v.SetDefault("mongo.min_pool_size", 5)
	v.SetDefault("mongo.connect_timeout", 10*time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "orders")
	v.SetDefault("db.migrations_path", "internal/orders/migrations")
	v.SetDefault("catalog.db_path", "data/products.db")
	v.SetDefault("catalog.migrations_path", "internal/catalog/migrations")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "orders-placed")
	v.SetDefault("cart.store", CartStoreMongo)
	v.SetDefault("cart.enforce_stock", true)
	v.SetDefault("cart.max_line_quantity", 99)
	v.SetDefault("pricing.free_shipping_threshold", "50000")
	v.SetDefault("pricing.flat_shipping_fee", "999")
	v.SetDefault("pricing.currency", "USD")
	v.SetDefault("checkout.reprice_at_checkout", false)
	v.SetDefault("checkout.request_timeout", 5*time.Second)
}

// Load reads .env when present and then the process environment. Keys map to
// variables by upper-casing and replacing dots, e.g. cart.enforce_stock is
// CART_ENFORCE_STOCK.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		_ = v.BindEnv(key, env)
	}
	setDefaults(v)
	return v
}

func FromViper(v *viper.Viper) (*Config, error) {
	threshold, err := decimal.NewFromString(v.GetString("pricing.free_shipping_threshold"))
	if err != nil {
		return nil, fmt.Errorf("pricing.free_shipping_threshold: %w", err)
	}
	fee, err := decimal.NewFromString(v.GetString("pricing.flat_shipping_fee"))
	if err != nil {
		return nil, fmt.Errorf("pricing.flat_shipping_fee: %w", err)
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Port:            v.GetString("http.port"),
			RequestTimeout:  v.GetDuration("http.request_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
		Log:  LogConfig{Level: v.GetString("log.level")},
		Auth: AuthConfig{JWTSecret: v.GetString("auth.jwt_secret")},
		Mongo: MongoConfig{
			URI:            v.GetString("mongo.uri"),
			DBName:         v.GetString("mongo.db_name"),
			MaxPoolSize:    v.GetUint64("mongo.max_pool_size"),
			MinPoolSize:    v.GetUint64("mongo.min_pool_size"),
			ConnectTimeout: v.GetDuration("mongo.connect_timeout"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
		},
		DB: DBConfig{
			Host:           v.GetString("db.host"),
			Port:           v.GetInt("db.port"),
			User:           v.GetString("db.user"),
			Password:       v.GetString("db.password"),
			Name:           v.GetString("db.name"),
			MigrationsPath: v.GetString("db.migrations_path"),
		},
		Catalog: CatalogConfig{
			DBPath:         v.GetString("catalog.db_path"),
			MigrationsPath: v.GetString("catalog.migrations_path"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
		},
		Cart: CartConfig{
			Store:           strings.ToLower(v.GetString("cart.store")),
			EnforceStock:    v.GetBool("cart.enforce_stock"),
			MaxLineQuantity: v.GetInt("cart.max_line_quantity"),
		},
		Pricing: PricingConfig{
			FreeShippingThreshold: threshold,
			FlatShippingFee:       fee,
			Currency:              v.GetString("pricing.currency"),
		},
		Checkout: CheckoutConfig{
			RepriceAtCheckout: v.GetBool("checkout.reprice_at_checkout"),
			RequestTimeout:    v.GetDuration("checkout.request_timeout"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Cart.Store != CartStoreMongo && c.Cart.Store != CartStoreMemory {
		errs = append(errs, fmt.Errorf("cart.store must be %q or %q, got %q", CartStoreMongo, CartStoreMemory, c.Cart.Store))
	}
	if c.Cart.MaxLineQuantity < 1 {
		errs = append(errs, errors.New("cart.max_line_quantity must be positive"))
	}
	if c.Pricing.FreeShippingThreshold.IsNegative() || c.Pricing.FlatShippingFee.IsNegative() {
		errs = append(errs, errors.New("pricing amounts must not be negative"))
	}
	if c.Checkout.RequestTimeout <= 0 {
		errs = append(errs, errors.New("checkout.request_timeout must be positive"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
