package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	appOrder "github.com/Zhima-Mochi/storefront-orders/internal/application/order"
	domorder "github.com/Zhima-Mochi/storefront-orders/internal/domain/order"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

type Config struct {
	Service  Service  `yaml:"service"`
	HTTP     HTTP     `yaml:"http"`
	Storage  Storage  `yaml:"storage"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Outbox   Outbox   `yaml:"outbox"`
	Orders   Orders   `yaml:"orders"`
	Shipment Shipment `yaml:"shipment"`
	SMTP     SMTP     `yaml:"smtp"`
	Tracing  Tracing  `yaml:"tracing"`
	Log      Log      `yaml:"log"`
}

type Service struct {
	Name string `yaml:"name" env:"SERVICE_NAME" env-default:"storefront-orders"`
	Env  string `yaml:"env" env:"ENV" env-default:"local"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
	// CallbackRPS and CallbackBurst limit the payment callback endpoint.
	CallbackRPS   float64 `yaml:"callback_rps" env:"HTTP_CALLBACK_RPS" env-default:"20"`
	CallbackBurst int     `yaml:"callback_burst" env:"HTTP_CALLBACK_BURST" env-default:"40"`
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Storage struct {
	Driver  string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"memory"`
	URL     string `yaml:"url" env:"DB_URL"`
	Migrate bool   `yaml:"migrate" env:"DB_MIGRATE" env-default:"true"`
	MaxConn int32  `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"10"`
	// Seed loads demo products and customers into the memory store.
	Seed bool `yaml:"seed" env:"STORAGE_SEED" env-default:"true"`
}

type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	TTL      time.Duration `yaml:"listing_ttl" env:"REDIS_LISTING_TTL" env-default:"5m"`
}

type Kafka struct {
	Brokers  []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	Topic    string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"orders.events"`
	ClientID string   `yaml:"client_id" env:"KAFKA_CLIENT_ID" env-default:"storefront-orders"`
}

type Outbox struct {
	Interval    time.Duration `yaml:"interval" env:"OUTBOX_INTERVAL" env-default:"1s"`
	BatchSize   int           `yaml:"batch_size" env:"OUTBOX_BATCH_SIZE" env-default:"50"`
	Lease       time.Duration `yaml:"lease" env:"OUTBOX_LEASE" env-default:"30s"`
	MaxAttempts int           `yaml:"max_attempts" env:"OUTBOX_MAX_ATTEMPTS" env-default:"10"`
}

// Orders holds the business knobs. Amounts are decimal strings.
type Orders struct {
	FreeShippingThreshold string `yaml:"free_shipping_threshold" env:"ORDERS_FREE_SHIPPING_THRESHOLD" env-default:"599"`
	FlatShippingFee       string `yaml:"flat_shipping_fee" env:"ORDERS_FLAT_SHIPPING_FEE" env-default:"49"`
	PricePolicy           string `yaml:"price_policy" env:"ORDERS_PRICE_POLICY" env-default:"trust"`
	PriceTolerance        string `yaml:"price_tolerance" env:"ORDERS_PRICE_TOLERANCE" env-default:"0"`
	CancelPolicy          string `yaml:"cancel_policy" env:"ORDERS_CANCEL_POLICY" env-default:"owner"`
	UnitWeightKg          string `yaml:"unit_weight_kg" env:"ORDERS_UNIT_WEIGHT_KG" env-default:"0.5"`
	NumberPrefix          string `yaml:"number_prefix" env:"ORDERS_NUMBER_PREFIX" env-default:"ORD"`
}

type Shipment struct {
	BaseURL     string        `yaml:"base_url" env:"SHIPMENT_BASE_URL"`
	APIKey      string        `yaml:"api_key" env:"SHIPMENT_API_KEY"`
	Timeout     time.Duration `yaml:"timeout" env:"SHIPMENT_TIMEOUT" env-default:"5s"`
	MaxFailures uint32        `yaml:"max_failures" env:"SHIPMENT_MAX_FAILURES" env-default:"5"`
	OpenTimeout time.Duration `yaml:"open_timeout" env:"SHIPMENT_OPEN_TIMEOUT" env-default:"30s"`
	// Stub books shipments locally when no carrier URL is set.
	Stub bool `yaml:"stub" env:"SHIPMENT_STUB" env-default:"true"`
}

type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User     string `yaml:"user" env:"SMTP_USER"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM" env-default:"orders@storefront.local"`
}

type Tracing struct {
	Endpoint    string  `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool    `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
	SampleRatio float64 `yaml:"sample_ratio" env:"OTEL_TRACES_SAMPLE_RATIO" env-default:"1"`
}

type Log struct {
	Level      string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"100"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"5"`
	MaxAgeDays int    `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS" env-default:"14"`
}

// Load reads an optional .env file, then the YAML file at path (if any), and
// finally the environment, which wins over both.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var err error
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.URL == "" {
			err = multierr.Append(err, errors.New("storage.url is required for the postgres driver"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("storage.driver %q is not one of [memory postgres]", c.Storage.Driver))
	}
	if c.Outbox.BatchSize <= 0 {
		err = multierr.Append(err, errors.New("outbox.batch_size must be greater than 0"))
	}
	if c.Outbox.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("outbox.max_attempts must be greater than 0"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		err = multierr.Append(err, errors.New("tracing.sample_ratio must be within [0, 1]"))
	}
	if _, serr := c.Orders.Settings(); serr != nil {
		err = multierr.Append(err, serr)
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Settings converts the order knobs into the order flow settings.
func (o Orders) Settings() (appOrder.Settings, error) {
	var err error
	amount := func(name, v string) decimal.Decimal {
		d, perr := decimal.NewFromString(strings.TrimSpace(v))
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("orders.%s: %q is not a decimal", name, v))
			return decimal.Zero
		}
		if d.IsNegative() {
			err = multierr.Append(err, fmt.Errorf("orders.%s must not be negative", name))
		}
		return d
	}

	s := appOrder.Settings{
		Shipping: domorder.ShippingPolicy{
			FreeThreshold: amount("free_shipping_threshold", o.FreeShippingThreshold),
			FlatFee:       amount("flat_shipping_fee", o.FlatShippingFee),
		},
		Pricing:        appOrder.PricePolicy(strings.ToLower(o.PricePolicy)),
		PriceTolerance: amount("price_tolerance", o.PriceTolerance),
		CancelPolicy:   domorder.CancelPolicy(strings.ToLower(o.CancelPolicy)),
		UnitWeightKg:   amount("unit_weight_kg", o.UnitWeightKg),
	}
	if !s.Pricing.Valid() {
		err = multierr.Append(err, fmt.Errorf("orders.price_policy %q is not one of [trust reprice strict]", o.PricePolicy))
	}
	if !s.CancelPolicy.Valid() {
		err = multierr.Append(err, fmt.Errorf("orders.cancel_policy %q is not one of [owner transitions]", o.CancelPolicy))
	}
	return s, err
}
