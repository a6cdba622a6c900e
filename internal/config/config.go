package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/example/clinic-pos/internal/checkout"
	"github.com/example/clinic-pos/internal/dispatch"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverDynamo   = "dynamodb"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	NodeID   int64  `mapstructure:"NODE_ID"`
	Timezone string `mapstructure:"STORE_TIMEZONE"`

	StoreDriver    string   `mapstructure:"STORE_DRIVER"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int      `mapstructure:"DB_MAX_CONNS"`
	DynamoTable    string   `mapstructure:"DYNAMODB_TABLE"`
	AWSRegion      string   `mapstructure:"AWS_REGION"`
	DynamoEndpoint string   `mapstructure:"DYNAMODB_ENDPOINT"`
	KafkaBrokers   []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic     string   `mapstructure:"KAFKA_TOPIC"`
	JWTSecret      string   `mapstructure:"JWT_SECRET"`

	EnforceRestricted bool          `mapstructure:"ENFORCE_RESTRICTED"`
	PaymentTolerance  string        `mapstructure:"PAYMENT_TOLERANCE"`
	MaxAttempts       int           `mapstructure:"CHECKOUT_MAX_ATTEMPTS"`
	RetryBase         time.Duration `mapstructure:"CHECKOUT_RETRY_BASE"`
	TxTimeout         time.Duration `mapstructure:"CHECKOUT_TX_TIMEOUT"`
	LockTimeout       time.Duration `mapstructure:"CHECKOUT_LOCK_TIMEOUT"`
	Workers           int64         `mapstructure:"CHECKOUT_WORKERS"`
	DispatchWorkers   int           `mapstructure:"DISPATCH_WORKERS"`
	DispatchQueue     int           `mapstructure:"DISPATCH_QUEUE"`

	SMTPHost string `mapstructure:"SMTP_HOST"`
	SMTPPort string `mapstructure:"SMTP_PORT"`
	SMTPFrom string `mapstructure:"SMTP_FROM"`
}

var keys = []string{
	"PORT", "ENV", "NODE_ID", "STORE_TIMEZONE",
	"STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DYNAMODB_TABLE", "AWS_REGION", "DYNAMODB_ENDPOINT",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "JWT_SECRET",
	"ENFORCE_RESTRICTED", "PAYMENT_TOLERANCE", "CHECKOUT_MAX_ATTEMPTS", "CHECKOUT_RETRY_BASE",
	"CHECKOUT_TX_TIMEOUT", "CHECKOUT_LOCK_TIMEOUT", "CHECKOUT_WORKERS", "DISPATCH_WORKERS", "DISPATCH_QUEUE",
	"SMTP_HOST", "SMTP_PORT", "SMTP_FROM",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("STORE_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("STORE_DRIVER", DriverMemory)
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DYNAMODB_TABLE", "clinic-pos")
	v.SetDefault("AWS_REGION", "ap-south-1")
	v.SetDefault("KAFKA_TOPIC", "pos.orders")
	v.SetDefault("ENFORCE_RESTRICTED", true)
	v.SetDefault("PAYMENT_TOLERANCE", "0")
	v.SetDefault("CHECKOUT_MAX_ATTEMPTS", 3)
	v.SetDefault("CHECKOUT_RETRY_BASE", "25ms")
	v.SetDefault("CHECKOUT_TX_TIMEOUT", "3s")
	v.SetDefault("CHECKOUT_LOCK_TIMEOUT", "2s")
	v.SetDefault("CHECKOUT_WORKERS", 32)
	v.SetDefault("DISPATCH_WORKERS", 4)
	v.SetDefault("DISPATCH_QUEUE", 1024)
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", "1025")
	v.SetDefault("SMTP_FROM", "receipts@clinic.local")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", DriverPostgres)
		}
	case DriverDynamo:
		if c.DynamoTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required when STORE_DRIVER is %q", DriverDynamo)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q, %q or %q, got %q", DriverMemory, DriverPostgres, DriverDynamo, c.StoreDriver)
	}

	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required outside development (ENV=%q)", c.Env)
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("NODE_ID must be between 0 and 1023, got %d", c.NodeID)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("STORE_TIMEZONE: %w", err)
	}
	tol, err := decimal.NewFromString(c.PaymentTolerance)
	if err != nil {
		return fmt.Errorf("PAYMENT_TOLERANCE is not a number: %w", err)
	}
	if tol.IsNegative() {
		return fmt.Errorf("PAYMENT_TOLERANCE must not be negative, got %s", c.PaymentTolerance)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("CHECKOUT_MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts)
	}
	if c.TxTimeout <= 0 || c.LockTimeout <= 0 {
		return fmt.Errorf("CHECKOUT_TX_TIMEOUT and CHECKOUT_LOCK_TIMEOUT must be positive")
	}
	if c.LockTimeout > c.TxTimeout {
		return fmt.Errorf("CHECKOUT_LOCK_TIMEOUT (%s) must not exceed CHECKOUT_TX_TIMEOUT (%s)", c.LockTimeout, c.TxTimeout)
	}
	if c.Workers < 1 {
		return fmt.Errorf("CHECKOUT_WORKERS must be at least 1, got %d", c.Workers)
	}
	return nil
}

// Location returns the store timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Checkout builds the engine settings. Call after Validate.
func (c *Config) Checkout() checkout.Config {
	tol, err := decimal.NewFromString(c.PaymentTolerance)
	if err != nil {
		tol = decimal.Zero
	}
	return checkout.Config{
		MaxAttempts:       c.MaxAttempts,
		RetryBase:         c.RetryBase,
		TxTimeout:         c.TxTimeout,
		Workers:           c.Workers,
		PaymentTolerance:  tol,
		EnforceRestricted: c.EnforceRestricted,
		Location:          c.Location(),
	}
}

func (c *Config) Dispatch() dispatch.Config {
	return dispatch.Config{
		Workers:   c.DispatchWorkers,
		QueueSize: c.DispatchQueue,
	}
}

// KafkaEnabled reports whether order records go to a broker.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaBrokers[0] != ""
}
