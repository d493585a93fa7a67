// Package config loads galley's runtime configuration.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional YAML file, and GALLEY_* environment variables (a .env file in the
// working directory is loaded into the environment first when present).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	StockPolicy     string         `yaml:"stock_policy"`
	PositionEpsilon float64        `yaml:"position_epsilon"`
	AppendPolicy    string         `yaml:"append_policy"`
	Catalog         CatalogConfig  `yaml:"catalog"`
	Store           StoreConfig    `yaml:"store"`
	Stock           StockConfig    `yaml:"stock"`
	Postgres        PostgresConfig `yaml:"postgres"`
	Redis           RedisConfig    `yaml:"redis"`
	AMQP            AMQPConfig     `yaml:"amqp"`
	Retry           RetryConfig    `yaml:"retry"`
	Decaf           DecafConfig    `yaml:"decaf"`
	KDS             KDSConfig      `yaml:"kds"`
	HTTP            HTTPConfig     `yaml:"http"`
	Log             LogConfig      `yaml:"log"`
}

type CatalogConfig struct {
	// Path is a YAML or CUE catalog imported at startup. Empty skips import.
	Path string `yaml:"path"`
}

type StoreConfig struct {
	Driver  string        `yaml:"driver"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

type StockConfig struct {
	// Backend selects where stock rows live: the order store, postgres or
	// redis.
	Backend string `yaml:"backend"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr string        `yaml:"addr"`
	TTL  time.Duration `yaml:"ttl"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Initial  time.Duration `yaml:"initial"`
	Max      time.Duration `yaml:"max"`
}

type DecafConfig struct {
	Markers []string `yaml:"markers"`
}

type KDSConfig struct {
	MilkMarkers   []string `yaml:"milk_markers"`
	HiddenMarkers []string `yaml:"hidden_markers"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Stock backends.
const (
	StockBackendStore    = "store"
	StockBackendPostgres = "postgres"
	StockBackendRedis    = "redis"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StockPolicy:     "hard",
		PositionEpsilon: 1e-9,
		AppendPolicy:    "tail",
		Store: StoreConfig{
			Driver:  DriverSQLite,
			Path:    "galley.db",
			Timeout: 2 * time.Second,
		},
		Stock: StockConfig{Backend: StockBackendStore},
		Redis: RedisConfig{TTL: 24 * time.Hour},
		AMQP:  AMQPConfig{Exchange: "galley.kds"},
		Retry: RetryConfig{
			Attempts: 3,
			Initial:  50 * time.Millisecond,
			Max:      time.Second,
		},
		Decaf: DecafConfig{Markers: []string{"decaf", "נטול קפאין", "ללא קפאין", "דקף"}},
		KDS: KDSConfig{
			MilkMarkers:   []string{"oat", "soy", "almond", "שיבולת", "סויה", "שקדים"},
			HiddenMarkers: []string{"default", "רגיל"},
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		src, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(src, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode rejects unknown keys so typos fail loudly.
func decode(src []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// An empty file leaves the defaults in place.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	c.StockPolicy = getEnv("GALLEY_STOCK_POLICY", c.StockPolicy)
	c.AppendPolicy = getEnv("GALLEY_APPEND_POLICY", c.AppendPolicy)
	if c.PositionEpsilon, err = getEnvAsFloat("GALLEY_POSITION_EPSILON", c.PositionEpsilon); err != nil {
		return err
	}
	c.Catalog.Path = getEnv("GALLEY_CATALOG_PATH", c.Catalog.Path)
	c.Store.Driver = getEnv("GALLEY_STORE_DRIVER", c.Store.Driver)
	c.Store.Path = getEnv("GALLEY_STORE_PATH", c.Store.Path)
	if c.Store.Timeout, err = getEnvAsDuration("GALLEY_STORE_TIMEOUT", c.Store.Timeout); err != nil {
		return err
	}
	c.Stock.Backend = getEnv("GALLEY_STOCK_BACKEND", c.Stock.Backend)
	c.Postgres.DSN = getEnv("GALLEY_POSTGRES_DSN", c.Postgres.DSN)
	c.Redis.Addr = getEnv("GALLEY_REDIS_ADDR", c.Redis.Addr)
	if c.Redis.TTL, err = getEnvAsDuration("GALLEY_REDIS_TTL", c.Redis.TTL); err != nil {
		return err
	}
	c.AMQP.URL = getEnv("GALLEY_AMQP_URL", c.AMQP.URL)
	c.AMQP.Exchange = getEnv("GALLEY_AMQP_EXCHANGE", c.AMQP.Exchange)
	if c.Retry.Attempts, err = getEnvAsInt("GALLEY_RETRY_ATTEMPTS", c.Retry.Attempts); err != nil {
		return err
	}
	if c.Retry.Initial, err = getEnvAsDuration("GALLEY_RETRY_INITIAL", c.Retry.Initial); err != nil {
		return err
	}
	if c.Retry.Max, err = getEnvAsDuration("GALLEY_RETRY_MAX", c.Retry.Max); err != nil {
		return err
	}
	c.Decaf.Markers = getEnvAsList("GALLEY_DECAF_MARKERS", c.Decaf.Markers)
	c.HTTP.Addr = getEnv("GALLEY_HTTP_ADDR", c.HTTP.Addr)
	c.Log.Level = getEnv("GALLEY_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("GALLEY_LOG_FORMAT", c.Log.Format)
	return nil
}

// Validate rejects unknown enum values and out-of-range numbers.
func (c Config) Validate() error {
	var errs []error
	oneOf := func(field, v string, allowed ...string) {
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: %q must be one of %s", field, v, strings.Join(allowed, ", ")))
	}

	oneOf("stock_policy", c.StockPolicy, "hard", "soft")
	oneOf("append_policy", c.AppendPolicy, "tail", "head")
	oneOf("store.driver", c.Store.Driver, DriverSQLite, DriverMemory)
	oneOf("stock.backend", c.Stock.Backend, StockBackendStore, StockBackendPostgres, StockBackendRedis)
	oneOf("log.level", c.Log.Level, "debug", "info", "warn", "error")
	oneOf("log.format", c.Log.Format, "text", "json")

	if c.PositionEpsilon <= 0 || c.PositionEpsilon >= 1 {
		errs = append(errs, fmt.Errorf("position_epsilon: must be in (0, 1), got %g", c.PositionEpsilon))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("store.timeout: must be positive, got %s", c.Store.Timeout))
	}
	if c.Store.Driver == DriverSQLite && c.Store.Path == "" {
		errs = append(errs, errors.New("store.path: required for the sqlite driver"))
	}
	if c.Retry.Attempts < 1 {
		errs = append(errs, fmt.Errorf("retry.attempts: must be at least 1, got %d", c.Retry.Attempts))
	}
	if c.Retry.Initial < 0 || c.Retry.Max < 0 {
		errs = append(errs, errors.New("retry: delays must not be negative"))
	}
	if c.Redis.TTL < 0 {
		errs = append(errs, fmt.Errorf("redis.ttl: must not be negative, got %s", c.Redis.TTL))
	}
	switch c.Stock.Backend {
	case StockBackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn: required for the postgres stock backend"))
		}
	case StockBackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr: required for the redis stock backend"))
		}
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvAsFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvAsDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// getEnvAsList splits a comma-separated value.
func getEnvAsList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
