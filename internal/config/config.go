// Package config loads process settings from an optional TOML file and lets
// environment variables override individual keys.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

var ErrInvalid = errors.New("config: invalid")

// Duration decodes TOML and env strings such as "2s" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %w", ErrInvalid, text, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	ServiceName string `toml:"service_name"`
	Env         string `toml:"env"`

	Inventory InventoryConfig `toml:"inventory"`
	Catalog   CatalogConfig   `toml:"catalog"`
	Storage   StorageConfig   `toml:"storage"`
	Kafka     KafkaConfig     `toml:"kafka"`
	Reconcile ReconcileConfig `toml:"reconcile"`
}

type InventoryConfig struct {
	Addr string `toml:"addr"`
	// AvailabilityDriver selects the store behind the inventory service.
	// Empty means the shared storage driver.
	AvailabilityDriver string `toml:"availability_driver"`
}

type CatalogConfig struct {
	Addr         string   `toml:"addr"`
	InventoryURL string   `toml:"inventory_url"`
	CallTimeout  Duration `toml:"call_timeout"`
	SkipPrecheck bool     `toml:"skip_precheck"`
}

type StorageConfig struct {
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
	RedisAddr   string `toml:"redis_addr"`
	RedisPrefix string `toml:"redis_prefix"`
}

type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

type ReconcileConfig struct {
	Enabled          bool     `toml:"enabled"`
	Interval         Duration `toml:"interval"`
	Grace            Duration `toml:"grace"`
	Repair           bool     `toml:"repair"`
	RepairsPerSecond float64  `toml:"repairs_per_second"`
}

func Default() Config {
	return Config{
		ServiceName: "libraryhold",
		Env:         "dev",
		Inventory: InventoryConfig{
			Addr: ":8081",
		},
		Catalog: CatalogConfig{
			Addr:         ":8080",
			InventoryURL: "http://localhost:8081",
			CallTimeout:  Duration(2 * time.Second),
		},
		Storage: StorageConfig{
			Driver:      DriverSQLite,
			SQLitePath:  "library.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "libraryhold",
		},
		Kafka: KafkaConfig{
			Topic: "libraryhold.events",
		},
		Reconcile: ReconcileConfig{
			Interval:         Duration(time.Minute),
			Grace:            Duration(30 * time.Second),
			RepairsPerSecond: 5,
		},
	}
}

// Load starts from Default, decodes path when it is non-empty, then applies
// environment overrides. A missing file is an error only when path was given.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	getenv := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	getenv("SERVICE_NAME", &c.ServiceName)
	getenv("ENV", &c.Env)
	getenv("INVENTORY_ADDR", &c.Inventory.Addr)
	getenv("AVAILABILITY_DRIVER", &c.Inventory.AvailabilityDriver)
	getenv("CATALOG_ADDR", &c.Catalog.Addr)
	getenv("INVENTORY_URL", &c.Catalog.InventoryURL)
	getenv("STORAGE_DRIVER", &c.Storage.Driver)
	getenv("SQLITE_PATH", &c.Storage.SQLitePath)
	getenv("POSTGRES_DSN", &c.Storage.PostgresDSN)
	getenv("REDIS_ADDR", &c.Storage.RedisAddr)
	getenv("REDIS_PREFIX", &c.Storage.RedisPrefix)
	getenv("KAFKA_TOPIC", &c.Kafka.Topic)

	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitList(v)
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{"INVENTORY_CALL_TIMEOUT", &c.Catalog.CallTimeout},
		{"RECONCILE_INTERVAL", &c.Reconcile.Interval},
		{"RECONCILE_GRACE", &c.Reconcile.Grace},
	}
	for _, d := range durations {
		if v, ok := lookup(d.key); ok && v != "" {
			if err := d.dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s: %w", d.key, err)
			}
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"SKIP_PRECHECK", &c.Catalog.SkipPrecheck},
		{"RECONCILE_ENABLED", &c.Reconcile.Enabled},
		{"RECONCILE_REPAIR", &c.Reconcile.Repair},
	}
	for _, b := range bools {
		if v, ok := lookup(b.key); ok && v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalid, b.key, err)
			}
			*b.dst = parsed
		}
	}

	if v, ok := lookup("RECONCILE_REPAIRS_PER_SECOND"); ok && v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: RECONCILE_REPAIRS_PER_SECOND: %w", ErrInvalid, err)
		}
		c.Reconcile.RepairsPerSecond = parsed
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("%w: storage driver %q", ErrInvalid, c.Storage.Driver))
	}
	switch c.AvailabilityDriver() {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("%w: availability driver %q", ErrInvalid, c.Inventory.AvailabilityDriver))
	}
	// The availability store may open its own connection, so its driver
	// needs settings too.
	drivers := []string{c.Storage.Driver}
	if d := c.AvailabilityDriver(); d != c.Storage.Driver {
		drivers = append(drivers, d)
	}
	for _, driver := range drivers {
		if err := c.checkConnection(driver); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Catalog.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: inventory call timeout must be positive", ErrInvalid))
	}
	if c.Reconcile.Enabled && c.Reconcile.Interval <= 0 {
		errs = append(errs, fmt.Errorf("%w: reconcile interval must be positive", ErrInvalid))
	}
	return errors.Join(errs...)
}

func (c Config) checkConnection(driver string) error {
	switch {
	case driver == DriverPostgres && c.Storage.PostgresDSN == "":
		return fmt.Errorf("%w: postgres driver needs POSTGRES_DSN", ErrInvalid)
	case driver == DriverSQLite && c.Storage.SQLitePath == "":
		return fmt.Errorf("%w: sqlite driver needs SQLITE_PATH", ErrInvalid)
	case driver == DriverRedis && c.Storage.RedisAddr == "":
		return fmt.Errorf("%w: redis driver needs REDIS_ADDR", ErrInvalid)
	}
	return nil
}

// AvailabilityDriver resolves the inventory store driver, falling back to the
// shared storage driver.
func (c Config) AvailabilityDriver() string {
	if c.Inventory.AvailabilityDriver != "" {
		return c.Inventory.AvailabilityDriver
	}
	return c.Storage.Driver
}

func (c Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 }

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
