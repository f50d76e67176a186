// Package config loads service configuration from YAML and the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"token-chart-lab/internal/domain"
	"token-chart-lab/internal/logger"
	"token-chart-lab/internal/retry"
)

// Config is the root configuration.
type Config struct {
	Log       logger.Config `yaml:"log"`
	Subgraph  Subgraph      `yaml:"subgraph"`
	Ingestion Ingestion     `yaml:"ingestion"`
	Storage   Storage       `yaml:"storage"`
	Redis     Redis         `yaml:"redis"`
	Server    Server        `yaml:"server"`
}

// Subgraph configures the price provider.
type Subgraph struct {
	Endpoint string        `yaml:"endpoint" default:"https://api.thegraph.com/subgraphs/name/uniswap/uniswap-v3" validate:"required,url"`
	Timeout  time.Duration `yaml:"timeout" default:"30s" validate:"gt=0"`
}

// Ingestion configures the periodic fetch cycle.
type Ingestion struct {
	LookbackDays     int                   `yaml:"lookback_days" default:"7" validate:"min=1"`
	PollInterval     time.Duration         `yaml:"poll_interval" default:"5m" validate:"gt=0"`
	PageSize         int                   `yaml:"page_size" default:"100" validate:"min=1,max=1000"`
	Concurrency      int                   `yaml:"concurrency" default:"1" validate:"min=1,max=64"`
	RetentionEnabled bool                  `yaml:"retention_enabled" default:"true"`
	Tokens           []domain.TrackedToken `yaml:"tokens" validate:"dive"`
	Retry            retry.Policy          `yaml:"retry"`
}

// Lookback returns the retention and bootstrap window.
func (i Ingestion) Lookback() time.Duration {
	return time.Duration(i.LookbackDays) * 24 * time.Hour
}

// TrackedTokens returns the configured set, or the defaults when none is given.
func (i Ingestion) TrackedTokens() []domain.TrackedToken {
	if len(i.Tokens) == 0 {
		return domain.DefaultTrackedTokens()
	}
	return i.Tokens
}

// Storage selects backends. Tokens always live in Postgres unless Backend is
// memory; PointsBackend can move hourly points to ClickHouse.
type Storage struct {
	Backend       string   `yaml:"backend" default:"postgres" validate:"oneof=memory postgres"`
	PointsBackend string   `yaml:"points_backend" default:"postgres" validate:"oneof=postgres clickhouse"`
	Postgres      Postgres `yaml:"postgres"`
	ClickhouseDSN string   `yaml:"clickhouse_dsn" validate:"required_if=PointsBackend clickhouse"`
}

// Postgres holds connection parameters.
type Postgres struct {
	Host     string `yaml:"host" default:"localhost" validate:"required"`
	Port     int    `yaml:"port" default:"5432" validate:"min=1,max=65535"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	Database string `yaml:"database" default:"postgres" validate:"required"`
	Schema   string `yaml:"schema" default:"public"`
	SSLMode  string `yaml:"sslmode" default:"disable"`
	MinConns int    `yaml:"min_conns" default:"16" validate:"min=0,ltefield=MaxConns"`
	MaxConns int    `yaml:"max_conns" default:"1024" validate:"min=1"`
}

// DSN renders a pgx connection URL.
func (p Postgres) DSN() string {
	q := url.Values{}
	q.Set("sslmode", p.SSLMode)
	if p.Schema != "" {
		q.Set("search_path", p.Schema)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Redis configures the optional token metadata cache. Empty Addr disables it.
type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl" default:"10m"`
}

// Server configures the HTTP API.
type Server struct {
	Addr            string        `yaml:"addr" default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads a YAML file over the defaults and validates the result.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TRANSPORT_URL"); v != "" {
		c.Subgraph.Endpoint = v
	}

	pg := &c.Storage.Postgres
	if v := os.Getenv("DB_HOST"); v != "" {
		pg.Host = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		pg.User = v
	}
	if v := os.Getenv("DB_PASS"); v != "" {
		pg.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		pg.Database = v
	}
	if v := os.Getenv("DB_SCHEMA"); v != "" {
		pg.Schema = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"DB_PORT", &pg.Port},
		{"MINIMUM_DB_CONNECTIONS", &pg.MinConns},
		{"MAXIMUM_DB_CONNECTIONS", &pg.MaxConns},
		{"LOOKBACK_DAYS", &c.Ingestion.LookbackDays},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		*e.dst = n
	}

	// Seconds, as deployed.
	if v := os.Getenv("DATA_POLL_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DATA_POLL_INTERVAL: %w", err)
		}
		c.Ingestion.PollInterval = time.Duration(n) * time.Second
	}

	// Persistence mode keeps all history. The misspelt name is accepted too.
	for _, name := range []string{"PERSISTENCE_MODE", "PERSISTANCE_MODE"} {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			on, err := parseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			c.Ingestion.RetentionEnabled = !on
		}
	}

	return nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}
