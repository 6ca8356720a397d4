// Package config reads server settings from the environment.
//
// A .env file in the working directory is loaded first if present; real
// environment variables win over it. Unset variables take the defaults below.
//
//	PORT              8080
//	DB_PATH           leave.db
//	CATALOG_PATH      (empty: built-in leave types)
//	LOG_FORMAT        dev | json
//	KAFKA_BROKERS     comma separated (empty: events go to the log)
//	KAFKA_TOPIC       leave.requests.v1
//	RELAY_INTERVAL    3s
//	RELAY_BATCH       50
//	REDIS_ADDR        (empty: no Idempotency-Key support)
//	RATE_LIMIT_RPS    10
//	RATE_LIMIT_BURST  20
//	SHUTDOWN_TIMEOUT  30s
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        int
	DBPath      string
	CatalogPath string
	LogFormat   string

	KafkaBrokers  []string
	KafkaTopic    string
	RelayInterval time.Duration
	RelayBatch    int

	RedisAddr string

	RateLimitRPS   float64
	RateLimitBurst int

	ShutdownTimeout time.Duration
}

func Default() Config {
	return Config{
		Port:            8080,
		DBPath:          "leave.db",
		LogFormat:       "dev",
		KafkaTopic:      "leave.requests.v1",
		RelayInterval:   3 * time.Second,
		RelayBatch:      50,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Load reads .env (if any) and the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary lookup function. Invalid
// numbers or durations are reported, never silently defaulted.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	cfg.Port = p.integer("PORT", cfg.Port)
	cfg.DBPath = p.str("DB_PATH", cfg.DBPath)
	cfg.CatalogPath = p.str("CATALOG_PATH", cfg.CatalogPath)
	cfg.LogFormat = strings.ToLower(p.str("LOG_FORMAT", cfg.LogFormat))
	cfg.KafkaBrokers = splitList(p.str("KAFKA_BROKERS", ""))
	cfg.KafkaTopic = p.str("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.RelayInterval = p.dur("RELAY_INTERVAL", cfg.RelayInterval)
	cfg.RelayBatch = p.integer("RELAY_BATCH", cfg.RelayBatch)
	cfg.RedisAddr = p.str("REDIS_ADDR", cfg.RedisAddr)
	cfg.RateLimitRPS = p.number("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = p.integer("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.ShutdownTimeout = p.dur("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH is required"))
	}
	if c.LogFormat != "dev" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be dev or json, got %q", c.LogFormat))
	}
	if c.RelayInterval <= 0 {
		errs = append(errs, errors.New("RELAY_INTERVAL must be positive"))
	}
	if c.RelayBatch <= 0 {
		errs = append(errs, errors.New("RELAY_BATCH must be positive"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *parser) str(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (p *parser) number(key string, def float64) float64 {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return def
	}
	return f
}

func (p *parser) dur(key string, def time.Duration) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
