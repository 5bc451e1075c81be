// Package config loads shelterd settings from the environment.
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

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the entity store. An empty DSN means the in-memory store.
type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the scheduler tick lock. An empty URL means an in-process lock.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type SchedulerConfig struct {
	TickInterval time.Duration
	LockTTL      time.Duration
	MaxAttempts  int
	BatchSize    int
}

type RetentionConfig struct {
	Period       time.Duration
	TaskTimeout  time.Duration
	OfficerEmail string
}

// NotifierConfig points at the mail relay. An empty URL logs messages instead of sending them.
type NotifierConfig struct {
	RelayURL string
	APIKey   string
	Sender   string
	Timeout  time.Duration
}

type Config struct {
	Environment string
	LogLevel    string
	Server      Server
	Database    DatabaseConfig
	Redis       RedisConfig
	Scheduler   SchedulerConfig
	Retention   RetentionConfig
	Notifier    NotifierConfig
}

// IsProduction switches logging to JSON.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment take precedence over the file.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from SHELTERD_* environment variables so main stays lean.
func FromEnv() (Config, error) {
	p := &parser{}
	cfg := Config{
		Environment: str("SHELTERD_ENV", "development"),
		LogLevel:    str("SHELTERD_LOG_LEVEL", "info"),
		Server: Server{
			Addr:            str("SHELTERD_ADDR", ":8080"),
			RequestTimeout:  p.duration("SHELTERD_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: p.duration("SHELTERD_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             os.Getenv("SHELTERD_DATABASE_URL"),
			MaxOpenConns:    p.integer("SHELTERD_DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    p.integer("SHELTERD_DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.duration("SHELTERD_DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("SHELTERD_REDIS_URL"),
			PoolSize:     p.integer("SHELTERD_REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("SHELTERD_REDIS_MIN_IDLE_CONNS", 1),
			DialTimeout:  p.duration("SHELTERD_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("SHELTERD_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("SHELTERD_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Scheduler: SchedulerConfig{
			TickInterval: p.duration("SHELTERD_SCHEDULER_TICK", 15*time.Second),
			LockTTL:      p.duration("SHELTERD_SCHEDULER_LOCK_TTL", 60*time.Second),
			MaxAttempts:  p.integer("SHELTERD_SCHEDULER_MAX_ATTEMPTS", 3),
			BatchSize:    p.integer("SHELTERD_SCHEDULER_BATCH_SIZE", 50),
		},
		Retention: RetentionConfig{
			Period:       p.duration("SHELTERD_RETENTION_PERIOD", 30*24*time.Hour),
			TaskTimeout:  p.duration("SHELTERD_RETENTION_TASK_TIMEOUT", 300*time.Second),
			OfficerEmail: os.Getenv("SHELTERD_RETENTION_OFFICER_EMAIL"),
		},
		Notifier: NotifierConfig{
			RelayURL: os.Getenv("SHELTERD_MAIL_RELAY_URL"),
			APIKey:   os.Getenv("SHELTERD_MAIL_RELAY_API_KEY"),
			Sender:   str("SHELTERD_MAIL_SENDER", "noreply@shelterops.local"),
			Timeout:  p.duration("SHELTERD_MAIL_TIMEOUT", 10*time.Second),
		},
	}
	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("SHELTERD_ADDR must not be empty"))
	}
	if c.Scheduler.TickInterval <= 0 {
		errs = append(errs, errors.New("SHELTERD_SCHEDULER_TICK must be positive"))
	}
	if c.Scheduler.LockTTL < c.Scheduler.TickInterval {
		errs = append(errs, errors.New("SHELTERD_SCHEDULER_LOCK_TTL must be at least the tick interval"))
	}
	if c.Scheduler.MaxAttempts < 1 {
		errs = append(errs, errors.New("SHELTERD_SCHEDULER_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Retention.Period <= 0 {
		errs = append(errs, errors.New("SHELTERD_RETENTION_PERIOD must be positive"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("SHELTERD_LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel))
	}
	return errors.Join(errs...)
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

type parser struct {
	errs []error
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}
