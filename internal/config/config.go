// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all tunables for the booking core.
type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	Database Database `envPrefix:"DB_"`
	SMTP     SMTP     `envPrefix:"SMTP_"`
	Queue    Queue    `envPrefix:"QUEUE_"`

	ReminderSweepInterval  time.Duration `env:"REMINDER_SWEEP_INTERVAL" envDefault:"1h"`
	LifecycleSweepInterval time.Duration `env:"LIFECYCLE_SWEEP_INTERVAL" envDefault:"3h"`
}

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"postgres"`
	Name     string `env:"NAME" envDefault:"afisha"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

// DSN builds a libpq-compatible connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// SMTP holds mail transport settings. When incomplete, the service falls
// back to a log-only mailer instead of refusing to start.
type SMTP struct {
	Host     string        `env:"HOST"`
	Port     string        `env:"PORT"`
	User     string        `env:"USER"`
	Password string        `env:"PASSWORD"`
	Sender   string        `env:"SENDER" envDefault:"noreply@afisha.example"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// Configured reports whether every field needed to actually speak SMTP is set.
func (s SMTP) Configured() bool {
	return s.Host != "" && s.Port != "" && s.User != "" && s.Password != ""
}

// Queue holds worker-pool settings for the notification task queue.
type Queue struct {
	Workers      int           `env:"WORKERS" envDefault:"4"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	MaxAttempts  int           `env:"MAX_ATTEMPTS" envDefault:"3"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
