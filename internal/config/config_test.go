package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afisha-platform/booking-core/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "afisha", cfg.Database.Name)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.ReminderSweepInterval)
	assert.Equal(t, 3*time.Hour, cfg.LifecycleSweepInterval)
	assert.False(t, cfg.SMTP.Configured())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ADDR", ":9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "booking")
	t.Setenv("QUEUE_WORKERS", "8")
	t.Setenv("REMINDER_SWEEP_INTERVAL", "30m")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 8, cfg.Queue.Workers)
	assert.Equal(t, 30*time.Minute, cfg.ReminderSweepInterval)
	assert.Contains(t, cfg.Database.DSN(), "host=db.internal")
	assert.Contains(t, cfg.Database.DSN(), "dbname=booking")
}

func TestSMTPConfigured(t *testing.T) {
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("SMTP_USER", "mailer")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.False(t, cfg.SMTP.Configured(), "a partial SMTP config must not be treated as configured")

	t.Setenv("SMTP_PASSWORD", "secret")
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.SMTP.Configured())
}
