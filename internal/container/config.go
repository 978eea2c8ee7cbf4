// Package container provides dependency injection and lifecycle management
// for the vendor lifecycle service.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	SMTP         SMTPConfig
	Workflow     WorkflowConfig
	Notification NotificationConfig
	Metrics      MetricsConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to the SQLite database file, or ":memory:"
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration

	// MigrationsDir reads migrations from disk instead of the embedded set
	MigrationsDir string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SMTPConfig holds outgoing mail settings.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	Reviewers []string
}

// WorkflowConfig holds lifecycle rules.
type WorkflowConfig struct {
	// RenewalWindowDays is how close to expiry a vendor may be re-initiated
	RenewalWindowDays int

	// Location is the timezone in which calendar days are counted
	Location *time.Location
}

// NotificationConfig holds outbox delivery and retry settings.
type NotificationConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool
	Prefix  string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/vendor_lifecycle.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Workflow: WorkflowConfig{
			RenewalWindowDays: 60,
			Location:          time.UTC,
		},
		Notification: NotificationConfig{
			PollInterval: 30 * time.Second,
			BatchSize:    20,
			MaxAttempts:  5,
			BaseBackoff:  time.Minute,
			MaxBackoff:   6 * time.Hour,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Prefix:  "vendor_lifecycle",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required")
	}
	if c.SMTP.From == "" {
		return fmt.Errorf("smtp.from is required")
	}
	if c.Workflow.RenewalWindowDays <= 0 {
		return fmt.Errorf("workflow.renewal_window_days must be positive")
	}
	if c.Notification.BatchSize <= 0 {
		return fmt.Errorf("notification.batch_size must be positive")
	}
	return nil
}
