package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	SMTP         SMTPConfig         `mapstructure:"smtp"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Notification NotificationConfig `mapstructure:"notification"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	// MigrationsDir overrides the embedded schema when set
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// SMTPConfig holds outgoing mail settings
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// Reviewers is the distribution list copied on reviewer-facing messages
	Reviewers []string `mapstructure:"reviewers"`
}

// WorkflowConfig holds lifecycle rules
type WorkflowConfig struct {
	RenewalWindowDays int    `mapstructure:"renewal_window_days"`
	Timezone          string `mapstructure:"timezone"`
}

// NotificationConfig holds outbox retry settings
type NotificationConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseBackoff  time.Duration `mapstructure:"base_backoff"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// Load loads configuration from file and environment variables.
// A .env file next to the working directory is applied to the environment first, if present.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SMTP.Reviewers = splitList(cfg.SMTP.Reviewers)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.path", "data/vendor_lifecycle.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("smtp.port", 587)

	v.SetDefault("workflow.renewal_window_days", 60)
	v.SetDefault("workflow.timezone", "Asia/Kolkata")

	v.SetDefault("notification.poll_interval", 30*time.Second)
	v.SetDefault("notification.batch_size", 20)
	v.SetDefault("notification.max_attempts", 5)
	v.SetDefault("notification.base_backoff", time.Minute)
	v.SetDefault("notification.max_backoff", 6*time.Hour)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.prefix", "vendor_lifecycle")
}

// bindEnvVars maps credentials and deployment knobs to their conventional variable names
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"smtp.host":                    "SMTP_HOST",
		"smtp.port":                    "SMTP_PORT",
		"smtp.username":                "SMTP_USERNAME",
		"smtp.password":                "SMTP_PASSWORD",
		"smtp.from":                    "SMTP_FROM",
		"smtp.reviewers":               "REVIEWER_EMAILS",
		"database.path":                "DATABASE_PATH",
		"server.port":                  "PORT",
		"workflow.renewal_window_days": "RENEWAL_WINDOW_DAYS",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// splitList accepts both a yaml list and a single comma separated env value
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required")
	}
	if c.SMTP.From == "" {
		return fmt.Errorf("smtp.from is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Workflow.RenewalWindowDays <= 0 {
		return fmt.Errorf("workflow.renewal_window_days must be positive")
	}
	if _, err := time.LoadLocation(c.Workflow.Timezone); err != nil {
		return fmt.Errorf("workflow.timezone: %w", err)
	}
	if c.Notification.BatchSize <= 0 {
		return fmt.Errorf("notification.batch_size must be positive")
	}
	if c.Notification.MaxAttempts <= 0 {
		return fmt.Errorf("notification.max_attempts must be positive")
	}
	if c.Notification.PollInterval <= 0 {
		return fmt.Errorf("notification.poll_interval must be positive")
	}
	return nil
}
