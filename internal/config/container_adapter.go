package config

import (
	"fmt"
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// The timezone name is resolved here so the container only sees a *time.Location.
func (c *Config) ToContainerConfig() (*container.Config, error) {
	location, err := time.LoadLocation(c.Workflow.Timezone)
	if err != nil {
		return nil, fmt.Errorf("workflow.timezone: %w", err)
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		SMTP: container.SMTPConfig{
			Host:      c.SMTP.Host,
			Port:      c.SMTP.Port,
			Username:  c.SMTP.Username,
			Password:  c.SMTP.Password,
			From:      c.SMTP.From,
			Reviewers: c.SMTP.Reviewers,
		},
		Workflow: container.WorkflowConfig{
			RenewalWindowDays: c.Workflow.RenewalWindowDays,
			Location:          location,
		},
		Notification: container.NotificationConfig{
			PollInterval: c.Notification.PollInterval,
			BatchSize:    c.Notification.BatchSize,
			MaxAttempts:  c.Notification.MaxAttempts,
			BaseBackoff:  c.Notification.BaseBackoff,
			MaxBackoff:   c.Notification.MaxBackoff,
		},
		Metrics: container.MetricsConfig{
			Enabled: c.Metrics.Enabled,
			Prefix:  c.Metrics.Prefix,
		},
	}, nil
}
