package app

import (
	"strings"

	"github.com/lombeo/sep490-backend-sub003/internal/app/maintenance"
	"github.com/lombeo/sep490-backend-sub003/internal/database"
	"github.com/lombeo/sep490-backend-sub003/internal/locks"
	"github.com/lombeo/sep490-backend-sub003/internal/otp"
	"github.com/lombeo/sep490-backend-sub003/pkg/mail"
)

// ConnectionConfig converts DatabaseConfig into database.Open parameters.
// Host settings are taken from the section matching the driver.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	cfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:            strings.TrimSpace(c.Path),
		DSN:             strings.TrimSpace(c.DSN),
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}

	var host DBAuthConfig
	switch cfg.Driver {
	case "", "sqlite":
		cfg.Driver = "sqlite"
		return cfg
	case "postgres", "postgresql":
		cfg.Driver = "postgres"
		host = c.Postgres
	case "mysql":
		host = c.MySQL
	default:
		// Unknown drivers fail in database.Open.
		return cfg
	}

	cfg.Host = strings.TrimSpace(host.Host)
	cfg.Port = host.Port
	cfg.Name = strings.TrimSpace(host.Database)
	cfg.User = strings.TrimSpace(host.Username)
	cfg.Password = host.Password
	cfg.Options = host.Options
	return cfg
}

// Policy converts OTPConfig into code lengths and lifetime. Unset values fall
// back to otp.DefaultPolicy.
func (c OTPConfig) Policy() otp.Policy {
	policy := otp.DefaultPolicy()
	if c.Length > 0 {
		policy.Length = c.Length
	}
	if c.ResetLength > 0 {
		policy.ResetLength = c.ResetLength
	}
	if c.ValidFor > 0 {
		policy.ValidFor = c.ValidFor
	}
	return policy
}

// ServiceOptions converts LockConfig into locks.Service options.
func (c LockConfig) ServiceOptions() []locks.Option {
	return []locks.Option{locks.WithConfig(locks.Config{
		Duration:  c.Duration,
		Extension: c.Extension,
	})}
}

// LockCleanupOptions converts the loop timings into maintenance options.
func (c MaintenanceConfig) LockCleanupOptions() []maintenance.LockCleanupOption {
	return []maintenance.LockCleanupOption{
		maintenance.WithInterval(c.LockCleanupInterval),
		maintenance.WithBackoff(c.LockCleanupBackoff),
	}
}

// CleanerOptions converts the cron specs into maintenance options.
func (c MaintenanceConfig) CleanerOptions() []maintenance.Option {
	return []maintenance.Option{
		maintenance.WithDirectorySchedule(c.DirectoryRefreshSpec),
		maintenance.WithCachePurgeSchedule(c.CachePurgeSpec),
	}
}

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     strings.TrimSpace(c.SMTP.Host),
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     strings.TrimSpace(c.SMTP.From),
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}
