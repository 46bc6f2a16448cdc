package app

import (
	"strings"

	"github.com/charlesng35/accessdesk/internal/approval"
	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/auth"
	"github.com/charlesng35/accessdesk/internal/database"
	"github.com/charlesng35/accessdesk/internal/integrations"
	"github.com/charlesng35/accessdesk/internal/policy"
	"github.com/charlesng35/accessdesk/internal/services"
)

// TokenConfig converts AuthConfig into identity token settings.
func (c AuthConfig) TokenConfig() auth.TokenConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultTokenTTL
	}
	return auth.TokenConfig{Secret: c.JWT.Secret, Issuer: c.JWT.Issuer, TTL: ttl}
}

// EvaluatorConfig converts AccessConfig into policy evaluator settings.
func (c AccessConfig) EvaluatorConfig() policy.Config {
	return policy.Config{
		EnforceTraining:      c.EnforceTraining,
		AutoGrantAccessLevel: c.AutoGrantAccessLevel,
	}
}

// WorkflowConfig converts AccessConfig into approval workflow settings.
func (c AccessConfig) WorkflowConfig(baseURL string) approval.Config {
	return approval.Config{
		ApprovedAccessLevel: c.ApprovedGrantAccessLevel,
		ApprovedGrantTTL:    c.ApprovedGrantTTL,
		BaseURL:             strings.TrimRight(baseURL, "/"),
	}
}

// WhitelistConfig converts AccessConfig into IP whitelist settings.
func (c AccessConfig) WhitelistConfig() services.WhitelistConfig {
	return services.WhitelistConfig{TTL: c.WhitelistTTL, MaxActive: c.MaxActiveWhitelists}
}

// APIKeyConfig converts AccessConfig into API key settings.
func (c AccessConfig) APIKeyConfig() services.APIKeyConfig {
	return services.APIKeyConfig{Prefix: c.APIKeyPrefix, TTL: c.APIKeyTTL}
}

// IntegrationConfig converts IntegrationsConfig into collaborator settings.
func (c IntegrationsConfig) IntegrationConfig() integrations.Config {
	return integrations.Config{
		Latency:       c.SimulatedLatency,
		TicketBaseURL: c.Ticketing.BaseURL,
		TicketProject: c.Ticketing.Project,
		Organization:  c.SourceControl.Organization,
	}
}

// ConnectionConfig converts DatabaseConfig into driver settings.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	cfg := database.Config{
		Driver:   strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:     c.Path,
		DSN:      c.DSN,
		LogLevel: c.LogLevel,
	}
	var host DBAuthConfig
	switch cfg.Driver {
	case "postgres", "postgresql":
		host = c.Postgres
	case "mysql":
		host = c.MySQL
	default:
		return cfg
	}
	cfg.Host = host.Host
	cfg.Port = host.Port
	cfg.Name = host.Database
	cfg.User = host.Username
	cfg.Password = host.Password
	return cfg
}

// S3Config converts ArchiveConfig into object storage settings.
func (c ArchiveConfig) S3Config() audit.S3Config {
	return audit.S3Config{
		Bucket:    c.Bucket,
		Prefix:    c.Prefix,
		Region:    c.Region,
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
	}
}
