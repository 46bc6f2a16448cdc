package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, []string{"https://desk.company.com", "https://admin.company.com"}, cfg.Server.CORS.Origins)
	require.Equal(t, 5.0, cfg.Server.RateLimit.RPS)
	require.Equal(t, 10, cfg.Server.RateLimit.Burst)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	db := cfg.Database.ConnectionConfig()
	require.Equal(t, "postgres", db.Driver)
	require.Equal(t, "db.example.com", db.Host)
	require.Equal(t, 5433, db.Port)
	require.Equal(t, "accessdesk", db.Name)
	require.Equal(t, "desk", db.User)

	tokens := cfg.Auth.TokenConfig()
	require.Equal(t, "jwt-secret", tokens.Secret)
	require.Equal(t, "accessdesk-test", tokens.Issuer)
	require.Equal(t, 2*time.Hour, tokens.TTL)

	require.False(t, cfg.Access.EnforceTraining)
	require.Equal(t, "read_only", cfg.Access.AutoGrantAccessLevel)
	wf := cfg.Access.WorkflowConfig(cfg.Server.BaseURL)
	require.Equal(t, 168*time.Hour, wf.ApprovedGrantTTL)
	require.Equal(t, "read_write", wf.ApprovedAccessLevel)
	require.Equal(t, "https://accessdesk.company.com", wf.BaseURL)
	require.Equal(t, 3, cfg.Access.WhitelistConfig().MaxActive)
	require.Equal(t, 90*24*time.Hour, cfg.Access.APIKeyConfig().TTL)

	smtp := cfg.Notifications.Email.SMTPSettings()
	require.True(t, smtp.Enabled)
	require.Equal(t, 587, smtp.Port)
	require.Equal(t, "redis:6379", cfg.Notifications.Queue.WorkerConfig().RedisAddr)

	require.Equal(t, 12*time.Hour, cfg.Maintenance.ReminderAfter)
	require.Equal(t, "@every 5m", cfg.Maintenance.GrantExpirySchedule)
	require.Equal(t, "audit-archive", cfg.Audit.Archive.S3Config().Bucket)
	require.Equal(t, "audit", cfg.Audit.Archive.Prefix)
}

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ACCESSDESK_SERVER_PORT", "7070")
	t.Setenv("ACCESSDESK_ACCESS_ENFORCE_TRAINING", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.False(t, cfg.Access.EnforceTraining)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 720*time.Hour, cfg.Access.ApprovedGrantTTL)
	require.Equal(t, "accessdesk", cfg.Auth.JWT.Issuer)
	require.True(t, cfg.Seed.Enabled)
	require.True(t, cfg.Notifications.InApp)
	require.Equal(t, "sqlite", cfg.Database.ConnectionConfig().Driver)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{Port: 8000, RateLimit: RateLimitConfig{RPS: 1, Burst: 1}},
			Database: DatabaseConfig{Driver: "sqlite"},
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Database.Driver = "oracle"
	require.ErrorContains(t, cfg.Validate(), "unsupported database driver")

	cfg = valid()
	cfg.Server.RateLimit.Burst = 0
	require.ErrorContains(t, cfg.Validate(), "rate limit")

	cfg = valid()
	cfg.Access.ApprovedGrantTTL = -time.Hour
	require.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Audit.Archive.Enabled = true
	require.ErrorContains(t, cfg.Validate(), "bucket")
}
