package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyRuntimeDefaultsFillsMissingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.BaseURL = "https://access.company.com:8443"
	cfg.Notifications.Email.SMTP.Enabled = true
	cfg.Audit.Archive.Enabled = true

	filled, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Equal(t, []string{"audit.archive.prefix", "auth.jwt.secret", "notifications.email.smtp.from"}, filled)
	require.NotEmpty(t, cfg.Auth.JWT.Secret)
	require.Equal(t, "accessdesk@access.company.com", cfg.Notifications.Email.SMTP.From)
	require.Equal(t, "audit", cfg.Audit.Archive.Prefix)
}

func TestApplyRuntimeDefaultsKeepsConfiguredValues(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = "configured-secret"
	cfg.Notifications.Email.SMTP.From = "it@company.com"

	filled, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Empty(t, filled)
	require.Equal(t, "configured-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "it@company.com", cfg.Notifications.Email.SMTP.From)
}

func TestApplyRuntimeDefaultsSenderFallsBackToLocalhost(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = "x"
	cfg.Notifications.Email.SMTP.Enabled = true

	_, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Equal(t, "accessdesk@localhost", cfg.Notifications.Email.SMTP.From)
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(nil)
	require.ErrorContains(t, err, "config is nil")
}
