package app

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/charlesng35/accessdesk/pkg/crypto"
)

const jwtSecretBytes = 48

// ApplyRuntimeDefaults fills settings that can be derived at startup and
// returns the keys it filled. Secret values are never returned.
func ApplyRuntimeDefaults(cfg *Config) ([]string, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	var filled []string
	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		secret, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
		cfg.Auth.JWT.Secret = secret
		filled = append(filled, "auth.jwt.secret")
	}

	smtp := &cfg.Notifications.Email.SMTP
	if smtp.Enabled && strings.TrimSpace(smtp.From) == "" {
		host := "localhost"
		if u, err := url.Parse(cfg.Server.BaseURL); err == nil && u.Hostname() != "" {
			host = u.Hostname()
		}
		smtp.From = "accessdesk@" + host
		filled = append(filled, "notifications.email.smtp.from")
	}

	if cfg.Audit.Archive.Enabled && strings.TrimSpace(cfg.Audit.Archive.Prefix) == "" {
		cfg.Audit.Archive.Prefix = "audit"
		filled = append(filled, "audit.archive.prefix")
	}

	sort.Strings(filled)
	return filled, nil
}
