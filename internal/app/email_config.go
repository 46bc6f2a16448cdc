package app

import "github.com/charlesng35/accessdesk/internal/notifications"

// SMTPSettings converts EmailConfig to the notifier representation.
func (c EmailConfig) SMTPSettings() notifications.SMTPSettings {
	return notifications.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// WorkerConfig converts QueueConfig into asynq worker settings.
func (c QueueConfig) WorkerConfig() notifications.WorkerConfig {
	return notifications.WorkerConfig{
		RedisAddr:     c.Address,
		RedisPassword: c.Password,
		RedisDB:       c.DB,
		Concurrency:   c.Concurrency,
	}
}
