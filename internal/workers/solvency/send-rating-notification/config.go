// internal/workers/solvency/send-rating-notification/config.go
package sendratingnotification

import (
	"time"

	"solvency-workers/internal/common/config"
)

type Config struct {
	EmailEnabled bool
	FromEmail    string
	SNSEnabled   bool
	TopicARN     string
	Timeout      time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}

// ConfigFrom maps the notifications section of the application config.
func ConfigFrom(cfg config.NotificationConfig, timeout time.Duration) *Config {
	c := LoadConfig()
	c.EmailEnabled = cfg.Email.Enabled
	c.FromEmail = cfg.Email.FromEmail
	c.SNSEnabled = cfg.SNS.Enabled
	c.TopicARN = cfg.SNS.TopicARN
	if timeout > 0 {
		c.Timeout = timeout
	}
	return c
}
