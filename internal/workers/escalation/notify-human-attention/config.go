package notifyhumanattention

import (
	"time"

	"nlu-memory-assistant/internal/common/config"
)

type Config struct {
	Enabled      bool
	EmailEnabled bool
	SNSEnabled   bool
	Region       string
	FromEmail    string
	To           []string
	TopicARN     string
	Timeout      time.Duration
}

func LoadConfig(cfg *config.Config) *Config {
	n := cfg.Notifications
	return &Config{
		Enabled:      n.Enabled,
		EmailEnabled: n.Email.Enabled,
		SNSEnabled:   n.SNS.Enabled,
		Region:       n.Region,
		FromEmail:    n.Email.FromEmail,
		To:           n.Email.To,
		TopicARN:     n.SNS.TopicARN,
		Timeout:      10 * time.Second,
	}
}
