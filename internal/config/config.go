package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=8"`

	// MaxTaskAttempts bounds retries per task before escalation to
	// technical-failure.
	MaxTaskAttempts   int `env:"MAX_TASK_ATTEMPTS,default=3"`
	RetryDelaySeconds int `env:"RETRY_DELAY_SECONDS,default=300"`

	// CallbackRatePerSec throttles outbound service callbacks per service.
	CallbackRatePerSec int `env:"CALLBACK_RATE_PER_SEC,default=50"`

	// OperatorNotifyURL receives every complaint for platform operators,
	// independent of client callback configuration. Optional.
	OperatorNotifyURL   string `env:"OPERATOR_NOTIFY_URL"`
	OperatorNotifyToken string `env:"OPERATOR_NOTIFY_TOKEN"`

	// ProfileServiceURL is the contact-resolution collaborator. Optional;
	// without it the contact-lookups queue rejects its messages.
	ProfileServiceURL   string `env:"PROFILE_SERVICE_URL"`
	ProfileServiceToken string `env:"PROFILE_SERVICE_TOKEN"`

	// Internal sender addresses whose SES callbacks carry no notification.
	VerifyFromEmail string `env:"VERIFY_FROM_EMAIL"`
	InviteFromEmail string `env:"INVITE_FROM_EMAIL"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
