package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN        string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL        string `env:"RABBITMQ_URL,required=true"`
	RedisURL           string `env:"REDIS_URL,required=true"`
	SolanaRPCURL       string `env:"SOLANA_RPC_URL,required=true"`
	ProgramID          string `env:"PROGRAM_ID,required=true"`
	KeypairPath        string `env:"KEYPAIR_PATH,required=true"`
	ProgressWebhookURL string `env:"PROGRESS_WEBHOOK_URL"`
	RateLimitPerSec    int    `env:"RATE_LIMIT_PER_SEC,default=10"`
	WorkerConcurrency  int    `env:"WORKER_CONCURRENCY,default=6"`
	StaleRunAfterMin   int    `env:"STALE_RUN_AFTER_MIN,default=15"`
	APIPort            int    `env:"API_PORT,default=8080"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
