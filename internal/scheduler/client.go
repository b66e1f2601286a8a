package scheduler

import (
	"crypto/tls"
	"fmt"

	"leadflow_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// RedisClientOpt builds the asynq connection options from configuration.
func RedisClientOpt(cfg config.RedisConfig) (asynq.RedisClientOpt, error) {
	opts, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("parse redis url: %w", err)
	}

	out := asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	}
	if opts.TLSConfig != nil {
		out.TLSConfig = opts.TLSConfig
		if cfg.GetRedisTLSInsecure() {
			out.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		}
	}
	return out, nil
}

// NewClient creates an asynq task client.
func NewClient(cfg config.RedisConfig) (*asynq.Client, error) {
	opt, err := RedisClientOpt(cfg)
	if err != nil {
		return nil, err
	}
	return asynq.NewClient(opt), nil
}
