package database

import (
	"context"
	"fmt"

	"github.com/insurelane/surveyd/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connection established")
	return client, nil
}
