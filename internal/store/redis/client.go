package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Dial creates a Redis client and pings the server.
func Dial(cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return client, nil
}
