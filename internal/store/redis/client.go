package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Options configures the shared Redis client.
type Options struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// NewClient creates a Redis client and pings the server.
func NewClient(opts Options) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	log.Printf("[redis] connected to %s (db=%d)", opts.Addr, opts.DB)
	return client, nil
}
