package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOptions configures the client behind the slot locker. Zero pool
// sizes keep the go-redis defaults.
type ClientOptions struct {
	Addr         string
	Username     string
	Password     string
	PoolSize     int
	MinIdleConns int
}

func (o ClientOptions) redisOptions() *redis.Options {
	return &redis.Options{
		Addr:     o.Addr,
		Username: o.Username,
		Password: o.Password,
		DB:       0,
		// lock calls are short; a slow Redis should fail the booking fast
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     o.PoolSize,
		MinIdleConns: o.MinIdleConns,
	}
}

func NewRedisClient(opts ClientOptions) (*redis.Client, error) {
	rdb := redis.NewClient(opts.redisOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	return rdb, nil
}
