package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"veloj/pkg/utils/config"
)

// RedisConfig holds the connection settings for redis.
type RedisConfig struct {
	Addr         string          `yaml:"addr"`
	Password     string          `yaml:"password"`
	DB           int             `yaml:"db"`
	MaxRetries   int             `yaml:"maxRetries"`
	DialTimeout  config.Duration `yaml:"dialTimeout"`
	ReadTimeout  config.Duration `yaml:"readTimeout"`
	WriteTimeout config.Duration `yaml:"writeTimeout"`
	PoolSize     int             `yaml:"poolSize"`
	MinIdleConns int             `yaml:"minIdleConns"`
}

// ApplyDefaults fills unset fields with sensible defaults.
func (c *RedisConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = config.Duration(5 * time.Second)
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = config.Duration(3 * time.Second)
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = config.Duration(3 * time.Second)
	}
	if c.PoolSize == 0 {
		c.PoolSize = 20
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = 2
	}
}

// NewRedisClient opens a redis client and verifies connectivity.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	cfg.ApplyDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout.Std(),
		ReadTimeout:  cfg.ReadTimeout.Std(),
		WriteTimeout: cfg.WriteTimeout.Std(),
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout.Std())
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
