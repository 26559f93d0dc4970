package config

import (
	"github.com/hibiken/asynq"     // Job queue connection options
	"github.com/redis/go-redis/v9" // Redis client
)

// RedisOptions returns the go-redis connection options
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.RedisAddr, // Redis server address
		Password: c.RedisPass, // Redis password
		DB:       c.RedisDB,   // Redis database number
	}
}

// AsynqRedisOpt returns the same connection for the job queue
func (c *Config) AsynqRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPass, DB: c.RedisDB}
}
