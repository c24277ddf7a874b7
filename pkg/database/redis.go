package database

import (
	"context"
	"strings"

	"cifuzz/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type RedisParams struct {
	fx.In

	Config *config.AppConfig
	Logger *zap.Logger
}

// NewRedisClient builds the dedup store client. Redis is optional: with no
// URL and no sentinel hosts configured the client is nil and crash dedup is
// skipped.
func NewRedisClient(p RedisParams) *redis.Client {
	var client *redis.Client
	var err error

	switch {
	case p.Config.RedisURL != "":
		client, err = newRedisClient(p.Config.RedisURL)
	case p.Config.RedisSentinelHosts != "":
		client, err = newRedisFailoverClient(p.Config.RedisSentinelHosts, p.Config.RedisMasterName)
	default:
		return nil
	}
	if err != nil {
		p.Logger.Warn("failed to create Redis client, continuing without dedup", zap.Error(err))
		return nil
	}

	p.Logger.Debug("Redis client created successfully")
	return client
}

func newRedisFailoverClient(redisSentinelHostsString, redisMasterName string) (*redis.Client, error) {
	redisSentinelHosts := strings.Split(redisSentinelHostsString, ",")

	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    redisMasterName,
		SentinelAddrs: redisSentinelHosts,
		DB:            0,
	})

	// Test the connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

func newRedisClient(redisUrl string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisUrl)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(options)

	// Test the connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}
