package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"
)

var ErrCacheMiss = fmt.Errorf("cache miss")

// Cache stores serialized realm representations keyed per realm.
type Cache interface {
	Set(ctx context.Context, realmID, key string, value string, expiration time.Duration) error
	Get(ctx context.Context, realmID, key string) (string, error)
	Delete(ctx context.Context, realmID, key string) error
	Exists(ctx context.Context, realmID, key string) (bool, error)
	FlushRealm(ctx context.Context, realmID string) error
	Health(ctx context.Context) error
	Close()
}

type ValkeyCache struct {
	client valkey.Client
	logger *zap.Logger
	prefix string
}

type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

func NewValkeyCache(config Config, logger *zap.Logger) (*ValkeyCache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%d", config.Host, config.Port)},
		Password:    config.Password,
		SelectDB:    config.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	cache := &ValkeyCache{
		client: client,
		logger: logger,
		prefix: config.Prefix,
	}

	if err := cache.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping Valkey: %w", err)
	}

	logger.Info("Valkey cache client created successfully",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("prefix", config.Prefix))

	return cache, nil
}

func (c *ValkeyCache) Ping(ctx context.Context) error {
	cmd := c.client.B().Ping().Build()
	result := c.client.Do(ctx, cmd)
	return result.Error()
}

func (c *ValkeyCache) buildKey(realmID, key string) string {
	if c.prefix != "" {
		return fmt.Sprintf("%s:realm:%s:%s", c.prefix, realmID, key)
	}
	return fmt.Sprintf("realm:%s:%s", realmID, key)
}

func (c *ValkeyCache) Set(ctx context.Context, realmID, key string, value string, expiration time.Duration) error {
	fullKey := c.buildKey(realmID, key)

	var cmd valkey.Completed
	if expiration > 0 {
		cmd = c.client.B().Set().Key(fullKey).Value(value).Ex(expiration).Build()
	} else {
		cmd = c.client.B().Set().Key(fullKey).Value(value).Build()
	}

	result := c.client.Do(ctx, cmd)
	if err := result.Error(); err != nil {
		c.logger.Error("Failed to set cache value",
			zap.String("realm_id", realmID),
			zap.String("key", key),
			zap.Error(err))
		return err
	}

	return nil
}

func (c *ValkeyCache) Get(ctx context.Context, realmID, key string) (string, error) {
	fullKey := c.buildKey(realmID, key)

	cmd := c.client.B().Get().Key(fullKey).Build()
	result := c.client.Do(ctx, cmd)

	if err := result.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return "", ErrCacheMiss
		}
		c.logger.Error("Failed to get cache value",
			zap.String("realm_id", realmID),
			zap.String("key", key),
			zap.Error(err))
		return "", err
	}

	value, err := result.ToString()
	if err != nil {
		return "", fmt.Errorf("failed to convert result to string: %w", err)
	}

	return value, nil
}

func (c *ValkeyCache) Delete(ctx context.Context, realmID, key string) error {
	fullKey := c.buildKey(realmID, key)

	cmd := c.client.B().Del().Key(fullKey).Build()
	result := c.client.Do(ctx, cmd)

	if err := result.Error(); err != nil {
		c.logger.Error("Failed to delete cache value",
			zap.String("realm_id", realmID),
			zap.String("key", key),
			zap.Error(err))
		return err
	}

	return nil
}

func (c *ValkeyCache) Exists(ctx context.Context, realmID, key string) (bool, error) {
	fullKey := c.buildKey(realmID, key)

	cmd := c.client.B().Exists().Key(fullKey).Build()
	result := c.client.Do(ctx, cmd)

	if err := result.Error(); err != nil {
		c.logger.Error("Failed to check cache key existence",
			zap.String("realm_id", realmID),
			zap.String("key", key),
			zap.Error(err))
		return false, err
	}

	count, err := result.AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to convert result to int64: %w", err)
	}

	return count > 0, nil
}

// FlushRealm drops every cached representation for the realm, typically after
// a commit made them stale.
func (c *ValkeyCache) FlushRealm(ctx context.Context, realmID string) error {
	pattern := c.buildKey(realmID, "*")

	cmd := c.client.B().Scan().Cursor(0).Match(pattern).Count(1000).Build()
	result := c.client.Do(ctx, cmd)

	if err := result.Error(); err != nil {
		c.logger.Error("Failed to scan cache keys for realm",
			zap.String("realm_id", realmID),
			zap.Error(err))
		return err
	}

	scanResult, err := result.AsScanEntry()
	if err != nil {
		return fmt.Errorf("failed to parse scan result: %w", err)
	}

	if len(scanResult.Elements) > 0 {
		delCmd := c.client.B().Del().Key(scanResult.Elements...).Build()
		delResult := c.client.Do(ctx, delCmd)

		if err := delResult.Error(); err != nil {
			c.logger.Error("Failed to delete realm cache keys",
				zap.String("realm_id", realmID),
				zap.Int("key_count", len(scanResult.Elements)),
				zap.Error(err))
			return err
		}

		c.logger.Info("Flushed realm cache",
			zap.String("realm_id", realmID),
			zap.Int("keys_deleted", len(scanResult.Elements)))
	}

	return nil
}

func (c *ValkeyCache) Close() {
	c.client.Close()
	c.logger.Info("Valkey cache client closed")
}

func (c *ValkeyCache) Health(ctx context.Context) error {
	return c.Ping(ctx)
}
