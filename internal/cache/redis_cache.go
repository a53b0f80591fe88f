package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/vishnucreator46/SmartTax-Hackthon/internal/cart"
	"github.com/vishnucreator46/SmartTax-Hackthon/internal/domain"
)

const (
	sessionKeyPrefix = "smarttax:session:"
	summaryKeyPrefix = "smarttax:summary:"
)

type Redis struct {
	client *redis.Client
}

func NewRedis(addr string, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Redis{client: client}
}

func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Client exposes the connection so checkout locks share it.
func (c *Redis) Client() *redis.Client {
	return c.client
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.client.Close()
}

func (c *Redis) GetSession(ctx context.Context, id string) (*cart.Snapshot, bool, error) {
	var snap cart.Snapshot
	ok, err := c.getJSON(ctx, sessionKeyPrefix+id, &snap)
	if !ok || err != nil {
		return nil, false, err
	}
	return &snap, true, nil
}

func (c *Redis) SetSession(ctx context.Context, snap cart.Snapshot, ttl time.Duration) error {
	return c.setJSON(ctx, sessionKeyPrefix+snap.ID, snap, ttl)
}

func (c *Redis) DeleteSession(ctx context.Context, id string) error {
	return c.client.Del(ctx, sessionKeyPrefix+id).Err()
}

func (c *Redis) GetSummary(ctx context.Context, key string) (*domain.SalesSummary, bool, error) {
	var summary domain.SalesSummary
	ok, err := c.getJSON(ctx, summaryKeyPrefix+key, &summary)
	if !ok || err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *Redis) SetSummary(ctx context.Context, key string, value *domain.SalesSummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	return c.setJSON(ctx, summaryKeyPrefix+key, value, ttl)
}

func (c *Redis) InvalidateSummary(ctx context.Context, key string) error {
	return c.client.Del(ctx, summaryKeyPrefix+key).Err()
}

func (c *Redis) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Redis) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
