package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/teacher-transfer-api/pkg/cache"
)

// RedisDeliveryLedger remembers which (event, recipient) pairs were already served.
type RedisDeliveryLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeliveryLedger constructs a ledger whose claims expire after ttl.
func NewRedisDeliveryLedger(client *redis.Client, ttl time.Duration) *RedisDeliveryLedger {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisDeliveryLedger{client: client, ttl: ttl}
}

// Claim reserves the pair. It returns false when another attempt already holds it.
func (l *RedisDeliveryLedger) Claim(ctx context.Context, eventID, email string) (bool, error) {
	ok, err := l.client.SetNX(ctx, deliveryKey(eventID, email), time.Now().UTC().Format(time.RFC3339Nano), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim delivery: %w", err)
	}
	return ok, nil
}

// Release forgets a claim so a later retry may send again.
func (l *RedisDeliveryLedger) Release(ctx context.Context, eventID, email string) error {
	if err := l.client.Del(ctx, deliveryKey(eventID, email)).Err(); err != nil {
		return fmt.Errorf("release delivery: %w", err)
	}
	return nil
}

func deliveryKey(eventID, email string) string {
	return cache.Key("delivery", eventID, strings.ToLower(strings.TrimSpace(email)))
}
