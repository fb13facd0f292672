package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const deliveryKeyPrefix = "identity:webhook:delivered:"

// DeliveryGuard remembers webhook message ids that were already handled so a
// redelivery can be acknowledged without touching the database again.
// It is an optimization only: handlers stay idempotent without it.
type DeliveryGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeliveryGuard(client *redis.Client, ttl time.Duration) *DeliveryGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DeliveryGuard{client: client, ttl: ttl}
}

func (g *DeliveryGuard) Seen(ctx context.Context, messageID string) (bool, error) {
	n, err := g.client.Exists(ctx, deliveryKeyPrefix+messageID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *DeliveryGuard) Mark(ctx context.Context, messageID string) error {
	return g.client.Set(ctx, deliveryKeyPrefix+messageID, time.Now().UTC().Format(time.RFC3339), g.ttl).Err()
}
