package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shelfcast/internal/domain"
)

const DefaultDecisionTTL = 5 * time.Minute

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// DecisionCache stores decision records keyed by request fingerprint and
// ensemble version, so a reload naturally invalidates older entries.
type DecisionCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewDecisionCache(client RedisClient, ttl time.Duration) *DecisionCache {
	if ttl <= 0 {
		ttl = DefaultDecisionTTL
	}
	return &DecisionCache{client: client, ttl: ttl}
}

// Key fingerprints a request payload for one ensemble version.
func Key(version int, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal cache payload: %w", err)
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("decision:v%d:%s", version, hex.EncodeToString(sum[:16])), nil
}

// Get returns nil, nil on a miss.
func (c *DecisionCache) Get(ctx context.Context, key string) (*domain.DecisionRecord, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec domain.DecisionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode cached decision %s: %w", key, err)
	}
	return &rec, nil
}

func (c *DecisionCache) Set(ctx context.Context, key string, rec domain.DecisionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}
