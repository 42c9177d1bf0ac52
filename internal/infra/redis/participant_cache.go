package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"lantern-quiz-service/internal/app"
	"lantern-quiz-service/internal/domain"
)

// ParticipantCache caches participant profiles in Redis and falls back to a
// directory (usually Postgres) on miss. Profiles are cached as:
// SET lantern:cache:participant:{participantID} {participant JSON} EX ttl
type ParticipantCache struct {
	client *redis.Client
	loader app.ParticipantDirectory
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewParticipantCache(client *redis.Client, loader app.ParticipantDirectory, ttl time.Duration) *ParticipantCache {
	return &ParticipantCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ParticipantCache) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	key := participantCacheKey(participantID)
	if p, ok := c.cached(ctx, key); ok {
		return p, nil
	}

	result, err, _ := c.sf.Do(participantID, func() (interface{}, error) {
		// Re-check cache in case another instance filled it.
		if p, ok := c.cached(ctx, key); ok {
			return p, nil
		}

		p, err := c.loader.GetParticipant(ctx, participantID)
		if err != nil {
			return domain.Participant{}, err
		}

		if raw, err := json.Marshal(p); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return p, nil
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return result.(domain.Participant), nil
}

// cached treats Redis errors as misses; the loader stays authoritative.
func (c *ParticipantCache) cached(ctx context.Context, key string) (domain.Participant, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.Participant{}, false
	}
	var p domain.Participant
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Participant{}, false
	}
	return p, true
}

func (c *ParticipantCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
