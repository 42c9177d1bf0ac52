package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"lantern-quiz-service/internal/app"
	"lantern-quiz-service/internal/domain"
)

// ParticipantCache caches participant profiles with TTL to avoid repeated
// store hits when naming solvers. Profiles are immutable, so stale reads are safe.
type ParticipantCache struct {
	loader app.ParticipantDirectory
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedParticipant
}

type cachedParticipant struct {
	participant domain.Participant
	expiresAt   time.Time
}

func NewParticipantCache(loader app.ParticipantDirectory, ttl time.Duration) *ParticipantCache {
	return &ParticipantCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedParticipant),
	}
}

func (c *ParticipantCache) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	if p, ok := c.lookup(participantID); ok {
		return p, nil
	}

	result, err, _ := c.sf.Do(participantID, func() (interface{}, error) {
		if p, ok := c.lookup(participantID); ok {
			return p, nil
		}

		p, err := c.loader.GetParticipant(ctx, participantID)
		if err != nil {
			return domain.Participant{}, err
		}

		c.mu.Lock()
		c.cache[participantID] = cachedParticipant{
			participant: p,
			expiresAt:   c.clock().Add(c.ttlWithJitterLocked()),
		}
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return result.(domain.Participant), nil
}

func (c *ParticipantCache) lookup(participantID string) (domain.Participant, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.cache[participantID]; ok && entry.expiresAt.After(now) {
		return entry.participant, true
	}
	return domain.Participant{}, false
}

func (c *ParticipantCache) ttlWithJitterLocked() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
