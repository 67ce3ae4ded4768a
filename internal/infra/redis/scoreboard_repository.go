package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-admin-service/internal/domain"
)

// ScoreboardLoader builds a fresh public snapshot from the backing store.
type ScoreboardLoader interface {
	LoadScoreboard(ctx context.Context, quizID int64) (domain.Scoreboard, error)
}

// ScoreboardRepository caches public leaderboard snapshots in Redis so event
// screens can poll without hammering Postgres. Only the unconditionally
// public read path is cached; policy decisions and role grants are never
// cached anywhere, so a revocation takes effect on the next request.
type ScoreboardRepository struct {
	client *redis.Client
	loader ScoreboardLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewScoreboardRepository(client *redis.Client, loader ScoreboardLoader, ttl time.Duration) *ScoreboardRepository {
	return &ScoreboardRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ScoreboardRepository) Scoreboard(ctx context.Context, quizID int64) (domain.Scoreboard, error) {
	key := r.key(quizID)

	if sb, ok := r.getCached(ctx, key); ok {
		return sb, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if sb, ok := r.getCached(ctx, key); ok {
			return sb, nil
		}
		sb, err := r.loader.LoadScoreboard(ctx, quizID)
		if err != nil {
			return domain.Scoreboard{}, err
		}
		if data, err := json.Marshal(sb); err == nil {
			_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		return sb, nil
	})
	if err != nil {
		return domain.Scoreboard{}, err
	}
	return result.(domain.Scoreboard), nil
}

// Invalidate drops the snapshot after a quiz or leaderboard write.
func (r *ScoreboardRepository) Invalidate(ctx context.Context, quizID int64) error {
	return r.client.Del(ctx, r.key(quizID)).Err()
}

func (r *ScoreboardRepository) getCached(ctx context.Context, key string) (domain.Scoreboard, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		// redis.Nil and transport errors both count as a miss; the loader
		// is authoritative.
		return domain.Scoreboard{}, false
	}
	var sb domain.Scoreboard
	if err := json.Unmarshal(raw, &sb); err != nil {
		return domain.Scoreboard{}, false
	}
	return sb, true
}

func (r *ScoreboardRepository) key(quizID int64) string {
	return "scoreboard:" + strconv.FormatInt(quizID, 10)
}

func (r *ScoreboardRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
