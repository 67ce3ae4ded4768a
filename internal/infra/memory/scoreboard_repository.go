package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-admin-service/internal/domain"
)

// ScoreboardLoader builds a fresh public snapshot from the backing store.
type ScoreboardLoader interface {
	LoadScoreboard(ctx context.Context, quizID int64) (domain.Scoreboard, error)
}

// ScoreboardRepository caches scoreboard snapshots with TTL for deployments
// without Redis.
type ScoreboardRepository struct {
	loader ScoreboardLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[int64]cachedScoreboard
}

type cachedScoreboard struct {
	scoreboard domain.Scoreboard
	expiresAt  time.Time
}

func NewScoreboardRepository(loader ScoreboardLoader, ttl time.Duration) *ScoreboardRepository {
	return &ScoreboardRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedScoreboard),
	}
}

func (r *ScoreboardRepository) Scoreboard(ctx context.Context, quizID int64) (domain.Scoreboard, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[quizID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.scoreboard, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(strconv.FormatInt(quizID, 10), func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[quizID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.scoreboard, nil
		}
		r.mu.RUnlock()

		sb, err := r.loader.LoadScoreboard(ctx, quizID)
		if err != nil {
			return domain.Scoreboard{}, err
		}

		r.mu.Lock()
		r.cache[quizID] = cachedScoreboard{
			scoreboard: sb,
			expiresAt:  now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return sb, nil
	})
	if err != nil {
		return domain.Scoreboard{}, err
	}
	return result.(domain.Scoreboard), nil
}

// Invalidate drops the snapshot after a quiz or leaderboard write.
func (r *ScoreboardRepository) Invalidate(_ context.Context, quizID int64) error {
	r.mu.Lock()
	delete(r.cache, quizID)
	r.mu.Unlock()
	return nil
}

func (r *ScoreboardRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
