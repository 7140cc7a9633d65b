package infra

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// quotaKeyTTL keeps yesterday's counters around for status reporting while
// still letting Redis reclaim stale days.
const quotaKeyTTL = 48 * time.Hour

// QuotaTracker counts per-provider daily usage. Counters live in Redis under
// quota:<provider>:<YYYY-MM-DD>; when Redis is not configured or unreachable
// the tracker falls back to an in-process map and never blocks a caller.
type QuotaTracker struct {
	rdb    redis.Cmdable
	logger *log.Logger
	now    func() time.Time

	mu  sync.Mutex
	mem map[string]int
}

// NewQuotaTracker creates a new QuotaTracker. rdb may be nil.
func NewQuotaTracker(rdb redis.Cmdable) *QuotaTracker {
	return &QuotaTracker{
		rdb:    rdb,
		logger: log.New(log.Writer(), "[QUOTA] ", log.LstdFlags),
		now:    time.Now,
		mem:    map[string]int{},
	}
}

func (t *QuotaTracker) key(provider string) string {
	return fmt.Sprintf("quota:%s:%s", provider, t.now().UTC().Format("2006-01-02"))
}

// Usage returns the number of requests recorded for provider today.
func (t *QuotaTracker) Usage(ctx context.Context, provider string) int {
	key := t.key(provider)
	if t.rdb != nil {
		n, err := t.rdb.Get(ctx, key).Int()
		if err == nil {
			return n
		}
		if err != redis.Nil {
			t.logger.Printf("redis get %s: %v (falling back to memory)", key, err)
		} else {
			return 0
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mem[key]
}

// Increment records one request for provider and returns the new daily total.
func (t *QuotaTracker) Increment(ctx context.Context, provider string) int {
	key := t.key(provider)
	if t.rdb != nil {
		pipe := t.rdb.Pipeline()
		incr := pipe.IncrBy(ctx, key, 1)
		pipe.Expire(ctx, key, quotaKeyTTL)
		if _, err := pipe.Exec(ctx); err == nil {
			return int(incr.Val())
		} else {
			t.logger.Printf("redis incr %s: %v (falling back to memory)", key, err)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mem[key]++
	return t.mem[key]
}

// Available reports whether provider still has budget today. A dailyQuota of
// zero means unlimited. Counting failures degrade open: an unreachable
// backend never blocks a provider.
func (t *QuotaTracker) Available(ctx context.Context, provider string, dailyQuota int) bool {
	if dailyQuota <= 0 {
		return true
	}
	return t.Usage(ctx, provider) < dailyQuota
}

// Remaining returns the budget left today, or -1 for unlimited providers.
func (t *QuotaTracker) Remaining(ctx context.Context, provider string, dailyQuota int) int {
	if dailyQuota <= 0 {
		return -1
	}
	left := dailyQuota - t.Usage(ctx, provider)
	if left < 0 {
		left = 0
	}
	return left
}
