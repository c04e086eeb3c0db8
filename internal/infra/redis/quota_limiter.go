package redis

import (
	"context"
	"fmt"
	"time"
)

// QuotaLimiter tracks the external API unit budget in a per-day counter so
// all workers share one ledger. YouTube quota resets at midnight Pacific;
// the counter simply expires after 24h which is close enough for throttling.
type QuotaLimiter struct {
	client RedisClient
	limit  int
}

func NewQuotaLimiter(client RedisClient, dailyLimit int) *QuotaLimiter {
	return &QuotaLimiter{client: client, limit: dailyLimit}
}

func quotaKey(now time.Time) string {
	return fmt.Sprintf("yt_quota:%s", now.UTC().Format("2006-01-02"))
}

// Spend consumes units from today's budget. Returns false once the budget
// would be exceeded; the units are still counted so the ledger stays honest
// about attempted usage.
func (q *QuotaLimiter) Spend(ctx context.Context, units int) (bool, error) {
	key := quotaKey(time.Now())
	count, err := q.client.IncrBy(ctx, key, int64(units))
	if err != nil {
		return false, err
	}
	if count == int64(units) {
		if err := q.client.Expire(ctx, key, 24*time.Hour); err != nil {
			return false, err
		}
	}
	return count <= int64(q.limit), nil
}
