package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finmind/banksync-service/internal/domain"
)

const minQuotaWindow = time.Second

// SyncQuota is the number of manual runs of one sync type a user may start per window.
type SyncQuota struct {
	Limit  int
	Window time.Duration
}

// QuotaUsage reports the outcome of taking one unit from a quota.
type QuotaUsage struct {
	Allowed           bool
	Remaining         int
	RetryAfterSeconds int
}

// SyncRateLimiter meters manual syncs and refreshes per user. Full syncs and
// refreshes draw from separate buckets.
type SyncRateLimiter interface {
	ConsumeSyncQuota(ctx context.Context, userID string, syncType domain.SyncType, quota SyncQuota) (QuotaUsage, error)
}

// RedisSyncRateLimiter keeps one fixed-window counter per user and sync type so every
// replica shares the same budget.
type RedisSyncRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSyncRateLimiter(client redis.UniversalClient, prefix string) *RedisSyncRateLimiter {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "banksync:rate_limit"
	}
	return &RedisSyncRateLimiter{client: client, prefix: trimmedPrefix}
}

func (r *RedisSyncRateLimiter) key(userID string, syncType domain.SyncType) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, syncType, userID)
}

// ConsumeSyncQuota allows everything when the limiter has no client or the quota is
// unset.
func (r *RedisSyncRateLimiter) ConsumeSyncQuota(ctx context.Context, userID string, syncType domain.SyncType, quota SyncQuota) (QuotaUsage, error) {
	userID = strings.TrimSpace(userID)
	if r == nil || r.client == nil || quota.Limit <= 0 || userID == "" {
		return QuotaUsage{Allowed: true}, nil
	}
	switch syncType {
	case domain.SyncTypeFull, domain.SyncTypeRefresh:
	default:
		return QuotaUsage{}, fmt.Errorf("%w: unknown sync type %q", domain.ErrInvalidArgument, syncType)
	}

	window := quota.Window
	if window < minQuotaWindow {
		window = minQuotaWindow
	}

	reply, err := syncQuotaScript.Run(ctx, r.client, []string{r.key(userID, syncType)}, quota.Limit, window.Milliseconds()).Result()
	if err != nil {
		return QuotaUsage{}, fmt.Errorf("consume %s quota: %w", syncType, err)
	}
	values, err := scriptInts(reply, 3)
	if err != nil {
		return QuotaUsage{}, err
	}

	usage := QuotaUsage{Allowed: values[0] == 1, Remaining: int(values[1])}
	if !usage.Allowed {
		usage.RetryAfterSeconds = retryAfterFromMillis(values[2])
	}
	return usage, nil
}

func retryAfterFromMillis(ttlMs int64) int {
	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return retryAfter
}
