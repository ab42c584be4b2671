package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finmind/banksync-service/internal/domain"
)

// BudgetCache stores computed suggestions. Implementations swallow their own
// failures; a cache problem never fails a request.
type BudgetCache interface {
	Get(ctx context.Context, key string) (*domain.BudgetSuggestion, bool)
	Set(ctx context.Context, key string, suggestion *domain.BudgetSuggestion)
	// InvalidateUser drops every cached suggestion of userID.
	InvalidateUser(ctx context.Context, userID string)
}

const (
	budgetCachePrefix    = "budget_suggestion"
	budgetCacheScanCount = 100
)

func BudgetCacheKey(userID, month string, lookbackMonths int) string {
	return fmt.Sprintf("%s:%s:%s:%d", budgetCachePrefix, userID, month, lookbackMonths)
}

// globEscaper quotes the characters SCAN MATCH treats as wildcards.
var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// RedisBudgetCache keeps suggestions as JSON strings with a fixed TTL.
type RedisBudgetCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisBudgetCache(client redis.UniversalClient, ttl time.Duration) *RedisBudgetCache {
	return &RedisBudgetCache{client: client, ttl: ttl}
}

func (c *RedisBudgetCache) Get(ctx context.Context, key string) (*domain.BudgetSuggestion, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("level=warn component=budget_cache msg=\"cache read failed\" key=%s err=%v", key, err)
		}
		return nil, false
	}

	var suggestion domain.BudgetSuggestion
	if err := json.Unmarshal(raw, &suggestion); err != nil {
		log.Printf("level=warn component=budget_cache msg=\"discarding unreadable cache entry\" key=%s err=%v", key, err)
		return nil, false
	}
	return &suggestion, true
}

func (c *RedisBudgetCache) Set(ctx context.Context, key string, suggestion *domain.BudgetSuggestion) {
	if c.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(suggestion)
	if err != nil {
		log.Printf("level=warn component=budget_cache msg=\"cache encode failed\" key=%s err=%v", key, err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Printf("level=warn component=budget_cache msg=\"cache write failed\" key=%s err=%v", key, err)
	}
}

func (c *RedisBudgetCache) InvalidateUser(ctx context.Context, userID string) {
	pattern := fmt.Sprintf("%s:%s:*", budgetCachePrefix, globEscaper.Replace(userID))

	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, budgetCacheScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Printf("level=warn component=budget_cache msg=\"cache scan failed\" user_id=%s err=%v", userID, err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("level=warn component=budget_cache msg=\"cache invalidation failed\" user_id=%s keys=%d err=%v", userID, len(keys), err)
		return
	}
	log.Printf("level=info component=budget_cache msg=\"cached suggestions invalidated\" user_id=%s keys=%d", userID, len(keys))
}
