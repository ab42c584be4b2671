package app

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// releaseLockScript deletes a lease only while it still carries the caller's token.
// It returns the number of keys deleted.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// syncQuotaScript takes one unit from a fixed-window quota bucket. A request over the
// quota is rejected without being counted, so retries during the window do not
// extend it. It returns {allowed, remaining, ttl_ms}.
var syncQuotaScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
if used >= limit then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then
    redis.call("PEXPIRE", KEYS[1], window)
    ttl = window
  end
  return {0, 0, ttl}
end
used = redis.call("INCR", KEYS[1])
if used == 1 then
  redis.call("PEXPIRE", KEYS[1], window)
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = window
end
return {1, limit - used, ttl}
`)

// scriptInts decodes a script reply made of n integers. A single integer reply is
// accepted when n is 1.
func scriptInts(reply interface{}, n int) ([]int64, error) {
	if v, ok := reply.(int64); ok && n == 1 {
		return []int64{v}, nil
	}
	values, ok := reply.([]interface{})
	if !ok || len(values) != n {
		return nil, fmt.Errorf("unexpected redis script reply: %T %v", reply, reply)
	}
	out := make([]int64, n)
	for i, raw := range values {
		v, ok := raw.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected redis script reply element %d: %T", i, raw)
		}
		out[i] = v
	}
	return out, nil
}
