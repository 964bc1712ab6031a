package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cppla/guildhall/config"
)

var (
	localRegistrations   = map[string]int{}
	localRegistrationsMu sync.Mutex
)

func registrationKey(ip string, now time.Time) string {
	return "reg:succday:" + ip + ":" + now.UTC().Format("20060102")
}

// RegistrationAllowed reports whether ip may create another account today (UTC).
// Redis errors fail open.
func RegistrationAllowed(ctx context.Context, ip string) bool {
	limit := config.Get().RegisterMaxPerIPPerDay
	if limit <= 0 {
		return true
	}
	key := registrationKey(ip, time.Now())
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		n, err := rc.Get(ctx, key).Int()
		if err == redis.Nil {
			return true
		}
		if err != nil {
			L().Warn("registration limit lookup failed", zap.String("ip", ip), zap.Error(err))
			return true
		}
		return n < limit
	}
	localRegistrationsMu.Lock()
	defer localRegistrationsMu.Unlock()
	return localRegistrations[key] < limit
}

// RecordRegistration counts a successful registration for ip until the end of the UTC day.
func RecordRegistration(ctx context.Context, ip string) {
	now := time.Now()
	key := registrationKey(ip, now)
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		if err := rc.Incr(ctx, key).Err(); err != nil {
			L().Warn("registration counter failed", zap.String("ip", ip), zap.Error(err))
			return
		}
		ttl := time.Until(now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour))
		_ = rc.Expire(ctx, key, ttl).Err()
		return
	}
	localRegistrationsMu.Lock()
	defer localRegistrationsMu.Unlock()
	for k := range localRegistrations {
		if k[len(k)-8:] != now.UTC().Format("20060102") {
			delete(localRegistrations, k)
		}
	}
	localRegistrations[key]++
}
