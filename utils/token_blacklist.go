package utils

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const blacklistPrefix = "jwt:blacklist:"

var (
	blacklist   = map[string]time.Time{}
	blacklistMu sync.Mutex
)

// BlacklistToken revokes token until expiresAt. Redis is used when available so every
// instance sees the revocation; otherwise the token is kept in process memory.
func BlacklistToken(ctx context.Context, token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		err := rc.Set(ctx, blacklistPrefix+token, "1", ttl).Err()
		if err == nil {
			return
		}
		L().Warn("token blacklist write failed, keeping in memory", zap.Error(err))
	}
	blacklistMu.Lock()
	blacklist[token] = expiresAt
	blacklistMu.Unlock()
}

// IsTokenBlacklisted reports whether token was revoked before its natural expiry.
func IsTokenBlacklisted(ctx context.Context, token string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		n, err := rc.Exists(ctx, blacklistPrefix+token).Result()
		if err == nil && n > 0 {
			return true
		}
		if err != nil {
			// fail open so a Redis outage does not lock everyone out
			L().Warn("token blacklist lookup failed", zap.Error(err))
		}
	}

	blacklistMu.Lock()
	defer blacklistMu.Unlock()
	expiresAt, ok := blacklist[token]
	if !ok {
		return false
	}
	if time.Now().After(expiresAt) {
		delete(blacklist, token)
		return false
	}
	return true
}
