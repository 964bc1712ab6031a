package utils

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/guildhall/config"
)

func withRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	SetRedis(client)
	t.Cleanup(func() {
		SetRedis(nil)
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func useConfig(t *testing.T, c config.AppConfig) {
	t.Helper()
	if c.JWTSecret == "" {
		c.JWTSecret = "test-secret"
	}
	config.Override(c)
}

func TestRedisCacheRoundTripAndInvalidate(t *testing.T) {
	_, client := withRedis(t)
	ctx := context.Background()
	cache := NewRedisCache(client)

	cache.SetJSON(ctx, "cache:leaderboard:streak:20", []int{7, 3, 1}, time.Minute)
	cache.SetJSON(ctx, "cache:leaderboard:quiz:100", []int{1}, time.Minute)
	cache.SetJSON(ctx, "cache:quiz:list", []int{2}, time.Minute)

	b, ok := cache.Get(ctx, "cache:leaderboard:streak:20")
	require.True(t, ok)
	assert.JSONEq(t, "[7,3,1]", string(b))

	cache.InvalidatePrefix(ctx, "cache:leaderboard:")
	_, ok = cache.Get(ctx, "cache:leaderboard:streak:20")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "cache:leaderboard:quiz:100")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "cache:quiz:list")
	assert.True(t, ok)
}

func TestRedisCacheWithoutClientIsNoop(t *testing.T) {
	var cache *RedisCache
	ctx := context.Background()
	cache.SetJSON(ctx, "k", 1, time.Minute)
	_, ok := cache.Get(ctx, "k")
	assert.False(t, ok)
	NewRedisCache(nil).InvalidatePrefix(ctx, "k")
}

func TestTokenBlacklistRedis(t *testing.T) {
	mr, _ := withRedis(t)
	ctx := context.Background()

	BlacklistToken(ctx, "tok", time.Now().Add(time.Hour))
	assert.True(t, IsTokenBlacklisted(ctx, "tok"))
	assert.False(t, IsTokenBlacklisted(ctx, "other"))

	mr.FastForward(2 * time.Hour)
	assert.False(t, IsTokenBlacklisted(ctx, "tok"))
}

func TestTokenBlacklistMemoryFallback(t *testing.T) {
	SetRedis(nil)
	ctx := context.Background()

	BlacklistToken(ctx, "mem-tok", time.Now().Add(time.Hour))
	assert.True(t, IsTokenBlacklisted(ctx, "mem-tok"))

	BlacklistToken(ctx, "expired", time.Now().Add(-time.Minute))
	assert.False(t, IsTokenBlacklisted(ctx, "expired"))
}

func TestRegistrationLimit(t *testing.T) {
	useConfig(t, config.AppConfig{RegisterMaxPerIPPerDay: 2})
	withRedis(t)
	ctx := context.Background()

	assert.True(t, RegistrationAllowed(ctx, "1.2.3.4"))
	RecordRegistration(ctx, "1.2.3.4")
	assert.True(t, RegistrationAllowed(ctx, "1.2.3.4"))
	RecordRegistration(ctx, "1.2.3.4")
	assert.False(t, RegistrationAllowed(ctx, "1.2.3.4"))
	assert.True(t, RegistrationAllowed(ctx, "5.6.7.8"))
}

func TestRegistrationLimitInMemory(t *testing.T) {
	useConfig(t, config.AppConfig{RegisterMaxPerIPPerDay: 1})
	SetRedis(nil)
	ctx := context.Background()

	assert.True(t, RegistrationAllowed(ctx, "9.9.9.9"))
	RecordRegistration(ctx, "9.9.9.9")
	assert.False(t, RegistrationAllowed(ctx, "9.9.9.9"))
}

func TestTokenRoundTrip(t *testing.T) {
	useConfig(t, config.AppConfig{TokenTTLHours: 2})

	token, exp, err := GenerateToken(7, "alice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), exp, time.Minute)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.WithinDuration(t, exp, claims.Expiry(), time.Second)

	_, err = ParseToken(token + "x")
	assert.Error(t, err)
}

func TestCredentials(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "secret1"))
	assert.False(t, CheckPassword(hash, "secret2"))

	a, b := GenerateReferralCode(), GenerateReferralCode()
	assert.Len(t, a, 10)
	assert.NotEqual(t, a, b)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "hello", SanitizePlain("<b>hello</b><script>alert(1)</script>"))
	assert.Equal(t, "<b>bold</b>", Sanitize("<b>bold</b><script>x</script>"))
	assert.Equal(t, "A & B", SanitizePlain("A & B"))
	assert.Equal(t, `Say "hi" <3`, SanitizePlain(`Say "hi" <3`))
	assert.Equal(t, "Tom's quiz", SanitizePlain("<i>Tom's</i> quiz"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", ParseLevel("DEBUG").String())
	assert.Equal(t, "info", ParseLevel("").String())
	assert.Equal(t, "info", ParseLevel("verbose").String())
}
