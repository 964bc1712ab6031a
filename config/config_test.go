package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset(t *testing.T) {
	t.Helper()
	mu.Lock()
	loaded = false
	cfg = AppConfig{}
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		loaded = false
		mu.Unlock()
	})
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromYAMLWithDefaults(t *testing.T) {
	reset(t)
	path := writeYAML(t, `
app:
  port: "9090"
  jwt_secret: from-file
database:
  driver: memory
points:
  referrer_bonus: 200
admin:
  usernames: [root, Ops]
`)
	c := LoadFrom(path)

	assert.Equal(t, "9090", c.AppPort)
	assert.Equal(t, "from-file", c.JWTSecret)
	assert.Equal(t, "memory", c.StorageDriver)
	assert.Equal(t, 200, c.ReferrerBonus)
	assert.Equal(t, 50, c.ReferredBonus)
	assert.Equal(t, 20, c.StreakLeaderboardSize)
	assert.Equal(t, 100, c.PointsLeaderboardSize)
	assert.Equal(t, 72, c.TokenTTLHours)
	assert.Equal(t, []string{"*"}, c.AllowedOrigins)
	assert.False(t, c.ReferralAllowRepeat, "referral bonuses are paid once per referred user by default")
	assert.True(t, c.IsAdmin("ops"))
	assert.False(t, c.IsAdmin(""))

	// cached after the first load
	assert.Equal(t, c, Get())
}

func TestEnvOverridesFile(t *testing.T) {
	reset(t)
	path := writeYAML(t, `
app:
  jwt_secret: from-file
points:
  referral_allow_repeat: false
`)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("REFERRAL_ALLOW_REPEAT", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("STREAK_LEADERBOARD_SIZE", "5")

	c := LoadFrom(path)
	assert.Equal(t, "from-env", c.JWTSecret)
	assert.True(t, c.ReferralAllowRepeat)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins)
	assert.Equal(t, 5, c.StreakLeaderboardSize)
}

func TestZeroBonusIsKept(t *testing.T) {
	reset(t)
	path := writeYAML(t, `
app:
  jwt_secret: s
points:
  referrer_bonus: 0
`)
	c := LoadFrom(path)
	assert.Equal(t, 0, c.ReferrerBonus)
	assert.Equal(t, 50, c.ReferredBonus)

	// re-applying defaults, as the --storage override does, keeps the 0
	c = Override(c)
	assert.Equal(t, 0, c.ReferrerBonus)

	reset(t)
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("REFERRED_BONUS", "0")
	c = LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, 100, c.ReferrerBonus)
	assert.Equal(t, 0, c.ReferredBonus)
}

func TestMissingFileUsesEnvironment(t *testing.T) {
	reset(t)
	t.Setenv("JWT_SECRET", "only-env")
	c := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, "only-env", c.JWTSecret)
	assert.Equal(t, "8080", c.AppPort)
	assert.Equal(t, "mysql", c.StorageDriver)
}

func TestOverrideFillsDefaults(t *testing.T) {
	reset(t)
	c := Override(AppConfig{JWTSecret: "x", ReferredBonus: 75})
	assert.Equal(t, 75, c.ReferredBonus)
	assert.Equal(t, 100, c.ReferrerBonus)
	assert.Equal(t, c, Get())
}

func TestDSN(t *testing.T) {
	c := AppConfig{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: "3307", DBName: "guild"}
	assert.Equal(t, "u:p@tcp(db:3307)/guild?charset=utf8mb4&parseTime=True&loc=UTC", c.DSN())

	c.DatabaseURI = "custom"
	assert.Equal(t, "custom", c.DSN())
}
