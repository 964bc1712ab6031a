package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via config files or the environment.
type AppConfig struct {
	AppPort            string
	JWTSecret          string
	TokenTTLHours      int
	RateLimitPerMinute int
	AllowedOrigins     []string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Storage: "mysql" or "memory"
	StorageDriver string
	DatabaseURI   string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	// Redis for caching, token revocation and registration limits
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Points and leaderboards
	ReferrerBonus          int
	ReferredBonus          int
	ReferralAllowRepeat    bool
	StreakLeaderboardSize  int
	PointsLeaderboardSize  int
	LeaderboardCacheSec    int
	QuizCacheSec           int
	RegisterMaxPerIPPerDay int
	// Admins
	AdminUsernames []string

	// set when a bonus came from the file or the environment, so 0 is kept
	referrerBonusSet bool
	referredBonusSet bool
}

// fileConfig mirrors the grouped layout of config/config.yaml.
type fileConfig struct {
	App struct {
		Port               string   `yaml:"port"`
		JWTSecret          string   `yaml:"jwt_secret"`
		TokenTTLHours      int      `yaml:"token_ttl_hours"`
		RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
		AllowedOrigins     []string `yaml:"allowed_origins"`
		GinMode            string   `yaml:"gin_mode"`
		GinPath            string   `yaml:"gin_path"`
	} `yaml:"app"`
	Database struct {
		Driver   string `yaml:"driver"`
		URI      string `yaml:"uri"`
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`
	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		DB       int    `yaml:"db"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	Log struct {
		Level      string `yaml:"level"`
		Path       string `yaml:"path"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
	Points struct {
		ReferrerBonus         *int `yaml:"referrer_bonus"`
		ReferredBonus         *int `yaml:"referred_bonus"`
		ReferralAllowRepeat   bool `yaml:"referral_allow_repeat"`
		StreakLeaderboardSize int  `yaml:"streak_leaderboard_size"`
		PointsLeaderboardSize int  `yaml:"points_leaderboard_size"`
		LeaderboardCacheSec   int  `yaml:"leaderboard_cache_sec"`
		QuizCacheSec          int  `yaml:"quiz_cache_sec"`
	} `yaml:"points"`
	Register struct {
		MaxPerIPPerDay int `yaml:"max_per_ip_per_day"`
	} `yaml:"register"`
	Admin struct {
		Usernames []string `yaml:"usernames"`
	} `yaml:"admin"`
}

var (
	cfg    AppConfig
	loaded bool
	mu     sync.RWMutex
)

// DefaultPath is where Load looks for the YAML file when CONFIG_PATH is unset.
var DefaultPath = filepath.Join("config", "config.yaml")

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	return LoadFrom(getEnv("CONFIG_PATH", DefaultPath))
}

// LoadFrom loads configuration using path as the YAML source.
func LoadFrom(path string) AppConfig {
	mu.Lock()
	defer mu.Unlock()
	if loaded {
		return cfg
	}

	// Precedence: config.yaml -> defaults -> environment variable overrides
	var c AppConfig
	if err := loadYAMLConfig(path, &c); err != nil {
		log.Fatalf("invalid config file %s: %v", path, err)
	}
	applyDefaults(&c)
	applyEnvOverrides(&c)

	if c.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in config or environment variables")
	}

	cfg = c
	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	mu.RLock()
	if loaded {
		c := cfg
		mu.RUnlock()
		return c
	}
	mu.RUnlock()
	return Load()
}

// Override installs c as the active configuration after filling defaults. Intended for tests and tooling.
func Override(c AppConfig) AppConfig {
	applyDefaults(&c)
	mu.Lock()
	cfg = c
	loaded = true
	mu.Unlock()
	return c
}

// IsAdmin reports whether username is configured as an admin (case-insensitive).
func (c AppConfig) IsAdmin(username string) bool {
	uname := strings.TrimSpace(username)
	if uname == "" {
		return false
	}
	for _, u := range c.AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(u), uname) {
			return true
		}
	}
	return false
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadYAMLConfig reads the YAML file into out if present. Returns error only for invalid YAML.
func loadYAMLConfig(path string, out *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	out.AppPort = fc.App.Port
	out.JWTSecret = fc.App.JWTSecret
	out.TokenTTLHours = fc.App.TokenTTLHours
	out.RateLimitPerMinute = fc.App.RateLimitPerMinute
	out.AllowedOrigins = fc.App.AllowedOrigins
	out.GinMode = fc.App.GinMode
	out.GinPath = fc.App.GinPath

	out.StorageDriver = fc.Database.Driver
	out.DatabaseURI = fc.Database.URI
	out.DBHost = fc.Database.Host
	out.DBPort = fc.Database.Port
	out.DBUser = fc.Database.User
	out.DBPassword = fc.Database.Password
	out.DBName = fc.Database.Name

	out.RedisHost = fc.Redis.Host
	out.RedisPort = fc.Redis.Port
	out.RedisDB = fc.Redis.DB
	out.RedisPassword = fc.Redis.Password

	out.LogLevel = fc.Log.Level
	out.LogPath = fc.Log.Path
	out.LogMaxSizeMB = fc.Log.MaxSizeMB
	out.LogMaxBackups = fc.Log.MaxBackups
	out.LogMaxAgeDays = fc.Log.MaxAgeDays
	out.LogCompress = fc.Log.Compress

	if fc.Points.ReferrerBonus != nil {
		out.ReferrerBonus, out.referrerBonusSet = *fc.Points.ReferrerBonus, true
	}
	if fc.Points.ReferredBonus != nil {
		out.ReferredBonus, out.referredBonusSet = *fc.Points.ReferredBonus, true
	}
	out.ReferralAllowRepeat = fc.Points.ReferralAllowRepeat
	out.StreakLeaderboardSize = fc.Points.StreakLeaderboardSize
	out.PointsLeaderboardSize = fc.Points.PointsLeaderboardSize
	out.LeaderboardCacheSec = fc.Points.LeaderboardCacheSec
	out.QuizCacheSec = fc.Points.QuizCacheSec

	out.RegisterMaxPerIPPerDay = fc.Register.MaxPerIPPerDay
	out.AdminUsernames = fc.Admin.Usernames
	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.TokenTTLHours == 0 {
		c.TokenTTLHours = 72
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.StorageDriver == "" {
		c.StorageDriver = "mysql"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "guildhall"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.ReferrerBonus == 0 && !c.referrerBonusSet {
		c.ReferrerBonus = 100
	}
	if c.ReferredBonus == 0 && !c.referredBonusSet {
		c.ReferredBonus = 50
	}
	if c.StreakLeaderboardSize == 0 {
		c.StreakLeaderboardSize = 20
	}
	if c.PointsLeaderboardSize == 0 {
		c.PointsLeaderboardSize = 100
	}
	if c.LeaderboardCacheSec == 0 {
		c.LeaderboardCacheSec = 30
	}
	if c.QuizCacheSec == 0 {
		c.QuizCacheSec = 600
	}
	if c.RegisterMaxPerIPPerDay == 0 {
		c.RegisterMaxPerIPPerDay = 5
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.JWTSecret = v
	}
	if v := getEnv("TOKEN_TTL_HOURS", ""); v != "" {
		c.TokenTTLHours = mustParseInt(v)
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := getEnv("STORAGE_DRIVER", ""); v != "" {
		c.StorageDriver = v
	}
	if v := getEnv("DATABASE_URI", ""); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	if v := getEnv("REFERRER_BONUS", ""); v != "" {
		c.ReferrerBonus, c.referrerBonusSet = mustParseInt(v), true
	}
	if v := getEnv("REFERRED_BONUS", ""); v != "" {
		c.ReferredBonus, c.referredBonusSet = mustParseInt(v), true
	}
	if v := getEnv("REFERRAL_ALLOW_REPEAT", ""); v != "" {
		c.ReferralAllowRepeat = v == "true"
	}
	if v := getEnv("STREAK_LEADERBOARD_SIZE", ""); v != "" {
		c.StreakLeaderboardSize = mustParseInt(v)
	}
	if v := getEnv("POINTS_LEADERBOARD_SIZE", ""); v != "" {
		c.PointsLeaderboardSize = mustParseInt(v)
	}
	if v := getEnv("LEADERBOARD_CACHE_SEC", ""); v != "" {
		c.LeaderboardCacheSec = mustParseInt(v)
	}
	if v := getEnv("QUIZ_CACHE_SEC", ""); v != "" {
		c.QuizCacheSec = mustParseInt(v)
	}
	if v := getEnv("REGISTER_MAX_PER_IP_PER_DAY", ""); v != "" {
		c.RegisterMaxPerIPPerDay = mustParseInt(v)
	}
	if v := getEnv("ADMIN_USERNAMES", ""); v != "" {
		c.AdminUsernames = splitAndTrim(v)
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
