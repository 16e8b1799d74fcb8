package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ENGAGE_SERVER_PORT.
const EnvPrefix = "ENGAGE"

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Security     SecurityConfig     `mapstructure:"security"`
	Gamification GamificationConfig `mapstructure:"gamification"`
	Catalog      CatalogConfig      `mapstructure:"catalog"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	Mode        string        `mapstructure:"mode"` // memory | sqlite | mysql | postgres
	SQLitePath  string        `mapstructure:"sqlite_path"`
	MySQLDSN    string        `mapstructure:"mysql_dsn"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLife     time.Duration `mapstructure:"max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string  `mapstructure:"jwt_secret"`
	JWTIssuer      string  `mapstructure:"jwt_issuer"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the browser origins permitted on the live streams.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AdminIPs       []string `mapstructure:"admin_ips"`
	// ServiceKey is shared with the studio backend, the only caller allowed
	// to grant XP, bump stat counters and advance quest objectives.
	ServiceKey string `mapstructure:"service_key"`
}

type GamificationConfig struct {
	Timezone        string  `mapstructure:"timezone"`
	CurveBase       float64 `mapstructure:"curve_base"`
	CurveExponent   float64 `mapstructure:"curve_exponent"`
	MaxLevel        int     `mapstructure:"max_level"`
	PointsPerLevel  int     `mapstructure:"points_per_level"`
	MaxFreezes      int     `mapstructure:"max_freezes"`
	FreezeCost      int64   `mapstructure:"freeze_cost"`
	DailySchedule   []int64 `mapstructure:"daily_schedule"`
	MaxPrestige     int     `mapstructure:"max_prestige"`
	PrestigeStep    float64 `mapstructure:"prestige_step"`
	MaxWriteRetries int     `mapstructure:"max_write_retries"`
	MaxAward        int64   `mapstructure:"max_award"`
}

// Location resolves Timezone, falling back to UTC.
func (g GamificationConfig) Location() (*time.Location, error) {
	if g.Timezone == "" || strings.EqualFold(g.Timezone, "UTC") {
		return time.UTC, nil
	}
	return time.LoadLocation(g.Timezone)
}

type CatalogConfig struct {
	Dir string `mapstructure:"dir"` // empty = built-in catalog
}

type SchedulerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RearmInterval   time.Duration `mapstructure:"rearm_interval"`
	LeaderboardCron string        `mapstructure:"leaderboard_cron"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_key", "")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/engagement.db")
	v.SetDefault("database.mysql_dsn", "")
	v.SetDefault("database.postgres_dsn", "")
	v.SetDefault("database.max_open", 50)
	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.max_life", "1h")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_issuer", "")
	v.SetDefault("security.service_key", "")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("gamification.timezone", "UTC")
	v.SetDefault("gamification.curve_base", 100.0)
	v.SetDefault("gamification.curve_exponent", 1.5)
	v.SetDefault("gamification.max_level", 50)
	v.SetDefault("gamification.points_per_level", 1)
	v.SetDefault("gamification.max_freezes", 2)
	v.SetDefault("gamification.freeze_cost", 200)
	v.SetDefault("gamification.daily_schedule", []int64{10, 15, 20, 25, 30, 40, 100})
	v.SetDefault("gamification.max_prestige", 10)
	v.SetDefault("gamification.prestige_step", 0.1)
	v.SetDefault("gamification.max_write_retries", 5)
	v.SetDefault("gamification.max_award", 100000)
	v.SetDefault("catalog.dir", "")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.rearm_interval", "5m")
	v.SetDefault("scheduler.leaderboard_cron", "0 3 * * *")
}

// Load reads .env (if present), then the YAML file at path, then
// ENGAGE_* environment overrides. A missing file at path is an error; an
// empty path runs on defaults and environment only.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
