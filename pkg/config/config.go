package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Timetable TimetableConfig
	Exports   ExportsConfig
}

// DatabaseConfig locates the timetable database. URL, when set, wins over the
// discrete fields.
type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig locates the analysis cache. URL, when set, wins over the
// discrete fields.
type RedisConfig struct {
	Enabled  bool
	URL      string
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// TimetableConfig governs the generation engine and its defaults.
type TimetableConfig struct {
	Enabled                   bool
	MaxAttempts               int
	CapacityFactor            float64
	AnalysisCacheTTL          time.Duration
	JobWorkers                int
	JobRetries                int
	JobTimeout                time.Duration
	MaxHoursPerDay            int
	MinHoursPerDay            int
	MaxConsecutiveHours       int
	DistributeEvenly          bool
	RespectTeacherContinuity  bool
	AvoidTimeGaps             bool
	PrioritizeLabsAfterTheory bool
	PreferredSlotWeight       float64
	ExcludedDays              []string
}

// ExportsConfig configures timetable export files and their signed download links.
type ExportsConfig struct {
	Enabled         bool
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
	Timezone        string
	CalendarWeeks   int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		URL:             v.GetString("DATABASE_URL"),
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		URL:      v.GetString("REDIS_URL"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		PoolSize: v.GetInt("REDIS_POOL_SIZE"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Timetable = TimetableConfig{
		Enabled:                   v.GetBool("ENABLE_TIMETABLE"),
		MaxAttempts:               v.GetInt("TIMETABLE_MAX_ATTEMPTS"),
		CapacityFactor:            v.GetFloat64("TIMETABLE_CAPACITY_FACTOR"),
		AnalysisCacheTTL:          parseDuration(v.GetString("TIMETABLE_ANALYSIS_CACHE_TTL"), 5*time.Minute),
		JobWorkers:                v.GetInt("TIMETABLE_JOB_WORKERS"),
		JobRetries:                v.GetInt("TIMETABLE_JOB_RETRIES"),
		JobTimeout:                parseDuration(v.GetString("TIMETABLE_JOB_TIMEOUT"), 10*time.Minute),
		MaxHoursPerDay:            v.GetInt("TIMETABLE_MAX_HOURS_PER_DAY"),
		MinHoursPerDay:            v.GetInt("TIMETABLE_MIN_HOURS_PER_DAY"),
		MaxConsecutiveHours:       v.GetInt("TIMETABLE_MAX_CONSECUTIVE_HOURS"),
		DistributeEvenly:          v.GetBool("TIMETABLE_DISTRIBUTE_EVENLY"),
		RespectTeacherContinuity:  v.GetBool("TIMETABLE_RESPECT_TEACHER_CONTINUITY"),
		AvoidTimeGaps:             v.GetBool("TIMETABLE_AVOID_TIME_GAPS"),
		PrioritizeLabsAfterTheory: v.GetBool("TIMETABLE_PRIORITIZE_LABS_AFTER_THEORY"),
		PreferredSlotWeight:       v.GetFloat64("TIMETABLE_PREFERRED_SLOT_WEIGHT"),
		ExcludedDays:              splitAndTrim(v.GetString("TIMETABLE_EXCLUDED_DAYS")),
	}

	cfg.Exports = ExportsConfig{
		Enabled:         v.GetBool("ENABLE_EXPORTS"),
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
		Timezone:        v.GetString("EXPORTS_TIMEZONE"),
		CalendarWeeks:   v.GetInt("EXPORTS_CALENDAR_WEEKS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_TIMETABLE", true)
	v.SetDefault("TIMETABLE_MAX_ATTEMPTS", 50)
	v.SetDefault("TIMETABLE_CAPACITY_FACTOR", 2.0)
	v.SetDefault("TIMETABLE_ANALYSIS_CACHE_TTL", "5m")
	v.SetDefault("TIMETABLE_JOB_WORKERS", 1)
	v.SetDefault("TIMETABLE_JOB_RETRIES", 0)
	v.SetDefault("TIMETABLE_JOB_TIMEOUT", "10m")
	v.SetDefault("TIMETABLE_MAX_HOURS_PER_DAY", 8)
	v.SetDefault("TIMETABLE_MIN_HOURS_PER_DAY", 2)
	v.SetDefault("TIMETABLE_MAX_CONSECUTIVE_HOURS", 4)
	v.SetDefault("TIMETABLE_DISTRIBUTE_EVENLY", true)
	v.SetDefault("TIMETABLE_RESPECT_TEACHER_CONTINUITY", true)
	v.SetDefault("TIMETABLE_AVOID_TIME_GAPS", true)
	v.SetDefault("TIMETABLE_PRIORITIZE_LABS_AFTER_THEORY", false)
	v.SetDefault("TIMETABLE_PREFERRED_SLOT_WEIGHT", 0.7)
	v.SetDefault("TIMETABLE_EXCLUDED_DAYS", "")

	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("EXPORTS_TIMEZONE", "UTC")
	v.SetDefault("EXPORTS_CALENDAR_WEEKS", 16)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
