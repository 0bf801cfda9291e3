package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Database   DatabaseConfig    `mapstructure:"database"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	Engine     EngineConfig      `mapstructure:"engine"`
	Scheduler  SchedulerConfig   `mapstructure:"scheduler"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Tiers      []TierConfig      `mapstructure:"tiers" validate:"dive"`
	Milestones []MilestoneConfig `mapstructure:"milestones" validate:"dive"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"gt=0"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name" validate:"required"`
	SSLMode         string        `mapstructure:"sslmode"`
	Timezone        string        `mapstructure:"timezone"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogQueries      bool          `mapstructure:"log_queries"`
}

type RedisConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Password         string        `mapstructure:"password"`
	DB               int           `mapstructure:"db"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console"`
}

// EngineConfig tunes the analytics windows and where reference data comes from
type EngineConfig struct {
	WindowDays      int           `mapstructure:"window_days" validate:"gte=7,lte=365"`
	Timezone        string        `mapstructure:"timezone"`
	InsightCacheTTL time.Duration `mapstructure:"insight_cache_ttl"`
	CatalogSource   string        `mapstructure:"catalog_source" validate:"oneof=config database"`
}

type SchedulerConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	RefreshHour int  `mapstructure:"refresh_hour" validate:"gte=0,lte=23"`
	Concurrency int  `mapstructure:"concurrency" validate:"gte=1,lte=64"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// TierConfig is one row of the tier table; an empty list falls back to the built-in table
type TierConfig struct {
	Name        string  `mapstructure:"name" validate:"required"`
	MinDays     int     `mapstructure:"min_days" validate:"gte=0"`
	MaxDays     *int    `mapstructure:"max_days" validate:"omitempty,gte=0"`
	Multiplier  float64 `mapstructure:"multiplier" validate:"gt=0"`
	Color       string  `mapstructure:"color"`
	Icon        string  `mapstructure:"icon"`
	Description string  `mapstructure:"description"`
}

// MilestoneConfig is one catalog entry; an empty list falls back to the built-in catalog
type MilestoneConfig struct {
	Days        int    `mapstructure:"days" validate:"gt=0"`
	Title       string `mapstructure:"title" validate:"required"`
	XPReward    int    `mapstructure:"xp_reward" validate:"gte=0"`
	Tier        string `mapstructure:"tier" validate:"required"`
	Description string `mapstructure:"description"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "habits")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.operation_timeout", 2*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("engine.window_days", 30)
	v.SetDefault("engine.timezone", "UTC")
	v.SetDefault("engine.insight_cache_ttl", 10*time.Minute)
	v.SetDefault("engine.catalog_source", "config")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.refresh_hour", 0)
	v.SetDefault("scheduler.concurrency", 8)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")
}

func LoadConfig(configPath string) (*Config, error) {
	var config Config

	// A missing .env file is fine; the variables may come from the environment
	_ = godotenv.Load()

	// If CONFIG_FILE environment variable is set, use it
	if envConfigFile := os.Getenv("CONFIG_FILE"); envConfigFile != "" {
		configPath = envConfigFile
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	explicit := configPath != ""
	if explicit {
		dir := filepath.Dir(configPath)
		file := filepath.Base(configPath)
		ext := filepath.Ext(file)
		name := strings.TrimSuffix(file, ext)

		v.AddConfigPath(dir)
		v.SetConfigName(name)
	} else {
		_, filename, _, _ := runtime.Caller(0)
		pkgConfigDir := filepath.Dir(filename)
		projectRoot := filepath.Join(pkgConfigDir, "..", "..")

		v.AddConfigPath(".")
		v.AddConfigPath(pkgConfigDir)
		v.AddConfigPath(projectRoot)
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envVars := map[string]string{
		"database.host":            "DB_HOST",
		"database.port":            "DB_PORT",
		"database.user":            "DB_USER",
		"database.password":        "DB_PASSWORD",
		"database.name":            "DB_NAME",
		"database.sslmode":         "DB_SSLMODE",
		"redis.enabled":            "REDIS_ENABLED",
		"redis.host":               "REDIS_HOST",
		"redis.port":               "REDIS_PORT",
		"redis.password":           "REDIS_PASSWORD",
		"redis.db":                 "REDIS_DB",
		"logging.level":            "LOG_LEVEL",
		"logging.format":           "LOG_FORMAT",
		"engine.window_days":       "ENGINE_WINDOW_DAYS",
		"engine.timezone":          "ENGINE_TIMEZONE",
		"engine.insight_cache_ttl": "ENGINE_INSIGHT_CACHE_TTL",
		"engine.catalog_source":    "ENGINE_CATALOG_SOURCE",
		"scheduler.enabled":        "SCHEDULER_ENABLED",
		"scheduler.concurrency":    "SCHEDULER_CONCURRENCY",
		"metrics.addr":             "METRICS_ADDR",
	}

	for configKey, envVar := range envVars {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}
		switch envVar {
		case "DB_PORT", "REDIS_PORT", "REDIS_DB", "ENGINE_WINDOW_DAYS", "SCHEDULER_CONCURRENCY":
			if intVal, err := strconv.Atoi(value); err == nil {
				v.Set(configKey, intVal)
			}
		case "ENGINE_INSIGHT_CACHE_TTL":
			if d, err := time.ParseDuration(value); err == nil {
				v.Set(configKey, d)
			}
		case "REDIS_ENABLED", "SCHEDULER_ENABLED":
			if b, err := strconv.ParseBool(value); err == nil {
				v.Set(configKey, b)
			}
		default:
			v.Set(configKey, value)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks field constraints declared in the struct tags
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Location resolves the engine timezone used to turn wall-clock time into calendar days
func (e EngineConfig) Location() *time.Location {
	if e.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
