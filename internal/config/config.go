package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	defaultDBPath      = "./dev.db"
	defaultPort        = "8080"
	defaultEnv         = "dev"
	defaultLogLevel    = "info"
	defaultVariant     = "cascading"
	defaultMaxUploadMB = 20
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Env      string
	DBPath   string
	Port     string
	LogLevel string

	// BaseVariant is the default computation variant ("flat" or "cascading").
	BaseVariant string
	// DoubleCountOther adds other customs costs again to the IBS/CBS and ICMS bases.
	DoubleCountOther bool
	// BatchWorkers bounds the goroutines used per NF-e batch. 0 means GOMAXPROCS.
	BatchWorkers int
	MaxUploadMB  int64

	// Warnings are the adjustments made while loading, logged once a logger exists.
	Warnings []Warning
}

// Warning is a configuration value that was replaced or deserves attention.
type Warning struct {
	Message string
	Key     string
	Value   any
}

// LogWarnings writes every load warning to log.
func (c Config) LogWarnings(log *zap.Logger) {
	for _, w := range c.Warnings {
		if w.Key == "" {
			log.Warn(w.Message)
			continue
		}
		log.Warn(w.Message, zap.String("key", w.Key), zap.Any("value", w.Value))
	}
}

// Load reads a local .env (if any) and the process environment and returns a populated Config.
func Load() Config {
	return load(".env")
}

func load(dotenvPath string) Config {
	// Missing .env is fine; real environment variables always win over the file.
	_ = godotenv.Load(dotenvPath)

	v := viper.New()
	v.SetDefault("APP_ENV", defaultEnv)
	v.SetDefault("DB_PATH", defaultDBPath)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("BASE_VARIANT", defaultVariant)
	v.SetDefault("DOUBLE_COUNT_OTHER", true)
	v.SetDefault("BATCH_WORKERS", 0)
	v.SetDefault("MAX_UPLOAD_MB", defaultMaxUploadMB)
	v.AutomaticEnv()

	cfg := Config{
		Env:              strings.ToLower(v.GetString("APP_ENV")),
		DBPath:           v.GetString("DB_PATH"),
		Port:             v.GetString("PORT"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		BaseVariant:      v.GetString("BASE_VARIANT"),
		DoubleCountOther: v.GetBool("DOUBLE_COUNT_OTHER"),
		BatchWorkers:     v.GetInt("BATCH_WORKERS"),
		MaxUploadMB:      v.GetInt64("MAX_UPLOAD_MB"),
	}

	if cfg.BatchWorkers < 0 {
		cfg.Warnings = append(cfg.Warnings, Warning{"BATCH_WORKERS is negative, using GOMAXPROCS", "BATCH_WORKERS", cfg.BatchWorkers})
		cfg.BatchWorkers = 0
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.Warnings = append(cfg.Warnings, Warning{"MAX_UPLOAD_MB must be positive, using default", "MAX_UPLOAD_MB", cfg.MaxUploadMB})
		cfg.MaxUploadMB = defaultMaxUploadMB
	}
	if !cfg.DoubleCountOther {
		cfg.Warnings = append(cfg.Warnings, Warning{Message: "DOUBLE_COUNT_OTHER is off: other customs costs enter the IBS/CBS and ICMS bases once"})
	}

	return cfg
}

// IsDev reports whether the app runs in local development mode.
func (c Config) IsDev() bool {
	return c.Env == "" || c.Env == "dev" || c.Env == "development"
}
