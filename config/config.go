package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL        string
	Port               string
	GoEnv              string
	Auth0Domain        string
	Auth0Audience      string
	AWSRegion          string
	AWSS3Bucket        string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	LogLevel           string
	LogFormat          string

	// Snapshot cache. Empty RedisURL selects the in-process cache.
	RedisURL    string
	SnapshotTTL time.Duration

	// Notifications. No brokers means notifications are only logged.
	KafkaBrokers            []string
	KafkaNotificationsTopic string
	ShopName                string
	PublicOrderURL          string

	// RealtimeEnabled switches the change feed to Postgres LISTEN/NOTIFY
	RealtimeEnabled    bool
	LineItemDebounce   time.Duration
	NoteDebounce       time.Duration
	ReconcileSchedule  string
	CORSAllowedOrigins []string

	// EnvFile is the dotenv file Load read, empty when none was found
	EnvFile string
}

var (
	current *Config
	mu      sync.RWMutex
)

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Production sets variables directly and ships no dotenv file.
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		envFile = ".env"
		if err := godotenv.Load(); err != nil {
			envFile = ""
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	config := &Config{
		DatabaseURL:             v.GetString("DATABASE_URL"),
		Port:                    v.GetString("PORT"),
		GoEnv:                   v.GetString("GO_ENV"),
		Auth0Domain:             v.GetString("AUTH0_DOMAIN"),
		Auth0Audience:           v.GetString("AUTH0_AUDIENCE"),
		AWSRegion:               v.GetString("AWS_REGION"),
		AWSS3Bucket:             v.GetString("AWS_S3_BUCKET"),
		AWSAccessKeyID:          v.GetString("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:      v.GetString("AWS_SECRET_ACCESS_KEY"),
		LogLevel:                v.GetString("LOG_LEVEL"),
		LogFormat:               v.GetString("LOG_FORMAT"),
		RedisURL:                v.GetString("REDIS_URL"),
		SnapshotTTL:             v.GetDuration("SNAPSHOT_TTL"),
		KafkaBrokers:            splitList(v.GetString("KAFKA_BROKERS")),
		KafkaNotificationsTopic: v.GetString("KAFKA_NOTIFICATIONS_TOPIC"),
		ShopName:                v.GetString("SHOP_NAME"),
		PublicOrderURL:          v.GetString("PUBLIC_ORDER_URL"),
		RealtimeEnabled:         v.GetBool("REALTIME_ENABLED"),
		LineItemDebounce:        v.GetDuration("LINE_ITEM_DEBOUNCE"),
		NoteDebounce:            v.GetDuration("NOTE_DEBOUNCE"),
		ReconcileSchedule:       v.GetString("RECONCILE_SCHEDULE"),
		CORSAllowedOrigins:      splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		EnvFile:                 envFile,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("GO_ENV", "development")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("SNAPSHOT_TTL", "24h")
	v.SetDefault("KAFKA_NOTIFICATIONS_TOPIC", "order-phase-notifications")
	v.SetDefault("SHOP_NAME", "Repair Shop")
	v.SetDefault("PUBLIC_ORDER_URL", "http://localhost:3000/orders")
	v.SetDefault("REALTIME_ENABLED", false)
	v.SetDefault("LINE_ITEM_DEBOUNCE", "3s")
	v.SetDefault("NOTE_DEBOUNCE", "1s")
	v.SetDefault("RECONCILE_SCHEDULE", "@every 30s")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.LineItemDebounce <= 0 || c.NoteDebounce <= 0 {
		return fmt.Errorf("LINE_ITEM_DEBOUNCE and NOTE_DEBOUNCE must be positive durations")
	}
	if c.KafkaNotificationsTopic == "" && len(c.KafkaBrokers) > 0 {
		return fmt.Errorf("KAFKA_NOTIFICATIONS_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// GetConfig returns the configuration set at startup
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// SetConfig replaces the process-wide configuration (used by main and tests)
func SetConfig(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	current = cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
