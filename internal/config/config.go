/**
 * @description
 * This package handles the configuration management for the bank sync service. It uses
 * Viper to read an optional .env file and the process environment into one Config.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

const (
	defaultServerPort             = "8090"
	defaultRateLimitPrefix        = "banksync:rate_limit"
	defaultSyncRateLimitPerMinute = 10
	defaultRefreshRateLimitPerMin = 6
	defaultBankSyncExchange       = "bank_sync_events"
	defaultRefreshRequestQueue    = "banksync_service.refresh_requests"
	defaultCurrency               = "INR"
	defaultSyncTimeoutSeconds     = 90
	defaultSetuBaseURL            = "https://fiu-sandbox.setu.co/v2"
	defaultSetuRedirectURL        = "https://finmind.app/bank-sync/callback"
	defaultGeminiModel            = "gemini-1.5-flash"
	defaultBudgetCacheTTLSeconds  = 1800
)

// Config holds all the configuration variables for the bank sync service.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	StoreDriver               string `mapstructure:"STORE_DRIVER"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RateLimitPrefix           string `mapstructure:"RATE_LIMIT_PREFIX"`
	SyncRateLimitPerMinute    int    `mapstructure:"SYNC_RATE_LIMIT_PER_MINUTE"`
	// RefreshRateLimitPerMinute is counted separately from full syncs.
	RefreshRateLimitPerMinute int    `mapstructure:"REFRESH_RATE_LIMIT_PER_MINUTE"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	BankSyncExchange          string `mapstructure:"BANK_SYNC_EXCHANGE"`
	RefreshRequestQueue       string `mapstructure:"REFRESH_REQUEST_QUEUE"`
	JWTSecret                 string `mapstructure:"JWT_SECRET"`
	JWTIssuer                 string `mapstructure:"JWT_ISSUER"`
	DefaultCurrency           string `mapstructure:"DEFAULT_CURRENCY"`
	SyncTimeoutSeconds        int    `mapstructure:"SYNC_TIMEOUT_SECONDS"`
	AutoRefreshSchedule       string `mapstructure:"AUTO_REFRESH_SCHEDULE"`
	SetuClientID              string `mapstructure:"SETU_CLIENT_ID"`
	SetuClientSecret          string `mapstructure:"SETU_CLIENT_SECRET"`
	SetuBaseURL               string `mapstructure:"SETU_BASE_URL"`
	SetuRedirectURL           string `mapstructure:"SETU_REDIRECT_URL"`
	GeminiAPIKey              string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel               string `mapstructure:"GEMINI_MODEL"`
	GeminiBaseURL             string `mapstructure:"GEMINI_BASE_URL"`
	BudgetCacheTTLSeconds     int    `mapstructure:"BUDGET_CACHE_TTL_SECONDS"`
}

// LoadConfig reads configuration from the environment and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	viper.SetDefault("RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("SYNC_RATE_LIMIT_PER_MINUTE", defaultSyncRateLimitPerMinute)
	viper.SetDefault("REFRESH_RATE_LIMIT_PER_MINUTE", defaultRefreshRateLimitPerMin)
	viper.SetDefault("BANK_SYNC_EXCHANGE", defaultBankSyncExchange)
	viper.SetDefault("REFRESH_REQUEST_QUEUE", defaultRefreshRequestQueue)
	viper.SetDefault("DEFAULT_CURRENCY", defaultCurrency)
	viper.SetDefault("SYNC_TIMEOUT_SECONDS", defaultSyncTimeoutSeconds)
	viper.SetDefault("SETU_BASE_URL", defaultSetuBaseURL)
	viper.SetDefault("SETU_REDIRECT_URL", defaultSetuRedirectURL)
	viper.SetDefault("GEMINI_MODEL", defaultGeminiModel)
	viper.SetDefault("BUDGET_CACHE_TTL_SECONDS", defaultBudgetCacheTTLSeconds)

	// Bind explicitly so keys without a default still reach Unmarshal.
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("STORE_DRIVER")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "BANKSYNC_REDIS_URL")
	_ = viper.BindEnv("RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("SYNC_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("REFRESH_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("BANK_SYNC_EXCHANGE")
	_ = viper.BindEnv("REFRESH_REQUEST_QUEUE")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("JWT_ISSUER")
	_ = viper.BindEnv("DEFAULT_CURRENCY")
	_ = viper.BindEnv("SYNC_TIMEOUT_SECONDS")
	_ = viper.BindEnv("AUTO_REFRESH_SCHEDULE")
	_ = viper.BindEnv("SETU_CLIENT_ID")
	_ = viper.BindEnv("SETU_CLIENT_SECRET")
	_ = viper.BindEnv("SETU_BASE_URL")
	_ = viper.BindEnv("SETU_REDIRECT_URL")
	_ = viper.BindEnv("GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = viper.BindEnv("GEMINI_MODEL")
	_ = viper.BindEnv("GEMINI_BASE_URL")
	_ = viper.BindEnv("BUDGET_CACHE_TTL_SECONDS")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.normalize()
	return
}

// normalize trims string values and coerces out-of-range numbers back to their defaults.
func (c *Config) normalize() {
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.RabbitMQURL = strings.TrimSpace(c.RabbitMQURL)
	c.JWTSecret = strings.TrimSpace(c.JWTSecret)
	c.JWTIssuer = strings.TrimSpace(c.JWTIssuer)
	c.AutoRefreshSchedule = strings.TrimSpace(c.AutoRefreshSchedule)
	c.SetuClientID = strings.TrimSpace(c.SetuClientID)
	c.SetuClientSecret = strings.TrimSpace(c.SetuClientSecret)
	c.GeminiAPIKey = strings.TrimSpace(c.GeminiAPIKey)

	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	if c.StoreDriver != StoreDriverPostgres && c.StoreDriver != StoreDriverMemory {
		log.Printf("level=warn component=config msg=\"unknown STORE_DRIVER; falling back to postgres\" value=%q", c.StoreDriver)
		c.StoreDriver = StoreDriverPostgres
	}

	c.RateLimitPrefix = strings.TrimSpace(c.RateLimitPrefix)
	if c.RateLimitPrefix == "" {
		c.RateLimitPrefix = defaultRateLimitPrefix
	}
	c.DefaultCurrency = strings.ToUpper(strings.TrimSpace(c.DefaultCurrency))
	if len(c.DefaultCurrency) != 3 {
		log.Printf("level=warn component=config msg=\"invalid DEFAULT_CURRENCY; coercing to default\" value=%q", c.DefaultCurrency)
		c.DefaultCurrency = defaultCurrency
	}
	if strings.TrimSpace(c.BankSyncExchange) == "" {
		c.BankSyncExchange = defaultBankSyncExchange
	}
	if strings.TrimSpace(c.RefreshRequestQueue) == "" {
		c.RefreshRequestQueue = defaultRefreshRequestQueue
	}
	if c.SyncTimeoutSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive SYNC_TIMEOUT_SECONDS; coercing to default\" value=%d", c.SyncTimeoutSeconds)
		c.SyncTimeoutSeconds = defaultSyncTimeoutSeconds
	}
	if c.BudgetCacheTTLSeconds < 0 {
		log.Printf("level=warn component=config msg=\"negative BUDGET_CACHE_TTL_SECONDS; coercing to default\" value=%d", c.BudgetCacheTTLSeconds)
		c.BudgetCacheTTLSeconds = defaultBudgetCacheTTLSeconds
	}
	if c.SyncRateLimitPerMinute < 0 {
		c.SyncRateLimitPerMinute = 0
	}
	if c.RefreshRateLimitPerMinute < 0 {
		c.RefreshRateLimitPerMinute = 0
	}
	if strings.TrimSpace(c.GeminiModel) == "" {
		c.GeminiModel = defaultGeminiModel
	}
}
