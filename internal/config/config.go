/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
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

// Config holds all the configuration variables for the sync service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort             string `mapstructure:"SERVER_PORT"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	RedisURL               string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix   string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	MonoAPIBaseURL         string `mapstructure:"MONO_API_BASE_URL"`
	MonoSecretKey          string `mapstructure:"MONO_SECRET_KEY"`
	MonoWebhookSecret      string `mapstructure:"MONO_WEBHOOK_SECRET"`
	JWTSecret              string `mapstructure:"JWT_SECRET"`
	LinkRateLimitPerMinute int    `mapstructure:"LINK_RATE_LIMIT_PER_MINUTE"`
	BackfillWorkers        int    `mapstructure:"BACKFILL_WORKERS"`
	BackfillQueueSize      int    `mapstructure:"BACKFILL_QUEUE_SIZE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("MONO_API_BASE_URL", "https://api.withmono.com")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "trackit:rate_limit")
	viper.SetDefault("LINK_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("BACKFILL_WORKERS", 4)
	viper.SetDefault("BACKFILL_QUEUE_SIZE", 64)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("MONO_API_BASE_URL")
	_ = viper.BindEnv("MONO_SECRET_KEY")
	_ = viper.BindEnv("MONO_WEBHOOK_SECRET")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("LINK_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("BACKFILL_WORKERS")
	_ = viper.BindEnv("BACKFILL_QUEUE_SIZE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Platform-injected PORT wins over SERVER_PORT.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "trackit:rate_limit"
	}

	if config.LinkRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative link rate limit configured; disabling limiter\" limit=%d", config.LinkRateLimitPerMinute)
		config.LinkRateLimitPerMinute = 0
	}
	if config.BackfillWorkers <= 0 {
		config.BackfillWorkers = 4
	}
	if config.BackfillQueueSize <= 0 {
		config.BackfillQueueSize = 64
	}

	return
}
