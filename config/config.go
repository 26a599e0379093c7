package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the safety poll service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port string

	// Geo bucketing: grid cell size in degrees (~0.01 deg == ~1 km)
	BucketResolutionDeg float64

	// Heatmap recency window in days; 0 disables the window
	HeatmapWindowDays int

	// Submission rate limiting, per submitter
	RateLimitPerMinute int
	RateLimitBurst     int

	// Live feed broadcast interval
	BroadcastInterval time.Duration

	// Optional RabbitMQ publishing of accepted reports
	AMQPUrl        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "safety_poll"),

		Port: getEnv("PORT", "8080"),

		BucketResolutionDeg: getFloatEnv("BUCKET_RESOLUTION_DEG", 0.01),
		HeatmapWindowDays:   getIntEnv("HEATMAP_WINDOW_DAYS", 30),

		RateLimitPerMinute: getIntEnv("RATE_LIMIT_PER_MINUTE", 10),
		RateLimitBurst:     getIntEnv("RATE_LIMIT_BURST", 5),

		BroadcastInterval: getDurationEnv("BROADCAST_INTERVAL", time.Second),

		AMQPUrl:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "safety_poll"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "report.accepted"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil && f > 0 {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
