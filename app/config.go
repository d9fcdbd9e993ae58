package app

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	ServerPort        string
	JWTSecret         string
	JWTExpirationSec  int64
	DBHost            string
	DBPort            string
	DBUser            string
	DBPassword        string
	DBName            string
	DBSSLMode         string
	NodePollInterval  time.Duration
	CapacityThreshold float64
	NodeInsecureTLS   bool
	CaptchaSecret     string
	CaptchaRequired   bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		JWTSecret:         getEnv("JWT_SIGNING_SECRET", "change-me-in-production"),
		JWTExpirationSec:  86400, // 24 hours
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "5432"),
		DBUser:            getEnv("DB_USER", "postgres"),
		DBPassword:        getEnv("DB_PASSWORD", "postgres"),
		DBName:            getEnv("DB_NAME", "fleetdb"),
		DBSSLMode:         getEnv("DB_SSL_MODE", "disable"),
		NodePollInterval:  time.Duration(getEnvInt("NODE_POLL_INTERVAL_SEC", 180)) * time.Second,
		CapacityThreshold: getEnvFloat("NODE_CAPACITY_THRESHOLD", 0.9),
		NodeInsecureTLS:   getEnvBool("NODE_INSECURE_TLS", true),
		CaptchaSecret:     getEnv("CAPTCHA_SECRET", ""),
		CaptchaRequired:   getEnvBool("CAPTCHA_REQUIRED", false),
	}

	if cfg.JWTSecret == "change-me-in-production" {
		return nil, fmt.Errorf("JWT_SIGNING_SECRET must be set")
	}
	if cfg.CapacityThreshold <= 0 || cfg.CapacityThreshold > 1 {
		return nil, fmt.Errorf("NODE_CAPACITY_THRESHOLD must be in (0, 1]")
	}
	if cfg.CaptchaRequired && cfg.CaptchaSecret == "" {
		return nil, fmt.Errorf("CAPTCHA_SECRET must be set when CAPTCHA_REQUIRED is true")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
