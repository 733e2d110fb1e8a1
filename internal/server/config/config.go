package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port               string
	MediaDir           string
	TmpDir             string
	MaxFileSize        int64
	MaxChunkedFileSize int64
	SessionTTL         time.Duration
	SweepInterval      time.Duration
	RateLimitRPS       float64
	RateLimitBurst     int
	BaseURL            string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		MediaDir:           getEnv("MEDIA_DIR", "./data/gallery"),
		TmpDir:             getEnv("TMP_DIR", "./data/tmp"),
		MaxFileSize:        getEnvInt64("MAX_FILE_SIZE", 100*1024*1024),          // 100MB per file
		MaxChunkedFileSize: getEnvInt64("MAX_CHUNKED_FILE_SIZE", 2*1024*1024*1024), // 2GB via chunked path
		SessionTTL:         getEnvDuration("SESSION_TTL_MINUTES", 30*time.Minute),
		SweepInterval:      getEnvDuration("SWEEP_INTERVAL_MINUTES", 5*time.Minute),
		RateLimitRPS:       getEnvFloat64("RATE_LIMIT_RPS", 10),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 20),
		BaseURL:            getEnv("BASE_URL", "http://localhost:8080"),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat64(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if minutes, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(minutes * float64(time.Minute))
		}
	}
	return fallback
}
