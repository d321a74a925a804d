package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port          int
	PublicBaseURL string
	WorkDir       string

	WorkerCount   int
	MaxQueueDepth int
	MaxInputBytes int64

	ImageTimeout    time.Duration
	VideoTimeout    time.Duration
	SyncWaitTimeout time.Duration
	RetentionWindow time.Duration

	FFmpegBin string
	MagickBin string
	CWebpBin  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseURL string

	S3Bucket       string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3Endpoint     string
	S3UsePathStyle bool
}

func Load() *Config {
	cfg := &Config{
		Port:          getEnvInt("PORT", 3000),
		WorkDir:       getEnv("WORK_DIR", "/tmp/conversions"),
		WorkerCount:   getEnvInt("WORKER_COUNT", 3),
		MaxQueueDepth: getEnvInt("MAX_QUEUE_DEPTH", 64),
		MaxInputBytes: int64(getEnvInt("MAX_INPUT_BYTES", 100<<20)),

		ImageTimeout:    getEnvDuration("IMAGE_TIMEOUT", 30*time.Second),
		VideoTimeout:    getEnvDuration("VIDEO_TIMEOUT", 10*time.Minute),
		SyncWaitTimeout: getEnvDuration("SYNC_WAIT_TIMEOUT", 2*time.Minute),
		RetentionWindow: getEnvDuration("RETENTION_WINDOW", time.Hour),

		FFmpegBin: getEnv("FFMPEG_BIN", "ffmpeg"),
		MagickBin: getEnv("MAGICK_BIN", "convert"),
		CWebpBin:  getEnv("CWEBP_BIN", "cwebp"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_CONVERSION_DB", 3),

		S3Bucket: getEnv("S3_BUCKET", ""),
		// Prefer unified S3_* vars, fall back to legacy AWS_* vars for compatibility
		S3Region:       getEnvWithFallback("S3_REGION", "AWS_DEFAULT_REGION", "us-east-1"),
		S3AccessKey:    getEnvWithFallback("S3_KEY", "AWS_ACCESS_KEY_ID", ""),
		S3SecretKey:    getEnvWithFallback("S3_SECRET", "AWS_SECRET_ACCESS_KEY", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3UsePathStyle: getEnvBool("S3_USE_PATH_STYLE_ENDPOINT", false),
	}

	cfg.PublicBaseURL = strings.TrimSuffix(
		getEnv("PUBLIC_BASE_URL", fmt.Sprintf("http://localhost:%d", cfg.Port)), "/")
	cfg.DatabaseURL = databaseURLFromEnv()

	return cfg
}

// TimeoutFor returns the per-invocation bound for a media kind. Video
// transcodes get the larger bound.
func (c *Config) TimeoutFor(kind string) time.Duration {
	if kind == "video" {
		return c.VideoTimeout
	}
	return c.ImageTimeout
}

func databaseURLFromEnv() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		return ""
	}
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_DATABASE", "converter")
	dbUser := getEnv("DB_USERNAME", "converter")
	dbPassword := getEnv("DB_PASSWORD", "")
	dbSSLMode := getEnv("DB_SSLMODE", "disable")

	// lib/pq supports "key=value" connection strings and this avoids
	// URI escaping issues for special characters in passwords.
	var dbURL string
	if dbPassword != "" {
		dbURL = fmt.Sprintf(
			"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
			dbHost, dbPort, dbName, dbUser, dbPassword, dbSSLMode,
		)
	} else {
		dbURL = fmt.Sprintf(
			"host=%s port=%s dbname=%s user=%s sslmode=%s",
			dbHost, dbPort, dbName, dbUser, dbSSLMode,
		)
	}

	if cert := os.Getenv("DB_SSLCERT"); cert != "" {
		dbURL += fmt.Sprintf(" sslcert=%s", cert)
	}
	if key := os.Getenv("DB_SSLKEY"); key != "" {
		dbURL += fmt.Sprintf(" sslkey=%s", key)
	}
	if root := os.Getenv("DB_SSLROOTCERT"); root != "" {
		dbURL += fmt.Sprintf(" sslrootcert=%s", root)
	}

	return dbURL
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvWithFallback(primaryKey, secondaryKey, fallback string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(secondaryKey); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Plain integers are taken as seconds, matching older deployments.
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
