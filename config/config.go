package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppAddr    string
	AppBaseURL string
	JWTSecret  string
	TokenTTL   time.Duration

	DBDriver string
	DBPath   string
	DBHost   string
	DBPort   string
	DBUser   string
	DBPass   string
	DBName   string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	MinioHost     string
	MinioPort     string
	MinioUsername string
	MinioPassword string
	MinioUseSSL   bool
	BucketName    string

	RabbitMQURL      string
	RabbitMQPrefetch int

	ThumbWorkerConcurrency int
	ThumbRate              float64
	ThumbBurst             int

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMTPFrom     string
	SMTPTLS      bool
	SMTPStartTLS bool

	LogLevel string
	LogFile  string

	MaxRequestBytes    int64
	MaxMultipartMemory int64
	CORSAllowedOrigins []string
}

var AppConfig Config

// getEnv returns the environment value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// loadEnvFile reads ENV_FILE (default .env) into the process environment.
// Variables already set win over the file.
func loadEnvFile() {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("load %s failed: %v", envFile, err)
		}
	}
}

// DefaultJWTSecret signs tokens when JWT_SECRET is unset. Anyone who knows
// it can forge tokens, so it is only fit for local development.
const DefaultJWTSecret = "l=ax+b"

// InsecureJWTSecret reports whether tokens are signed with the built-in
// development secret.
func (c Config) InsecureJWTSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}

// RedisAddr returns host:port, or "" when Redis is not configured.
func (c Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// MySQLDSN builds the DSN used when DBDriver is "mysql".
func (c Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		url.PathEscape(c.DBUser),
		c.DBPass,
		c.DBHost,
		c.DBPort,
		c.DBName,
	)
}

// MailEnabled reports whether activation mails can be sent.
func (c Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPPort != "" && c.SMTPFrom != ""
}

// InitConfig loads configuration and initializes sub-configs.
func InitConfig() {
	loadEnvFile()
	AppConfig = Config{
		AppAddr:    getEnv("APP_ADDR", ":8000"),
		AppBaseURL: getEnv("APP_BASE_URL", ""),
		JWTSecret:  getEnv("JWT_SECRET", DefaultJWTSecret),
		TokenTTL:   getEnvDuration("TOKEN_TTL", 24*time.Hour),

		DBDriver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:   getEnv("DB_PATH", "data/go_drop.db"),
		DBHost:   getEnv("DB_HOST", "localhost"),
		DBPort:   getEnv("DB_PORT", "3306"),
		DBUser:   getEnv("DB_USER", "root"),
		DBPass:   getEnv("DB_PASS", "root"),
		DBName:   getEnv("DB_NAME", "Go_Drop"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioHost:     getEnv("MINIO_HOST", "localhost"),
		MinioPort:     getEnv("MINIO_PORT", "9000"),
		MinioUsername: getEnv("MINIO_USERNAME", "minioadmin"),
		MinioPassword: getEnv("MINIO_PASSWORD", "minioadmin"),
		MinioUseSSL:   getEnvBool("MINIO_USE_SSL", false),
		BucketName:    getEnv("BUCKET_NAME", "go-drop"),

		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 8),

		ThumbWorkerConcurrency: getEnvInt("THUMB_WORKER_CONCURRENCY", 2),
		ThumbRate:              getEnvFloat("THUMB_RATE", 0),
		ThumbBurst:             getEnvInt("THUMB_BURST", 4),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", ""),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPass:     getEnv("SMTP_PASS", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPTLS:      getEnvBool("SMTP_TLS", false),
		SMTPStartTLS: getEnvBool("SMTP_STARTTLS", false),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		// effectively unlimited; chunk size is bounded by the client
		MaxRequestBytes:    getEnvInt64("MAX_REQUEST_BYTES", 10<<30),
		MaxMultipartMemory: getEnvInt64("MAX_MULTIPART_MEMORY", 8<<20),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),
	}

	InitStorageConfig()
}
