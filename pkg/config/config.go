package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	ListenAddr  string
	LogLevel    string

	// cart snapshot storage: "redis", "sql" or "memory"
	CartStorage string
	RedisAddr   string
	RedisDB     int
	DatabaseURL string

	BackendURL string

	IdentityMode   string
	IdentityURL    string
	IdentityAPIKey string
	IdentitySecret []byte

	PaymentURL    string
	PaymentAPIKey string

	KafkaBrokers []string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	GuardPendingWait time.Duration
	VisitorIdleTTL   time.Duration
	SecureCookies    bool
}

// LoadEnvFile loads a dotenv file when present. Missing files are not an error.
func LoadEnvFile(path string) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Printf("Notice: %s file not found: %v. Using system environment variables", path, err)
	}
}

func Load() Config {
	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "storefront"),
		ListenAddr:  EnvDefault("LISTEN_ADDR", ":8080"),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		CartStorage: EnvDefault("CART_STORAGE", "redis"),
		RedisAddr:   EnvDefault("REDIS_ADDR", "localhost:6379"),
		RedisDB:     EnvIntDefault("REDIS_DB", 0),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		BackendURL: os.Getenv("BACKEND_URL"),

		IdentityMode:   EnvDefault("IDENTITY_MODE", "remote"),
		IdentityURL:    os.Getenv("IDENTITY_URL"),
		IdentityAPIKey: os.Getenv("IDENTITY_API_KEY"),
		IdentitySecret: []byte(os.Getenv("IDENTITY_SECRET")),

		PaymentURL:    os.Getenv("PAYMENT_URL"),
		PaymentAPIKey: os.Getenv("PAYMENT_API_KEY"),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    EnvDefault("ES_INDEX", "medicines"),

		GuardPendingWait: EnvDurationDefault("GUARD_PENDING_WAIT", 2*time.Second),
		VisitorIdleTTL:   EnvDurationDefault("VISITOR_IDLE_TTL", 30*time.Minute),
		SecureCookies:    EnvBoolDefault("SECURE_COOKIES", true),
	}
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func EnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
