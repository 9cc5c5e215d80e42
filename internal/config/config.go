// Package config loads service settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

type Postgres struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

type Config struct {
	ServiceName    string
	Env            string
	LogLevel       string
	HTTPPort       string
	GRPCHealthPort string

	CartStore   string
	SQLitePath  string
	Postgres    Postgres
	MongoURI    string
	MongoDBName string

	// CatalogDriver is "memory", "sqlite" or "postgres". An empty CatalogDSN
	// reuses the cart store database.
	CatalogDriver string
	CatalogDSN    string

	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	KafkaBrokers []string

	// AuthJWTSecret switches identity from the X-User-ID header to bearer tokens.
	AuthJWTSecret string

	RequestTimeout      time.Duration
	ShutdownTimeout     time.Duration
	MaxRequestBodyBytes int64
	HealthInterval      time.Duration

	OTLPEndpoint string
}

func Load() *Config {
	return &Config{
		ServiceName:    getEnv("SERVICE_NAME", "cart-service"),
		Env:            getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		GRPCHealthPort: getEnv("GRPC_HEALTH_PORT", "50052"),

		CartStore:  strings.ToLower(getEnv("CART_STORE", StoreSQLite)),
		SQLitePath: getEnv("SQLITE_PATH", "cart.db"),
		Postgres: Postgres{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			DBName:   getEnv("POSTGRES_DB", "urbane_jungle"),
		},
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "cartdb"),

		CatalogDriver: strings.ToLower(getEnv("CATALOG_DRIVER", StoreSQLite)),
		CatalogDSN:    getEnv("CATALOG_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		CacheTTL:      getEnvDuration("CACHE_TTL", 15*time.Minute),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		RequestTimeout:      getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:     getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodyBytes: int64(getEnvInt("MAX_REQUEST_BODY", 1<<20)), // 1MB
		HealthInterval:      getEnvDuration("HEALTH_INTERVAL", 10*time.Second),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
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
