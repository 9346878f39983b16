package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string
	JWTSecret  string

	// Routing collaborator: "osrm", "haversine" or empty (zone fee only).
	RouterProvider string
	RouterURL      string

	// Minor units used when neither routing nor a zone fee is available.
	DefaultDeliveryFee int64
	FeeSchedulePath    string

	AlertPeriod time.Duration

	// Optional; status events are not published when empty.
	RabbitMQURL string

	InternalSecretKey string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:             os.Getenv("DB_HOST"),
		DBUser:             os.Getenv("DB_USER"),
		DBPassword:         os.Getenv("DB_PASSWORD"),
		DBName:             os.Getenv("DB_NAME"),
		DBPort:             os.Getenv("DB_PORT"),
		AppPort:            getEnv("APP_PORT", "8080"),
		AppEnv:             os.Getenv("APP_ENV"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		RouterProvider:     os.Getenv("ROUTER_PROVIDER"),
		RouterURL:          os.Getenv("ROUTER_URL"),
		DefaultDeliveryFee: getEnvInt64("DEFAULT_DELIVERY_FEE", 500),
		FeeSchedulePath:    os.Getenv("FEE_SCHEDULE_PATH"),
		AlertPeriod:        getEnvDuration("ALERT_PERIOD", 3*time.Second),
		RabbitMQURL:        os.Getenv("RABBITMQ_URL"),
		InternalSecretKey:  os.Getenv("INTERNAL_SECRET_KEY"),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
