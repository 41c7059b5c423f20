package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"bollinger-service/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	HTTPAddr      string
	MetricsAddr   string
	LogLevel      string

	// Default indicator inputs, editable at runtime via /api/settings
	Bollinger model.BollingerParams

	// CandleLimit caps how many candles one computation reads.
	CandleLimit int

	// PublishBands pushes the latest band point of every computation
	// to Redis PubSub.
	PublishBands bool

	// LivenessIntervalS is the period of the Redis/SQLite health probes.
	LivenessIntervalS int
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present; real
// environment variables win over it.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] ignoring .env: %v", err)
	}

	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		Bollinger: model.BollingerParams{
			Length:           getEnvInt("BB_LENGTH", model.DefaultLength),
			StdDevMultiplier: getEnvFloat("BB_MULT", model.DefaultMultiplier),
			Offset:           getEnvInt("BB_OFFSET", model.DefaultOffset),
			MAType:           model.MATypeSMA,
			Source:           model.SourceClose,
		},

		CandleLimit:       getEnvInt("CANDLE_LIMIT", 1000),
		PublishBands:      getEnvBool("PUBLISH_BANDS", true),
		LivenessIntervalS: getEnvInt("LIVENESS_INTERVAL_SEC", 15),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
