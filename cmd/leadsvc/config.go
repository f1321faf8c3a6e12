package main

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	driverMemory   = "memory"
	driverPostgres = "postgres"
	driverSqlite   = "sqlite3"
)

type Config struct {
	Addr string

	DBDriver    string // memory, postgres or sqlite3
	DatabaseURL string

	RedisAddr     string // empty = no cache
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	ServiceName string
	LogLevel    string
	LogFormat   string // text or json
	Debug       bool   // storage debug logging
	Seed        bool   // start with the sample leads
}

// where loadDotenv looks for a .env, in order
var dotenvPaths = []string{".env", filepath.Join("..", ".env"), filepath.Join("..", "..", ".env")}

// loadDotenv loads the first .env found in the working directory or its parents
func loadDotenv() {
	for _, p := range dotenvPaths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			logrus.WithError(err).Warnf("[env] unable to load %s", p)
			return
		}
		logrus.Debugf("[env] loaded %s", p)
		return
	}
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return d
	}
	return v
}

func envBool(k string, d bool) bool {
	v, err := strconv.ParseBool(os.Getenv(k))
	if err != nil {
		return d
	}
	return v
}

func envDuration(k string, d time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return d
	}
	return v
}

// configFromEnv is the config before any flag is applied
func configFromEnv() Config {
	return Config{
		Addr: envOr("LEADS_ADDR", "127.0.0.1:8000"),

		DBDriver:    envOr("LEADS_DB_DRIVER", driverMemory),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),
		CacheTTL:      envDuration("LEADS_CACHE_TTL", 7*24*time.Hour),

		ServiceName: envOr("LEADS_SERVICE_NAME", "leadsvc"),
		LogLevel:    envOr("LEADS_LOG_LEVEL", "info"),
		LogFormat:   envOr("LEADS_LOG_FORMAT", "text"),
		Debug:       envBool("LEADS_DEBUG", false),
		Seed:        envBool("LEADS_SEED", false),
	}
}

func newLogger(conf Config) (*logrus.Logger, error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)

	if conf.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
