// config/config.go
package config

import (
	"os"
	"strconv"

	"github.com/warp/commission-engine/engine"
)

type Config struct {
	Port        string
	Environment string
	DBPath      string
	PlanPath    string

	// Cron spec for the monthly passive pool distribution.
	PoolCron    string
	PoolEnabled bool

	// Upline traversal cap; also bounds cycle detection work.
	MaxUplineDepth int
}

func Load() *Config {
	return &Config{
		Port:        getEnv("API_PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		DBPath:      getEnv("DB_PATH", "./data/commission.db"),
		PlanPath:    getEnv("PLAN_PATH", "./config/plan.json"),

		// First day of each month, midnight UTC.
		PoolCron:    getEnv("POOL_CRON", "0 0 1 * *"),
		PoolEnabled: getEnvBool("POOL_ENABLED", true),

		// The distribution only ever pays engine.DepthLevels levels, so a
		// deeper walk is wasted lookups. Raise only alongside DepthLevels.
		MaxUplineDepth: getEnvInt("MAX_UPLINE_DEPTH", engine.DepthLevels),
	}
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
