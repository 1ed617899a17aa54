package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvRPCEndpoint  = "OMNIARB_RPC_ENDPOINT"
	EnvRedisAddr    = "OMNIARB_REDIS_ADDR"
	EnvTotalCapital = "OMNIARB_TOTAL_CAPITAL_USD"
)

// LoadEnv loads environment variables from .env file. A missing file is not an error.
func LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with values from the environment.
func ApplyEnv(cfg *Config) error {
	cfg.Chain.RPCEndpoint = GetEnvWithDefault(EnvRPCEndpoint, cfg.Chain.RPCEndpoint)
	cfg.Execution.RedisAddr = GetEnvWithDefault(EnvRedisAddr, cfg.Execution.RedisAddr)

	if raw := os.Getenv(EnvTotalCapital); raw != "" {
		capital, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfiguration, EnvTotalCapital, err)
		}
		cfg.Allocation.TotalCapitalUSD = capital
	}
	return nil
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
