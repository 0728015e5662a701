package config

import (
	"os"
	"time"

	"github.com/LouAnabel/someContacts/internal/flagx"
	"github.com/joho/godotenv"
)

// Environment variable names. DATABASE_URL and JWT_SECRET_KEY follow the
// names used by the deployment scripts.
const (
	envHTTPAddr        = "HTTP_ADDR"
	envDatabaseURL     = "DATABASE_URL"
	envSecretKey       = "JWT_SECRET_KEY"
	envAccessTokenTTL  = "JWT_ACCESS_TOKEN_EXPIRES"
	envRefreshTokenTTL = "JWT_REFRESH_TOKEN_EXPIRES"
	envPurgeInterval   = "TOKEN_PURGE_INTERVAL"
	envPurgeTimeout    = "TOKEN_PURGE_TIMEOUT"
	envLedgerTimeout   = "LEDGER_TIMEOUT"
	envRevokedCacheTTL = "REVOKED_CACHE_TTL"
	envLogLevel        = "LOG_LEVEL"
	envLogFormat       = "LOG_FORMAT"
	envShutdownTimeout = "SHUTDOWN_TIMEOUT"
)

// loadDotenv seeds the process environment from a dotenv file. The file
// named by -e / -env-file must exist; otherwise ".env" is loaded when
// present. Variables already set in the environment win.
func loadDotenv() {
	if path := flagx.EnvFileFlags(); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
		return
	}
	_ = godotenv.Load()
}

// parseEnv overlays config with environment variables. Durations use
// time.ParseDuration syntax; a malformed duration panics.
func parseEnv(config *Config) {
	loadDotenv()

	lookupString(envHTTPAddr, &config.HTTPAddr)
	lookupString(envDatabaseURL, &config.DatabaseDSN)
	lookupString(envSecretKey, &config.SecretKey)
	lookupString(envLogLevel, &config.LogLevel)
	lookupString(envLogFormat, &config.LogFormat)

	lookupDuration(envAccessTokenTTL, &config.AccessTokenValidityDuration)
	lookupDuration(envRefreshTokenTTL, &config.RefreshTokenValidityDuration)
	lookupDuration(envPurgeInterval, &config.PurgeInterval)
	lookupDuration(envPurgeTimeout, &config.PurgeTimeout)
	lookupDuration(envLedgerTimeout, &config.LedgerTimeout)
	lookupDuration(envRevokedCacheTTL, &config.RevokedCacheTTL)
	lookupDuration(envShutdownTimeout, &config.ShutdownTimeout)
}

func lookupString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func lookupDuration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}
