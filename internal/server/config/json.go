package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/LouAnabel/someContacts/internal/flagx"
	"github.com/LouAnabel/someContacts/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations use
// timex.Duration so they may be written as "15m" or as nanoseconds.
type JsonConfig struct {
	HTTPAddr                     string         `json:"http_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	PurgeInterval                timex.Duration `json:"purge_interval"`
	PurgeTimeout                 timex.Duration `json:"purge_timeout"`
	LedgerTimeout                timex.Duration `json:"ledger_timeout"`
	RevokedCacheTTL              timex.Duration `json:"revoked_cache_ttl"`
	LogLevel                     string         `json:"log_level"`
	LogFormat                    string         `json:"log_format"`
	ShutdownTimeout              timex.Duration `json:"shutdown_timeout"`
}

// parseJson overlays config with the JSON file named by -c / -config.
// Keys missing from the file leave the current values untouched. A file
// that cannot be read or parsed panics, as a broken config must not start
// the server.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)

	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.PurgeInterval, c.PurgeInterval)
	setDuration(&config.PurgeTimeout, c.PurgeTimeout)
	setDuration(&config.LedgerTimeout, c.LedgerTimeout)
	setDuration(&config.RevokedCacheTTL, c.RevokedCacheTTL)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.IsSet() {
		*dst = v.Duration
	}
}
