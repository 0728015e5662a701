package config

import (
	"encoding/json"
	"os"

	"github.com/LouAnabel/someContacts/internal/flagx"
	"github.com/LouAnabel/someContacts/internal/timex"
)

// JsonConfig is the on-disk shape of the CLI config file. Durations go
// through timex.Duration and are copied into Config afterwards.
type JsonConfig struct {
	ServerURL           string         `json:"server_url"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
}

// parseJson overlays cfg with values from the file named by -c/-config.
// It panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.RequestTimeout.IsSet() {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.OnlineCheckInterval.IsSet() {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
}
