package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/keyvault/internal/flagx"
	"github.com/dmitrijs2005/keyvault/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Only fields
// present in the file are copied, so a partial file keeps the defaults for
// everything it leaves out.
type JsonConfig struct {
	Mode                string         `json:"mode"`
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	DataDir             string         `json:"data_dir"`
	KeyCache            string         `json:"key_cache"`
	Username            string         `json:"username"`
	MinPasswordLength   int            `json:"min_password_length"`
	Algorithm           string         `json:"algorithm"`
	KDF                 string         `json:"kdf"`
	LogLevel            string         `json:"log_level"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	RequestTimeout      timex.Duration `json:"request_timeout"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c/-config or $KEYVAULT_CONFIG. It panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigFile(os.Args[1:])
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

	setString(&cfg.Mode, jc.Mode)
	setString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.KeyCache, jc.KeyCache)
	setString(&cfg.Username, jc.Username)
	setString(&cfg.Algorithm, jc.Algorithm)
	setString(&cfg.KDF, jc.KDF)
	setString(&cfg.LogLevel, jc.LogLevel)
	if jc.MinPasswordLength > 0 {
		cfg.MinPasswordLength = jc.MinPasswordLength
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
