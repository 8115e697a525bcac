package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/anonchat/internal/flagx"
	"github.com/dmitrijs2005/anonchat/internal/timex"
)

// JsonConfig is the on-disk shape of Config. Durations accept strings such
// as "30s" or integer nanoseconds. Keys left out keep their current value.
type JsonConfig struct {
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                 string         `json:"database_dsn"`
	Store                       string         `json:"store"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	TelegramToken               string         `json:"telegram_token"`
	AdminUserID                 int64          `json:"admin_user_id"`
	TelegramPollTimeout         timex.Duration `json:"telegram_poll_timeout"`
	AgentEndpoint               string         `json:"agent_endpoint"`
	AgentModel                  string         `json:"agent_model"`
	AgentAPIKey                 string         `json:"agent_api_key"`
	AgentTimeout                timex.Duration `json:"agent_timeout"`
	AgentSystemPrompt           string         `json:"agent_system_prompt"`
	RedisURL                    string         `json:"redis_url"`
	DedupTTL                    timex.Duration `json:"dedup_ttl"`
	SendRatePerSecond           float64        `json:"send_rate_per_second"`
	OutboxSize                  int            `json:"outbox_size"`
	Workers                     int            `json:"workers"`
	PseudonymKey                string         `json:"pseudonym_key"`
	LogLevel                    string         `json:"log_level"`
}

// parseJson overlays the file named by -c/-config onto config. Without the
// flag nothing happens. An unreadable or malformed file panics.
func parseJson(config *Config, args []string) {

	jsonConfigFile := flagx.ConfigPath(args)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.Store, c.Store)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setString(&config.TelegramToken, c.TelegramToken)
	if c.AdminUserID != 0 {
		config.AdminUserID = c.AdminUserID
	}
	setDuration(&config.TelegramPollTimeout, c.TelegramPollTimeout)
	setString(&config.AgentEndpoint, c.AgentEndpoint)
	setString(&config.AgentModel, c.AgentModel)
	setString(&config.AgentAPIKey, c.AgentAPIKey)
	setDuration(&config.AgentTimeout, c.AgentTimeout)
	setString(&config.AgentSystemPrompt, c.AgentSystemPrompt)
	setString(&config.RedisURL, c.RedisURL)
	setDuration(&config.DedupTTL, c.DedupTTL)
	if c.SendRatePerSecond != 0 {
		config.SendRatePerSecond = c.SendRatePerSecond
	}
	if c.OutboxSize != 0 {
		config.OutboxSize = c.OutboxSize
	}
	if c.Workers != 0 {
		config.Workers = c.Workers
	}
	setString(&config.PseudonymKey, c.PseudonymKey)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
