package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// PlaceholderAPIKey is the value shipped in the sample api.json.
const PlaceholderAPIKey = "YourApiKey"

// CredentialsWarning is shown to the user when Validate fails.
const CredentialsWarning = "Please enter your API key and server URL in the api.json file"

// ErrPlaceholderCredentials means api.json still holds the sample values.
var ErrPlaceholderCredentials = errors.New("api key or server url not configured")

// Config holds the application configuration.
type Config struct {
	APIKey    string `mapstructure:"apikey"`
	ServerURL string `mapstructure:"serverurl"`

	AvatarName string `mapstructure:"avatar_name"`
	VoiceID    string `mapstructure:"voice_id"`
	Quality    string `mapstructure:"quality"`

	// MicFile is an Ogg/Opus file played as the local microphone.
	MicFile string `mapstructure:"mic_file"`
	// MediaDir receives the recorded remote tracks; empty drains them.
	MediaDir  string `mapstructure:"media_dir"`
	PanelAddr string `mapstructure:"panel_addr"`
}

var envBindings = map[string]string{
	"apikey":      "AVATAR_API_KEY",
	"serverurl":   "AVATAR_SERVER_URL",
	"avatar_name": "AVATAR_NAME",
	"voice_id":    "AVATAR_VOICE_ID",
	"quality":     "AVATAR_QUALITY",
	"mic_file":    "AVATAR_MIC_FILE",
	"media_dir":   "AVATAR_MEDIA_DIR",
	"panel_addr":  "AVATAR_PANEL_ADDR",
}

// Load reads configuration from a .env file (if present), the JSON
// credentials file at path and environment variables. Environment variables
// take precedence over the file.
func Load(path string) (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("json")
	v.SetConfigFile(path)

	v.SetDefault("quality", "high")
	v.SetDefault("panel_addr", "127.0.0.1:8080")
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		log.Warn().Str("module", "config").Str("file", path).Msg("config file not found, using environment")
	} else {
		log.Debug().Str("module", "config").Str("file", path).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)

	return &cfg, nil
}

// Validate rejects the sample credentials.
func (c *Config) Validate() error {
	if c.APIKey == "" || c.APIKey == PlaceholderAPIKey || c.ServerURL == "" {
		return ErrPlaceholderCredentials
	}
	return nil
}
