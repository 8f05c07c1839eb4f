// Package config loads runtime configuration for the bot backend from viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix = "CHALLENGEFORGE"

	defaultHTTPAddress       = "0.0.0.0:8090"
	defaultDatabasePath      = "challengeforge.db"
	defaultLogLevel          = "info"
	defaultPageSize          = 10
	defaultNoteMaxLength     = 500
	defaultRateWindowSeconds = 10
	defaultRateMaxEvents     = 5
	defaultPendingTTLMinutes = 10
	defaultTokenTTLMinutes   = 0
)

// AppConfig captures runtime configuration for the bot backend.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string

	// CallbackSecret signs button tokens. Empty selects open mode: tokens are
	// accepted without verification and votes/saves can be spoofed.
	CallbackSecret string

	// GatewaySigningSecret signs the bearer tokens the transport presents on
	// the webhook endpoint.
	GatewaySigningSecret   string
	GatewayTokenTTLMinutes int

	PageSize          int
	NoteMaxLength     int
	RateWindowSeconds int
	RateMaxEvents     int
	PendingTTLMinutes int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper
// instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("callback.secret", "")
	configViper.SetDefault("gateway.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("page.size", defaultPageSize)
	configViper.SetDefault("note.max_length", defaultNoteMaxLength)
	configViper.SetDefault("ratelimit.window_seconds", defaultRateWindowSeconds)
	configViper.SetDefault("ratelimit.max_events", defaultRateMaxEvents)
	configViper.SetDefault("pending.ttl_minutes", defaultPendingTTLMinutes)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:            configViper.GetString("http.address"),
		DatabasePath:           configViper.GetString("database.path"),
		LogLevel:               configViper.GetString("log.level"),
		CallbackSecret:         configViper.GetString("callback.secret"),
		GatewaySigningSecret:   configViper.GetString("gateway.signing_secret"),
		GatewayTokenTTLMinutes: configViper.GetInt("gateway.token_ttl_minutes"),
		PageSize:               configViper.GetInt("page.size"),
		NoteMaxLength:          configViper.GetInt("note.max_length"),
		RateWindowSeconds:      configViper.GetInt("ratelimit.window_seconds"),
		RateMaxEvents:          configViper.GetInt("ratelimit.max_events"),
		PendingTTLMinutes:      configViper.GetInt("pending.ttl_minutes"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.GatewaySigningSecret) == "" {
		return fmt.Errorf("gateway.signing_secret is required")
	}
	if c.PageSize < 1 {
		return fmt.Errorf("page.size must be positive")
	}
	if c.NoteMaxLength < 1 {
		return fmt.Errorf("note.max_length must be positive")
	}
	if c.RateWindowSeconds < 1 || c.RateMaxEvents < 1 {
		return fmt.Errorf("ratelimit.window_seconds and ratelimit.max_events must be positive")
	}
	return nil
}
