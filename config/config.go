package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "formsync"

// Config holds all runtime settings for the server
type Config struct {
	// DatabaseURL is the PostgreSQL connection string
	DatabaseURL string

	// Port is the HTTP listen port
	Port int

	// Environment is "development" or "production". Production tightens
	// cookie and CORS settings.
	Environment string

	// FrontendURL is the allowed CORS origin and the post-login redirect
	FrontendURL string

	LogLevel        string
	LogFormat       string
	ErrorSampleRate int
	OTELEnabled     bool
	ServiceName     string

	// AirtableClientID and AirtableClientSecret identify the OAuth integration
	AirtableClientID     string
	AirtableClientSecret string

	// AirtableRedirectURL is the OAuth callback registered with Airtable
	AirtableRedirectURL string

	// AirtableAPIURL and AirtableAuthURL are overridable for tests
	AirtableAPIURL  string
	AirtableAuthURL string

	// WebhookSecret enables signature verification of Airtable notifications
	WebhookSecret string

	// SessionSecret signs session tokens
	SessionSecret string
	SessionTTL    time.Duration

	// TokenRefreshSchedule is a cron spec for the proactive token refresh job
	TokenRefreshSchedule string
	TokenRefreshWindow   time.Duration

	FormCacheTTL time.Duration
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads configuration from FORMSYNC_* environment variables and, when
// path is non-empty, from a config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 5000)
	v.SetDefault("environment", "development")
	v.SetDefault("frontend_url", "http://localhost:3000")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("error_sample_rate", 1)
	v.SetDefault("otel_enabled", false)
	v.SetDefault("service_name", "formsync")
	v.SetDefault("airtable_api_url", "https://api.airtable.com")
	v.SetDefault("airtable_auth_url", "https://airtable.com")
	v.SetDefault("session_ttl", 7*24*time.Hour)
	v.SetDefault("token_refresh_schedule", "*/10 * * * *")
	v.SetDefault("token_refresh_window", 15*time.Minute)
	v.SetDefault("form_cache_ttl", 5*time.Minute)

	// AutomaticEnv only resolves keys viper already knows about
	for _, key := range []string{
		"database_url", "airtable_client_id", "airtable_client_secret",
		"airtable_redirect_url", "webhook_secret", "session_secret",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		DatabaseURL:          v.GetString("database_url"),
		Port:                 v.GetInt("port"),
		Environment:          v.GetString("environment"),
		FrontendURL:          v.GetString("frontend_url"),
		LogLevel:             v.GetString("log_level"),
		LogFormat:            v.GetString("log_format"),
		ErrorSampleRate:      v.GetInt("error_sample_rate"),
		OTELEnabled:          v.GetBool("otel_enabled"),
		ServiceName:          v.GetString("service_name"),
		AirtableClientID:     v.GetString("airtable_client_id"),
		AirtableClientSecret: v.GetString("airtable_client_secret"),
		AirtableRedirectURL:  v.GetString("airtable_redirect_url"),
		AirtableAPIURL:       strings.TrimRight(v.GetString("airtable_api_url"), "/"),
		AirtableAuthURL:      strings.TrimRight(v.GetString("airtable_auth_url"), "/"),
		WebhookSecret:        v.GetString("webhook_secret"),
		SessionSecret:        v.GetString("session_secret"),
		SessionTTL:           v.GetDuration("session_ttl"),
		TokenRefreshSchedule: v.GetString("token_refresh_schedule"),
		TokenRefreshWindow:   v.GetDuration("token_refresh_window"),
		FormCacheTTL:         v.GetDuration("form_cache_ttl"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings
func (c *Config) Validate() error {
	var problems []string

	if c.DatabaseURL == "" {
		problems = append(problems, "database_url is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d is out of range", c.Port))
	}
	if len(c.SessionSecret) < 32 {
		problems = append(problems, "session_secret must be at least 32 characters")
	}
	if c.AirtableClientID == "" {
		problems = append(problems, "airtable_client_id is required")
	}
	if c.AirtableRedirectURL == "" {
		problems = append(problems, "airtable_redirect_url is required")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
