package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "REMINDBOT"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "reminders.db"
	defaultLogLevel     = "info"
	defaultTimeZone     = "Asia/Karachi"
	defaultPollSeconds  = 10
	defaultNotifySecs   = 10
	defaultBoardBaseURL = "https://api.trello.com/1"
)

// AppConfig captures runtime configuration for the reminder service.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	SigningSecret string
	APIKey        string
	TimeZone      string
	PollInterval  time.Duration
	WebhookURL    string
	NotifyTimeout time.Duration
	BoardBaseURL  string
	BoardAPIKey   string
	BoardToken    string
	BoardID       string
}

// BoardConfigured reports whether the board proxy credentials are present.
func (c AppConfig) BoardConfigured() bool {
	return strings.TrimSpace(c.BoardAPIKey) != "" &&
		strings.TrimSpace(c.BoardToken) != "" &&
		strings.TrimSpace(c.BoardID) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("time.zone", defaultTimeZone)
	configViper.SetDefault("scheduler.poll_interval_s", defaultPollSeconds)
	configViper.SetDefault("notify.timeout_s", defaultNotifySecs)
	configViper.SetDefault("board.base_url", defaultBoardBaseURL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		APIKey:        configViper.GetString("auth.api_key"),
		TimeZone:      configViper.GetString("time.zone"),
		PollInterval:  time.Duration(configViper.GetInt("scheduler.poll_interval_s")) * time.Second,
		WebhookURL:    configViper.GetString("notify.webhook_url"),
		NotifyTimeout: time.Duration(configViper.GetInt("notify.timeout_s")) * time.Second,
		BoardBaseURL:  configViper.GetString("board.base_url"),
		BoardAPIKey:   configViper.GetString("board.api_key"),
		BoardToken:    configViper.GetString("board.token"),
		BoardID:       configViper.GetString("board.id"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.TimeZone) == "" {
		return fmt.Errorf("time.zone is required")
	}
	if strings.TrimSpace(c.WebhookURL) == "" {
		return fmt.Errorf("notify.webhook_url is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("scheduler.poll_interval_s must be positive")
	}
	if c.NotifyTimeout <= 0 {
		return fmt.Errorf("notify.timeout_s must be positive")
	}
	return nil
}
