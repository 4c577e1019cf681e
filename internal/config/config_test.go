package config

import (
	"strings"
	"testing"
	"time"
)

func newValidViper() map[string]interface{} {
	return map[string]interface{}{
		"auth.signing_secret": "secret",
		"auth.api_key":        "key",
		"notify.webhook_url":  "http://localhost:9000/hook",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	for key, value := range newValidViper() {
		configViper.Set(key, value)
	}

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TimeZone != "Asia/Karachi" {
		t.Fatalf("unexpected default zone: %q", cfg.TimeZone)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Fatalf("unexpected default poll interval: %v", cfg.PollInterval)
	}
	if cfg.DatabasePath != "reminders.db" {
		t.Fatalf("unexpected default database path: %q", cfg.DatabasePath)
	}
	if cfg.BoardConfigured() {
		t.Fatalf("board must be unconfigured without credentials")
	}
}

func TestLoadRejectsMissingRequiredKeys(t *testing.T) {
	for _, missing := range []string{"auth.signing_secret", "auth.api_key", "notify.webhook_url"} {
		t.Run(missing, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range newValidViper() {
				if key == missing {
					continue
				}
				configViper.Set(key, value)
			}
			_, err := Load(configViper)
			if err == nil {
				t.Fatalf("expected validation error for missing %s", missing)
			}
			if !strings.Contains(err.Error(), missing) {
				t.Fatalf("error %q does not name %s", err, missing)
			}
		})
	}
}

func TestBoardConfiguredRequiresAllCredentials(t *testing.T) {
	configViper := NewViper()
	for key, value := range newValidViper() {
		configViper.Set(key, value)
	}
	configViper.Set("board.api_key", "bk")
	configViper.Set("board.token", "bt")
	configViper.Set("board.id", "board-1")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.BoardConfigured() {
		t.Fatalf("board should be configured")
	}
}
