package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.CheckinMinDuration != 20*time.Second {
		t.Fatalf("CheckinMinDuration = %v, want 20s", cfg.CheckinMinDuration)
	}
	if cfg.CheckinMaxMembers != 10 || cfg.CheckinMaxAbsences != 3 || cfg.CheckinMaxSessionsPerChannel != 5 {
		t.Fatalf("check-in limits = %d/%d/%d, want 10/3/5", cfg.CheckinMaxMembers, cfg.CheckinMaxAbsences, cfg.CheckinMaxSessionsPerChannel)
	}
	if cfg.GroupLifetime != 12*time.Hour {
		t.Fatalf("GroupLifetime = %v, want 12h", cfg.GroupLifetime)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
	if err := cfg.RequireDiscord(); err != ErrMissingToken {
		t.Fatalf("RequireDiscord() = %v, want ErrMissingToken", err)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("DISCORD_BOT_TOKEN", " secret ")
	t.Setenv("CHECKIN_MAX_MEMBERS", "12")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.DiscordToken != "secret" {
		t.Fatalf("DiscordToken = %q, want trimmed value", cfg.DiscordToken)
	}
	if cfg.CheckinMaxMembers != 12 {
		t.Fatalf("CheckinMaxMembers = %d, want 12", cfg.CheckinMaxMembers)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatal("AllowAnyOrigin = false, want true")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"APP_SHUTDOWN_TIMEOUT": "soon",
		"CHECKIN_MAX_MEMBERS":  "0",
		"CHECKIN_MIN_DURATION": "10ms",
		"APP_ALLOW_ANY_ORIGIN": "maybe",
		"GROUP_LIFETIME":       "-1h",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q succeeded, want error", key, value)
			}
		})
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	setCoreEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "cpo.yaml")
	content := "app_bind_addr: \":7070\"\nbot_developer_id: \"42\"\ngroup_default_max_size: 4\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GROUP_DEFAULT_MAX_SIZE", "6")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.BindAddr != ":7070" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":7070")
	}
	if cfg.DeveloperID != "42" {
		t.Fatalf("DeveloperID = %q, want %q", cfg.DeveloperID, "42")
	}
	if cfg.GroupDefaultMaxSize != 6 {
		t.Fatalf("GroupDefaultMaxSize = %d, want env value 6", cfg.GroupDefaultMaxSize)
	}
}

func TestLoadFileMissing(t *testing.T) {
	setCoreEnvEmpty(t)
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadFile() with missing file succeeded, want error")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	for key := range defaults {
		t.Setenv(key, "")
	}
}
