package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "unimatch.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfigFile_OverlaysDefaults(t *testing.T) {
	t.Parallel()

	p := writeConfigFile(t, `
log_level: debug
client:
  base_url: http://chat.test:9000
  poll_interval: 750ms
devserver:
  http_addr: 0.0.0.0:9000
  directory:
    users:
      - {id: u-a, display_name: A, token: ta}
      - {id: u-b, token: tb}
    conversations:
      - {id: c-1, members: [u-a, u-b]}
`)

	cfg := DefaultConfig()
	if err := LoadConfigFile(p, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level=%q", cfg.LogLevel)
	}
	if cfg.Client.BaseURL != "http://chat.test:9000" || cfg.Client.PollInterval != 750*time.Millisecond {
		t.Fatalf("client=%+v", cfg.Client)
	}
	// Untouched keys keep their defaults.
	if cfg.Client.JoinTimeout != 5*time.Second {
		t.Fatalf("join_timeout=%v want=5s", cfg.Client.JoinTimeout)
	}
	d := cfg.Server.Directory
	if d == nil || !d.IsMember("u-b", "c-1") {
		t.Fatalf("directory not loaded: %+v", d)
	}
	if _, ok := d.Authenticate("ta"); !ok {
		t.Fatalf("directory token not indexed")
	}
}

func TestLoadConfigFile_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	p := writeConfigFile(t, "client:\n  base_ulr: http://typo\n")
	cfg := DefaultConfig()
	if err := LoadConfigFile(p, &cfg); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.LogFormat = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected log_format error")
	}

	cfg = DefaultConfig()
	cfg.Client.BaseURL = " "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected base_url error")
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	p := writeConfigFile(t, "client:\n  base_url: http://from-file:1\n  token: file-token\n")

	t.Chdir(t.TempDir())
	t.Setenv("UNIMATCH_CONFIG", p)
	t.Setenv("UNIMATCH_TOKEN", "env-token")
	t.Setenv("UNIMATCH_POLL_INTERVAL", "2s")
	t.Setenv("UNIMATCH_DEVSERVER_ALLOWED_ORIGINS", "http://localhost:3000, ,http://127.0.0.1:*")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Client.BaseURL != "http://from-file:1" {
		t.Fatalf("base_url=%q", cfg.Client.BaseURL)
	}
	if cfg.Client.Token != "env-token" {
		t.Fatalf("token=%q want=env-token", cfg.Client.Token)
	}
	if cfg.Client.PollInterval != 2*time.Second {
		t.Fatalf("poll_interval=%v", cfg.Client.PollInterval)
	}
	if got := cfg.Server.AllowedOrigins; len(got) != 2 || got[1] != "http://127.0.0.1:*" {
		t.Fatalf("allowed_origins=%v", got)
	}
}

func TestLoadConfig_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("UNIMATCH_USER_ID=u-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)
	t.Setenv("UNIMATCH_CONFIG", "")
	// Registers cleanup so the value godotenv sets is undone.
	t.Setenv("UNIMATCH_USER_ID", "")
	_ = os.Unsetenv("UNIMATCH_USER_ID")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Client.UserID != "u-dotenv" {
		t.Fatalf("user_id=%q want=u-dotenv", cfg.Client.UserID)
	}
}

func TestResolvedPushURL(t *testing.T) {
	t.Parallel()

	c := ClientConfig{BaseURL: "https://chat.example.com"}
	if got := c.ResolvedPushURL(); got != "wss://chat.example.com/ws" {
		t.Fatalf("derived=%q", got)
	}
	c.PushURL = "ws://push.example.com/socket"
	if got := c.ResolvedPushURL(); got != c.PushURL {
		t.Fatalf("explicit=%q", got)
	}
	c.DisablePush = true
	if got := c.ResolvedPushURL(); got != "" {
		t.Fatalf("disabled=%q want empty", got)
	}
}
