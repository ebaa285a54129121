package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"unimatch/cmd/internal/devserver"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration. Values come from defaults, then the
// optional YAML file named by UNIMATCH_CONFIG, then UNIMATCH_* env vars.
// CLI flags are applied on top by the caller.
type Config struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"`

	Client ClientConfig `yaml:"client"`
	Server ServerConfig `yaml:"devserver"`
}

// ClientConfig configures the chat client.
type ClientConfig struct {
	BaseURL string `yaml:"base_url"`
	// PushURL defaults to the ws(s) form of BaseURL plus /ws.
	PushURL     string `yaml:"push_url"`
	DisablePush bool   `yaml:"disable_push"`

	UserID string `yaml:"user_id"`
	Token  string `yaml:"token"`

	PollInterval    time.Duration `yaml:"poll_interval"`
	JoinTimeout     time.Duration `yaml:"join_timeout"`
	DuplicateWindow time.Duration `yaml:"duplicate_window"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// ServerConfig configures the dev backend.
type ServerConfig struct {
	HTTPAddr          string        `yaml:"http_addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes"`

	DisablePush    bool     `yaml:"disable_push"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	CORS CORSConfig `yaml:"cors"`

	// Directory replaces the built-in two-user table when set.
	Directory *devserver.Directory `yaml:"directory"`
}

// CORSConfig is the browser access policy of the dev backend REST API.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAgeSeconds    int      `yaml:"max_age_seconds"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "auto",
		Client: ClientConfig{
			BaseURL:         "http://127.0.0.1:8080",
			PollInterval:    3 * time.Second,
			JoinTimeout:     5 * time.Second,
			DuplicateWindow: time.Second,
			RequestTimeout:  15 * time.Second,
		},
		Server: ServerConfig{
			HTTPAddr:          "127.0.0.1:8080",
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}
}

// LoadConfig builds the Config. A missing .env file is not an error.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	if path := EnvString("UNIMATCH_CONFIG", ""); path != "" {
		if err := LoadConfigFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile overlays the YAML file at path onto cfg. Unknown keys are rejected.
func LoadConfigFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.LogLevel = EnvString("UNIMATCH_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = EnvString("UNIMATCH_LOG_FORMAT", cfg.LogFormat)
	cfg.MetricsAddr = EnvString("UNIMATCH_METRICS_ADDR", cfg.MetricsAddr)

	c := &cfg.Client
	c.BaseURL = EnvString("UNIMATCH_BASE_URL", c.BaseURL)
	c.PushURL = EnvString("UNIMATCH_PUSH_URL", c.PushURL)
	c.DisablePush = EnvBool("UNIMATCH_DISABLE_PUSH", c.DisablePush)
	c.UserID = EnvString("UNIMATCH_USER_ID", c.UserID)
	c.Token = EnvString("UNIMATCH_TOKEN", c.Token)
	c.PollInterval = EnvDuration("UNIMATCH_POLL_INTERVAL", c.PollInterval)
	c.JoinTimeout = EnvDuration("UNIMATCH_JOIN_TIMEOUT", c.JoinTimeout)
	c.DuplicateWindow = EnvDuration("UNIMATCH_DUPLICATE_WINDOW", c.DuplicateWindow)
	c.RequestTimeout = EnvDuration("UNIMATCH_REQUEST_TIMEOUT", c.RequestTimeout)

	s := &cfg.Server
	s.HTTPAddr = EnvString("UNIMATCH_DEVSERVER_ADDR", s.HTTPAddr)
	s.DisablePush = EnvBool("UNIMATCH_DEVSERVER_DISABLE_PUSH", s.DisablePush)
	s.AllowedOrigins = EnvCSV("UNIMATCH_DEVSERVER_ALLOWED_ORIGINS", s.AllowedOrigins)
	s.CORS.AllowedOrigins = EnvCSV("UNIMATCH_CORS_ALLOWED_ORIGINS", s.CORS.AllowedOrigins)
}

// Validate checks cross-field constraints and indexes the devserver directory.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Client.BaseURL) == "" {
		return errors.New("config: client.base_url is required")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "auto", "json", "pretty":
	default:
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	if c.Server.Directory != nil {
		if err := c.Server.Directory.Index(); err != nil {
			return fmt.Errorf("config: devserver.directory: %w", err)
		}
	}
	return nil
}

// ResolvedPushURL returns the push endpoint for the client, or "" when push is off.
func (c ClientConfig) ResolvedPushURL() string {
	if c.DisablePush {
		return ""
	}
	if u := strings.TrimSpace(c.PushURL); u != "" {
		return u
	}
	return wsBaseURL(c.BaseURL) + "/ws"
}
