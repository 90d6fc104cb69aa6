package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	HTTP            HTTPConfig    `koanf:"http"`
	BaseURL         string        `koanf:"base_url"`
	Store           StoreConfig   `koanf:"store"`
	Audit           AuditConfig   `koanf:"audit"`
	Slack           SlackConfig   `koanf:"slack"`
	Backend         BackendConfig `koanf:"backend"`
	SharedToken     string        `koanf:"shared_token"`
	SharedTokenFile string        `koanf:"shared_token_file"`
	AdminToken      string        `koanf:"admin_token"`
	Twitter         TwitterConfig `koanf:"twitter"`

	// LegacyEnv lists the pre-RELAY_ variables that supplied a value.
	LegacyEnv []string `koanf:"-"`
}

type HTTPConfig struct {
	Addr      string  `koanf:"addr"`
	RateRPS   float64 `koanf:"rate_rps"`
	RateBurst int     `koanf:"rate_burst"`
	StaticDir string  `koanf:"static_dir"`
	AccessLog bool    `koanf:"access_log"`
}

type StoreConfig struct {
	SQLitePath   string `koanf:"sqlite_path"`
	DurableDedup bool   `koanf:"durable_dedup"`
}

type AuditConfig struct {
	BatchSize  int `koanf:"batch_size"`
	FlushMaxMS int `koanf:"flush_ms"`
}

type SlackConfig struct {
	ClientToken   string `koanf:"client_token"`
	SigningSecret string `koanf:"signing_secret"`
	APIURL        string `koanf:"api_url"`
	TokenMode     string `koanf:"token_mode"`
}

type BackendConfig struct {
	URL         string `koanf:"url"`
	TimeoutSecs int    `koanf:"timeout_secs"`
}

type TwitterConfig struct {
	ConsumerKey       string `koanf:"consumer_key"`
	ConsumerSecret    string `koanf:"consumer_secret"`
	AccessToken       string `koanf:"access_token"`
	AccessTokenSecret string `koanf:"access_token_secret"`
	Handle            string `koanf:"handle"`
}

const (
	defaultAddr        = ":3000"
	defaultSQLitePath  = "relay.db"
	defaultBackendURL  = "https://silentecho.bespoken.io"
	defaultTimeoutSecs = 30
	defaultBatchSize   = 1

	envPrefix = "RELAY_"
)

// envKeys maps RELAY_* variables to config keys. Unknown RELAY_ variables
// are ignored.
var envKeys = map[string]string{
	"RELAY_HTTP_ADDR":                   "http.addr",
	"RELAY_HTTP_RATE_RPS":               "http.rate_rps",
	"RELAY_HTTP_RATE_BURST":             "http.rate_burst",
	"RELAY_HTTP_STATIC_DIR":             "http.static_dir",
	"RELAY_HTTP_ACCESS_LOG":             "http.access_log",
	"RELAY_BASE_URL":                    "base_url",
	"RELAY_SQLITE_PATH":                 "store.sqlite_path",
	"RELAY_DURABLE_DEDUP":               "store.durable_dedup",
	"RELAY_AUDIT_BATCH_SIZE":            "audit.batch_size",
	"RELAY_AUDIT_FLUSH_MAX_MS":          "audit.flush_ms",
	"RELAY_SLACK_CLIENT_TOKEN":          "slack.client_token",
	"RELAY_SLACK_SIGNING_SECRET":        "slack.signing_secret",
	"RELAY_SLACK_API_URL":               "slack.api_url",
	"RELAY_SLACK_TOKEN_MODE":            "slack.token_mode",
	"RELAY_BACKEND_URL":                 "backend.url",
	"RELAY_BACKEND_TIMEOUT_SECS":        "backend.timeout_secs",
	"RELAY_SHARED_TOKEN":                "shared_token",
	"RELAY_SHARED_TOKEN_FILE":           "shared_token_file",
	"RELAY_ADMIN_TOKEN":                 "admin_token",
	"RELAY_TWITTER_CONSUMER_KEY":        "twitter.consumer_key",
	"RELAY_TWITTER_CONSUMER_SECRET":     "twitter.consumer_secret",
	"RELAY_TWITTER_ACCESS_TOKEN":        "twitter.access_token",
	"RELAY_TWITTER_ACCESS_TOKEN_SECRET": "twitter.access_token_secret",
	"RELAY_TWITTER_HANDLE":              "twitter.handle",
}

// legacyEnvKeys are the variable names deployments used before the RELAY_
// prefix. A RELAY_ variable wins when both are set.
var legacyEnvKeys = map[string]string{
	"BASE_URL":             "base_url",
	"SLACK_CLIENT_TOKEN":   "slack.client_token",
	"SILENT_ECHO_URL":      "backend.url",
	"GENERIC_USER_TOKEN":   "shared_token",
	"TWITTER_CONSUMER_KEY": "twitter.consumer_key",
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:      defaultAddr,
			RateRPS:   20,
			RateBurst: 40,
			StaticDir: "static",
			AccessLog: true,
		},
		Store:   StoreConfig{SQLitePath: defaultSQLitePath},
		Audit:   AuditConfig{BatchSize: defaultBatchSize},
		Slack:   SlackConfig{TokenMode: "shared"},
		Backend: BackendConfig{URL: defaultBackendURL, TimeoutSecs: defaultTimeoutSecs},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// the environment, in that order. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path = strings.TrimSpace(path); path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	var legacyUsed []string
	if err := k.Load(env.ProviderWithValue("", ".", func(name, value string) (string, interface{}) {
		key, ok := legacyEnvKeys[name]
		if !ok || strings.TrimSpace(value) == "" {
			return "", nil
		}
		if modernSet(key) {
			return "", nil
		}
		legacyUsed = append(legacyUsed, name)
		return key, strings.TrimSpace(value)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("loading legacy env: %w", err)
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(name, value string) (string, interface{}) {
		key, ok := envKeys[name]
		if !ok || strings.TrimSpace(value) == "" {
			return "", nil
		}
		return key, strings.TrimSpace(value)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.LegacyEnv = legacyUsed
	return cfg, nil
}

func modernSet(key string) bool {
	for name, k := range envKeys {
		if k == key && strings.TrimSpace(os.Getenv(name)) != "" {
			return true
		}
	}
	return false
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Slack.TokenMode)) {
	case "", "shared", "derived":
	default:
		return fmt.Errorf("slack.token_mode must be shared or derived, got %q", c.Slack.TokenMode)
	}
	if c.HTTP.RateRPS < 0 || c.HTTP.RateBurst < 0 {
		return fmt.Errorf("http rate limits must not be negative")
	}
	if strings.TrimSpace(c.Store.SQLitePath) == "" {
		return fmt.Errorf("store.sqlite_path is required")
	}
	return nil
}

func (c Config) TwitterEnabled() bool {
	t := c.Twitter
	return t.ConsumerKey != "" && t.ConsumerSecret != "" && t.AccessToken != "" && t.AccessTokenSecret != "" && t.Handle != ""
}

func (c Config) BackendTimeout() time.Duration {
	if c.Backend.TimeoutSecs <= 0 {
		return defaultTimeoutSecs * time.Second
	}
	return time.Duration(c.Backend.TimeoutSecs) * time.Second
}

func (c Config) FlushInterval() time.Duration {
	if c.Audit.FlushMaxMS <= 0 {
		return 0
	}
	return time.Duration(c.Audit.FlushMaxMS) * time.Millisecond
}

func (c Config) Batch() int {
	if c.Audit.BatchSize <= 0 {
		return defaultBatchSize
	}
	return c.Audit.BatchSize
}

type Summary struct {
	Addr            string         `json:"addr"`
	BaseURL         string         `json:"base_url,omitempty"`
	SQLitePath      string         `json:"sqlite_path"`
	DurableDedup    bool           `json:"durable_dedup"`
	BatchSize       int            `json:"batch"`
	FlushMaxMS      int            `json:"flush_ms"`
	BackendURL      string         `json:"backend_url"`
	SharedToken     string         `json:"shared_token,omitempty"`
	SharedTokenFile string         `json:"shared_token_file,omitempty"`
	Slack           SlackSummary   `json:"slack"`
	Twitter         TwitterSummary `json:"twitter"`
	LegacyEnv       []string       `json:"legacy_env,omitempty"`
}

type SlackSummary struct {
	ClientToken   string `json:"client_token,omitempty"`
	SigningSecret string `json:"signing_secret,omitempty"`
	Verified      bool   `json:"verified"`
	TokenMode     string `json:"token_mode"`
}

type TwitterSummary struct {
	Enabled bool   `json:"enabled"`
	Handle  string `json:"handle,omitempty"`
}

func (c Config) Summary() Summary {
	return Summary{
		Addr:            c.HTTP.Addr,
		BaseURL:         c.BaseURL,
		SQLitePath:      c.Store.SQLitePath,
		DurableDedup:    c.Store.DurableDedup,
		BatchSize:       c.Batch(),
		FlushMaxMS:      c.Audit.FlushMaxMS,
		BackendURL:      c.Backend.URL,
		SharedToken:     redactString(c.SharedToken),
		SharedTokenFile: c.SharedTokenFile,
		Slack: SlackSummary{
			ClientToken:   redactString(c.Slack.ClientToken),
			SigningSecret: redactString(c.Slack.SigningSecret),
			Verified:      c.Slack.SigningSecret != "",
			TokenMode:     c.Slack.TokenMode,
		},
		Twitter: TwitterSummary{
			Enabled: c.TwitterEnabled(),
			Handle:  c.Twitter.Handle,
		},
		LegacyEnv: append([]string(nil), c.LegacyEnv...),
	}
}

func (c Config) Redacted() map[string]any {
	return map[string]any{
		"http": map[string]any{
			"addr":       c.HTTP.Addr,
			"rate_rps":   c.HTTP.RateRPS,
			"rate_burst": c.HTTP.RateBurst,
			"static_dir": c.HTTP.StaticDir,
			"access_log": c.HTTP.AccessLog,
		},
		"base_url": c.BaseURL,
		"store": map[string]any{
			"sqlite_path":   c.Store.SQLitePath,
			"durable_dedup": c.Store.DurableDedup,
		},
		"audit": map[string]any{
			"batch_size": c.Batch(),
			"flush_ms":   c.Audit.FlushMaxMS,
		},
		"slack": map[string]any{
			"client_token":   redactString(c.Slack.ClientToken),
			"signing_secret": redactString(c.Slack.SigningSecret),
			"api_url":        c.Slack.APIURL,
			"token_mode":     c.Slack.TokenMode,
		},
		"backend": map[string]any{
			"url":          c.Backend.URL,
			"timeout_secs": c.Backend.TimeoutSecs,
		},
		"shared_token":      redactString(c.SharedToken),
		"shared_token_file": c.SharedTokenFile,
		"admin_token":       redactString(c.AdminToken),
		"twitter": map[string]any{
			"enabled":             c.TwitterEnabled(),
			"handle":              c.Twitter.Handle,
			"consumer_key":        redactString(c.Twitter.ConsumerKey),
			"consumer_secret":     redactString(c.Twitter.ConsumerSecret),
			"access_token":        redactString(c.Twitter.AccessToken),
			"access_token_secret": redactString(c.Twitter.AccessTokenSecret),
		},
	}
}

func (c Config) RedactedJSON() []byte {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return data
}

func (c Config) SummaryJSON() []byte {
	summary := struct {
		Config Summary `json:"config_summary"`
	}{Config: c.Summary()}
	data, _ := json.Marshal(summary)
	return data
}

// Redact masks a secret for logs, keeping only its length.
func Redact(value string) string { return redactString(value) }

func redactString(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "***REDACTED*** (len=" + strconv.Itoa(len(value)) + ")"
}
