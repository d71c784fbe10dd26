package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server          ServerConfig              `json:"server"`
	Providers       []ProviderConfig          `json:"providers"`
	Database        DatabaseConfig            `json:"database"`
	CapabilitiesDir string                    `json:"capabilities_dir"`
	Approvals       map[string]ApprovalPolicy `json:"approvals"`
	Notify          NotifyConfig              `json:"notify"`
	Workflow        WorkflowConfig            `json:"workflow"`
	Context         ContextConfig             `json:"context"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Models   []string          `json:"models,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

type DatabaseConfig struct {
	Redis    RedisConfig    `json:"redis"`
	Postgres PostgresConfig `json:"postgres"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

// ApprovalPolicy configures human approval for one tool. TimeoutSeconds of
// zero means requests never expire.
type ApprovalPolicy struct {
	RequireApproval       bool `json:"require_approval"`
	TimeoutSeconds        int  `json:"timeout_seconds"`
	RequireReasonOnReject bool `json:"require_reason_on_reject"`
}

// Timeout returns the policy timeout as a duration.
func (p ApprovalPolicy) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

type NotifyConfig struct {
	Slack   SlackNotifyConfig   `json:"slack"`
	Discord DiscordNotifyConfig `json:"discord"`
	Stream  StreamNotifyConfig  `json:"stream"`
}

type SlackNotifyConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

type DiscordNotifyConfig struct {
	Enabled   bool   `json:"enabled"`
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
}

type StreamNotifyConfig struct {
	Enabled bool `json:"enabled"`
}

type WorkflowConfig struct {
	PoolSize int `json:"pool_size"`
}

// ContextConfig sizes the model context window. Zero values fall back to
// the context manager's defaults.
type ContextConfig struct {
	MaxTokens    int     `json:"max_tokens"`
	ReserveRatio float64 `json:"reserve_ratio"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	return &cfg, nil
}
