package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Auth        AuthConfig                `json:"auth"`
	AI          AIConfig                  `json:"ai"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Chat        ChatConfig                `json:"chat"`
	Quote       QuoteConfig               `json:"quote"`
	Search      SearchConfig              `json:"search"`
}

type BasicConfig struct {
	ServerAddress string   `json:"server_address"`
	LogLevel      string   `json:"log_level"`
	CORSOrigins   []string `json:"cors_origins"`
}

// DatabaseConfig holds either a DSN (sqlite) or discrete connection fields (mysql).
type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type AuthConfig struct {
	JWTSecret     string `json:"jwt_secret"`
	TokenTTLHours int    `json:"token_ttl_hours"`
	BcryptCost    int    `json:"bcrypt_cost"`
}

// AIConfig selects the provider used by the responder gateway.
type AIConfig struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type ChatConfig struct {
	MaxMessageChars int `json:"max_message_chars"`
}

// QuoteConfig controls daily quote keying and storage.
type QuoteConfig struct {
	Scope       string `json:"scope"`
	Store       string `json:"store"`
	Timezone    string `json:"timezone"`
	CuratedPath string `json:"curated_path"`
	PrewarmCron string `json:"prewarm_cron"`
}

type SearchConfig struct {
	Enabled bool `json:"enabled"`
}

const (
	DefaultServerAddress   = ":8001"
	DefaultTokenTTL        = 24 * time.Hour
	DefaultAITimeout       = 30 * time.Second
	DefaultMaxMessageChars = 4000
	DefaultPrewarmCron     = "0 0 * * *"

	jwtSecretEnv = "JWT_SECRET"
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// sqlite paths are relative to the config file, not the working directory
	if sqliteCfg, ok := cfg.Databases["sqlite3"]; ok && sqliteCfg.DSN != "" {
		if !strings.HasPrefix(sqliteCfg.DSN, ":memory:") && !strings.HasPrefix(sqliteCfg.DSN, "file:") && !filepath.IsAbs(sqliteCfg.DSN) {
			sqliteCfg.DSN = filepath.Join(filepath.Dir(absPath), sqliteCfg.DSN)
			cfg.Databases["sqlite3"] = sqliteCfg
		}
	}
	if cfg.Quote.CuratedPath != "" && !filepath.IsAbs(cfg.Quote.CuratedPath) {
		cfg.Quote.CuratedPath = filepath.Join(filepath.Dir(absPath), cfg.Quote.CuratedPath)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if secret := strings.TrimSpace(os.Getenv(jwtSecretEnv)); secret != "" {
		c.Auth.JWTSecret = secret
	}
	for name, prov := range c.Providers {
		if prov.APIKey != "" {
			continue
		}
		envKey := strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_API_KEY"
		if key := strings.TrimSpace(os.Getenv(envKey)); key != "" {
			prov.APIKey = key
			c.Providers[name] = prov
		}
	}
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = DefaultServerAddress
	}
	if c.BasicConfig.LogLevel == "" {
		c.BasicConfig.LogLevel = "info"
	}
	if c.Quote.Scope == "" {
		c.Quote.Scope = "global"
	}
	if c.Quote.Store == "" {
		c.Quote.Store = "sql"
	}
	if c.Quote.Timezone == "" {
		c.Quote.Timezone = "UTC"
	}
	if c.Quote.PrewarmCron == "" {
		c.Quote.PrewarmCron = DefaultPrewarmCron
	}
}

// Validate reports configuration that would make the service unsafe or unusable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret (or JWT_SECRET) must be configured")
	}
	if len(c.Databases) == 0 {
		return errors.New("at least one database must be configured")
	}
	switch c.Quote.Scope {
	case "global", "user":
	default:
		return fmt.Errorf("quote.scope must be global or user, got %q", c.Quote.Scope)
	}
	switch c.Quote.Store {
	case "sql", "redis", "memory":
	default:
		return fmt.Errorf("quote.store must be sql, redis or memory, got %q", c.Quote.Store)
	}
	if c.Quote.Store == "redis" && !c.Redis.Enabled {
		return errors.New("quote.store redis requires redis.enabled")
	}
	if _, err := time.LoadLocation(c.Quote.Timezone); err != nil {
		return fmt.Errorf("quote.timezone: %w", err)
	}
	return nil
}

// TokenTTL returns the configured token lifetime.
func (c *Config) TokenTTL() time.Duration {
	if c.Auth.TokenTTLHours <= 0 {
		return DefaultTokenTTL
	}
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// AITimeout bounds every call to the responder gateway.
func (c *Config) AITimeout() time.Duration {
	if c.AI.TimeoutSeconds <= 0 {
		return DefaultAITimeout
	}
	return time.Duration(c.AI.TimeoutSeconds) * time.Second
}

func (c *Config) MaxMessageChars() int {
	if c.Chat.MaxMessageChars <= 0 {
		return DefaultMaxMessageChars
	}
	return c.Chat.MaxMessageChars
}

// QuoteLocation returns the zone used to compute day keys.
func (c *Config) QuoteLocation() *time.Location {
	loc, err := time.LoadLocation(c.Quote.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
