package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config carries the complete process configuration, loaded from the
// environment under the LAUNCHER_ prefix.
type Config struct {
	Server  ServerConfig  `envconfig:"SERVER"`
	DB      DBConfig      `envconfig:"DB"`
	Storage StorageConfig `envconfig:"STORAGE"`
	Auth    AuthConfig    `envconfig:"AUTH"`
	CI      CIConfig      `envconfig:"CI"`
	Status  StatusConfig  `envconfig:"STATUS"`
	Steam   SteamConfig   `envconfig:"STEAM"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"120s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"134217728"`
	RateLimitRPS    int           `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst  int           `envconfig:"RATE_LIMIT_BURST" default:"40"`
}

// DBConfig locates the sqlite database file.
type DBConfig struct {
	Path string `envconfig:"PATH" default:"data/launcher.db"`
}

// StorageConfig locates artifact and offsets storage on disk.
type StorageConfig struct {
	Root string `envconfig:"ROOT" default:"storage"`
}

// AuthConfig carries signing and encryption secrets.
type AuthConfig struct {
	SigningSecret string        `envconfig:"SIGNING_SECRET" required:"true"`
	TokenTTL      time.Duration `envconfig:"TOKEN_TTL" default:"168h"`
	EncryptionKey string        `envconfig:"ENCRYPTION_KEY" required:"true"`
}

// CIConfig defines capability-scoped automation credentials. Each token grants
// only the scopes listed for it; tokens are compared in constant time.
type CIConfig struct {
	// Tokens maps a shared-secret token to a comma separated scope list,
	// e.g. LAUNCHER_CI_TOKENS="s3cret:upload,offsets;other:offsets".
	Tokens string `envconfig:"TOKENS" default:""`
}

// StatusConfig bounds staleness of derived product status.
type StatusConfig struct {
	CacheTTL        time.Duration `envconfig:"CACHE_TTL" default:"2s"`
	OffsetsStaleAge time.Duration `envconfig:"OFFSETS_STALE_AGE" default:"48h"`
}

// SteamConfig controls the upstream build-version poll.
type SteamConfig struct {
	AppID          int           `envconfig:"APP_ID" default:"730"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5s"`
	CacheTTL       time.Duration `envconfig:"CACHE_TTL" default:"5m"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("LAUNCHER", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Auth.SigningSecret) == "" {
		return errors.New("config: signing secret is required")
	}
	if strings.TrimSpace(c.Auth.EncryptionKey) == "" {
		return errors.New("config: encryption key is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("config: token ttl must be positive")
	}
	return nil
}

// CIToken is a parsed automation credential with its granted scopes.
type CIToken struct {
	Secret string
	Scopes []string
}

// ParseCITokens splits the configured token list. Format:
// token:scope[,scope...][;token:scopes...]. Malformed entries are rejected.
func (c CIConfig) ParseCITokens() ([]CIToken, error) {
	raw := strings.TrimSpace(c.Tokens)
	if raw == "" {
		return nil, nil
	}
	var out []CIToken
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		secret, scopeList, ok := strings.Cut(entry, ":")
		if !ok || strings.TrimSpace(secret) == "" {
			return nil, fmt.Errorf("config: malformed CI token entry %q", entry)
		}
		var scopes []string
		for _, s := range strings.Split(scopeList, ",") {
			s = strings.TrimSpace(strings.ToLower(s))
			if s != "" {
				scopes = append(scopes, s)
			}
		}
		if len(scopes) == 0 {
			return nil, fmt.Errorf("config: CI token without scopes")
		}
		out = append(out, CIToken{Secret: strings.TrimSpace(secret), Scopes: scopes})
	}
	return out, nil
}
