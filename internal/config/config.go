package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Transport kinds accepted by [ServerConfig].
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

type Config struct {
	BigQuery BigQueryConfig `toml:"bigquery"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Audit    AuditConfig    `toml:"audit"`
}

type BigQueryConfig struct {
	Project  string   `toml:"project"`
	Location string   `toml:"location"`
	KeyFile  string   `toml:"key_file"`
	Datasets []string `toml:"datasets"`
}

type ServerConfig struct {
	Transport string `toml:"transport"`
	Addr      string `toml:"addr"`
	TLS       bool   `toml:"tls"`
	CertFile  string `toml:"cert_file"`
	KeyFile   string `toml:"key_file"`
}

type AuthConfig struct {
	Enabled        bool   `toml:"enabled"`
	JWTSecret      string `toml:"jwt_secret"`
	TokenExpiryMin int    `toml:"token_expiry_min"`
	APITokenHash   string `toml:"api_token_hash"`
}

type AuditConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Transport: TransportStdio,
			Addr:      ":8080",
		},
		Auth: AuthConfig{
			TokenExpiryMin: 1440, // 24h
		},
		Audit: AuditConfig{
			Path: "data/audit.db",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks the startup configuration. Any error here is fatal: the
// process must not start serving with a partial configuration.
func (c *Config) Validate() error {
	if c.BigQuery.Project == "" {
		return fmt.Errorf("bigquery.project is required")
	}
	if c.BigQuery.Location == "" {
		return fmt.Errorf("bigquery.location is required")
	}
	switch c.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("server.transport must be %q or %q, got %q", TransportStdio, TransportHTTP, c.Server.Transport)
	}
	if c.Server.Transport == TransportHTTP && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required for the http transport")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" && c.Auth.APITokenHash == "" {
		return fmt.Errorf("auth.enabled requires auth.jwt_secret or auth.api_token_hash")
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		return fmt.Errorf("audit.enabled requires audit.path")
	}
	return nil
}
