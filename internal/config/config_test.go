package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[bigquery]
project = "acme-prod"
location = "europe-west4"
datasets = ["analytics", "sales"]

[server]
transport = "http"
addr = ":9090"

[auth]
enabled = true
jwt_secret = "s3cret"

[audit]
enabled = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BigQuery.Project != "acme-prod" || cfg.BigQuery.Location != "europe-west4" {
		t.Fatalf("bigquery section not loaded: %+v", cfg.BigQuery)
	}
	if !reflect.DeepEqual(cfg.BigQuery.Datasets, []string{"analytics", "sales"}) {
		t.Fatalf("datasets not loaded: %v", cfg.BigQuery.Datasets)
	}
	if cfg.Server.Transport != TransportHTTP || cfg.Server.Addr != ":9090" {
		t.Fatalf("server section not loaded: %+v", cfg.Server)
	}
	if cfg.Auth.TokenExpiryMin != 1440 {
		t.Fatalf("default token expiry lost: %d", cfg.Auth.TokenExpiryMin)
	}
	if cfg.Audit.Path != "data/audit.db" {
		t.Fatalf("default audit path lost: %q", cfg.Audit.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		cfg := DefaultConfig()
		cfg.BigQuery.Project = "acme-prod"
		cfg.BigQuery.Location = "us-central1"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid stdio", mutate: func(c *Config) {}},
		{name: "missing project", mutate: func(c *Config) { c.BigQuery.Project = "" }, wantErr: true},
		{name: "missing location", mutate: func(c *Config) { c.BigQuery.Location = "" }, wantErr: true},
		{name: "bad transport", mutate: func(c *Config) { c.Server.Transport = "quic" }, wantErr: true},
		{name: "http without addr", mutate: func(c *Config) { c.Server.Transport = TransportHTTP; c.Server.Addr = "" }, wantErr: true},
		{name: "auth without credentials", mutate: func(c *Config) { c.Auth.Enabled = true }, wantErr: true},
		{name: "auth with api token hash", mutate: func(c *Config) { c.Auth.Enabled = true; c.Auth.APITokenHash = "$2a$10$x" }},
		{name: "audit without path", mutate: func(c *Config) { c.Audit.Enabled = true; c.Audit.Path = "" }, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
