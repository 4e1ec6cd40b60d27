package config

import (
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("IVFGRID_PORT", "9090")
	t.Setenv("IVFGRID_NPROBE", "16")
	t.Setenv("IVFGRID_NUM_NODES", "4")
	t.Setenv("IVFGRID_DATA_DIR", "/var/lib/ivfgrid")
	t.Setenv("IVFGRID_REQUEST_TIMEOUT", "5s")
	t.Setenv("IVFGRID_COMPRESSION", "lz4")

	cfg := LoadFromEnv()
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Search.Nprobe != 16 {
		t.Errorf("nprobe = %d, want 16", cfg.Search.Nprobe)
	}
	if cfg.Search.NumNodes != 4 {
		t.Errorf("num_nodes = %d, want 4", cfg.Search.NumNodes)
	}
	if cfg.Store.DataDir != "/var/lib/ivfgrid" {
		t.Errorf("data dir = %q", cfg.Store.DataDir)
	}
	if cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", cfg.Server.RequestTimeout)
	}
	if cfg.Store.Compression != "lz4" {
		t.Errorf("compression = %q, want lz4", cfg.Store.Compression)
	}
}

func TestLoadFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("IVFGRID_PORT", "not-a-number")
	cfg := LoadFromEnv()
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero nprobe", func(c *Config) { c.Search.Nprobe = 0 }},
		{"zero k", func(c *Config) { c.Search.K = 0 }},
		{"negative nthreads", func(c *Config) { c.Search.Nthreads = -1 }},
		{"zero nodes", func(c *Config) { c.Search.NumNodes = 0 }},
		{"negative upper bound", func(c *Config) { c.Search.UpperBound = -1 }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "ftp" }},
		{"missing data dir", func(c *Config) { c.Store.DataDir = "" }},
		{"s3 without bucket", func(c *Config) { c.Store.Backend = "s3" }},
		{"s3 with compression", func(c *Config) {
			c.Store.Backend = "s3"
			c.Store.S3Bucket = "b"
			c.Store.Compression = "lz4"
		}},
		{"bad compression", func(c *Config) { c.Store.Compression = "zstd" }},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }},
		{"bad rate limit", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.RequestsPerSec = 0
		}},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestAddress(t *testing.T) {
	cfg := Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8081
	if got := cfg.Server.Address(); got != "127.0.0.1:8081" {
		t.Errorf("Address = %q, want 127.0.0.1:8081", got)
	}
}
