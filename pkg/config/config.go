package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all server configuration
type Config struct {
	Server    ServerConfig
	Search    SearchConfig
	Store     StoreConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	LogLevel  string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        // Server host (default: "0.0.0.0")
	Port            int           // Server port (default: 8080)
	RequestTimeout  time.Duration // Request timeout
	ShutdownTimeout time.Duration // Graceful shutdown timeout
}

// SearchConfig holds query engine defaults
type SearchConfig struct {
	Nprobe     int // Partitions probed per query (default: 8)
	K          int // Neighbors per query (default: 10)
	Nthreads   int // Workers per node; 0 uses all CPUs
	NumNodes   int // Simulated compute nodes (default: 1)
	UpperBound int // Per-load column budget; 0 keeps loads in RAM
}

// StoreConfig holds array store configuration
type StoreConfig struct {
	Backend     string // "local" or "s3"
	DataDir     string // Local backend root
	Compression string // "" or "lz4" for newly built parts arrays

	// S3 backend settings
	S3Bucket         string
	S3Region         string
	S3Endpoint       string
	S3Prefix         string
	S3AccessKeyID    string
	S3SecretKey      string
	S3ForcePathStyle bool

	// Index artifact URIs
	CentroidsURI string
	PartsURI     string
	IndexURI     string
	IDURI        string
}

// AuthConfig holds JWT authentication settings
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
}

// RateLimitConfig holds request rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerSec float64
	Burst          int
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Search: SearchConfig{
			Nprobe:   8,
			K:        10,
			Nthreads: 0,
			NumNodes: 1,
		},
		Store: StoreConfig{
			Backend:      "local",
			DataDir:      "./data",
			CentroidsURI: "centroids",
			PartsURI:     "parts",
			IndexURI:     "index",
			IDURI:        "ids",
		},
		RateLimit: RateLimitConfig{
			Enabled:        false,
			RequestsPerSec: 100,
			Burst:          200,
		},
		LogLevel: "INFO",
	}
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	cfg := Default()

	if host := os.Getenv("IVFGRID_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("IVFGRID_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if timeout := os.Getenv("IVFGRID_REQUEST_TIMEOUT"); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			cfg.Server.RequestTimeout = t
		}
	}

	if nprobe := os.Getenv("IVFGRID_NPROBE"); nprobe != "" {
		if n, err := strconv.Atoi(nprobe); err == nil {
			cfg.Search.Nprobe = n
		}
	}
	if k := os.Getenv("IVFGRID_K"); k != "" {
		if n, err := strconv.Atoi(k); err == nil {
			cfg.Search.K = n
		}
	}
	if nthreads := os.Getenv("IVFGRID_NTHREADS"); nthreads != "" {
		if n, err := strconv.Atoi(nthreads); err == nil {
			cfg.Search.Nthreads = n
		}
	}
	if nodes := os.Getenv("IVFGRID_NUM_NODES"); nodes != "" {
		if n, err := strconv.Atoi(nodes); err == nil {
			cfg.Search.NumNodes = n
		}
	}
	if ub := os.Getenv("IVFGRID_UPPER_BOUND"); ub != "" {
		if n, err := strconv.Atoi(ub); err == nil {
			cfg.Search.UpperBound = n
		}
	}

	if backend := os.Getenv("IVFGRID_STORE_BACKEND"); backend != "" {
		cfg.Store.Backend = backend
	}
	if dataDir := os.Getenv("IVFGRID_DATA_DIR"); dataDir != "" {
		cfg.Store.DataDir = dataDir
	}
	if compression := os.Getenv("IVFGRID_COMPRESSION"); compression != "" {
		cfg.Store.Compression = compression
	}
	if bucket := os.Getenv("IVFGRID_S3_BUCKET"); bucket != "" {
		cfg.Store.S3Bucket = bucket
	}
	if region := os.Getenv("IVFGRID_S3_REGION"); region != "" {
		cfg.Store.S3Region = region
	}
	if endpoint := os.Getenv("IVFGRID_S3_ENDPOINT"); endpoint != "" {
		cfg.Store.S3Endpoint = endpoint
	}
	if prefix := os.Getenv("IVFGRID_S3_PREFIX"); prefix != "" {
		cfg.Store.S3Prefix = prefix
	}
	if key := os.Getenv("IVFGRID_S3_ACCESS_KEY_ID"); key != "" {
		cfg.Store.S3AccessKeyID = key
	}
	if secret := os.Getenv("IVFGRID_S3_SECRET_KEY"); secret != "" {
		cfg.Store.S3SecretKey = secret
	}
	if os.Getenv("IVFGRID_S3_PATH_STYLE") == "true" {
		cfg.Store.S3ForcePathStyle = true
	}

	if os.Getenv("IVFGRID_AUTH_ENABLED") == "true" {
		cfg.Auth.Enabled = true
		cfg.Auth.JWTSecret = os.Getenv("IVFGRID_JWT_SECRET")
	}
	if os.Getenv("IVFGRID_RATE_LIMIT_ENABLED") == "true" {
		cfg.RateLimit.Enabled = true
	}
	if rps := os.Getenv("IVFGRID_RATE_LIMIT_RPS"); rps != "" {
		if v, err := strconv.ParseFloat(rps, 64); err == nil {
			cfg.RateLimit.RequestsPerSec = v
		}
	}
	if burst := os.Getenv("IVFGRID_RATE_LIMIT_BURST"); burst != "" {
		if v, err := strconv.Atoi(burst); err == nil {
			cfg.RateLimit.Burst = v
		}
	}

	if level := os.Getenv("IVFGRID_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}

	if c.Search.Nprobe < 1 {
		return fmt.Errorf("invalid nprobe: %d (must be >= 1)", c.Search.Nprobe)
	}
	if c.Search.K < 1 {
		return fmt.Errorf("invalid k: %d (must be >= 1)", c.Search.K)
	}
	if c.Search.Nthreads < 0 {
		return fmt.Errorf("invalid nthreads: %d (0 means all CPUs)", c.Search.Nthreads)
	}
	if c.Search.NumNodes < 1 {
		return fmt.Errorf("invalid num_nodes: %d (must be >= 1)", c.Search.NumNodes)
	}
	if c.Search.UpperBound < 0 {
		return fmt.Errorf("invalid upper_bound: %d (must be >= 0)", c.Search.UpperBound)
	}

	switch c.Store.Backend {
	case "local":
		if c.Store.DataDir == "" {
			return fmt.Errorf("data directory not specified")
		}
	case "s3":
		if c.Store.S3Bucket == "" {
			return fmt.Errorf("s3 bucket not specified")
		}
		if c.Store.Compression != "" {
			return fmt.Errorf("compression is not supported on the s3 backend")
		}
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}
	if c.Store.Compression != "" && c.Store.Compression != "lz4" {
		return fmt.Errorf("unknown compression: %q", c.Store.Compression)
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth enabled but JWT secret not specified")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSec <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("invalid rate limit: %v req/s, burst %d", c.RateLimit.RequestsPerSec, c.RateLimit.Burst)
	}

	return nil
}

// Address returns the server address (host:port)
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
