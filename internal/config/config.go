// Package config loads server settings from ENVTREE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/envtree/internal/crypt"
)

// MemoryDatabaseURL selects the in-memory store instead of Postgres.
const MemoryDatabaseURL = "memory://"

type Config struct {
	DatabaseURL   string // ENVTREE_DATABASE_URL (required; "memory://" = in-memory store)
	GRPCAddr      string // ENVTREE_GRPC_ADDR (default ":9090"; "off" disables gRPC)
	HTTPAddr      string // ENVTREE_HTTP_ADDR (default ":8080")
	NATSURL       string // ENVTREE_NATS_URL (optional, empty = no NATS events)
	AdminToken    string // ENVTREE_ADMIN_TOKEN (optional, guards POST /v1/users)
	EncryptionKey string // ENVTREE_ENCRYPTION_KEY (optional, 64 hex chars)

	// Sync settings
	SyncInterval   time.Duration // ENVTREE_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // ENVTREE_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // ENVTREE_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // ENVTREE_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // ENVTREE_SYNC_S3_KEY (default "envtree/backup.jsonl")
	SyncS3SSE      bool          // ENVTREE_SYNC_S3_SSE (request SSE-S3 on upload)
	SyncGitRepo    string        // ENVTREE_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // ENVTREE_SYNC_GIT_FILE (default "envtree.jsonl")
	SyncGitBranch  string        // ENVTREE_SYNC_GIT_BRANCH (default "main")
	SyncGitPush    bool          // ENVTREE_SYNC_GIT_PUSH (default true)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("ENVTREE_DATABASE_URL"),
		GRPCAddr:       envOrDefault("ENVTREE_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("ENVTREE_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("ENVTREE_NATS_URL"),
		AdminToken:     os.Getenv("ENVTREE_ADMIN_TOKEN"),
		EncryptionKey:  strings.TrimSpace(os.Getenv("ENVTREE_ENCRYPTION_KEY")),
		SyncS3Bucket:   os.Getenv("ENVTREE_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("ENVTREE_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("ENVTREE_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("ENVTREE_SYNC_S3_KEY", "envtree/backup.jsonl"),
		SyncGitRepo:    os.Getenv("ENVTREE_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("ENVTREE_SYNC_GIT_FILE", "envtree.jsonl"),
		SyncGitBranch:  envOrDefault("ENVTREE_SYNC_GIT_BRANCH", "main"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("ENVTREE_DATABASE_URL is required")
	}
	if c.EncryptionKey != "" {
		if _, err := crypt.ParseKey(c.EncryptionKey); err != nil {
			return nil, fmt.Errorf("ENVTREE_ENCRYPTION_KEY: %w", err)
		}
	}

	d, err := time.ParseDuration(envOrDefault("ENVTREE_SYNC_INTERVAL", "3m"))
	if err != nil {
		return nil, fmt.Errorf("ENVTREE_SYNC_INTERVAL: %w", err)
	}
	c.SyncInterval = d

	if c.SyncS3SSE, err = envBool("ENVTREE_SYNC_S3_SSE", false); err != nil {
		return nil, err
	}
	if c.SyncGitPush, err = envBool("ENVTREE_SYNC_GIT_PUSH", true); err != nil {
		return nil, err
	}

	return c, nil
}

// InMemory reports whether the in-memory store was requested.
func (c *Config) InMemory() bool {
	return c.DatabaseURL == MemoryDatabaseURL
}

// GRPCEnabled reports whether the gRPC listener should start.
func (c *Config) GRPCEnabled() bool {
	return c.GRPCAddr != "" && c.GRPCAddr != "off"
}

// SyncEnabled reports whether any backup destination is configured.
func (c *Config) SyncEnabled() bool {
	return c.SyncInterval > 0 && (c.SyncS3Bucket != "" || c.SyncGitRepo != "")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
