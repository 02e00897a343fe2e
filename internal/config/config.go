// Package config resolves the router's settings from environment variables.
//
// Every setting has a default matching the docker-compose deployment
// (MinIO at minio:9000, Label Studio at localhost:8080), so a bare
// environment routes against the local stack.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fpang/annotation-router/internal/annotation"
	"github.com/fpang/annotation-router/internal/router"
	"github.com/fpang/annotation-router/internal/tracking"
)

// Storage backends.
const (
	BackendS3  = "s3"
	BackendDir = "dir"
	BackendMem = "mem"
)

// Defaults.
const (
	DefaultEndpoint   = "http://minio:9000"
	DefaultAccessKey  = "minioadmin"
	DefaultSecretKey  = "minioadmin"
	DefaultRegion     = "us-east-1"
	DefaultTokenParam = "/annotation-router/prod/label-studio-token"
)

// Config holds resolved settings.
type Config struct {
	Backend     string
	StorageRoot string

	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string

	ImagePrefix string
	OutputRoot  string
	TrackingDir string
	Rules       []router.Rule

	LabelStudioURL        string
	LabelStudioToken      string
	LabelStudioTokenParam string

	ReportsTable string
	EventBus     string
	EmitMetrics  bool

	// SyncFirst makes scheduled runs sync Label Studio storages before routing.
	SyncFirst bool
}

// EnvOrDefault returns the value of the named environment variable, or
// defaultVal if the variable is empty or unset.
func EnvOrDefault(envVar, defaultVal string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultVal
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Backend:     EnvOrDefault("STORAGE_BACKEND", BackendS3),
		StorageRoot: os.Getenv("STORAGE_ROOT"),

		Endpoint:  EnvOrDefault("MINIO_ENDPOINT", DefaultEndpoint),
		AccessKey: EnvOrDefault("MINIO_ACCESS_KEY", DefaultAccessKey),
		SecretKey: EnvOrDefault("MINIO_SECRET_KEY", DefaultSecretKey),
		Region:    EnvOrDefault("AWS_REGION", DefaultRegion),

		ImagePrefix: EnvOrDefault("IMAGE_URL_PREFIX", annotation.DefaultImagePrefix),
		OutputRoot:  EnvOrDefault("OUTPUT_ROOT", router.DefaultOutputRoot),
		TrackingDir: EnvOrDefault("TRACKING_DIR", tracking.DefaultDir),
		Rules:       router.DefaultRules,

		LabelStudioURL:        EnvOrDefault("LABEL_STUDIO_URL", "http://localhost:8080"),
		LabelStudioToken:      os.Getenv("LABEL_STUDIO_USER_TOKEN"),
		LabelStudioTokenParam: EnvOrDefault("SSM_LABEL_STUDIO_TOKEN_PARAM", DefaultTokenParam),

		ReportsTable: os.Getenv("ROUTER_REPORTS_TABLE"),
		EventBus:     os.Getenv("ROUTER_EVENT_BUS"),
	}

	if raw := os.Getenv("ROUTING_RULES"); raw != "" {
		rules, err := router.ParseRules(raw)
		if err != nil {
			return nil, fmt.Errorf("ROUTING_RULES: %w", err)
		}
		cfg.Rules = rules
	}

	var err error
	if cfg.EmitMetrics, err = envBool("ROUTER_EMIT_METRICS"); err != nil {
		return nil, err
	}
	if cfg.SyncFirst, err = envBool("ROUTER_SYNC_FIRST"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envBool(name string) (bool, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendS3, BackendMem:
	case BackendDir:
		if c.StorageRoot == "" {
			return fmt.Errorf("STORAGE_ROOT is required for the %q backend", BackendDir)
		}
	default:
		return fmt.Errorf("unknown storage backend %q (want %s, %s or %s)", c.Backend, BackendS3, BackendDir, BackendMem)
	}
	return router.ValidateRules(c.Rules)
}

// NeedsAWS reports whether any configured component talks to AWS APIs.
func (c *Config) NeedsAWS() bool {
	return c.Backend == BackendS3 || c.ReportsTable != "" || c.EventBus != ""
}
