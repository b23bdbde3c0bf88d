package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// EngineConfig carries every knob of the dispatcher, lease monitor and
// artifact janitor. It is passed explicitly to the worker pool.
type EngineConfig struct {
	Workers            int           `env:"WORKER_COUNT,default=4"`
	PollInterval       time.Duration `env:"POLL_INTERVAL,default=1s"`
	MaxPollInterval    time.Duration `env:"MAX_POLL_INTERVAL,default=30s"`
	HeartbeatInterval  time.Duration `env:"HEARTBEAT_INTERVAL,default=5s"`
	LeaseTimeout       time.Duration `env:"LEASE_TIMEOUT,default=60s"`
	ReapInterval       time.Duration `env:"REAP_INTERVAL,default=15s"`
	DefaultMaxAttempts int           `env:"DEFAULT_MAX_ATTEMPTS,default=3"`
	DefaultPriority    int           `env:"DEFAULT_PRIORITY,default=100"`
	ClaimRate          float64       `env:"CLAIM_RATE,default=20"`
	ArtifactTTL        time.Duration `env:"ARTIFACT_TTL,default=24h"`
	JanitorInterval    time.Duration `env:"ARTIFACT_JANITOR_INTERVAL,default=10m"`
	JobTypesFile       string        `env:"JOB_TYPES_FILE"`
}

type ArtifactConfig struct {
	Backend  string        `env:"ARTIFACT_BACKEND,default=fs"`
	Dir      string        `env:"ARTIFACT_DIR,default=./data/artifacts"`
	Bucket   string        `env:"ARTIFACT_BUCKET"`
	Prefix   string        `env:"ARTIFACT_PREFIX,default=jobs"`
	Region   string        `env:"AWS_REGION,default=us-east-1"`
	Endpoint string        `env:"ARTIFACT_S3_ENDPOINT"`
	Delivery string        `env:"ARTIFACT_DELIVERY,default=stream"`
	URLTTL   time.Duration `env:"ARTIFACT_URL_TTL,default=5m"`
}

type ServerConfig struct {
	Port           string        `env:"HTTP_PORT,default=8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=15s"`
	LogLevel       string        `env:"LOG_LEVEL,default=info"`
	LogFormat      string        `env:"LOG_FORMAT,default=json"`
}

// to help with testing
var envProcess = envconfig.Process

func LoadEngineConfig(ctx context.Context) (*EngineConfig, error) {
	var cfg EngineConfig
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func LoadArtifactConfig(ctx context.Context) (*ArtifactConfig, error) {
	var cfg ArtifactConfig
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func LoadServerConfig(ctx context.Context) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return nil, fmt.Errorf("config validation failed: HTTP_PORT is required")
	}
	return &cfg, nil
}

// Validate collects every problem instead of stopping at the first one.
func (c *EngineConfig) Validate() error {
	var problems []string

	if c.Workers < 1 {
		problems = append(problems, "WORKER_COUNT must be at least 1")
	}
	if c.PollInterval <= 0 {
		problems = append(problems, "POLL_INTERVAL must be positive")
	}
	if c.MaxPollInterval < c.PollInterval {
		problems = append(problems, "MAX_POLL_INTERVAL must not be below POLL_INTERVAL")
	}
	if c.HeartbeatInterval <= 0 {
		problems = append(problems, "HEARTBEAT_INTERVAL must be positive")
	}
	// a lease shorter than two heartbeats would reap healthy jobs
	if c.LeaseTimeout < 2*c.HeartbeatInterval {
		problems = append(problems, "LEASE_TIMEOUT must be at least twice HEARTBEAT_INTERVAL")
	}
	if c.ReapInterval <= 0 {
		problems = append(problems, "REAP_INTERVAL must be positive")
	}
	if c.DefaultMaxAttempts < 1 {
		problems = append(problems, "DEFAULT_MAX_ATTEMPTS must be at least 1")
	}
	if c.ClaimRate <= 0 {
		problems = append(problems, "CLAIM_RATE must be positive")
	}
	if c.ArtifactTTL <= 0 {
		problems = append(problems, "ARTIFACT_TTL must be positive")
	}
	if c.JanitorInterval <= 0 {
		problems = append(problems, "ARTIFACT_JANITOR_INTERVAL must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *ArtifactConfig) Validate() error {
	var problems []string

	switch c.Backend {
	case "fs":
		if strings.TrimSpace(c.Dir) == "" {
			problems = append(problems, "ARTIFACT_DIR is required for the fs backend")
		}
	case "s3":
		if strings.TrimSpace(c.Bucket) == "" {
			problems = append(problems, "ARTIFACT_BUCKET is required for the s3 backend")
		}
	default:
		problems = append(problems, "ARTIFACT_BACKEND must be fs or s3")
	}

	if c.Delivery != "stream" && c.Delivery != "url" {
		problems = append(problems, "ARTIFACT_DELIVERY must be stream or url")
	}
	if c.URLTTL <= 0 {
		problems = append(problems, "ARTIFACT_URL_TTL must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
