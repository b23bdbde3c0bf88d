package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// JobTypeDefaults are applied at enqueue time when the producer does not
// supply its own values.
type JobTypeDefaults struct {
	Priority    int           `yaml:"priority"`
	MaxAttempts int           `yaml:"max_attempts"`
	ArtifactTTL time.Duration `yaml:"artifact_ttl"`
}

type JobTypeCatalog map[JobType]JobTypeDefaults

// DefaultJobTypes builds the catalog from the engine-wide defaults. Exports
// are user-facing downloads and jump ahead of bulk maintenance work.
func DefaultJobTypes(cfg *EngineConfig) JobTypeCatalog {
	catalog := make(JobTypeCatalog, len(AllowedJobTypes))
	for _, t := range AllowedJobTypes {
		catalog[t] = JobTypeDefaults{
			Priority:    cfg.DefaultPriority,
			MaxAttempts: cfg.DefaultMaxAttempts,
			ArtifactTTL: cfg.ArtifactTTL,
		}
	}

	export := catalog[JobTypeExportProduct]
	export.Priority = cfg.DefaultPriority / 2
	catalog[JobTypeExportProduct] = export

	return catalog
}

// LoadJobTypes overlays the YAML file at path on top of the built-in
// defaults. Zero values in the file keep the default.
//
//	EXPORT_PRODUCT:
//	  priority: 10
//	  artifact_ttl: 48h
func LoadJobTypes(path string, cfg *EngineConfig) (JobTypeCatalog, error) {
	catalog := DefaultJobTypes(cfg)
	if path == "" {
		return catalog, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job types file: %w", err)
	}

	var overrides map[JobType]JobTypeDefaults
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse job types file: %w", err)
	}

	for t, o := range overrides {
		if !t.Valid() {
			return nil, fmt.Errorf("job types file: unknown job type %q", t)
		}
		if o.MaxAttempts < 0 {
			return nil, fmt.Errorf("job types file: %s max_attempts must not be negative", t)
		}

		d := catalog[t]
		if o.Priority != 0 {
			d.Priority = o.Priority
		}
		if o.MaxAttempts != 0 {
			d.MaxAttempts = o.MaxAttempts
		}
		if o.ArtifactTTL != 0 {
			d.ArtifactTTL = o.ArtifactTTL
		}
		catalog[t] = d
	}

	return catalog, nil
}

// For returns the defaults of t. Unknown types get the zero value.
func (c JobTypeCatalog) For(t JobType) JobTypeDefaults {
	return c[t]
}
