package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJobTypes(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job_types.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultJobTypes(t *testing.T) {
	cfg := validEngineConfig()
	catalog := DefaultJobTypes(&cfg)

	require.Len(t, catalog, len(AllowedJobTypes))
	assert.Equal(t, JobTypeDefaults{Priority: 100, MaxAttempts: 3, ArtifactTTL: 24 * time.Hour}, catalog.For(JobTypeBulkDelete))
	assert.Equal(t, 50, catalog.For(JobTypeExportProduct).Priority)
	assert.Zero(t, catalog.For("REINDEX"))
}

func TestLoadJobTypes(t *testing.T) {
	cfg := validEngineConfig()

	tests := []struct {
		name    string
		body    string
		check   func(*testing.T, JobTypeCatalog)
		wantErr string
	}{
		{
			name: "overlay keeps unset fields",
			body: "EXPORT_PRODUCT:\n  priority: 10\n  artifact_ttl: 48h\nIMPORT_PRODUCT:\n  max_attempts: 1\n",
			check: func(t *testing.T, c JobTypeCatalog) {
				assert.Equal(t, JobTypeDefaults{Priority: 10, MaxAttempts: 3, ArtifactTTL: 48 * time.Hour}, c.For(JobTypeExportProduct))
				assert.Equal(t, JobTypeDefaults{Priority: 100, MaxAttempts: 1, ArtifactTTL: 24 * time.Hour}, c.For(JobTypeImportProduct))
				assert.Equal(t, 100, c.For(JobTypeStructureAdjust).Priority)
			},
		},
		{
			name:  "empty file",
			body:  "",
			check: func(t *testing.T, c JobTypeCatalog) { assert.Equal(t, DefaultJobTypes(&cfg), c) },
		},
		{
			name:    "unknown type",
			body:    "REINDEX:\n  priority: 1\n",
			wantErr: `unknown job type "REINDEX"`,
		},
		{
			name:    "negative attempts",
			body:    "BULK_DELETE:\n  max_attempts: -2\n",
			wantErr: "max_attempts must not be negative",
		},
		{
			name:    "malformed yaml",
			body:    "BULK_DELETE: [",
			wantErr: "parse job types file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog, err := LoadJobTypes(writeJobTypes(t, tt.body), &cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, catalog)
		})
	}

	t.Run("no file configured", func(t *testing.T) {
		catalog, err := LoadJobTypes("", &cfg)
		require.NoError(t, err)
		assert.Equal(t, DefaultJobTypes(&cfg), catalog)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadJobTypes(filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read job types file")
	})
}

func TestJobStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusCancelled, true},
		{JobStatusPending, JobStatusDone, false},
		{JobStatusProcessing, JobStatusPending, true},
		{JobStatusProcessing, JobStatusDone, true},
		{JobStatusDone, JobStatusPending, false},
		{JobStatusCancelled, JobStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}
