package artifact

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
)

// Store keeps artifact bytes. Implementations return an error wrapping
// common.ErrNotFound from Open when the key does not exist, and treat
// deleting a missing key as success.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Presigner is implemented by stores that can hand out time-limited
// download URLs.
type Presigner interface {
	PresignGet(ctx context.Context, key, filename string, ttl time.Duration) (string, error)
}

// NewKey returns a storage key that is unique per execution attempt, so a
// retried job never overwrites bytes another attempt may still reference.
func NewKey(jobID uint, name string) string {
	return fmt.Sprintf("%d/%s-%s", jobID, uuid.NewString(), path.Base(name))
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg *config.ArtifactConfig) (Store, error) {
	switch cfg.Backend {
	case "fs":
		return NewFSStore(cfg.Dir)
	case "s3":
		return NewS3Store(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown artifact backend %q", cfg.Backend)
}
