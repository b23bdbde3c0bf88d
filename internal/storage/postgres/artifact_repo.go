package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/joshu-sajeev/catalogjobs/internal/models"
)

// ListExpiredArtifacts returns artifacts past their expiry whose bytes are
// still in the blob store.
func (r *JobRepository) ListExpiredArtifacts(ctx context.Context, now time.Time, limit int) ([]models.Artifact, error) {
	var artifacts []models.Artifact
	q := r.db.WithContext(ctx).
		Where("purged_at IS NULL AND expires_at < ?", now.UTC()).
		Order("expires_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&artifacts).Error; err != nil {
		return nil, fmt.Errorf("list expired artifacts: %w", err)
	}
	return artifacts, nil
}

// MarkArtifactPurged records that the bytes of an artifact were removed. The
// job record itself is not touched.
func (r *JobRepository) MarkArtifactPurged(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.Artifact{}).
		Where("id = ? AND purged_at IS NULL", id).
		Update("purged_at", r.timestamp())
	if res.Error != nil {
		return fmt.Errorf("mark artifact purged: %w", res.Error)
	}
	return nil
}
