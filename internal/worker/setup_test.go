package worker_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/joshu-sajeev/catalogjobs/internal/storage/postgres"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupStore(t *testing.T, opts ...postgres.RepoOption) (*gorm.DB, *postgres.JobRepository) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "jobs.db") + "?_busy_timeout=5000&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, postgres.AutoMigrate(db, models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db, postgres.NewJobRepository(db, opts...)
}

func enqueue(t *testing.T, repo *postgres.JobRepository, tipo config.JobType, payload string) *models.Job {
	t.Helper()
	j := &models.Job{Tipo: tipo, Payload: []byte(payload), MaxAttempts: 3}
	require.NoError(t, repo.Create(context.Background(), j))
	return j
}

func claim(t *testing.T, repo *postgres.JobRepository) *models.Job {
	t.Helper()
	j, err := repo.Claim(context.Background())
	require.NoError(t, err)
	require.NotNil(t, j)
	return j
}
