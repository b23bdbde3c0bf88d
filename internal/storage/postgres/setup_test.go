package postgres

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a file-backed SQLite database so several connections
// can race on it the way workers race on PostgreSQL.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "jobs.db") + "?_busy_timeout=5000&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db, models.All()...))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// testClock is a settable clock shared by a repository under test.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newJob(tipo config.JobType, priority int, payload any) *models.Job {
	raw, _ := json.Marshal(payload)
	return &models.Job{
		Tipo:        tipo,
		Payload:     raw,
		Priority:    priority,
		MaxAttempts: 3,
	}
}

func mustCreate(t *testing.T, repo *JobRepository, j *models.Job) *models.Job {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), j))
	return j
}

func mustClaim(t *testing.T, repo *JobRepository) *models.Job {
	t.Helper()
	j, err := repo.Claim(context.Background())
	require.NoError(t, err)
	require.NotNil(t, j)
	return j
}

func mustLease(t *testing.T, j *models.Job) models.Lease {
	t.Helper()
	lease, ok := j.Lease()
	require.True(t, ok)
	return lease
}
