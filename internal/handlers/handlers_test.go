package handlers_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/artifact"
	"github.com/joshu-sajeev/catalogjobs/internal/handlers"
	"github.com/joshu-sajeev/catalogjobs/internal/logging"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/joshu-sajeev/catalogjobs/internal/storage/postgres"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	db       *gorm.DB
	catalog  *postgres.CatalogRepository
	files    *artifact.FSStore
	handlers *handlers.Handlers
}

func setup(t *testing.T, opts ...handlers.Option) *fixture {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "catalog.db") + "?_busy_timeout=5000&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, postgres.AutoMigrate(db, models.All()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	files, err := artifact.NewFSStore(t.TempDir())
	require.NoError(t, err)

	catalog := postgres.NewCatalogRepository(db)
	return &fixture{
		db:       db,
		catalog:  catalog,
		files:    files,
		handlers: handlers.New(catalog, files, logging.Discard(), opts...),
	}
}

func (f *fixture) seed(t *testing.T, catalogID uint, ncm string, n int) []uint {
	t.Helper()
	ids := make([]uint, n)
	for i := range n {
		p := models.Product{
			CatalogID:   catalogID,
			Code:        fmt.Sprintf("C%d-%s-%03d", catalogID, ncm, i),
			Description: fmt.Sprintf("Produto %d", i),
			NCM:         ncm,
			Status:      "DRAFT",
			Attributes:  datatypes.JSONMap{"origem": "nacional"},
		}
		require.NoError(t, f.db.Create(&p).Error)
		ids[i] = p.ID
	}
	return ids
}

func (f *fixture) count(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Product{}).Count(&n).Error)
	return n
}

// fakeRuntime records handler logs. It reports a cancel request once
// cancelAfter checkpoints have passed; zero never cancels.
type fakeRuntime struct {
	mu          sync.Mutex
	logs        []string
	checks      int
	heartbeats  int
	cancelAfter int
	lost        bool
}

func (rt *fakeRuntime) Heartbeat(context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.lost {
		return common.ErrLeaseLost
	}
	rt.heartbeats++
	return nil
}

func (rt *fakeRuntime) IsCancelled(context.Context) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.checks++
	return rt.cancelAfter > 0 && rt.checks > rt.cancelAfter
}

func (rt *fakeRuntime) AppendLog(_ context.Context, message string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.logs = append(rt.logs, message)
	return nil
}
