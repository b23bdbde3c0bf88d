// Package handlers implements the catalog jobs executed by the worker pool.
package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joshu-sajeev/catalogjobs/internal/artifact"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/joshu-sajeev/catalogjobs/internal/worker"
)

// Catalog is the product store the handlers act on.
type Catalog interface {
	ResolveSelection(ctx context.Context, sel dto.Selection) ([]uint, error)
	DeleteProducts(ctx context.Context, ids []uint) (int64, error)
	AssignAttributes(ctx context.Context, ids []uint, attrs map[string]string) (updated, skipped int, err error)
	AdjustStructure(ctx context.Context, ids []uint, required, removed []string) (adjusted int, err error)
	UpsertProduct(ctx context.Context, p *models.Product) (created bool, err error)
	ListForExport(ctx context.Context, f dto.ProductFilter, batch int, fn func([]models.Product) error) error
}

type Handlers struct {
	catalog   Catalog
	files     artifact.Store
	batchSize int
	logger    *slog.Logger
}

type Option func(*Handlers)

// WithBatchSize sets how many products are processed between cancellation
// checkpoints. Values below one are treated as one.
func WithBatchSize(n int) Option {
	return func(h *Handlers) { h.batchSize = max(n, 1) }
}

// New builds the handler set. files is the blob store import files are read
// from.
func New(catalog Catalog, files artifact.Store, logger *slog.Logger, opts ...Option) *Handlers {
	h := &Handlers{
		catalog:   catalog,
		files:     files,
		batchSize: 200,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterAll wires every catalog job type into reg.
func (h *Handlers) RegisterAll(reg *worker.Registry) {
	worker.Register(reg, config.JobTypeImportProduct, h.ImportProducts)
	worker.Register(reg, config.JobTypeBulkDelete, h.BulkDelete)
	worker.Register(reg, config.JobTypeBulkAttributeAssign, h.AssignAttributes)
	worker.Register(reg, config.JobTypeStructureAdjust, h.AdjustStructure)
	worker.Register(reg, config.JobTypeExportProduct, h.ExportProducts)
}

// checkpoint is called between batches: it stops on a cancel request and
// renews the lease.
func checkpoint(ctx context.Context, rt worker.Runtime) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rt.IsCancelled(ctx) {
		return worker.ErrCancelled
	}
	return rt.Heartbeat(ctx)
}

func logf(ctx context.Context, rt worker.Runtime, format string, args ...any) error {
	if err := rt.AppendLog(ctx, fmt.Sprintf(format, args...)); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func chunks(ids []uint, size int) [][]uint {
	var out [][]uint
	for size < len(ids) {
		ids, out = ids[size:], append(out, ids[:size])
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// outcomeOf grades a run that handled done out of want items.
func outcomeOf(done, want int) config.ResultOutcome {
	switch {
	case done == want:
		return config.OutcomeSuccess
	case done == 0:
		return config.OutcomeFailure
	default:
		return config.OutcomePartialSuccess
	}
}
