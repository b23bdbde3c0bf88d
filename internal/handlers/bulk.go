package handlers

import (
	"context"
	"encoding/json"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/joshu-sajeev/catalogjobs/internal/worker"
)

// BulkDelete deletes every product the selection resolves to.
func (h *Handlers) BulkDelete(ctx context.Context, _ *models.Job, p dto.BulkDeletePayload, rt worker.Runtime) (*worker.Outcome, error) {
	ids, err := h.catalog.ResolveSelection(ctx, p.Selection)
	if err != nil {
		return nil, err
	}
	if err := logf(ctx, rt, "resolved %d products for deletion", len(ids)); err != nil {
		return nil, err
	}

	var deleted int64
	for _, chunk := range chunks(ids, h.batchSize) {
		if err := checkpoint(ctx, rt); err != nil {
			return nil, err
		}
		n, err := h.catalog.DeleteProducts(ctx, chunk)
		if err != nil {
			return nil, err
		}
		deleted += n
	}

	if err := logf(ctx, rt, "deleted %d of %d products", deleted, len(ids)); err != nil {
		return nil, err
	}
	return &worker.Outcome{Result: &models.BulkDeleteResult{
		Outcome: outcomeOf(int(deleted), len(ids)),
		Matched: len(ids),
		Deleted: int(deleted),
	}}, nil
}

// AssignAttributes merges the payload attributes into every selected
// product.
func (h *Handlers) AssignAttributes(ctx context.Context, _ *models.Job, p dto.BulkAttributeAssignPayload, rt worker.Runtime) (*worker.Outcome, error) {
	ids, err := h.catalog.ResolveSelection(ctx, p.Selection)
	if err != nil {
		return nil, err
	}
	if err := logf(ctx, rt, "resolved %d products for attribute assignment", len(ids)); err != nil {
		return nil, err
	}

	var updated, skipped int
	for _, chunk := range chunks(ids, h.batchSize) {
		if err := checkpoint(ctx, rt); err != nil {
			return nil, err
		}
		u, s, err := h.catalog.AssignAttributes(ctx, chunk, p.Attributes)
		if err != nil {
			return nil, err
		}
		updated += u
		skipped += s
	}

	// products removed between resolution and update are reported as errors
	problems := []string{}
	if missing := len(ids) - updated - skipped; missing > 0 {
		problems = append(problems, "products no longer exist")
	}
	errs, err := json.Marshal(problems)
	if err != nil {
		return nil, err
	}

	if err := logf(ctx, rt, "updated %d products, %d already up to date", updated, skipped); err != nil {
		return nil, err
	}
	return &worker.Outcome{Result: &models.AttributeAssignResult{
		Outcome: outcomeOf(updated+skipped, len(ids)),
		Matched: len(ids),
		Updated: updated,
		Skipped: skipped,
		Errors:  errs,
	}}, nil
}

// AdjustStructure reconciles the attribute set of every product under an
// NCM code.
func (h *Handlers) AdjustStructure(ctx context.Context, _ *models.Job, p dto.StructureAdjustPayload, rt worker.Runtime) (*worker.Outcome, error) {
	ids, err := h.catalog.ResolveSelection(ctx, dto.Selection{
		AllFiltered: true,
		Filters:     dto.ProductFilter{CatalogID: p.CatalogID, NCM: p.NCM},
	})
	if err != nil {
		return nil, err
	}
	if err := logf(ctx, rt, "resolved %d products under NCM %s", len(ids), p.NCM); err != nil {
		return nil, err
	}

	var adjusted int
	for _, chunk := range chunks(ids, h.batchSize) {
		if err := checkpoint(ctx, rt); err != nil {
			return nil, err
		}
		n, err := h.catalog.AdjustStructure(ctx, chunk, p.RequiredAttributes, p.RemovedAttributes)
		if err != nil {
			return nil, err
		}
		adjusted += n
	}

	if err := logf(ctx, rt, "adjusted %d of %d products under NCM %s", adjusted, len(ids), p.NCM); err != nil {
		return nil, err
	}
	return &worker.Outcome{Result: &models.StructureAdjustResult{
		Outcome:  config.OutcomeSuccess,
		NCM:      p.NCM,
		Matched:  len(ids),
		Adjusted: adjusted,
	}}, nil
}
