package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/joshu-sajeev/catalogjobs/internal/worker"
)

var exportHeader = []string{"id", "catalog_id", "code", "description", "ncm", "status", "attributes"}

// ExportProducts renders the filtered products as CSV and publishes the file
// as the job artifact.
func (h *Handlers) ExportProducts(ctx context.Context, job *models.Job, p dto.ExportProductPayload, rt worker.Runtime) (*worker.Outcome, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}

	rows := 0
	err := h.catalog.ListForExport(ctx, p.Filters, h.batchSize, func(batch []models.Product) error {
		if err := checkpoint(ctx, rt); err != nil {
			return err
		}
		for _, product := range batch {
			attrs, err := json.Marshal(product.Attributes)
			if err != nil {
				return err
			}
			if err := w.Write([]string{
				strconv.FormatUint(uint64(product.ID), 10),
				strconv.FormatUint(uint64(product.CatalogID), 10),
				product.Code,
				product.Description,
				product.NCM,
				product.Status,
				string(attrs),
			}); err != nil {
				return err
			}
			rows++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write export: %w", err)
	}

	name := fmt.Sprintf("products-%d.csv", job.ID)
	if err := logf(ctx, rt, "exported %d products to %s", rows, name); err != nil {
		return nil, err
	}
	return &worker.Outcome{
		Result: &models.ExportResult{
			Outcome:      config.OutcomeSuccess,
			RowCount:     rows,
			ArtifactName: name,
		},
		Artifact: &worker.ArtifactOutput{
			Name:        name,
			ContentType: "text/csv",
			Body:        buf.Bytes(),
		},
	}, nil
}
