package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/internal/models"
	"github.com/joshu-sajeev/catalogjobs/internal/worker"
)

const maxReportedRowErrors = 100

var importColumns = []string{"code", "description", "ncm"}

// ImportProducts upserts the rows of a CSV file by catalog and code. Bad rows
// are skipped and reported in the result.
func (h *Handlers) ImportProducts(ctx context.Context, job *models.Job, p dto.ImportProductPayload, rt worker.Runtime) (*worker.Outcome, error) {
	f, err := h.files.Open(ctx, p.FileKey)
	if errors.Is(err, common.ErrNotFound) {
		return importFailure(ctx, rt, fmt.Sprintf("file %s not found", p.FileName))
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return importFailure(ctx, rt, "file is empty")
	}
	if err != nil {
		return importFailure(ctx, rt, "unreadable header: "+err.Error())
	}
	cols, missing := columnIndex(header)
	if missing != "" {
		return importFailure(ctx, rt, "missing column "+missing)
	}

	res := &models.ImportResult{}
	var rowErrors []string
	reject := func(line int, reason string) {
		res.Skipped++
		if len(rowErrors) < maxReportedRowErrors {
			rowErrors = append(rowErrors, fmt.Sprintf("line %d: %s", line, reason))
		}
	}

	for line := 2; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		res.TotalRows++
		if err != nil {
			reject(line, err.Error())
			continue
		}

		if res.TotalRows%h.batchSize == 0 {
			if err := checkpoint(ctx, rt); err != nil {
				return nil, err
			}
		}

		product := models.Product{
			CatalogID:   p.CatalogID,
			Code:        strings.TrimSpace(record[cols["code"]]),
			Description: strings.TrimSpace(record[cols["description"]]),
			NCM:         strings.TrimSpace(record[cols["ncm"]]),
			Status:      "DRAFT",
		}
		if reason := checkProduct(&product); reason != "" {
			reject(line, reason)
			continue
		}

		created, err := h.catalog.UpsertProduct(ctx, &product)
		if err != nil {
			return nil, err
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	if res.Skipped > maxReportedRowErrors {
		h.logger.Warn("import row errors truncated",
			slog.Uint64("job_id", uint64(job.ID)),
			slog.Int("skipped", res.Skipped),
			slog.Int("reported", maxReportedRowErrors))
	}

	errs, err := json.Marshal(append([]string{}, rowErrors...))
	if err != nil {
		return nil, err
	}
	res.Errors = errs
	res.Outcome = outcomeOf(res.Created+res.Updated, res.TotalRows)

	if err := logf(ctx, rt, "imported %d rows: %d created, %d updated, %d skipped",
		res.TotalRows, res.Created, res.Updated, res.Skipped); err != nil {
		return nil, err
	}
	return &worker.Outcome{Result: res}, nil
}

func importFailure(ctx context.Context, rt worker.Runtime, reason string) (*worker.Outcome, error) {
	if err := logf(ctx, rt, "import rejected: %s", reason); err != nil {
		return nil, err
	}
	errs, err := json.Marshal([]string{reason})
	if err != nil {
		return nil, err
	}
	return &worker.Outcome{Result: &models.ImportResult{
		Outcome: config.OutcomeFailure,
		Errors:  errs,
	}}, nil
}

func columnIndex(header []string) (map[string]int, string) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, want := range importColumns {
		if _, ok := cols[want]; !ok {
			return nil, want
		}
	}
	return cols, ""
}

func checkProduct(p *models.Product) string {
	switch {
	case p.Code == "":
		return "code is required"
	case len(p.Code) > 60:
		return "code is longer than 60 characters"
	case p.Description == "":
		return "description is required"
	case !validNCM(p.NCM):
		return fmt.Sprintf("ncm %q must be 8 digits", p.NCM)
	}
	return ""
}

func validNCM(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
