package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/joshu-sajeev/catalogjobs/common"
	"github.com/joshu-sajeev/catalogjobs/internal/config"
	"github.com/joshu-sajeev/catalogjobs/internal/dto"
	"github.com/joshu-sajeev/catalogjobs/middleware"
)

var validate = validator.New()

// decodePayload checks raw against the payload type of tipo. Unknown fields
// are rejected.
func decodePayload(tipo config.JobType, raw json.RawMessage) (dto.Payload, error) {
	switch tipo {
	case config.JobTypeImportProduct:
		return validatePayload[dto.ImportProductPayload](raw)
	case config.JobTypeBulkDelete:
		return validatePayload[dto.BulkDeletePayload](raw)
	case config.JobTypeBulkAttributeAssign:
		return validatePayload[dto.BulkAttributeAssignPayload](raw)
	case config.JobTypeStructureAdjust:
		return validatePayload[dto.StructureAdjustPayload](raw)
	case config.JobTypeExportProduct:
		return validatePayload[dto.ExportProductPayload](raw)
	}
	return nil, common.NewAPIError(
		http.StatusBadRequest,
		"invalid job type",
		map[string]any{
			"provided": tipo,
			"allowed":  config.AllowedJobTypes,
		},
	)
}

func validatePayload[T dto.Payload](raw json.RawMessage) (dto.Payload, error) {
	var payload T

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, common.APIError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("%s: %s", common.ErrInvalidPayload, err),
		}
	}

	if err := validate.Struct(payload); err != nil {
		return nil, common.APIError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("%s: validation failed", common.ErrInvalidPayload),
			Fields:  middleware.FormatValidationErrors(err),
		}
	}

	return payload, nil
}
