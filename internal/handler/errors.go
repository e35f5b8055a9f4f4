package handler

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/apperr"
)

// ErrorResponse is the failure envelope written for every non-2xx response,
// including huma's own request validation errors.
type ErrorResponse struct {
	Status    int    `json:"-"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Errors    any    `json:"errors,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e *ErrorResponse) Error() string { return e.Message }

// GetStatus implements huma.StatusError.
func (e *ErrorResponse) GetStatus() int { return e.Status }

// FieldError is a request validation failure.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// newError replaces huma.NewError so that framework errors use the same
// envelope as domain errors. Schema violations are reported as 400.
func newError(status int, msg string, errs ...error) huma.StatusError {
	if status == http.StatusUnprocessableEntity {
		status = http.StatusBadRequest
	}
	resp := &ErrorResponse{Status: status, Message: msg}
	var fields []FieldError
	for _, err := range errs {
		if err == nil {
			continue
		}
		var detail *huma.ErrorDetail
		if errors.As(err, &detail) {
			fields = append(fields, FieldError{Field: detail.Location, Message: detail.Message})
			continue
		}
		if d := apperr.DetailsOf(err); d != nil {
			resp.Errors = d
			continue
		}
		fields = append(fields, FieldError{Message: err.Error()})
	}
	if resp.Errors == nil && len(fields) > 0 {
		resp.Errors = fields
	}
	if status == http.StatusServiceUnavailable {
		resp.Retryable = true
	}
	return resp
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindStateConflict:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindStock:
		return http.StatusConflict
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail converts a service error into the response envelope. Unclassified
// errors are logged in full and reported as a generic server error.
func (h *Handler) fail(ctx context.Context, err error) *ErrorResponse {
	kind := apperr.KindOf(err)
	resp := &ErrorResponse{
		Status: statusOf(kind),
		Errors: apperr.DetailsOf(err),
	}
	switch kind {
	case apperr.KindInternal:
		zctx.From(ctx).Error("Request failed", zap.Error(err))
		resp.Message = "Server Error"
	case apperr.KindUnavailable:
		zctx.From(ctx).Warn("Dependency unavailable", zap.Error(err))
		resp.Message = apperr.Message(err, "Service temporarily unavailable, please retry")
		resp.Retryable = true
	default:
		resp.Message = apperr.Message(err, http.StatusText(resp.Status))
	}
	return resp
}
