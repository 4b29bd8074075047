package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/tendant/simple-listing/pkg/simplelisting"
)

// ErrorBody is the error object of every failed response.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse wraps an ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

const internalMessage = "An internal server error occurred"

// statusFor maps an error category to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch simplelisting.ErrorCategory(err) {
	case simplelisting.ErrValidation:
		return http.StatusBadRequest, "validation_error"
	case simplelisting.ErrUnauthorized:
		return http.StatusUnauthorized, "unauthorized"
	case simplelisting.ErrForbidden:
		return http.StatusForbidden, "forbidden"
	case simplelisting.ErrNotFound:
		return http.StatusNotFound, "not_found"
	case simplelisting.ErrConflict:
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

// errorBody builds the client-facing error. Internal causes are never
// included.
func errorBody(r *http.Request, err error) (int, ErrorBody) {
	status, code := statusFor(err)
	body := ErrorBody{Code: code, RequestID: middleware.GetReqID(r.Context())}
	if status == http.StatusInternalServerError {
		body.Message = internalMessage
		return status, body
	}

	var re *simplelisting.ResourceError
	if errors.As(err, &re) && re.Message != "" {
		body.Message = re.Message
		body.Field = re.Field
	} else {
		body.Message = http.StatusText(status)
	}
	return status, body
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, body := errorBody(r, err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "request_id", body.RequestID, "err", err)
	} else {
		logger.DebugContext(r.Context(), "request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: body})
}

func badRequest(kind, op, msg string) error {
	return &simplelisting.ResourceError{Kind: kind, Op: op, Message: msg, Err: simplelisting.ErrValidation}
}
