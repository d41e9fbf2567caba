package handler

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-ops-reports/internal/platform/errors"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      errors.Code `json:"code"`
	Message   string      `json:"message"`
	Field     string      `json:"field,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

func httpStatus(code errors.Code) int {
	switch code {
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(code errors.Code) codes.Code {
	switch code {
	case errors.ErrCodeInvalidInput:
		return codes.InvalidArgument
	case errors.ErrCodeUnauthorized:
		return codes.Unauthenticated
	case errors.ErrCodeForbidden:
		return codes.PermissionDenied
	case errors.ErrCodeNotFound:
		return codes.NotFound
	case errors.ErrCodeConflict:
		return codes.Aborted
	case errors.ErrCodeConfiguration:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// describe splits err into what callers may see. Internal causes are not
// exposed.
func describe(err error) errorDetail {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		return errorDetail{Code: errors.ErrCodeInternal, Message: "internal error"}
	}
	d := errorDetail{Code: e.Code, Message: e.Message, Field: e.Field, Retryable: e.Retryable()}
	if e.Code == errors.ErrCodeInternal {
		d.Message = "internal error"
	}
	return d
}

func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}
	d := describe(err)
	return status.Error(grpcCode(d.Code), d.Message)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	d := describe(err)
	writeJSON(w, httpStatus(d.Code), errorBody{Error: d})
}
