package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind tags an error with its place in the failure taxonomy.
type Kind string

const (
	KindInvalidInput        Kind = "INVALID_INPUT"
	KindNotFound            Kind = "NOT_FOUND"
	KindInternal            Kind = "INTERNAL"
	KindRateLimited         Kind = "RATE_LIMITED"
	KindQuotaExceeded       Kind = "QUOTA_EXCEEDED"
	KindResourceDisabled    Kind = "RESOURCE_DISABLED"
	KindResourceNotFound    Kind = "RESOURCE_NOT_FOUND"
	KindResourceUnavailable Kind = "RESOURCE_UNAVAILABLE"
	KindTransientIO         Kind = "TRANSIENT_IO_ERROR"
	KindOperationFailed     Kind = "OPERATION_FAILED"
	KindEmptyInput          Kind = "PIPELINE_EMPTY_INPUT"
	KindConfiguration       Kind = "CONFIGURATION_ERROR"
)

type AppError struct {
	Code    int    `json:"-"`
	Kind    Kind   `json:"kind"`
	Message string `json:"error"`
	Op      string `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// E builds an AppError with an explicit status code and kind.
func E(op string, err error, message string, code int, kind Kind) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

func InvalidInput(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusBadRequest, KindInvalidInput)
}

func NotFound(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusNotFound, KindNotFound)
}

func Internal(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusInternalServerError, KindInternal)
}

// RateLimited reports a caller that has to wait before the next request.
func RateLimited(op string, message string) *AppError {
	return E(op, nil, message, http.StatusTooManyRequests, KindRateLimited)
}

func QuotaExceeded(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusTooManyRequests, KindQuotaExceeded)
}

func ResourceDisabled(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusUnprocessableEntity, KindResourceDisabled)
}

func ResourceNotFound(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusNotFound, KindResourceNotFound)
}

func ResourceUnavailable(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusGone, KindResourceUnavailable)
}

func TransientIO(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusBadGateway, KindTransientIO)
}

func OperationFailed(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusBadGateway, KindOperationFailed)
}

func EmptyInput(op string, message string) *AppError {
	return E(op, nil, message, http.StatusBadRequest, KindEmptyInput)
}

func Configuration(op string, err error, message string) *AppError {
	return E(op, err, message, http.StatusServiceUnavailable, KindConfiguration)
}

// As finds the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of the first AppError in err's chain, or
// KindInternal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsNotFound(err error) bool {
	appErr, ok := As(err)
	if !ok {
		return false
	}
	return appErr.Code == http.StatusNotFound
}

// CodeOf returns the HTTP status carried by err.
func CodeOf(err error) int {
	if appErr, ok := As(err); ok && appErr.Code != 0 {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// MessageOf returns the user-facing message carried by err.
func MessageOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Message
	}
	return "Internal server error"
}
