package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DsyncErrorBadInput          = "DSYNC_BAD_INPUT"
	DsyncErrorDirectoryNotFound = "DSYNC_DIRECTORY_NOT_FOUND"
	DsyncErrorLockHeld          = "DSYNC_LOCK_HELD"
	DsyncErrorDeliveryFailed    = "DSYNC_DELIVERY_FAILED"
	DsyncErrorStoreFailure      = "DSYNC_STORE_FAILURE"
	DsyncErrorInternal          = "DSYNC_INTERNAL_ERROR"
)

var ErrDirectoryNotFound = errors.New("core: directory not found")

// DirectoryNotFoundError wraps a resolver miss so the processor can treat it
// as a permanent drop rather than a transient lookup failure.
type DirectoryNotFoundError struct {
	DirectoryID string
	Cause       error
}

func (e *DirectoryNotFoundError) Error() string {
	if e == nil {
		return ErrDirectoryNotFound.Error()
	}
	message := ErrDirectoryNotFound.Error()
	if strings.TrimSpace(e.DirectoryID) != "" {
		message += ": " + e.DirectoryID
	}
	if e.Cause != nil {
		message += ": " + e.Cause.Error()
	}
	return message
}

func (e *DirectoryNotFoundError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return ErrDirectoryNotFound
	}
	return errors.Join(ErrDirectoryNotFound, e.Cause)
}

func (e *DirectoryNotFoundError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(DsyncErrorDirectoryNotFound)
}

func DirectoryNotFound(directoryID string, cause error) error {
	return &DirectoryNotFoundError{DirectoryID: strings.TrimSpace(directoryID), Cause: cause}
}

func IsDirectoryNotFound(err error) bool {
	return errors.Is(err, ErrDirectoryNotFound)
}

type ErrorMapper func(err error) *goerrors.Error

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureDsyncErrorEnvelope(richErr)
	}

	var notFound *DirectoryNotFoundError
	if errors.As(err, &notFound) {
		return notFound.ToServiceError()
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "lock already held"), strings.Contains(msg, "lock is held"):
		return newDsyncError(err.Error(), goerrors.CategoryConflict, DsyncErrorLockHeld)
	case strings.Contains(msg, "webhook"), strings.Contains(msg, "delivery"):
		return newDsyncError(err.Error(), goerrors.CategoryExternal, DsyncErrorDeliveryFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "unknown event"):
		return newDsyncError(err.Error(), goerrors.CategoryBadInput, DsyncErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureDsyncErrorEnvelope(mapped)
}

func newDsyncError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureDsyncErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureDsyncErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = dsyncHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultDsyncTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultDsyncTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return DsyncErrorBadInput
	case goerrors.CategoryNotFound:
		return DsyncErrorDirectoryNotFound
	case goerrors.CategoryConflict:
		return DsyncErrorLockHeld
	case goerrors.CategoryExternal:
		return DsyncErrorDeliveryFailed
	default:
		return DsyncErrorInternal
	}
}

func dsyncHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
