package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brunobiangulo/papergraph"
)

// AppError is an error carrying the HTTP status it should be reported with.
type AppError struct {
	Code    int
	Message string
	Err     error
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

// NewAppError creates a new AppError.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// MapError maps engine errors to an AppError with an appropriate status.
func MapError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, papergraph.ErrInvalidDocument):
		return NewAppError(http.StatusBadRequest, "Invalid document id", err)
	case errors.Is(err, papergraph.ErrUnsupportedFormat):
		return NewAppError(http.StatusUnsupportedMediaType, "Unsupported document format", err)
	case errors.Is(err, papergraph.ErrParsingFailed):
		return NewAppError(http.StatusUnprocessableEntity, "Failed to parse document", err)
	case errors.Is(err, papergraph.ErrEngineClosed):
		return NewAppError(http.StatusServiceUnavailable, "Service shutting down", err)
	case errors.Is(err, papergraph.ErrStoreFailure):
		return NewAppError(http.StatusInternalServerError, "Failed to write graph", err)
	}
	return NewAppError(http.StatusInternalServerError, "Internal server error", err)
}

func handleError(c *gin.Context, err error) {
	appErr := MapError(err)
	c.JSON(appErr.Code, gin.H{"error": appErr.Message})
}
