package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried by AppError.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeMissingImage     = "MISSING_IMAGE"
	CodeNotFound         = "NOT_FOUND"
	CodeForbidden        = "FORBIDDEN"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeStoreError       = "STORE_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Message string       `json:"message"`
	Code    string       `json:"code,omitempty"`
	Data    []FieldError `json:"data,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Status  int
	Data    []FieldError
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

// Predefined error constructors
func NewUnauthenticatedError(message string) *AppError {
	if message == "" {
		message = "Not authenticated."
	}
	return &AppError{
		Code:    CodeUnauthenticated,
		Message: message,
		Status:  fiber.StatusUnauthorized,
	}
}

func NewValidationFailedError(message string, fields []FieldError) *AppError {
	return &AppError{
		Code:    CodeValidationFailed,
		Message: message,
		Status:  fiber.StatusUnprocessableEntity,
		Data:    fields,
	}
}

func NewMissingImageError(message string) *AppError {
	if message == "" {
		message = "No image provided."
	}
	return &AppError{
		Code:    CodeMissingImage,
		Message: message,
		Status:  fiber.StatusUnprocessableEntity,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("Could not find %s.", resource),
		Status:  fiber.StatusNotFound,
	}
}

func NewForbiddenError() *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: "Not authorized!",
		Status:  fiber.StatusForbidden,
	}
}

func NewStoreUnavailableError(err error) *AppError {
	return &AppError{
		Code:    CodeStoreUnavailable,
		Message: "Storage is unavailable.",
		Status:  fiber.StatusInternalServerError,
		Err:     err,
	}
}

func NewStoreError(err error) *AppError {
	return &AppError{
		Code:    CodeStoreError,
		Message: "Storage operation failed.",
		Status:  fiber.StatusInternalServerError,
		Err:     err,
	}
}

func NewRateLimitedError() *AppError {
	return &AppError{
		Code:    CodeRateLimited,
		Message: "Too many requests, try again later.",
		Status:  fiber.StatusTooManyRequests,
	}
}

// AsAppError returns the first *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// StatusOf returns the HTTP status attached to err, or 500 when none is.
func StatusOf(err error) int {
	if appErr, ok := AsAppError(err); ok && appErr.Status != 0 {
		return appErr.Status
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

// RespondWithError writes err as a {message, data} body with its status.
func RespondWithError(c *fiber.Ctx, err error) error {
	status := StatusOf(err)

	var response ErrorResponse
	if appErr, ok := AsAppError(err); ok {
		response = ErrorResponse{
			Message: appErr.Message,
			Code:    appErr.Code,
			Data:    appErr.Data,
		}
	} else {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			response = ErrorResponse{Message: fe.Message}
		} else {
			response = ErrorResponse{Message: err.Error()}
		}
	}

	return c.Status(status).JSON(response)
}
