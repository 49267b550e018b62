package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/docintake/constants"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound            = errors.New("resource not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflicting state")
	ErrInternal            = errors.New("internal error")
	ErrDatabase            = errors.New("database error")
	ErrValidation          = errors.New("validation failed")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrPayloadTooLarge     = errors.New("payload too large")
	ErrUnavailable         = errors.New("dependency unavailable")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// CodeOf returns the stable code carried by err, falling back on sentinel identity.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return constants.ErrCodeNotFound
	case errors.Is(err, ErrUnsupportedFileType):
		return constants.ErrCodeUnsupportedFileType
	case errors.Is(err, ErrPayloadTooLarge):
		return constants.ErrCodePayloadTooLarge
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrUnauthorized):
		return constants.ErrCodeForbidden
	case errors.Is(err, ErrConflict):
		return constants.ErrCodeConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return constants.ErrCodeInvalidInput
	}
	return constants.ErrCodeInternal
}

// MessageOf returns the user-facing message for err.
func MessageOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}

func InternalErrorf(format string, args ...interface{}) error {
	return status.Error(codes.Internal, fmt.Sprintf(format, args...))
}

// ToGRPCStatus maps an application error onto a gRPC status error.
func ToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	msg := MessageOf(err)
	switch CodeOf(err) {
	case constants.ErrCodeNotFound:
		return status.Error(codes.NotFound, msg)
	case constants.ErrCodeForbidden:
		return status.Error(codes.PermissionDenied, msg)
	case constants.ErrCodeConflict:
		return status.Error(codes.FailedPrecondition, msg)
	case constants.ErrCodeInvalidInput, constants.ErrCodeUnsupportedFileType, constants.ErrCodePayloadTooLarge:
		return status.Error(codes.InvalidArgument, msg)
	case constants.ErrCodeStorageUnavailable, constants.ErrCodeComplianceUnavailable:
		return status.Error(codes.Unavailable, msg)
	}
	return status.Error(codes.Internal, msg)
}
