package constants

// Stable error codes recorded on FAILED jobs and returned by the APIs.
const (
	ErrCodeUnsupportedFileType   = "UNSUPPORTED_FILE_TYPE"
	ErrCodePayloadTooLarge       = "PAYLOAD_TOO_LARGE"
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeConflict              = "CONFLICT"
	ErrCodeStorageUnavailable    = "STORAGE_UNAVAILABLE"
	ErrCodeStoreWriteFailed      = "STORE_WRITE_FAILED"
	ErrCodeSchemaViolation       = "SCHEMA_VIOLATION"
	ErrCodeComplianceUnavailable = "COMPLIANCE_UNAVAILABLE"
	ErrCodeStageTimeout          = "STAGE_TIMEOUT"
	ErrCodeInternal              = "INTERNAL"
	ErrCodeConfig                = "CONFIG_ERROR"
	ErrCodeRateLimited           = "RATE_LIMITED"
)
