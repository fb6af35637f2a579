// Package errors provides error code definitions shared with the UI layer.
package errors

import "fmt"

// ErrorCode represents a unique error code surfaced to callers.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"
	ErrNotFound ErrorCode = "NOT_FOUND"

	// Local store errors
	ErrStoreWriteFailed   ErrorCode = "STORE_WRITE_FAILED"
	ErrStoreQuotaExceeded ErrorCode = "STORE_QUOTA_EXCEEDED"
	ErrStoreCodecFailed   ErrorCode = "STORE_CODEC_FAILED"

	// Sync errors
	ErrSyncFailed         ErrorCode = "SYNC_FAILED"
	ErrSyncInProgress     ErrorCode = "SYNC_IN_PROGRESS"
	ErrSyncAuthMissing    ErrorCode = "SYNC_AUTH_MISSING"
	ErrSyncRemoteError    ErrorCode = "SYNC_REMOTE_ERROR"
	ErrSyncRetryExhausted ErrorCode = "SYNC_RETRY_EXHAUSTED"
	ErrSyncTimeout        ErrorCode = "SYNC_TIMEOUT"

	// Backup errors
	ErrBackupFailed    ErrorCode = "BACKUP_FAILED"
	ErrRestoreFailed   ErrorCode = "RESTORE_FAILED"
	ErrCorruptedBackup ErrorCode = "CORRUPTED_BACKUP"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}
