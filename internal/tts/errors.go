package tts

import (
	"context"
	"errors"
	"fmt"
)

// Common TTS errors
var (
	// ErrNoEngineConfigured indicates no TTS engine has been selected
	ErrNoEngineConfigured = errors.New("no TTS engine configured")

	// ErrInvalidEngine indicates an unknown engine was specified
	ErrInvalidEngine = errors.New("invalid TTS engine specified")

	// ErrSynthesisFailed indicates the provider could not produce audio
	ErrSynthesisFailed = errors.New("failed to generate audio")

	// ErrEmptyText indicates the text was empty after trimming
	ErrEmptyText = errors.New("text parameter is required")

	// ErrTextTooLong indicates the text exceeds the configured limit
	ErrTextTooLong = errors.New("text too long")
)

// TTSError represents a TTS-specific error with additional context
type TTSError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface
func (e *TTSError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *TTSError) Unwrap() error {
	return e.Cause
}

// ErrorCode identifies specific error types
type ErrorCode string

const (
	// Engine errors
	ErrorCodeEngineFailure     ErrorCode = "ENGINE_FAILURE"
	ErrorCodeEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
	ErrorCodeEngineTimeout     ErrorCode = "ENGINE_TIMEOUT"

	// Storage errors
	ErrorCodeCacheWrite  ErrorCode = "CACHE_WRITE"
	ErrorCodeOutputWrite ErrorCode = "OUTPUT_WRITE"

	// Input errors
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorCodeTextTooLong  ErrorCode = "TEXT_TOO_LONG"

	// System errors
	ErrorCodeCanceled ErrorCode = "CANCELED"
)

// NewTTSError creates a new TTS error with context
func NewTTSError(code ErrorCode, message string, cause error) *TTSError {
	return &TTSError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithContext adds context to the error
func (e *TTSError) WithContext(key string, value any) *TTSError {
	e.Context[key] = value
	return e
}

// IsInputError reports whether the error was caused by the caller's input
// rather than by the provider or the filesystem.
func (e *TTSError) IsInputError() bool {
	switch e.Code {
	case ErrorCodeInvalidInput, ErrorCodeTextTooLong:
		return true
	default:
		return false
	}
}

// AsTTSError unwraps err into a *TTSError if it is one.
func AsTTSError(err error) (*TTSError, bool) {
	var te *TTSError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// classifyEngineError maps a provider failure to a TTSError code.
func classifyEngineError(err error) *TTSError {
	switch {
	case errors.Is(err, context.Canceled):
		return NewTTSError(ErrorCodeCanceled, "synthesis canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewTTSError(ErrorCodeEngineTimeout, ErrSynthesisFailed.Error(), errors.Join(ErrSynthesisFailed, err))
	default:
		return NewTTSError(ErrorCodeEngineFailure, ErrSynthesisFailed.Error(), errors.Join(ErrSynthesisFailed, err))
	}
}
