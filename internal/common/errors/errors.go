// Package errors provides standardized error codes for the assistant pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeNLUParseFailed           ErrorCode = "NLU_PARSE_FAILED"
	ErrCodeLLMTimeout               ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMRequestFailed         ErrorCode = "LLM_REQUEST_FAILED"
	ErrCodeLLMEmptyResponse         ErrorCode = "LLM_EMPTY_RESPONSE"
	ErrCodeSessionStoreFailed       ErrorCode = "SESSION_STORE_FAILED"
	ErrCodeLongTermStoreFailed      ErrorCode = "LONG_TERM_STORE_FAILED"
	ErrCodeAnalysisIndexFailed      ErrorCode = "ANALYSIS_INDEX_FAILED"
	ErrCodeDocumentValidation       ErrorCode = "DOCUMENT_VALIDATION_FAILED"
	ErrCodeInvalidConfiguration     ErrorCode = "INVALID_CONFIGURATION"
	ErrCodeEscalationSendFailed     ErrorCode = "ESCALATION_SEND_FAILED"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeUnknown                  ErrorCode = "UNKNOWN_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause so errors.Is keeps working on sentinels.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, err error, retryable bool) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewNLUParseFailedError is only used for programming errors; malformed model
// output is reported through parsing status instead.
func NewNLUParseFailedError(err error) *StandardError {
	return newError(ErrCodeNLUParseFailed, "NLU output could not be parsed", err, false)
}

func NewLLMTimeoutError(purpose string) *StandardError {
	return newError(ErrCodeLLMTimeout, "LLM call timed out", nil, true).
		WithMetadata("purpose", purpose)
}

func NewLLMRequestFailedError(purpose string, err error) *StandardError {
	return newError(ErrCodeLLMRequestFailed, fmt.Sprintf("LLM %s request failed", purpose), err, true)
}

func NewLLMEmptyResponseError(purpose string) *StandardError {
	return newError(ErrCodeLLMEmptyResponse, "LLM returned no choices", nil, true).
		WithMetadata("purpose", purpose)
}

func NewSessionStoreFailedError(conversationID string, err error) *StandardError {
	return newError(ErrCodeSessionStoreFailed, "Short-term memory operation failed", err, true).
		WithMetadata("conversationId", conversationID)
}

func NewLongTermStoreFailedError(userID string, err error) *StandardError {
	return newError(ErrCodeLongTermStoreFailed, "Long-term memory operation failed", err, true).
		WithMetadata("userId", userID)
}

func NewAnalysisIndexFailedError(err error) *StandardError {
	return newError(ErrCodeAnalysisIndexFailed, "Analysis index operation failed", err, true)
}

func NewDocumentValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDocumentValidation,
		Message:   "Document failed schema validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidConfigurationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidConfiguration,
		Message:   "Invalid configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewEscalationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeEscalationSendFailed, fmt.Sprintf("Escalation via %s failed", channel), err, true)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err, true)
}

// ==========================
// 3. Retry Policy
// ==========================

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeLLMRequestFailed,
		ErrCodeLLMEmptyResponse,
		ErrCodeSessionStoreFailed,
		ErrCodeLongTermStoreFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeEscalationSendFailed:
		return 3

	case ErrCodeAnalysisIndexFailed:
		return 2

	case ErrCodeLLMTimeout:
		return 1

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// IsRetryable reports whether err is a retryable StandardError.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// CodeOf extracts the code of a StandardError anywhere in the chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeUnknown
}

// ==========================
// 4. Utility Functions
// ==========================

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "LLM") || strings.Contains(codeStr, "NLU"):
		return "AI"
	case strings.Contains(codeStr, "SESSION") || strings.Contains(codeStr, "LONG_TERM"):
		return "MEMORY"
	case strings.Contains(codeStr, "INDEX") || strings.Contains(codeStr, "DATABASE"):
		return "STORAGE"
	case strings.Contains(codeStr, "ESCALATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
