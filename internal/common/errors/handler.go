package errors

import (
	"context"
	stderrors "errors"
	"sync"
	"time"
)

// ==========================
// Sentinel Mapping
// ==========================

var (
	sentinelMu    sync.RWMutex
	sentinelCodes = map[error]ErrorCode{}
)

// RegisterSentinel maps a package sentinel to a code used by FromError.
func RegisterSentinel(sentinel error, code ErrorCode) {
	sentinelMu.Lock()
	defer sentinelMu.Unlock()
	sentinelCodes[sentinel] = code
}

// FromError normalizes err into a StandardError. Existing StandardErrors are
// returned as-is, registered sentinels get their code, context deadlines map
// to LLM_TIMEOUT.
func FromError(err error) *StandardError {
	if err == nil {
		return nil
	}

	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}

	sentinelMu.RLock()
	for sentinel, code := range sentinelCodes {
		if stderrors.Is(err, sentinel) {
			sentinelMu.RUnlock()
			return newError(code, string(code), err, IsRetryableErrorCode(code))
		}
	}
	sentinelMu.RUnlock()

	if stderrors.Is(err, context.DeadlineExceeded) {
		return newError(ErrCodeLLMTimeout, "Operation timed out", err, true)
	}

	return &StandardError{
		Code:      ErrCodeUnknown,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// Turn Error Handler
// ==========================

// ErrorHandler logs pipeline errors with their code and category.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle normalizes err, logs it with the given fields and returns the
// normalized error.
func (h *ErrorHandler) Handle(stage string, err error, fields map[string]interface{}) *StandardError {
	stdErr := FromError(err)
	if stdErr == nil {
		return nil
	}

	entry := map[string]interface{}{
		"stage":         stage,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"retries":       GetRetryCount(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	for k, v := range fields {
		entry[k] = v
	}
	h.logger.Error("Pipeline stage failed", entry)

	return stdErr
}
