// Package http builds the outbound HTTP clients shared by the LLM and
// search integrations.
package http

import (
	"net/http"
	"time"

	"nlu-memory-assistant/internal/common/logger"
)

// NewClient returns an *http.Client whose round trips are logged at debug
// level. A zero timeout leaves deadlines to the request context.
func NewClient(timeout time.Duration, log logger.Logger) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewLoggingTransport(http.DefaultTransport, log),
	}
}

type loggingTransport struct {
	next http.RoundTripper
	log  logger.Logger
}

// NewLoggingTransport wraps next; a nil next uses http.DefaultTransport.
func NewLoggingTransport(next http.RoundTripper, log logger.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &loggingTransport{next: next, log: log}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)

	fields := map[string]interface{}{
		"method":     req.Method,
		"host":       req.URL.Host,
		"path":       req.URL.Path,
		"durationMs": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		t.log.Debug("outbound request failed", fields)
		return nil, err
	}
	fields["status"] = resp.StatusCode
	t.log.Debug("outbound request", fields)
	return resp, nil
}
