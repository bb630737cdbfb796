// Package errors provides the error types shared by the stats client, the poller and the snapshot sinks.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// ==========================
// 1. Error Codes
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeBackendUnreachable ErrorCode = "BACKEND_UNREACHABLE"
	ErrCodeBackendTimeout     ErrorCode = "BACKEND_TIMEOUT"
	ErrCodeBackendStatus      ErrorCode = "BACKEND_STATUS_ERROR"

	ErrCodeSnapshotPublishFailed ErrorCode = "SNAPSHOT_PUBLISH_FAILED"
	ErrCodeSnapshotEncodeFailed  ErrorCode = "SNAPSHOT_ENCODE_FAILED"

	ErrCodeUnknown ErrorCode = "UNKNOWN_ERROR"
)

// ==========================
// 2. Backend Response Errors
// ==========================

// ResponseError is returned by the shared HTTP client when the backend answers
// with a status outside 2xx. The body is kept verbatim.
type ResponseError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("http %s %s: status %d", e.Method, e.Path, e.StatusCode)
	if body := strings.TrimSpace(string(e.Body)); body != "" {
		msg += ": " + truncate(body, maxErrorBody)
	}
	return msg
}

const maxErrorBody = 256

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// IsStatus reports whether err carries a backend response with the given status code.
func IsStatus(err error, code int) bool {
	var respErr *ResponseError
	if stderrors.As(err, &respErr) {
		return respErr.StatusCode == code
	}
	return false
}

// StatusCode extracts the backend status code from err, or 0 if there is none.
func StatusCode(err error) int {
	var respErr *ResponseError
	if stderrors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

// ==========================
// 3. Standard Error
// ==========================

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Err       error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("StandardError[%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Err
}

// NewSnapshotPublishFailedError creates a retryable sink error.
func NewSnapshotPublishFailedError(sink string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSnapshotPublishFailed,
		Message:   "Failed to publish snapshot",
		Details:   fmt.Sprintf("sink: %s, error: %s", sink, err.Error()),
		Retryable: true,
		Metadata:  map[string]interface{}{"sink": sink},
		Timestamp: time.Now().UTC(),
		Err:       err,
	}
}

// NewSnapshotEncodeFailedError creates a non-retryable encoding error.
func NewSnapshotEncodeFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSnapshotEncodeFailed,
		Message:   "Failed to encode snapshot",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		Err:       err,
	}
}

// ==========================
// 4. Classification
// ==========================

// Classify maps an error to an ErrorCode for logs and metric labels.
func Classify(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}

	var respErr *ResponseError
	if stderrors.As(err, &respErr) {
		return ErrCodeBackendStatus
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return ErrCodeBackendTimeout
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return ErrCodeBackendTimeout
	}
	if stderrors.As(err, &netErr) {
		return ErrCodeBackendUnreachable
	}

	return ErrCodeUnknown
}

// IsRetryable reports whether the failure is worth another attempt on the next cycle.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Retryable
	}

	var respErr *ResponseError
	if stderrors.As(err, &respErr) {
		return respErr.StatusCode >= http.StatusInternalServerError ||
			respErr.StatusCode == http.StatusTooManyRequests
	}

	switch Classify(err) {
	case ErrCodeBackendTimeout, ErrCodeBackendUnreachable:
		return true
	}
	return false
}
