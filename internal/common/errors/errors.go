package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorCode identifies a gateway failure category.
type ErrorCode string

const (
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"
	ErrCodePolicyRejected  ErrorCode = "POLICY_REJECTED"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeProviderTimeout ErrorCode = "PROVIDER_TIMEOUT"

	ErrCodeProviderUnavailable     ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCodeMalformedProviderOutput ErrorCode = "MALFORMED_PROVIDER_OUTPUT"

	ErrCodeCacheUnavailable     ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeRateStoreUnavailable ErrorCode = "RATE_STORE_UNAVAILABLE"
	ErrCodeAuditWriteFailed     ErrorCode = "AUDIT_WRITE_FAILED"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

// BPMNError is the shape thrown back to the workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid request", details, false)
}

func NewRateLimitedError(clientID string, retryAfter time.Duration) *StandardError {
	return newError(ErrCodeRateLimited, "Rate limit exceeded", fmt.Sprintf("client: %s", clientID), true).
		WithMetadata("retryAfterSeconds", int(retryAfter.Round(time.Second).Seconds()))
}

func NewPolicyRejectedError(category string) *StandardError {
	return newError(ErrCodePolicyRejected, "Request blocked by safety policy", fmt.Sprintf("category: %s", category), false)
}

func NewProviderUnavailableError(err error) *StandardError {
	return newError(ErrCodeProviderUnavailable, "LLM provider unavailable", err.Error(), true)
}

func NewProviderTimeoutError(shape string) *StandardError {
	return newError(ErrCodeProviderTimeout, "LLM provider timeout", fmt.Sprintf("shape: %s", shape), true)
}

func NewMalformedProviderOutputError(details string) *StandardError {
	return newError(ErrCodeMalformedProviderOutput, "LLM provider returned unusable output", details, false)
}

func NewCacheUnavailableError(err error) *StandardError {
	return newError(ErrCodeCacheUnavailable, "Response cache unavailable", err.Error(), true)
}

func NewRateStoreUnavailableError(err error) *StandardError {
	return newError(ErrCodeRateStoreUnavailable, "Rate-limit store unavailable", err.Error(), true)
}

func NewAuditWriteFailedError(err error) *StandardError {
	return newError(ErrCodeAuditWriteFailed, "Audit log write failed", err.Error(), true)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false)
}

// AsStandard unwraps err into a StandardError, wrapping unknown errors as internal.
func AsStandard(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// HTTPStatus maps an error code to the status surfaced to HTTP callers.
// Provider and storage failures are absorbed before they reach a handler,
// so they fall through to 500 only when something escaped that path.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidInput:    "INVALID_INPUT",
	ErrCodeRateLimited:     "RATE_LIMITED",
	ErrCodePolicyRejected:  "POLICY_REJECTED",
	ErrCodeProviderTimeout: "PROVIDER_TIMEOUT",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeProviderUnavailable,
		ErrCodeCacheUnavailable,
		ErrCodeRateStoreUnavailable,
		ErrCodeAuditWriteFailed:
		return 3
	case ErrCodeProviderTimeout:
		return 1
	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, ok := BPMNErrorMapping[stdErr.Code]
	if !ok {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.Contains(codeStr, "STORE") || strings.Contains(codeStr, "CACHE") || strings.Contains(codeStr, "AUDIT"):
		return "STORAGE"
	case strings.Contains(codeStr, "RATE"):
		return "THROTTLING"
	case strings.Contains(codeStr, "POLICY"):
		return "SAFETY"
	case strings.Contains(codeStr, "PROVIDER"):
		return "PROVIDER"
	default:
		return "OTHER"
	}
}
