package exchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the category of an error
type ErrorType string

const (
	// ErrorTypeHTTP represents HTTP-related errors (status codes, etc.)
	ErrorTypeHTTP ErrorType = "http"

	// ErrorTypeNetwork represents network-related errors (connection issues, timeouts, etc.)
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeAuthentication represents authentication errors
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypeParsing represents JSON parsing or data format errors
	ErrorTypeParsing ErrorType = "parsing"

	// ErrorTypeValidation represents validation errors (invalid parameters, etc.)
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeExchange represents exchange-specific errors
	ErrorTypeExchange ErrorType = "exchange"

	// ErrorTypeUnknown represents unknown errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// Well-known error codes surfaced at the gateway boundary.
const (
	// CodeUnknownPlatform marks a request for a platform not in the
	// registry. Fatal to the call, never retried.
	CodeUnknownPlatform = "unknown_platform"

	// CodeCredentialsMissing marks a live call attempted without
	// credentials. The router normally prevents this by routing to
	// simulation; adapters return it as a last line of defense.
	CodeCredentialsMissing = "credentials_missing"

	// CodeDivisionByZero marks a 24h change-percent computation with a
	// zero open price. Fatal to that single computation only.
	CodeDivisionByZero = "division_by_zero"

	// CodeInvalidSymbol marks a symbol that is not canonical BASE/QUOTE.
	CodeInvalidSymbol = "invalid_symbol"

	// CodeOrderNotFound marks a cancel or lookup of an unknown order ID.
	CodeOrderNotFound = "order_not_found"
)

// GatewayError is the typed error surfaced for every adapter- and
// router-level failure.
type GatewayError struct {
	Type        ErrorType
	Code        string
	Message     string
	StatusCode  int
	RawResponse []byte
	Timestamp   time.Time
	Retriable   bool
	Cause       error
}

// Error returns the error message
func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[%s:%s] %s (HTTP %d)", e.Type, e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// IsRetriable returns whether the error is retriable
func (e *GatewayError) IsRetriable() bool {
	return e.Retriable
}

// ParseJSON parses the raw response body as JSON
func (e *GatewayError) ParseJSON(v interface{}) error {
	return json.Unmarshal(e.RawResponse, v)
}

// NewGatewayError creates a new gateway error
func NewGatewayError(errType ErrorType, code string, message string, cause error) *GatewayError {
	return &GatewayError{
		Type:      errType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retriable: false,
		Cause:     cause,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(code string, message string, cause error, retriable bool) *GatewayError {
	return &GatewayError{
		Type:      ErrorTypeNetwork,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retriable: retriable,
		Cause:     cause,
	}
}

// NewHTTPError creates a new HTTP error with enhanced information
func NewHTTPError(statusCode int, body []byte, message string) *GatewayError {
	retriable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	errType := ErrorTypeHTTP
	code := fmt.Sprintf("http_%d", statusCode)

	switch statusCode {
	case http.StatusTooManyRequests:
		errType = ErrorTypeRateLimit
		code = "rate_limit_exceeded"
	case http.StatusUnauthorized, http.StatusForbidden:
		errType = ErrorTypeAuthentication
		code = "authentication_failed"
	case http.StatusBadRequest:
		errType = ErrorTypeValidation
		code = "invalid_request"
	}

	return &GatewayError{
		Type:        errType,
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		RawResponse: body,
		Timestamp:   time.Now(),
		Retriable:   retriable,
	}
}

// NewParsingError creates a new parsing error
func NewParsingError(message string, cause error, rawData []byte) *GatewayError {
	return &GatewayError{
		Type:        ErrorTypeParsing,
		Code:        "json_parse_error",
		Message:     message,
		Timestamp:   time.Now(),
		Retriable:   false,
		Cause:       cause,
		RawResponse: rawData,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(code string, message string) *GatewayError {
	return &GatewayError{
		Type:      ErrorTypeValidation,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retriable: false,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(code string, message string) *GatewayError {
	return &GatewayError{
		Type:      ErrorTypeAuthentication,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retriable: false,
	}
}

// NewUnknownPlatformError creates the fatal error for a platform that is
// not in the registry.
func NewUnknownPlatformError(platform string) *GatewayError {
	return NewValidationError(CodeUnknownPlatform, fmt.Sprintf("platform %q is not registered", platform))
}

// NewDivisionByZeroError creates the error for a change-percent
// computation over a zero open price.
func NewDivisionByZeroError(symbol string) *GatewayError {
	return NewValidationError(CodeDivisionByZero, fmt.Sprintf("24h open price for %s is zero", symbol))
}

func asGatewayError(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr, true
	}
	return nil, false
}

// IsErrorType checks whether err is a GatewayError of the given category.
func IsErrorType(err error, errType ErrorType) bool {
	if gwErr, ok := asGatewayError(err); ok {
		return gwErr.Type == errType
	}
	return false
}

// IsErrorCode checks whether err is a GatewayError carrying the given code.
func IsErrorCode(err error, code string) bool {
	if gwErr, ok := asGatewayError(err); ok {
		return gwErr.Code == code
	}
	return false
}

// IsNetworkError checks if the error is a network error
func IsNetworkError(err error) bool { return IsErrorType(err, ErrorTypeNetwork) }

// IsRateLimitError checks if the error is a rate limit error
func IsRateLimitError(err error) bool { return IsErrorType(err, ErrorTypeRateLimit) }

// IsAuthenticationError checks if the error is an authentication error
func IsAuthenticationError(err error) bool { return IsErrorType(err, ErrorTypeAuthentication) }

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool { return IsErrorType(err, ErrorTypeValidation) }

// IsUnknownPlatformError checks if the error marks an unregistered platform
func IsUnknownPlatformError(err error) bool { return IsErrorCode(err, CodeUnknownPlatform) }

// IsRetriable checks if the error is retriable
func IsRetriable(err error) bool {
	if gwErr, ok := asGatewayError(err); ok {
		return gwErr.IsRetriable()
	}
	return false
}
