// Package errors provides the structured fault taxonomy for the event proxy.
// Every boundary operation normalizes its failures into an *Error carrying a
// code and a status class, so callers can distinguish client-caused faults
// (bad domain, unknown subscriber) from server-caused ones (session loss,
// protocol failure) without string matching.
package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a structured error code.
type ErrorCode string

const (
	// Validation errors (client-caused)
	ErrCodeInvalidDomain  ErrorCode = "INVALID_DOMAIN"
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigLoad     ErrorCode = "CONFIG_LOAD"

	// Not-found errors (client-caused)
	ErrCodeSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSubscriberNotFound ErrorCode = "SUBSCRIBER_NOT_FOUND"

	// Session and provider errors (server-caused)
	ErrCodeNotConnected     ErrorCode = "NOT_CONNECTED"
	ErrCodeSessionAcquire   ErrorCode = "SESSION_ACQUIRE"
	ErrCodeSessionRelease   ErrorCode = "SESSION_RELEASE"
	ErrCodeProviderFailure  ErrorCode = "PROVIDER_FAILURE"
	ErrCodeMissingHandle    ErrorCode = "MISSING_HANDLE"

	// Protocol errors (server-caused)
	ErrCodeProtocolCommand   ErrorCode = "PROTOCOL_COMMAND"
	ErrCodeProtocolTransport ErrorCode = "PROTOCOL_TRANSPORT"
	ErrCodeDomainEnable      ErrorCode = "DOMAIN_ENABLE"
	ErrCodeInjection         ErrorCode = "INJECTION"
	ErrCodeDecode            ErrorCode = "DECODE"

	// Delivery errors (server-caused)
	ErrCodeDelivery ErrorCode = "DELIVERY"

	// Generic errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// StatusClass distinguishes who caused a fault.
type StatusClass string

const (
	StatusClient StatusClass = "client"
	StatusServer StatusClass = "server"
)

// statusByCode maps each code to its status class. Codes absent from the map
// classify as server faults.
var statusByCode = map[ErrorCode]StatusClass{
	ErrCodeInvalidDomain:      StatusClient,
	ErrCodeInvalidInput:       StatusClient,
	ErrCodeConfigInvalid:      StatusClient,
	ErrCodeConfigLoad:         StatusClient,
	ErrCodeSessionNotFound:    StatusClient,
	ErrCodeSubscriberNotFound: StatusClient,
}

// Error represents a structured event proxy error.
type Error struct {
	Code       ErrorCode
	Message    string
	Underlying error
	Context    map[string]any
}

// New creates a new structured error.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Newf creates a new structured error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with proxy error context.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:       code,
		Message:    message,
		Underlying: err,
		Context:    make(map[string]any),
	}
}

// WithContext adds a context key-value pair to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Status returns the status class of the error.
func (e *Error) Status() StatusClass {
	if class, ok := statusByCode[e.Code]; ok {
		return class
	}
	return StatusServer
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" {")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s: %v", k, v))
			first = false
		}
		sb.WriteString("}")
	}

	if e.Underlying != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Underlying))
	}

	return sb.String()
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	proxyErr, ok := err.(*Error)
	if !ok {
		return false
	}
	return proxyErr.Code == code
}

// GetCode extracts the error code from an error.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	proxyErr, ok := err.(*Error)
	if !ok {
		return ErrCodeInternal
	}
	return proxyErr.Code
}

// StatusOf extracts the status class from an error. Non-proxy errors classify
// as server faults.
func StatusOf(err error) StatusClass {
	if proxyErr, ok := err.(*Error); ok {
		return proxyErr.Status()
	}
	return StatusServer
}
