// Package orcherr defines the structured error kinds raised across
// agentbridge (spec §7). Each kind is a distinct exported type implementing
// error and Unwrap so callers can use errors.Is/As instead of string
// matching, mirroring the chain-preserving design of the teacher runtime's
// toolerrors package.
package orcherr

import "fmt"

// TransportError signals an MCP Client transport failure: a failed
// initialize handshake, a teardown error, or a streaming/sync generation
// failure surfaced from the Agent Contract.
type TransportError struct {
	Op    string
	Cause error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("transport error during %s", e.Op)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// NewTransportError constructs a TransportError for operation op.
func NewTransportError(op string, cause error) *TransportError {
	return &TransportError{Op: op, Cause: cause}
}

// JsonRpcError represents an MCP execute_json_rpc failure. It is never
// raised/panicked: callers fold it into the next turn as a tool-role text
// entry (spec §7).
type JsonRpcError struct {
	Method  string
	Message string
}

func (e *JsonRpcError) Error() string {
	return fmt.Sprintf("JSON-RPC error for %s: %s", e.Method, e.Message)
}

// NewJsonRpcError constructs a JsonRpcError.
func NewJsonRpcError(method, message string) *JsonRpcError {
	return &JsonRpcError{Method: method, Message: message}
}

// TranslationError represents a single Call Translator failure. Translation
// errors are collected per-call into a composite diagnostic message, never
// raised individually.
type TranslationError struct {
	Call  any
	Cause error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("failed to translate tool call %v: %v", e.Call, e.Cause)
}

func (e *TranslationError) Unwrap() error { return e.Cause }

// NewTranslationError constructs a TranslationError.
func NewTranslationError(call any, cause error) *TranslationError {
	return &TranslationError{Call: call, Cause: cause}
}

// InvalidRequestError is returned as MCP error data by the Sampling Gateway
// when the incoming CreateMessageRequestParams cannot be translated into
// provider messages.
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string { return e.Message }

// NewInvalidRequestError constructs an InvalidRequestError.
func NewInvalidRequestError(message string) *InvalidRequestError {
	return &InvalidRequestError{Message: message}
}

// UnknownSessionError is returned by the Sampling Gateway when the session
// key in a sampling request names no active session.
type UnknownSessionError struct {
	SessionKey string
}

func (e *UnknownSessionError) Error() string {
	return fmt.Sprintf("unknown or inactive session %q", e.SessionKey)
}

// NewUnknownSessionError constructs an UnknownSessionError.
func NewUnknownSessionError(sessionKey string) *UnknownSessionError {
	return &UnknownSessionError{SessionKey: sessionKey}
}

// UnsupportedProviderError is returned by the Sampling Gateway when the
// session's provider does not support server-initiated sampling.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("sampling not supported for provider %q", e.Provider)
}

// NewUnsupportedProviderError constructs an UnsupportedProviderError.
func NewUnsupportedProviderError(provider string) *UnsupportedProviderError {
	return &UnsupportedProviderError{Provider: provider}
}

// TimeoutError is returned by the Sampling Gateway when a model call exceeds
// request_timeout_s.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("%s timed out", e.Op) }

// NewTimeoutError constructs a TimeoutError.
func NewTimeoutError(op string) *TimeoutError {
	return &TimeoutError{Op: op}
}

// ConfigError is raised to the embedding program at Manager/session startup;
// unlike the other kinds it is meant to propagate as a Go error return, not
// be folded into a turn, since no session exists yet to fold it into.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// NewConfigError constructs a ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}
