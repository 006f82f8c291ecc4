// Package apierrors defines the closed error taxonomy described in spec
// §7: every server-raised failure carries a stable machine code, an
// internal message, a user-facing message, a retryable flag, and an
// optional retry-after hint.
package apierrors

import (
	"errors"
	"fmt"
	"time"
)

// Code is one of the enumerated error kinds. Values are grouped by the
// categories §7 names: authentication, authorization, session, identity,
// validation, upstream, system.
type Code string

const (
	// Authentication
	CodeInvalidCredentials Code = "AUTH_INVALID_CREDENTIALS"
	CodeTokenExpired       Code = "AUTH_TOKEN_EXPIRED"
	CodeTokenInvalid       Code = "AUTH_TOKEN_INVALID"
	CodeRefreshExpired     Code = "AUTH_REFRESH_EXPIRED"

	// Authorization
	CodeNotOwner             Code = "AUTHZ_NOT_OWNER"
	CodeInsufficientPermission Code = "AUTHZ_INSUFFICIENT_PERMISSION"

	// Session
	CodeSessionNotFound        Code = "SESSION_NOT_FOUND"
	CodeSessionAlreadyExists   Code = "SESSION_ALREADY_EXISTS"
	CodeSessionInvalidConfig   Code = "SESSION_INVALID_CONFIG"
	CodeSessionClientLimit     Code = "SESSION_CLIENT_LIMIT_EXCEEDED"
	CodeSessionInvalidTransition Code = "SESSION_INVALID_TRANSITION"

	// Identity
	CodeIdentityNotFound      Code = "IDENTITY_NOT_FOUND"
	CodeIdentityNameTaken     Code = "IDENTITY_DISPLAY_NAME_TAKEN"
	CodeIdentityRecordCorrupt Code = "IDENTITY_RECORD_CORRUPTED"

	// Validation
	CodeValidationMissingField  Code = "VALIDATION_MISSING_FIELD"
	CodeValidationBadSessionID  Code = "VALIDATION_BAD_SESSION_ID"
	CodeValidationUnsupportedLanguage Code = "VALIDATION_UNSUPPORTED_LANGUAGE"
	CodeValidationMalformedConfig Code = "VALIDATION_MALFORMED_CONFIG"
	CodeValidationMalformedFrame Code = "VALIDATION_MALFORMED_FRAME"

	// Upstream
	CodeUpstreamSynthesisFailure Code = "UPSTREAM_SYNTHESIS_FAILURE"
	CodeUpstreamIdentityProviderUnavailable Code = "UPSTREAM_IDENTITY_PROVIDER_UNAVAILABLE"

	// System
	CodeInternal          Code = "SYSTEM_INTERNAL"
	CodePersistenceIO     Code = "SYSTEM_PERSISTENCE_IO"
	CodeRateLimit         Code = "SYSTEM_RATE_LIMIT"
	CodeConnectionLimit   Code = "SYSTEM_CONNECTION_LIMIT"
)

// Error is the concrete error value every component returns for a
// recognized failure. It implements the standard error interface so it
// composes with errors.Is/As and fmt.Errorf's %w.
type Error struct {
	Code        Code
	Internal    string
	UserMessage string
	Retryable   bool
	RetryAfter  time.Duration
	cause       error
}

func (e *Error) Error() string {
	if e.Internal != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Internal)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a non-retryable Error with the given code and messages.
func New(code Code, internal, userMessage string) *Error {
	return &Error{Code: code, Internal: internal, UserMessage: userMessage}
}

// Wrap attaches a Code/UserMessage to an underlying cause, preserving it
// for errors.Is/As and %w unwrapping.
func Wrap(code Code, userMessage string, cause error) *Error {
	return &Error{Code: code, Internal: cause.Error(), UserMessage: userMessage, cause: cause}
}

// WithRetry marks e as retryable with the given retry-after hint.
func (e *Error) WithRetry(after time.Duration) *Error {
	e.Retryable = true
	e.RetryAfter = after
	return e
}

// As reports whether err is (or wraps) an *Error, returning it on success.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf extracts the Code from err, or CodeInternal if err is not a
// recognized *Error.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}
