// Package apperrors defines the tagged error values raised throughout the
// risk monitor. Every failure that crosses a component boundary is wrapped
// in an AppError so the classifier can derive a policy from its kind.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind tags the origin of a failure.
type Kind string

// Error kinds
const (
	KindDatabase         Kind = "database"
	KindBlockchain       Kind = "blockchain"
	KindAPI              Kind = "api"
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindAuthentication   Kind = "authentication"
	KindAuthorization    Kind = "authorization"
	KindRateLimit        Kind = "rate_limit"
	KindConfig           Kind = "config"
	KindUnsupportedChain Kind = "unsupported_chain"
	KindOther            Kind = "other"
)

// AppError is a tagged error carrying the failure kind and an optional
// wrapped cause.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with the given kind and message.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap creates an AppError wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// Database wraps a persistence-layer failure.
func Database(message string, err error) *AppError {
	return Wrap(KindDatabase, message, err)
}

// Blockchain wraps an RPC or contract-call failure.
func Blockchain(message string, err error) *AppError {
	return Wrap(KindBlockchain, message, err)
}

// API wraps an external HTTP service failure.
func API(message string, err error) *AppError {
	return Wrap(KindAPI, message, err)
}

// Validation reports invalid caller input.
func Validation(message string) *AppError {
	return New(KindValidation, message)
}

// NotFound reports a missing entity.
func NotFound(message string) *AppError {
	return New(KindNotFound, message)
}

// Authentication reports a failed identity check.
func Authentication(message string) *AppError {
	return New(KindAuthentication, message)
}

// Authorization reports a denied permission check.
func Authorization(message string) *AppError {
	return New(KindAuthorization, message)
}

// RateLimit reports a throttled request.
func RateLimit(message string) *AppError {
	return New(KindRateLimit, message)
}

// Config reports a misconfiguration.
func Config(message string) *AppError {
	return New(KindConfig, message)
}

// UnsupportedChain reports a request for a chain the monitor does not serve.
func UnsupportedChain(chain string) *AppError {
	return New(KindUnsupportedChain, fmt.Sprintf("chain %q is not supported", chain))
}

// KindOf extracts the kind from any error, returning KindOther for errors
// that are not AppErrors.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindOther
}

// MessageOf returns the full message text used for pattern classification.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			return appErr.Message + ": " + appErr.Err.Error()
		}
		return appErr.Message
	}
	return err.Error()
}
