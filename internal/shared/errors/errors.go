// Package errors provides the error taxonomy shared across alertd and the
// join worker: a structured OperationError plus helpers for the common
// wrap/classify patterns, and an ErrorKind describing how the caller should
// react (retry the next tick, skip the definition, or give up).
package errors

import (
	"fmt"
	"strings"
)

// ErrorKind classifies an OperationError for retry/skip decisions, per the
// error handling design: Config, Definition, Transient, Permanent,
// Integrity, Shutdown.
type ErrorKind string

const (
	// KindConfig is fatal at daemon load time.
	KindConfig ErrorKind = "config"
	// KindDefinition is file-level: log and skip that definition.
	KindDefinition ErrorKind = "definition"
	// KindTransient is retryable; the next tick retries.
	KindTransient ErrorKind = "transient"
	// KindPermanent will not be retried until the definition changes.
	KindPermanent ErrorKind = "permanent"
	// KindIntegrity means chunks are corrupt or incomplete.
	KindIntegrity ErrorKind = "integrity"
	// KindShutdown propagates everywhere and is non-recoverable.
	KindShutdown ErrorKind = "shutdown"
)

// OperationError describes a failed operation with enough context to log
// and to decide on retry policy.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Kind      ErrorKind
	Cause     error
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("failed to %s", e.Operation)
	if e.Component != "" {
		msg += fmt.Sprintf(", component: %s", e.Component)
	}
	if e.Resource != "" {
		msg += fmt.Sprintf(", resource: %s", e.Resource)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(", cause: %s", e.Cause)
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the next tick/event should retry the operation.
func (e *OperationError) Retryable() bool {
	return e.Kind == KindTransient
}

// FailedTo builds the simple "failed to X: Y" error, with no cause when nil.
func FailedTo(action string, cause error) error {
	if cause == nil {
		return fmt.Errorf("failed to %s", action)
	}
	return fmt.Errorf("failed to %s: %w", action, cause)
}

// FailedToWithDetails builds a fully-populated *OperationError.
func FailedToWithDetails(action, component, resource string, cause error) error {
	return &OperationError{
		Operation: action,
		Component: component,
		Resource:  resource,
		Kind:      KindPermanent,
		Cause:     cause,
	}
}

// FailedToWithKind is FailedToWithDetails with an explicit ErrorKind, used
// where callers need to branch on Retryable().
func FailedToWithKind(action, component, resource string, kind ErrorKind, cause error) error {
	return &OperationError{
		Operation: action,
		Component: component,
		Resource:  resource,
		Kind:      kind,
		Cause:     cause,
	}
}

// Wrapf adds context ahead of an existing error, passing nil through.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// DatabaseError wraps a database-layer failure.
func DatabaseError(action string, cause error) error {
	return FailedToWithDetails(action, "database", "", cause)
}

// NetworkError wraps a network-layer failure against a specific endpoint.
func NetworkError(action, endpoint string, cause error) error {
	return FailedToWithDetails(action, "network", endpoint, cause)
}

// ValidationError reports a field-level validation failure.
func ValidationError(field, reason string) error {
	return fmt.Errorf("validation failed for field %s: %s", field, reason)
}

// ConfigurationError reports a bad configuration setting.
func ConfigurationError(setting, reason string) error {
	return fmt.Errorf("configuration error for setting %s: %s", setting, reason)
}

// TimeoutError reports an operation that exceeded its deadline.
func TimeoutError(action, duration string) error {
	return fmt.Errorf("timeout while %s after %s", action, duration)
}

// AuthenticationError reports a failed authentication attempt.
func AuthenticationError(reason string) error {
	return fmt.Errorf("authentication failed: %s", reason)
}

// AuthorizationError reports a denied action.
func AuthorizationError(action, resource string) error {
	return fmt.Errorf("authorization failed: insufficient permissions to %s %s", action, resource)
}

// ParseError reports a failure to parse content of a known format.
func ParseError(what, format string, cause error) error {
	return FailedTo(fmt.Sprintf("parse %s as %s", what, format), cause)
}

// retryableSubstrings are phrases that, found in an error message, mark it
// as transient even when it wasn't constructed through OperationError.
var retryableSubstrings = []string{
	"timeout",
	"connection refused",
	"service unavailable",
	"temporarily unavailable",
	"i/o timeout",
}

// IsRetryable reports whether err looks transient: either it's an
// *OperationError tagged KindTransient, or its message matches a known
// retryable phrase (the fallback needed for errors coming out of drivers
// we don't control, like pgx or net/http).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *OperationError
	if asOperationError(err, &opErr) {
		return opErr.Retryable()
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func asOperationError(err error, target **OperationError) bool {
	for err != nil {
		if opErr, ok := err.(*OperationError); ok {
			*target = opErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// Chain joins non-nil errors into one. A single error passes through
// unchanged; two or more are joined as "multiple errors: a; b; c".
func Chain(errs ...error) error {
	var present []error
	for _, e := range errs {
		if e != nil {
			present = append(present, e)
		}
	}
	switch len(present) {
	case 0:
		return nil
	case 1:
		return present[0]
	default:
		parts := make([]string, len(present))
		for i, e := range present {
			parts[i] = e.Error()
		}
		return fmt.Errorf("multiple errors: %s", strings.Join(parts, "; "))
	}
}
