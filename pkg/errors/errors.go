// Package errors provides the error taxonomy for eolsync.
// Every failure that crosses a package boundary is one of the typed errors
// below, so the entry point can classify it, pick an exit status, and decide
// whether the reconciliation pass may continue.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Aliases for the standard library helpers so callers need a single import.
var (
	New = errors.New
	Is  = errors.Is
	As  = errors.As
)

// Sentinel errors, one per category.
var (
	// ErrAuth indicates the catalog rejected the credentials or the token response was malformed
	ErrAuth = errors.New("authentication failed")

	// ErrTransport indicates a non-2xx answer or a failed round trip
	ErrTransport = errors.New("transport failure")

	// ErrSchema indicates a successful response lacked an expected field
	ErrSchema = errors.New("schema mismatch")

	// ErrUnexpected indicates a failure outside the classified categories
	ErrUnexpected = errors.New("unexpected error")

	// ErrConfig indicates invalid or missing configuration
	ErrConfig = errors.New("invalid configuration")

	// ErrPartialSync indicates some services could not be updated
	ErrPartialSync = errors.New("partial sync")
)

// Category names a classified error family.
type Category string

const (
	// CategoryNone is reported for a nil error.
	CategoryNone Category = ""
	// CategoryAuth is the AuthError family.
	CategoryAuth Category = "auth"
	// CategoryTransport is the TransportError family.
	CategoryTransport Category = "transport"
	// CategorySchema is the SchemaError family.
	CategorySchema Category = "schema"
	// CategoryConfig is the ConfigError family.
	CategoryConfig Category = "config"
	// CategoryUnexpected is everything else.
	CategoryUnexpected Category = "unexpected"
)

// AuthError represents a rejected credential exchange or an unusable token response
type AuthError struct {
	Method     string // "static_token", "client_credentials"
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication error (%s, status %d): %s", e.Method, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("authentication error (%s): %s", e.Method, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// NewAuthError creates a new AuthError
func NewAuthError(method, message string, err error) *AuthError {
	return &AuthError{Method: method, Message: message, Err: err}
}

// TransportError represents a non-2xx catalog answer or a request that never got one.
// StatusCode is zero when no response was received.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (status %d): %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Method, e.Path, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Unauthorized reports whether the catalog answered 401 or 403.
func (e *TransportError) Unauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// NewTransportError creates a new TransportError
func NewTransportError(method, path string, statusCode int, message string) *TransportError {
	return &TransportError{
		Method:     method,
		Path:       path,
		StatusCode: statusCode,
		Message:    message,
	}
}

// SchemaError represents a response that decoded but lacked an expected field
type SchemaError struct {
	Blueprint string
	Entity    string
	Field     string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *SchemaError) Error() string {
	var where []string
	if e.Blueprint != "" {
		where = append(where, "blueprint "+e.Blueprint)
	}
	if e.Entity != "" {
		where = append(where, "entity "+e.Entity)
	}
	if e.Field != "" {
		where = append(where, "field "+e.Field)
	}
	if len(where) > 0 {
		return fmt.Sprintf("schema error (%s): %s", strings.Join(where, ", "), e.Message)
	}
	return fmt.Sprintf("schema error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *SchemaError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// NewSchemaError creates a new SchemaError
func NewSchemaError(blueprint, entity, field, message string) *SchemaError {
	return &SchemaError{
		Blueprint: blueprint,
		Entity:    entity,
		Field:     field,
		Message:   message,
	}
}

// UnexpectedError wraps a failure that fits no other category
type UnexpectedError struct {
	Operation string
	Err       error
}

// Error implements the error interface
func (e *UnexpectedError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("unexpected error during %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("unexpected error: %v", e.Err)
}

// Unwrap implements errors.Unwrap
func (e *UnexpectedError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *UnexpectedError) Is(target error) bool {
	return target == ErrUnexpected
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// SyncError reports the services a pass could not update.
// Errs holds one entry per failed service, keyed by service identifier.
type SyncError struct {
	Failed int
	Total  int
	Errs   map[string]error
}

// Error implements the error interface
func (e *SyncError) Error() string {
	return fmt.Sprintf("sync incomplete: %d of %d services failed", e.Failed, e.Total)
}

// Unwrap exposes the per-service errors to errors.Is and errors.As.
func (e *SyncError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errs))
	for _, err := range e.Errs {
		errs = append(errs, err)
	}
	return errs
}

// Is implements errors.Is support
func (e *SyncError) Is(target error) bool {
	return target == ErrPartialSync
}

// Helper functions for error checking

// IsAuth checks if an error is an authentication error
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsTransport checks if an error is a transport error
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsSchema checks if an error is a schema error
func IsSchema(err error) bool {
	return errors.Is(err, ErrSchema)
}

// IsConfig checks if an error is a configuration error
func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsUnauthorized checks if an error carries a 401/403 answer from the catalog
func IsUnauthorized(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Unauthorized()
}

// Classify returns the category of err. Categories are checked from the most
// specific to the least, so an AuthError wrapping a TransportError is auth.
// A SyncError is classified by the category of its failures when they all agree.
func Classify(err error) Category {
	if err == nil {
		return CategoryNone
	}

	var syncErr *SyncError
	if errors.As(err, &syncErr) && len(syncErr.Errs) > 0 {
		var common Category
		for _, e := range syncErr.Errs {
			c := Classify(e)
			if common != CategoryNone && c != common {
				return CategoryUnexpected
			}
			common = c
		}
		return common
	}

	switch {
	case errors.Is(err, ErrAuth):
		return CategoryAuth
	case errors.Is(err, ErrConfig):
		return CategoryConfig
	case errors.Is(err, ErrSchema):
		return CategorySchema
	case errors.Is(err, ErrTransport):
		return CategoryTransport
	default:
		return CategoryUnexpected
	}
}

// Helper wrapping functions for common patterns

// WrapUnexpected wraps an unclassified error as an UnexpectedError.
// Already classified errors are returned unchanged.
func WrapUnexpected(operation string, err error) error {
	if err == nil {
		return nil
	}
	if Classify(err) != CategoryUnexpected {
		return err
	}
	var ue *UnexpectedError
	if errors.As(err, &ue) {
		return err
	}
	return &UnexpectedError{Operation: operation, Err: err}
}

// WrapTransport wraps a round-trip failure (no response) as a TransportError
func WrapTransport(method, path string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{
		Method:  method,
		Path:    path,
		Message: err.Error(),
		Err:     err,
	}
}

// WrapSchema wraps a decoding failure as a SchemaError
func WrapSchema(blueprint, field string, err error) error {
	if err == nil {
		return nil
	}
	return &SchemaError{
		Blueprint: blueprint,
		Field:     field,
		Message:   err.Error(),
		Err:       err,
	}
}
