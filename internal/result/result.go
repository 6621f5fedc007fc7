// Package result is the fallible-return vocabulary shared by persistency
// and the storage registry: every public operation returns a Result[T]
// instead of a bare error, so callers can distinguish "has value" from
// "error" and still recover the underlying ErrorCode.
package result

import "fmt"

// ErrorCode classifies why a storage or registry operation failed.
type ErrorCode int

const (
	Success ErrorCode = iota
	NotFound
	QuotaExceeded
	Corruption
	PermissionDenied
	Unknown
)

func (c ErrorCode) String() string {
	switch c {
	case Success:
		return "success"
	case NotFound:
		return "not_found"
	case QuotaExceeded:
		return "quota_exceeded"
	case Corruption:
		return "corruption"
	case PermissionDenied:
		return "permission_denied"
	case Unknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// StorageError is the concrete error type carried by a failing Result.
// Component and Identifier name what failed so log sites can report
// "the failing component, identifier, and error kind" per the error
// handling design.
type StorageError struct {
	Code       ErrorCode
	Component  string
	Identifier string
	Cause      error
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Component, e.Identifier, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Component, e.Identifier, e.Code)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// New builds a StorageError carrying the given code.
func New(code ErrorCode, component, identifier string, cause error) *StorageError {
	return &StorageError{Code: code, Component: component, Identifier: identifier, Cause: cause}
}

// Result carries either a value of type T or a *StorageError.
type Result[T any] struct {
	value T
	err   *StorageError
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail wraps a failing StorageError.
func Fail[T any](err *StorageError) Result[T] {
	return Result[T]{err: err}
}

// Failf builds and wraps a StorageError in one call.
func Failf[T any](code ErrorCode, component, identifier string, cause error) Result[T] {
	return Fail[T](New(code, component, identifier, cause))
}

// IsOk reports whether the Result carries a value.
func (r Result[T]) IsOk() bool { return r.err == nil }

// Value returns the carried value and whether it is present.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.err == nil
}

// Code returns Success when the Result is ok, otherwise the failing code.
func (r Result[T]) Code() ErrorCode {
	if r.err == nil {
		return Success
	}
	return r.err.Code
}

// Err returns the underlying error, or nil when the Result is ok.
func (r Result[T]) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

// Void is the Result of an operation that carries no value on success.
type Void = Result[struct{}]

// OkVoid is a successful Void result.
func OkVoid() Void { return Ok(struct{}{}) }

// FailVoid builds a failing Void result.
func FailVoid(code ErrorCode, component, identifier string, cause error) Void {
	return Failf[struct{}](code, component, identifier, cause)
}
