package cmn

import (
	"net/http"

	"github.com/pkg/errors"
)

// Kind is the error taxonomy from the engine's error-handling design: not a
// set of named Go error types but a tag carried alongside a wrapped error so
// the component that finally maps to an HTTP status doesn't need to know
// which layer produced the failure.
type Kind int

const (
	KindInput Kind = iota
	KindPolicy
	KindResource
	KindIO
	KindExternal
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindPolicy:
		return "policy"
	case KindResource:
		return "resource"
	case KindIO:
		return "io"
	case KindExternal:
		return "external"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a taxonomy Kind and, for policy/input
// errors, the HTTP status the producing component has already decided on.
type Error struct {
	kind   Kind
	status int
	cause  error
}

func (e *Error) Error() string { return e.cause.Error() }
func (e *Error) Cause() error  { return e.cause }
func (e *Error) Unwrap() error { return e.cause }
func (e *Error) Kind() Kind    { return e.kind }
func (e *Error) Status() int   { return e.status }

func newErr(kind Kind, status int, format string, args ...interface{}) *Error {
	return &Error{kind: kind, status: status, cause: errors.Errorf(format, args...)}
}

func wrapErr(kind Kind, status int, err error, format string, args ...interface{}) *Error {
	return &Error{kind: kind, status: status, cause: errors.Wrapf(err, format, args...)}
}

// ErrInput reports a malformed request (bad header, unsupported content
// type, oversized header) - mapped to 400.
func ErrInput(format string, args ...interface{}) *Error {
	return newErr(KindInput, http.StatusBadRequest, format, args...)
}

// ErrPolicy reports a policy rejection (forbidden path, disallowed
// extension, directory listing disabled) - mapped to 403 by default; callers
// needing 404/413/416 use ErrPolicyStatus.
func ErrPolicy(format string, args ...interface{}) *Error {
	return newErr(KindPolicy, http.StatusForbidden, format, args...)
}

func ErrPolicyStatus(status int, format string, args ...interface{}) *Error {
	return newErr(KindPolicy, status, format, args...)
}

// ErrResource reports exhaustion (OOM, too many open files, queue
// saturated) - surfaced as 500 at request scope.
func ErrResource(format string, args ...interface{}) *Error {
	return newErr(KindResource, http.StatusInternalServerError, format, args...)
}

// ErrIO wraps a filesystem/network error - surfaced as 500 unless the caller
// already mapped it (e.g. ENOENT -> 404 in the static server).
func ErrIO(err error, format string, args ...interface{}) *Error {
	return wrapErr(KindIO, http.StatusInternalServerError, err, format, args...)
}

func ErrIOStatus(status int, err error, format string, args ...interface{}) *Error {
	return wrapErr(KindIO, status, err, format, args...)
}

// ErrExternal reports a failure in an external collaborator (virus-scan
// daemon unreachable, scan timeout).
func ErrExternal(err error, format string, args ...interface{}) *Error {
	return wrapErr(KindExternal, http.StatusBadGateway, err, format, args...)
}

// ErrInternal reports a broken invariant. In debug builds the caller should
// have already panicked via cmn/debug; this constructor exists for the
// release-build path where the violation must degrade to a 500 instead.
func ErrInternal(format string, args ...interface{}) *Error {
	return newErr(KindInternal, http.StatusInternalServerError, format, args...)
}

// AsError unwraps a *cmn.Error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
