// Package errclass maps remote storage failures to a small set of kinds that
// decide retry behavior.
//
// Only Generic failures are retryable. Every other kind is terminal and is
// returned to the caller with the remote status code, error code, message
// and request id preserved verbatim.
package errclass

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/3leaps/nimbusfs/pkg/provider"
)

// Kind is the classification of a failure.
type Kind int

const (
	// Generic covers transient and unknown failures. It is the only
	// retryable kind.
	Generic Kind = iota
	Redirect
	AccessDenied
	NotFound
	Conflict
	RangeError
	InvalidRequest
	InvariantViolation
)

var kindNames = map[Kind]string{
	Generic:            "generic",
	Redirect:           "redirect",
	AccessDenied:       "access denied",
	NotFound:           "not found",
	Conflict:           "conflict",
	RangeError:         "range not satisfiable",
	InvalidRequest:     "invalid request",
	InvariantViolation: "invariant violation",
}

// String returns the human-readable kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrGeneric            = errors.New("generic failure")
	ErrRedirect           = errors.New("redirect")
	ErrAccessDenied       = errors.New("access denied")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrRangeError         = errors.New("range not satisfiable")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvariantViolation = errors.New("invariant violation")
)

var kindSentinels = map[Kind]error{
	Generic:            ErrGeneric,
	Redirect:           ErrRedirect,
	AccessDenied:       ErrAccessDenied,
	NotFound:           ErrNotFound,
	Conflict:           ErrConflict,
	RangeError:         ErrRangeError,
	InvalidRequest:     ErrInvalidRequest,
	InvariantViolation: ErrInvariantViolation,
}

// Error is a classified failure of one operation on one path.
type Error struct {
	Kind Kind

	// Op is the logical operation, e.g. "listObjects" or "deleteObject".
	Op string

	// Path is the key or prefix operated on.
	Path string

	// Remote response details, copied verbatim. Zero when the failure did
	// not come from a service response.
	StatusCode int
	Code       string
	Message    string
	RequestID  string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 || e.Code != "" || e.RequestID != "" {
		return fmt.Sprintf("%s on %s: status [%d] - request id [%s] - error code [%s] - error message [%s]",
			e.Op, e.Path, e.StatusCode, e.RequestID, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s on %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s on %s: %s: %s", e.Op, e.Path, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s on %s: %s", e.Op, e.Path, e.Kind)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Classify wraps err as an *Error of the appropriate kind.
//
// Already classified errors and context cancellation pass through
// unchanged. Remote failures are mapped by HTTP status; failures without a
// status fall back to provider sentinels, then to Generic.
func Classify(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	e := &Error{Op: op, Path: path, Err: err}
	if re, ok := provider.AsRemote(err); ok {
		e.StatusCode = re.StatusCode
		e.Code = re.Code
		e.Message = re.Message
		e.RequestID = re.RequestID
	}
	if e.StatusCode != 0 {
		e.Kind = KindForStatus(e.StatusCode)
	} else {
		e.Kind = kindForSentinel(err)
	}
	return e
}

// KindForStatus maps an HTTP status code to a Kind.
func KindForStatus(status int) Kind {
	switch status {
	case http.StatusMovedPermanently:
		return Redirect
	case http.StatusUnauthorized, http.StatusForbidden:
		return AccessDenied
	case http.StatusNotFound, http.StatusGone:
		return NotFound
	case http.StatusConflict:
		return Conflict
	case http.StatusRequestedRangeNotSatisfiable:
		return RangeError
	default:
		return Generic
	}
}

func kindForSentinel(err error) Kind {
	switch {
	case errors.Is(err, provider.ErrNotFound), errors.Is(err, provider.ErrBucketNotFound):
		return NotFound
	case errors.Is(err, provider.ErrAccessDenied), errors.Is(err, provider.ErrInvalidCredentials):
		return AccessDenied
	case errors.Is(err, provider.ErrConflict):
		return Conflict
	default:
		return Generic
	}
}

// KindOf returns the kind of a classified error, or Generic for anything
// else.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Generic
}

// Retryable reports whether err is a classified Generic failure.
func Retryable(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == Generic
}

// New returns an *Error of kind with a plain message.
func New(kind Kind, op, path, message string) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Message: message}
}

// NewInvalidRequest reports a caller mistake detected before any remote call.
func NewInvalidRequest(op, path, message string) *Error {
	return New(InvalidRequest, op, path, message)
}

// NewInvariantViolation reports a broken internal guarantee.
func NewInvariantViolation(op, path, message string) *Error {
	return New(InvariantViolation, op, path, message)
}

// IsNotFound returns true if err is a NotFound failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAccessDenied returns true if err is an AccessDenied failure.
func IsAccessDenied(err error) bool { return errors.Is(err, ErrAccessDenied) }

// IsConflict returns true if err is a Conflict failure.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsInvalidRequest returns true if err is an InvalidRequest failure.
func IsInvalidRequest(err error) bool { return errors.Is(err, ErrInvalidRequest) }

// IsInvariantViolation returns true if err is an InvariantViolation failure.
func IsInvariantViolation(err error) bool { return errors.Is(err, ErrInvariantViolation) }
