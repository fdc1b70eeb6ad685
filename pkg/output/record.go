// Package output writes command results as JSONL.
//
// Every line is a Record envelope whose Data holds one typed payload, so a
// consumer can parse lines independently and dispatch on Type.
package output

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/3leaps/nimbusfs/pkg/errclass"
)

// Record types, named nimbusfs.<type>.v<version>.
const (
	TypeEntry     = "nimbusfs.entry.v1"
	TypeError     = "nimbusfs.error.v1"
	TypeSummary   = "nimbusfs.summary.v1"
	TypePreflight = "nimbusfs.preflight.v1"
)

// Record is the envelope of every JSONL line.
type Record struct {
	Type     string          `json:"type"`
	TS       time.Time       `json:"ts"`
	JobID    string          `json:"job_id"`
	Provider string          `json:"provider"`
	Data     json.RawMessage `json:"data"`
}

// EntryRecord is one file or directory.
type EntryRecord struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitzero"`
	IsDir        bool      `json:"is_dir"`
}

// ErrorRecord reports a failure without aborting the stream.
type ErrorRecord struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Key        string `json:"key,omitempty"`
	Op         string `json:"op,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// Error codes for ErrorRecord, one per failure kind.
const (
	ErrCodeAccessDenied       = "ACCESS_DENIED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeRedirect           = "REDIRECT"
	ErrCodeRange              = "RANGE"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvariantViolation = "INVARIANT_VIOLATION"
	ErrCodeInternal           = "INTERNAL"
)

var kindCodes = map[errclass.Kind]string{
	errclass.Generic:            ErrCodeInternal,
	errclass.Redirect:           ErrCodeRedirect,
	errclass.AccessDenied:       ErrCodeAccessDenied,
	errclass.NotFound:           ErrCodeNotFound,
	errclass.Conflict:           ErrCodeConflict,
	errclass.RangeError:         ErrCodeRange,
	errclass.InvalidRequest:     ErrCodeInvalidRequest,
	errclass.InvariantViolation: ErrCodeInvariantViolation,
}

// ErrorRecordFrom builds an ErrorRecord for err, carrying the remote
// details of classified errors.
func ErrorRecordFrom(key string, err error) *ErrorRecord {
	rec := &ErrorRecord{Code: ErrCodeInternal, Message: err.Error(), Key: key}
	var ce *errclass.Error
	if errors.As(err, &ce) {
		rec.Code = kindCodes[ce.Kind]
		rec.Op = ce.Op
		rec.StatusCode = ce.StatusCode
		rec.RequestID = ce.RequestID
	}
	return rec
}

// SummaryRecord closes a command's output.
type SummaryRecord struct {
	Command       string        `json:"command"`
	Entries       int64         `json:"entries"`
	Bytes         int64         `json:"bytes"`
	Deleted       int64         `json:"deleted,omitempty"`
	Aborted       int64         `json:"aborted,omitempty"`
	Errors        int64         `json:"errors"`
	Duration      time.Duration `json:"duration_ns"`
	DurationHuman string        `json:"duration"`
}

// PreflightRecord lists the capability checks run before a command.
type PreflightRecord struct {
	Mode    string                 `json:"mode"`
	Results []PreflightCheckResult `json:"results"`
}

// PreflightCheckResult is one capability check.
type PreflightCheckResult struct {
	Capability string `json:"capability"`
	Allowed    bool   `json:"allowed"`
	Method     string `json:"method,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// NewJobID returns a fresh correlation id for one command run.
func NewJobID() string {
	return uuid.NewString()
}

var ErrWriterClosed = errors.New("writer is closed")

// WriteError wraps a failure to marshal or write a record.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
