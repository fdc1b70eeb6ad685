package errclass

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/nimbusfs/pkg/provider"
	"github.com/3leaps/nimbusfs/pkg/provider/providertest"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{301, Redirect},
		{401, AccessDenied},
		{403, AccessDenied},
		{404, NotFound},
		{410, NotFound},
		{409, Conflict},
		{416, RangeError},
		{400, Generic},
		{429, Generic},
		{500, Generic},
		{503, Generic},
		{302, Generic},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, KindForStatus(tt.status))
		})
	}
}

func TestClassify_PreservesRemoteDetails(t *testing.T) {
	src := providertest.Status("DeleteObject", "a/b", 403, "AccessDenied")

	err := Classify("deleteObject", "a/b", src)

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, AccessDenied, ce.Kind)
	assert.Equal(t, 403, ce.StatusCode)
	assert.Equal(t, "AccessDenied", ce.Code)
	assert.Equal(t, "AccessDenied", ce.Message)
	assert.Equal(t, "req-AccessDenied", ce.RequestID)
	assert.Equal(t, "deleteObject", ce.Op)
	assert.Equal(t, "a/b", ce.Path)
	assert.Equal(t,
		"deleteObject on a/b: status [403] - request id [req-AccessDenied] - error code [AccessDenied] - error message [AccessDenied]",
		err.Error())

	assert.True(t, IsAccessDenied(err))
	assert.False(t, Retryable(err))
	assert.ErrorIs(t, err, src)
}

func TestClassify_Retryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
	}{
		{"503", providertest.Transient("List", ""), Generic, true},
		{"500", providertest.Status("List", "", 500, "InternalError"), Generic, true},
		{"network", errors.New("connection reset by peer"), Generic, true},
		{"404", providertest.NotFound("Head", "k"), NotFound, false},
		{"410", providertest.Status("Head", "k", 410, "Gone"), NotFound, false},
		{"409", providertest.Status("Put", "k", 409, "Conflict"), Conflict, false},
		{"416", providertest.Status("Get", "k", 416, "InvalidRange"), RangeError, false},
		{"301", providertest.Status("List", "", 301, "PermanentRedirect"), Redirect, false},
		{"401", providertest.Status("List", "", 401, "Unauthorized"), AccessDenied, false},
		{"sentinel not found", &provider.ProviderError{Op: "Head", Err: provider.ErrNotFound}, NotFound, false},
		{"sentinel bucket", &provider.ProviderError{Op: "List", Err: provider.ErrBucketNotFound}, NotFound, false},
		{"sentinel credentials", provider.ErrInvalidCredentials, AccessDenied, false},
		{"sentinel conflict", provider.ErrConflict, Conflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("op", "path", tt.err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, tt.retryable, Retryable(err))
		})
	}
}

func TestClassify_PassThrough(t *testing.T) {
	assert.Nil(t, Classify("op", "p", nil))

	already := NewInvalidRequest("deleteObject", "/", "cannot delete root")
	assert.Same(t, already, Classify("other", "x", already))

	assert.Equal(t, context.Canceled, Classify("op", "p", context.Canceled))
	wrapped := fmt.Errorf("list: %w", context.DeadlineExceeded)
	assert.Equal(t, wrapped, Classify("op", "p", wrapped))
	assert.False(t, Retryable(context.Canceled))
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewInvariantViolation("submit", "", "task rejected"))

	assert.True(t, IsInvariantViolation(err))
	assert.False(t, IsInvalidRequest(err))
	assert.Equal(t, InvariantViolation, KindOf(err))
	assert.Equal(t, "submit on : invariant violation: task rejected", errors.Unwrap(err).Error())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "not found", NotFound.String())
	assert.Equal(t, "generic", Generic.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, Generic, KindOf(errors.New("plain")))
	assert.False(t, Retryable(errors.New("plain")))
}
