package providertest

import (
	"github.com/3leaps/nimbusfs/pkg/provider"
)

// Status returns an error shaped like a provider service failure.
func Status(op, key string, status int, code string) error {
	return remote(op, key, status, code, nil)
}

// NotFound returns a 404 NoSuchKey failure.
func NotFound(op, key string) error {
	return remote(op, key, 404, "NoSuchKey", provider.ErrNotFound)
}

// Transient returns a 503 failure, which callers retry.
func Transient(op, key string) error {
	return remote(op, key, 503, "ServiceUnavailable", provider.ErrProviderUnavailable)
}

// Forbidden returns a 403 failure, which callers never retry.
func Forbidden(op, key string) error {
	return remote(op, key, 403, "AccessDenied", provider.ErrAccessDenied)
}

func remote(op, key string, status int, code string, sentinel error) error {
	return &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderMemory,
		Key:      key,
		Err: &provider.RemoteError{
			StatusCode: status,
			Code:       code,
			Message:    code,
			RequestID:  "req-" + code,
			Err:        sentinel,
		},
	}
}
