package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorsIsMatchesSentinelByKind(t *testing.T) {
	err := New(KindNotFound, "locations.get", errors.New("doc missing"))

	require.ErrorIs(t, err, ErrNotFound)
	require.NotErrorIs(t, err, ErrRemoteUnavailable)

	wrapped := fmt.Errorf("loading screen: %w", err)
	require.ErrorIs(t, wrapped, ErrNotFound)
	require.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestKindOf_PlainError(t *testing.T) {
	require.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	require.Equal(t, KindUnknown, KindOf(nil))
	require.False(t, Is(nil, KindUnknown))
}

func TestWrap(t *testing.T) {
	require.NoError(t, Wrap("op", KindRemoteUnavailable, nil))

	plain := Wrap("users.get", KindRemoteUnavailable, errors.New("dial tcp: refused"))
	require.True(t, Is(plain, KindRemoteUnavailable))

	kept := Wrap("users.get", KindRemoteUnavailable, ErrUnauthenticated)
	require.True(t, Is(kept, KindUnauthenticated))
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Kind: KindNotFound}, "not_found"},
		{&Error{Kind: KindNotFound, Op: "users.get"}, "users.get: not_found"},
		{&Error{Kind: KindValidationFailed, Err: errors.New("bad email")}, "validation_failed: bad email"},
		{&Error{Kind: KindPartialDeletion, Op: "account.delete", Err: errors.New("x")}, "account.delete: partial_deletion: x"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestEveryKindHasMessage(t *testing.T) {
	kinds := []Kind{
		KindUnauthenticated, KindNotFound, KindRemoteUnavailable,
		KindValidationFailed, KindPartialDeletion, KindConcurrentMutationRejected,
	}
	seen := make(map[string]bool)
	for _, k := range kinds {
		msg := k.Message()
		if msg == KindUnknown.Message() {
			t.Errorf("%s uses the fallback message", k)
		}
		if seen[msg] {
			t.Errorf("%s shares its message with another kind", k)
		}
		seen[msg] = true
	}
}
