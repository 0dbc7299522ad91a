package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"chatcall/backend/internal/apperr"
	"chatcall/backend/internal/gateway"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := apperr.New(apperr.Validation, "op", "bad %s", "input")
	wrapped := fmt.Errorf("handler: %w", err)

	assert.ErrorIs(t, wrapped, apperr.ErrValidation)
	assert.NotErrorIs(t, wrapped, apperr.ErrNotFound)
	assert.Equal(t, apperr.Validation, apperr.KindOf(wrapped))
	assert.Equal(t, "bad input", apperr.PublicMessage(wrapped))
	assert.Equal(t, "op: bad input", err.Error())
}

func TestError_KeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := apperr.Wrap(apperr.BackendUnavailable, "store.Get", cause, "storage backend unavailable")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage backend unavailable", apperr.PublicMessage(err))
	assert.Contains(t, err.Error(), "dial tcp: refused")
}

func TestKindOf_Foreign(t *testing.T) {
	assert.Zero(t, apperr.KindOf(errors.New("plain")))
	assert.Equal(t, "internal error", apperr.PublicMessage(errors.New("plain")))
}

func TestFromGateway(t *testing.T) {
	assert.NoError(t, apperr.FromGateway("op", "chat", nil))

	cases := []struct {
		in   error
		want error
	}{
		{fmt.Errorf("%w: chats/x", gateway.ErrNotFound), apperr.ErrNotFound},
		{fmt.Errorf("%w: bad limit", gateway.ErrInvalid), apperr.ErrValidation},
		{fmt.Errorf("%w: timeout", gateway.ErrUnavailable), apperr.ErrBackendUnavailable},
		{gateway.ErrUnauthorized, apperr.ErrBackendUnavailable},
		{gateway.ErrConflict, apperr.ErrBackendUnavailable},
	}
	for _, tc := range cases {
		err := apperr.FromGateway("op", "chat", tc.in)
		assert.ErrorIs(t, err, tc.want, tc.in.Error())
		assert.ErrorIs(t, err, tc.in)
	}

	assert.Equal(t, "chat not found",
		apperr.PublicMessage(apperr.FromGateway("op", "chat", gateway.ErrNotFound)))
}
