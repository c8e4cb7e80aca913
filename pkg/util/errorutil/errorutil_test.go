package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToDomainError(t *testing.T) {
	require.Nil(t, ToDomainError(nil))

	base := NewDomainError("NO_SESSION", "no active session", http.StatusUnauthorized, nil)
	wrapped := fmt.Errorf("handler: %w", base)
	require.Same(t, base, ToDomainError(wrapped))

	internal := ToDomainError(errors.New("boom"))
	require.Equal(t, "INTERNAL_ERROR", internal.Code)
	require.Equal(t, http.StatusInternalServerError, internal.HTTPStatus)
}

func TestWrapKeepsOriginalUntouched(t *testing.T) {
	cause := errors.New("cause")
	base := NewDomainError("X", "msg", http.StatusBadRequest, nil)
	wrapped := base.Wrap(cause)

	require.Nil(t, base.Err)
	require.ErrorIs(t, wrapped, cause)
	require.Equal(t, "msg: cause", wrapped.Error())
}
