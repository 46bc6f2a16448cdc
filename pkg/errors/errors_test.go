package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIncludesInternal(t *testing.T) {
	err := Wrap(stdErrors.New("boom"), "failed")
	require.Equal(t, "failed: boom", err.Error())
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", http.StatusBadRequest)
	with := base.WithInternal(stdErrors.New("oops"))

	require.NotSame(t, base, with)
	require.Nil(t, base.Internal)
	require.NotNil(t, with.Internal)
}

func TestIsMatchesCopiesByCode(t *testing.T) {
	err := ErrAlreadyResolved.WithInternal(stdErrors.New("status approved"))
	wrapped := fmt.Errorf("resolve REQ-1: %w", err)

	require.ErrorIs(t, wrapped, ErrAlreadyResolved)
	require.NotErrorIs(t, wrapped, ErrNotFound)
}

func TestWithMessageKeepsCode(t *testing.T) {
	err := ErrStoreUnavailable.WithMessage("employees table offline (%s)", "sqlite")

	require.Equal(t, ErrStoreUnavailable.Code, err.Code)
	require.Equal(t, "employees table offline (sqlite)", err.Message)
	require.Equal(t, "The record store is unavailable", ErrStoreUnavailable.Message)
}

func TestFromError(t *testing.T) {
	require.Same(t, ErrNotFound, FromError(ErrNotFound))

	out := FromError(stdErrors.New("raw"))
	require.Equal(t, ErrInternalServer.Code, out.Code)
	require.NotNil(t, out.Internal)

	require.Nil(t, FromError(nil))
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid payload")
	require.Equal(t, ErrBadRequest.Code, err.Code)
	require.Equal(t, "invalid payload", err.Message)
	require.Equal(t, http.StatusBadRequest, err.StatusCode)
}
