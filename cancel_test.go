package connio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCancelControllerFirstCauseSticks(t *testing.T) {
	c := NewCancelController()
	c.Cancel(errors.New("first"))
	c.Cancel(errors.New("second"))
	require.EqualError(t, c.Signal().Cause(), "first")
}

func TestCancelControllerDefaultsNilCause(t *testing.T) {
	c := NewCancelController()
	c.Cancel(nil)
	require.ErrorIs(t, c.Signal().Cause(), ErrThreadClosed)
}

func TestCancelSignalOnCancelBeforeFire(t *testing.T) {
	c := NewCancelController()
	var got error
	c.Signal().OnCancel(func(cause error) { got = cause })
	require.Nil(t, got)

	cause := errors.New("boom")
	c.Cancel(cause)
	require.Equal(t, cause, got)
}

func TestCancelSignalOnCancelAfterFireRunsImmediately(t *testing.T) {
	c := NewCancelController()
	cause := errors.New("boom")
	c.Cancel(cause)

	var got error
	c.Signal().OnCancel(func(cause error) { got = cause })
	require.Equal(t, cause, got)
}

func TestCancelSignalThrowIfCanceled(t *testing.T) {
	c := NewCancelController()
	require.NoError(t, c.Signal().ThrowIfCanceled())

	c.Cancel(errors.New("boom"))
	err := c.Signal().ThrowIfCanceled()
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
}
