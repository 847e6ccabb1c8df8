package cacheerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))
}

func TestWrapPreservesIs(t *testing.T) {
	err := Wrap(ErrNotFound, "key %s", "foo")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "key foo")
}

func TestFormattedConstructors(t *testing.T) {
	cases := []struct {
		err    error
		target error
	}{
		{NotFoundf("id %d", 1), ErrNotFound},
		{AlreadyExistsf("id %d", 1), ErrAlreadyExists},
		{InvalidInputf("bad"), ErrInvalidInput},
		{Internalf("boom"), ErrInternal},
		{Unavailablef("down"), ErrUnavailable},
		{Timeoutf("slow"), ErrTimeout},
		{NotSupportedf("nope"), ErrNotSupported},
		{Canceledf("stopped"), ErrCanceled},
		{LockConflictf("held"), ErrLockConflict},
	}
	for _, c := range cases {
		assert.True(t, errors.Is(c.err, c.target))
	}
}

func TestMultipleNil(t *testing.T) {
	assert.NoError(t, Multiple(nil, nil))
}

func TestMultipleSingle(t *testing.T) {
	err := Multiple(nil, ErrNotFound)
	assert.Equal(t, ErrNotFound, err)
}

func TestMultipleCombines(t *testing.T) {
	err := Multiple(ErrNotFound, ErrTimeout)
	require := err.(interface{ Errors() []error })
	assert.Len(t, require.Errors(), 2)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "not found")
	assert.Contains(t, err.Error(), "timed out")
}

func TestAsAndUnwrap(t *testing.T) {
	wrapped := Wrap(ErrTimeout, "op")
	assert.Equal(t, ErrTimeout, errors.Unwrap(wrapped))

	var target error
	assert.True(t, As(wrapped, &target))
}
