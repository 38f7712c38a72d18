package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("job not found: %s", "abc")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "job not found: abc")
}

func TestIsNotFoundErrorSurvivesWrapping(t *testing.T) {
	err := Wrap(NewNotFoundError("job not found: %s", "abc"), "status query")
	assert.True(t, IsNotFoundError(err))

	assert.False(t, IsNotFoundError(New("unrelated")))
	assert.False(t, IsNotFoundError(nil))
}

func TestNewInvalidRequestError(t *testing.T) {
	err := NewInvalidRequestError("bad payload")
	assert.True(t, IsInvalidRequestError(err))
	assert.False(t, IsNotFoundError(err))
}
