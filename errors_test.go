package coverlink

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNetworkError(t *testing.T) {
	assert.True(t, IsNetworkError(fmt.Errorf("%w: refused", ErrConnectionFailed)))
	assert.True(t, IsNetworkError(WrapError("publish", ErrNotConnected)))
	assert.False(t, IsNetworkError(ErrInvalidConfiguration))
	assert.False(t, IsNetworkError(nil))
}

func TestHandleCoverError(t *testing.T) {
	eh := NewErrorHandler("test", nil)

	assert.NoError(t, eh.HandleCoverError("cover", nil))

	err := eh.HandleCoverError("cover", errors.New("unexpected EOF"))
	assert.ErrorIs(t, err, ErrInvalidCover)

	wrapped := fmt.Errorf("decode: %w", ErrInvalidCover)
	assert.Equal(t, wrapped, eh.HandleCoverError("cover", wrapped))
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError("op", nil))
	assert.EqualError(t, WrapError("op", ErrTimeout), "op: operation timeout")
}
