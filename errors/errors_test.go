package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapChannelWriteNilIsNil(t *testing.T) {
	assert.NoError(t, WrapChannelWrite(nil))
}

func TestWrapChannelWritePreservesSentinel(t *testing.T) {
	underlying := errors.New("connection reset")
	wrapped := WrapChannelWrite(underlying)
	assert.ErrorIs(t, wrapped, ErrChannelWriteFailed)
	assert.ErrorIs(t, wrapped, underlying)
}

func TestWrapInvalidWireFormatPreservesSentinel(t *testing.T) {
	wrapped := WrapInvalidWireFormat("short read")
	assert.ErrorIs(t, wrapped, ErrInvalidWireFormat)
	assert.Contains(t, wrapped.Error(), "short read")
}
