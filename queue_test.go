package rhi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueKeepsDeviceAlive(t *testing.T) {
	dev, backend := newTestDevice(t)
	res, err := dev.CreateBuffer(&BufferDesc{Label: "upload", Size: 8}, nil)
	require.NoError(t, err)

	q := dev.Queue()
	require.NotNil(t, q)

	dev.Release()
	require.True(t, dev.Alive(), "a handed out queue holds the device")
	assert.Same(t, dev, q.Device())

	require.NoError(t, q.WriteBuffer(res, 4, []byte{1, 2, 3, 4}))
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 4}, backend.buffers[0].data)

	q.Release()
	assert.False(t, dev.Alive())
	assert.Nil(t, q.Device())
	assert.ErrorIs(t, q.WriteBuffer(res, 0, []byte{1}), ErrDeviceReleased)
	assert.Equal(t, 1, backend.destroyedBuffers)
}

func TestQueueWithoutPublicReferences(t *testing.T) {
	dev, _ := newTestDevice(t)

	q := dev.Queue()
	require.NotNil(t, q)
	q.Release()
	assert.True(t, dev.Alive(), "the queue alone does not own the device")

	dev.Release()
	assert.False(t, dev.Alive())
	assert.Nil(t, dev.Queue())

	q.Release() // extra releases are ignored
}

func TestQueueRetainRelease(t *testing.T) {
	dev, _ := newTestDevice(t)

	q := dev.Queue()
	require.NotNil(t, q)
	q.Retain()
	dev.Release()

	q.Release()
	assert.True(t, dev.Alive())
	q.Release()
	assert.False(t, dev.Alive())

	// Handing out the queue again is impossible once the device is gone.
	q.Retain()
	assert.Nil(t, q.Device())
}

func TestQueueWriteBufferBounds(t *testing.T) {
	dev, _ := newTestDevice(t)
	q := dev.Queue()
	require.NotNil(t, q)
	defer q.Release()

	res, err := dev.CreateBuffer(&BufferDesc{Label: "small", Size: 4}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, q.WriteBuffer(res, 2, []byte{1, 2, 3}), ErrInvalidArgument)
	assert.ErrorIs(t, q.WriteBuffer(nil, 0, nil), ErrInvalidArgument)
}
