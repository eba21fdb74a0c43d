package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripSmallPayloadStaysRaw(t *testing.T) {
	c, err := NewCodec(2)
	require.NoError(t, err)
	defer c.Close()

	data := []byte("tiny")
	frame := c.Encode(data)
	assert.Equal(t, byte(frameRaw), frame[0])

	got, err := c.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRoundTripCompressiblePayload(t *testing.T) {
	c, err := NewCodec(2)
	require.NoError(t, err)
	defer c.Close()

	data := bytes.Repeat([]byte("abcdefgh"), 1024)
	frame := c.Encode(data)
	assert.Equal(t, byte(frameZstd), frame[0])
	assert.Less(t, len(frame), len(data))

	got, err := c.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestIncompressiblePayloadStaysRaw(t *testing.T) {
	c, err := NewCodec(1)
	require.NoError(t, err)
	defer c.Close()

	// High-entropy payload: a pseudo-random walk no codec shrinks.
	data := make([]byte, 4096)
	x := uint32(2463534242)
	for i := range data {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		data[i] = byte(x)
	}

	frame := c.Encode(data)
	got, err := c.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	c, err := NewCodec(2)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Decode(nil)
	assert.Error(t, err)

	_, err = c.Decode([]byte{0x7f, 1, 2, 3})
	assert.Error(t, err)
}

func TestRoundTripEmptyPayload(t *testing.T) {
	c, err := NewCodec(2)
	require.NoError(t, err)
	defer c.Close()

	frame := c.Encode(nil)
	got, err := c.Decode(frame)
	require.NoError(t, err)
	assert.Empty(t, got)
}
