// Package compression implements the inline-blob codec for the legacy
// backend. Blobs are stored in the shared store behind a one-byte frame tag
// so a reader can always tell a raw frame from a compressed one.
package compression

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Frame tags.
const (
	frameRaw  = 0x00
	frameZstd = 0x01
)

// minCompressSize is the payload size below which compression is not worth
// the frame overhead.
const minCompressSize = 128

// Codec compresses blob payloads with zstd, falling back to raw frames for
// small or incompressible payloads. Safe for concurrent use.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec builds a codec at the given zstd speed level (1 fastest,
// 2 default, 3 better compression).
func NewCodec(level int) (*Codec, error) {
	encoderLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encoderLevel = zstd.SpeedFastest
	case 3:
		encoderLevel = zstd.SpeedBetterCompression
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	return &Codec{encoder: encoder, decoder: decoder}, nil
}

// Encode frames data, compressed when that actually shrinks it.
func (c *Codec) Encode(data []byte) []byte {
	if len(data) >= minCompressSize {
		compressed := c.encoder.EncodeAll(data, make([]byte, 1, len(data)))
		if len(compressed) < len(data)+1 {
			compressed[0] = frameZstd
			return compressed
		}
	}
	out := make([]byte, len(data)+1)
	copy(out[1:], data)
	out[0] = frameRaw
	return out
}

// Decode unframes a payload produced by Encode.
func (c *Codec) Decode(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty blob frame")
	}
	switch frame[0] {
	case frameRaw:
		return frame[1:], nil
	case frameZstd:
		return c.decoder.DecodeAll(frame[1:], nil)
	default:
		return nil, fmt.Errorf("unknown blob frame tag 0x%02x", frame[0])
	}
}

// Close releases encoder and decoder resources.
func (c *Codec) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}
