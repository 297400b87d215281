package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the largest payload a peer may send. Frames above this are
// rejected before allocation to prevent memory exhaustion from corrupt or
// hostile length prefixes.
const MaxFrameSize = 1 << 20 // 1MB

// ErrFrameTooLarge is returned when a frame header announces a payload
// larger than MaxFrameSize.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")

// ReadFrame reads one length-prefixed frame from r and returns its payload.
//
// The wire format is a 4-byte big-endian payload length followed by the
// payload bytes. EOF errors from the header read are returned unwrapped so
// callers can detect a normal client disconnect.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, errors.New("protocol: empty frame")
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes payload to w as a single length-prefixed frame.
//
// The header and payload are written with one Write call so a frame is never
// interleaved with another writer on the same connection as long as callers
// serialize access to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)

	_, err := w.Write(buf)
	return err
}
