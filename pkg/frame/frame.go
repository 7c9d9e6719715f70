// Package frame is the income channel wire format: a big-endian uint32
// length followed by that many payload bytes. Both the server and the
// worker client use it.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/fd1az/starfire-income/internal/apperror"
)

// HeaderSize is the length of the big-endian uint32 frame prefix.
const HeaderSize = 4

// DefaultMaxSize caps inbound frames unless configured otherwise.
const DefaultMaxSize uint32 = 1 << 20

// Encode prefixes payload with its length.
func Encode(payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, apperror.New(apperror.CodeFrameTooLarge,
			apperror.WithContext(fmt.Sprintf("%d bytes", len(payload))))
	}
	frame := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// Write writes one frame to w.
func Write(w io.Writer, payload []byte) error {
	frame, err := Encode(payload)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// Read reads exactly one frame. maxSize of 0 disables the size check.
//
// A stream that ends before the frame is complete, including inside the
// header, yields INCOMPLETE_FRAME. The cause is io.EOF when the stream
// ended on a frame boundary and io.ErrUnexpectedEOF otherwise. A declared
// length above maxSize yields FRAME_TOO_LARGE without reading the body.
func Read(r io.Reader, maxSize uint32) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, incomplete(err, "header")
	}

	n := binary.BigEndian.Uint32(header[:])
	if maxSize > 0 && n > maxSize {
		return nil, apperror.New(apperror.CodeFrameTooLarge,
			apperror.WithContext(fmt.Sprintf("declared %d bytes, limit %d", n, maxSize)))
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, incomplete(err, fmt.Sprintf("body of %d bytes", n))
	}
	return payload, nil
}

func incomplete(err error, where string) error {
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		// Not a short read: a socket error or close.
		return apperror.Wrap(err, apperror.CodeConnectionClosed, where)
	}
	return apperror.New(apperror.CodeIncompleteFrame, apperror.WithContext(where), apperror.WithCause(err))
}

// IsCleanEOF reports whether err is a stream that ended between frames.
func IsCleanEOF(err error) bool {
	return apperror.HasCode(err, apperror.CodeIncompleteFrame) &&
		errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF)
}
