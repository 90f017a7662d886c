package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// ReadChunkSize is how many bytes a connection asks the socket for at once.
const ReadChunkSize = 1024

var (
	// ErrConnectionAborted reports that the peer closed the stream.
	ErrConnectionAborted = errors.New("connection closed")
	// ErrDecompressedSizeMismatch reports a compressed frame whose inflated
	// size differs from the size it declared.
	ErrDecompressedSizeMismatch = errors.New("decompressed size mismatch")
	// ErrFrameTooLarge reports a frame over MaxPacketSize.
	ErrFrameTooLarge = errors.New("frame too large")
)

// FrameReader accumulates stream bytes and splits them into frames.
// Partially received frames stay buffered across calls to Feed.
type FrameReader struct {
	buf        []byte
	compressed bool
}

// NewFrameReader creates a FrameReader with compression disabled.
func NewFrameReader() *FrameReader {
	return &FrameReader{}
}

// SetCompressed switches the inner frame format for frames not yet parsed.
func (f *FrameReader) SetCompressed(on bool) {
	f.compressed = on
}

// Compressed reports whether the compressed frame format is active.
func (f *FrameReader) Compressed() bool {
	return f.compressed
}

// Feed appends freshly read stream bytes.
func (f *FrameReader) Feed(data []byte) {
	f.buf = append(f.buf, data...)
}

// Buffered returns the number of bytes waiting to be parsed.
func (f *FrameReader) Buffered() int {
	return len(f.buf)
}

// Next extracts one frame payload. It returns ok == false with a nil error
// when the buffer does not yet hold a complete frame.
func (f *FrameReader) Next() (payload []byte, ok bool, err error) {
	length, n, err := DecodeVarInt(f.buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read frame length: %w", err)
	}
	if length < 0 || length > MaxPacketSize {
		return nil, false, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, length, MaxPacketSize)
	}
	if len(f.buf) < n+int(length) {
		return nil, false, nil
	}

	body := f.buf[n : n+int(length)]
	rest := f.buf[n+int(length):]

	if f.compressed {
		payload, err = inflateFrame(body)
	} else {
		payload = append([]byte(nil), body...)
	}

	// Drop the consumed frame, keeping any trailing bytes.
	f.buf = append(f.buf[:0], rest...)
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func inflateFrame(body []byte) ([]byte, error) {
	dataLength, n, err := DecodeVarInt(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read data length: %w", err)
	}
	inner := body[n:]
	if dataLength == 0 {
		return append([]byte(nil), inner...), nil
	}
	if dataLength < 0 || dataLength > MaxPacketSize {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrFrameTooLarge, dataLength)
	}

	zr, err := zlib.NewReader(bytes.NewReader(inner))
	if err != nil {
		return nil, fmt.Errorf("failed to open zlib stream: %w", err)
	}
	defer zr.Close()

	out := make([]byte, 0, dataLength)
	w := bytes.NewBuffer(out)
	// Read one byte past the declared size so oversized streams are caught.
	if _, err := io.Copy(w, io.LimitReader(zr, int64(dataLength)+1)); err != nil {
		return nil, fmt.Errorf("failed to inflate frame: %w", err)
	}
	if w.Len() != int(dataLength) {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDecompressedSizeMismatch, dataLength, w.Len())
	}
	return w.Bytes(), nil
}

// EncodeFrame wraps payload in a frame. With compression enabled, payloads
// of at least threshold bytes are zlib-compressed and smaller ones are sent
// with a zero data length.
func EncodeFrame(payload []byte, compressed bool, threshold int) ([]byte, error) {
	if !compressed {
		out := make([]byte, 0, len(payload)+MaxVarIntLen)
		out = AppendVarInt(out, int32(len(payload)))
		return append(out, payload...), nil
	}

	var inner []byte
	if len(payload) >= threshold {
		var zbuf bytes.Buffer
		zw := zlib.NewWriter(&zbuf)
		if _, err := zw.Write(payload); err != nil {
			return nil, fmt.Errorf("failed to compress frame: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("failed to finish zlib stream: %w", err)
		}
		inner = AppendVarInt(make([]byte, 0, zbuf.Len()+MaxVarIntLen), int32(len(payload)))
		inner = append(inner, zbuf.Bytes()...)
	} else {
		inner = AppendVarInt(make([]byte, 0, len(payload)+1), 0)
		inner = append(inner, payload...)
	}

	out := make([]byte, 0, len(inner)+MaxVarIntLen)
	out = AppendVarInt(out, int32(len(inner)))
	return append(out, inner...), nil
}
