package comm

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// DefaultMaxFrameSize bounds every length prefix read from a stream.
const DefaultMaxFrameSize = 64 << 20

type FrameType string

const (
	FrameHello FrameType = "hello"
	FrameOpen  FrameType = "comm_open"
	FrameMsg   FrameType = "comm_msg"
	FrameClose FrameType = "comm_close"
)

// Frame is the unit exchanged by endpoints, it mirrors the content of the
// Jupyter comm_open, comm_msg and comm_close messages.
type Frame struct {
	Type       FrameType       `json:"type"`
	CommID     string          `json:"comm_id,omitempty"`
	TargetName string          `json:"target_name,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Buffers    [][]byte        `json:"-"`
}

func (f Frame) message() Message {
	return Message{
		Data:     f.Data,
		Metadata: f.Metadata,
		Buffers:  f.Buffers,
	}
}

func (f Frame) size() int {
	n := len(f.Data)
	for _, buf := range f.Buffers {
		n += len(buf)
	}
	return n
}

func (f Frame) clone() Frame {
	out := f
	if f.Data != nil {
		out.Data = append(json.RawMessage(nil), f.Data...)
	}
	if f.Buffers != nil {
		out.Buffers = make([][]byte, len(f.Buffers))
		for i, buf := range f.Buffers {
			out.Buffers[i] = bytes.Clone(buf)
		}
	}
	return out
}

// AppendFrame encodes f at the end of dst.
//
// The layout is a varint-prefixed JSON header, followed by a varint
// buffer count and every buffer, varint-prefixed too.
func AppendFrame(dst []byte, f Frame) ([]byte, error) {
	header, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}

	dst = protowire.AppendVarint(dst, uint64(len(header)))
	dst = append(dst, header...)
	dst = protowire.AppendVarint(dst, uint64(len(f.Buffers)))
	for _, buf := range f.Buffers {
		dst = protowire.AppendVarint(dst, uint64(len(buf)))
		dst = append(dst, buf...)
	}
	return dst, nil
}

// ReadFrame decodes the next frame of r. Length prefixes above maxSize are
// rejected with ErrTooLargeFrame.
func ReadFrame(r *bufio.Reader, maxSize int) (Frame, error) {
	var f Frame
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}

	header, err := readChunk(r, maxSize)
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(header, &f); err != nil {
		return f, fmt.Errorf("%w: invalid frame header: %w", ErrProtocolViolation, err)
	}

	count, err := readVarint(r)
	if err != nil {
		return f, err
	}
	if count > uint64(maxSize) {
		return f, fmt.Errorf("%w: %d buffers", ErrTooLargeFrame, count)
	}

	total := len(header)
	if count > 0 {
		f.Buffers = make([][]byte, 0, min(count, 64))
	}
	for i := uint64(0); i < count; i++ {
		buf, err := readChunk(r, max(maxSize-total, 0))
		if err != nil {
			return f, err
		}
		total += len(buf)
		f.Buffers = append(f.Buffers, buf)
	}
	return f, nil
}

func readChunk(r *bufio.Reader, maxSize int) ([]byte, error) {
	size, err := readVarint(r)
	if err != nil {
		return nil, err
	}
	if size > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLargeFrame, size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

func readVarint(r *bufio.Reader) (uint64, error) {
	// Peek what we can: a varint is terminated by the first byte < 0x80.
	var n int
	for n = 1; n <= binary.MaxVarintLen64; n++ {
		peeked, err := r.Peek(n)
		if err != nil {
			if len(peeked) == 0 || err != io.EOF {
				return 0, err
			}
			return 0, io.ErrUnexpectedEOF
		}
		if peeked[n-1] < 0x80 {
			break
		}
	}
	if n > binary.MaxVarintLen64 {
		return 0, fmt.Errorf("%w: varint overflow", ErrProtocolViolation)
	}

	peeked, _ := r.Peek(n)
	v, consumed := protowire.ConsumeVarint(peeked)
	if err := protowire.ParseError(consumed); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
	if _, err := r.Discard(consumed); err != nil {
		return 0, err
	}
	return v, nil
}
