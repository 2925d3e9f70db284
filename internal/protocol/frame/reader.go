package frame

import (
	"encoding/binary"
	"net"

	"github.com/danmuck/roslink/internal/protocol/poll"
)

const drainChunk = 32 * 1024

// Reader drains complete frames from a socket without blocking,
// buffering partial frames across calls.
type Reader struct {
	limits  Limits
	pending []byte
}

func NewReader(limits Limits) *Reader {
	return &Reader{limits: limits}
}

// Drain reads whatever bytes are currently available and returns every
// complete frame they finish, at most maxFrames per call (0 means no
// cap). bytes counts wire bytes consumed by the returned frames,
// prefixes included. An error (io.EOF on orderly close included) is
// reported only after any completed frames are returned.
func (r *Reader) Drain(c net.Conn, maxFrames int) (frames [][]byte, bytes uint64, err error) {
	var chunk [drainChunk]byte
	var readErr error
	for {
		n, err := poll.Read(c, chunk[:])
		if n > 0 {
			r.pending = append(r.pending, chunk[:n]...)
		}
		if err != nil {
			readErr = err
			break
		}
		if n < len(chunk) {
			break
		}
		if maxFrames > 0 && r.completeFrames() >= maxFrames {
			break
		}
	}

	for maxFrames == 0 || len(frames) < maxFrames {
		payload, ok, err := r.next()
		if err != nil {
			return frames, bytes, err
		}
		if !ok {
			break
		}
		frames = append(frames, payload)
		bytes += uint64(len(payload)) + 4
	}
	return frames, bytes, readErr
}

// next pops one complete frame off the pending buffer.
func (r *Reader) next() ([]byte, bool, error) {
	if len(r.pending) < 4 {
		return nil, false, nil
	}
	size := binary.LittleEndian.Uint32(r.pending[:4])
	if size > r.limits.MaxPayloadBytes {
		return nil, false, ErrPayloadTooLarge
	}
	total := 4 + int(size)
	if len(r.pending) < total {
		return nil, false, nil
	}
	payload := make([]byte, size)
	copy(payload, r.pending[4:total])
	r.pending = r.pending[total:]
	return payload, true, nil
}

func (r *Reader) completeFrames() int {
	count := 0
	rest := r.pending
	for len(rest) >= 4 {
		size := binary.LittleEndian.Uint32(rest[:4])
		total := 4 + int(size)
		if len(rest) < total {
			break
		}
		count++
		rest = rest[total:]
	}
	return count
}
