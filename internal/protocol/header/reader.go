package header

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/danmuck/roslink/internal/protocol/poll"
)

// Reader accumulates one header block across repeated non-blocking
// resume steps. It never blocks: each Resume reads whatever bytes are
// available and reports whether the block is complete.
type Reader struct {
	limits  Limits
	lenBuf  [4]byte
	lenGot  int
	sized   bool
	body    []byte
	bodyGot int
}

func NewReader(limits Limits) *Reader {
	return &Reader{limits: limits}
}

// Resume advances the parse by one read step. complete is true exactly
// once, when the full block has arrived and parsed; until then fields is
// nil. Any I/O or parse error is terminal for this Reader.
func (r *Reader) Resume(c net.Conn) (fields map[string]string, complete bool, err error) {
	if !r.sized {
		n, err := poll.Read(c, r.lenBuf[r.lenGot:])
		r.lenGot += n
		if err != nil {
			return nil, false, fmt.Errorf("header: read length prefix: %w", err)
		}
		if r.lenGot < len(r.lenBuf) {
			return nil, false, nil
		}
		size := binary.LittleEndian.Uint32(r.lenBuf[:])
		if size > r.limits.MaxBlockBytes {
			return nil, false, ErrBlockTooLarge
		}
		r.body = make([]byte, size)
		r.sized = true
	}

	if r.bodyGot < len(r.body) {
		n, err := poll.Read(c, r.body[r.bodyGot:])
		r.bodyGot += n
		if err != nil {
			return nil, false, fmt.Errorf("header: read block: %w", err)
		}
		if r.bodyGot < len(r.body) {
			return nil, false, nil
		}
	}

	parsed, err := DecodeBlock(r.body, r.limits)
	if err != nil {
		return nil, false, err
	}
	return parsed, true, nil
}
