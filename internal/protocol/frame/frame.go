package frame

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrShortPrefix     = errors.New("frame: short length prefix")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}

// Write emits one frame: uint32 LE payload length, then the payload.
func Write(w io.Writer, payload []byte, limits Limits) error {
	if uint32(len(payload)) > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// Read consumes one complete frame from r. Intended for tests and
// blocking consumers; tick-driven reception uses Reader.Drain.
func Read(r io.Reader, limits Limits) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortPrefix
		}
		return nil, err
	}
	size := binary.LittleEndian.Uint32(prefix[:])
	if size > limits.MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
