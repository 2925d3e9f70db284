package header

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Field names every subscriber-side header block carries.
const (
	FieldCallerID   = "callerid"
	FieldTopic      = "topic"
	FieldType       = "type"
	FieldMD5Sum     = "md5sum"
	FieldTCPNoDelay = "tcp_nodelay"
	FieldError      = "error"
)

var (
	ErrBlockTooLarge  = errors.New("header: block too large")
	ErrFieldTooLarge  = errors.New("header: field too large")
	ErrMalformedField = errors.New("header: field missing '=' separator")
	ErrTruncated      = errors.New("header: truncated block")
	ErrEmptyKey       = errors.New("header: empty field key")
)

// Limits constrains header decode/encode memory use.
type Limits struct {
	MaxBlockBytes uint32
	MaxFieldBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxBlockBytes: 1 * 1024 * 1024,
		MaxFieldBytes: 64 * 1024,
	}
}

// EncodeBlock serializes fields as a length-prefixed block:
// uint32 LE total length, then per field uint32 LE length + "key=value".
// Fields are written in sorted key order so the output is deterministic.
func EncodeBlock(fields map[string]string, limits Limits) ([]byte, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	body := make([]byte, 0, 256)
	for _, k := range keys {
		if k == "" {
			return nil, ErrEmptyKey
		}
		field := k + "=" + fields[k]
		if uint32(len(field)) > limits.MaxFieldBytes {
			return nil, fmt.Errorf("%w: %q is %d bytes", ErrFieldTooLarge, k, len(field))
		}
		var flen [4]byte
		binary.LittleEndian.PutUint32(flen[:], uint32(len(field)))
		body = append(body, flen[:]...)
		body = append(body, field...)
	}
	if uint32(len(body)) > limits.MaxBlockBytes {
		return nil, ErrBlockTooLarge
	}

	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out, nil
}

// DecodeBlock parses the body of a header block (the bytes after the
// uint32 total-length prefix). Duplicate keys keep the last value.
func DecodeBlock(body []byte, limits Limits) (map[string]string, error) {
	if uint32(len(body)) > limits.MaxBlockBytes {
		return nil, ErrBlockTooLarge
	}
	fields := make(map[string]string)
	for off := 0; off < len(body); {
		if len(body)-off < 4 {
			return nil, ErrTruncated
		}
		flen := binary.LittleEndian.Uint32(body[off : off+4])
		off += 4
		if flen > limits.MaxFieldBytes {
			return nil, fmt.Errorf("%w: %d bytes", ErrFieldTooLarge, flen)
		}
		if uint32(len(body)-off) < flen {
			return nil, ErrTruncated
		}
		field := string(body[off : off+int(flen)])
		off += int(flen)

		eq := -1
		for i := 0; i < len(field); i++ {
			if field[i] == '=' {
				eq = i
				break
			}
		}
		if eq < 0 {
			return nil, fmt.Errorf("%w: %q", ErrMalformedField, field)
		}
		if eq == 0 {
			return nil, ErrEmptyKey
		}
		fields[field[:eq]] = field[eq+1:]
	}
	return fields, nil
}

// WriteBlock encodes fields and writes the complete block.
func WriteBlock(w io.Writer, fields map[string]string, limits Limits) error {
	buf, err := EncodeBlock(fields, limits)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return nil
}
