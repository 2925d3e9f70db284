// Package netmock provides a scriptable in-memory net.Conn for tests
// that exercise deadline-bounded reads. Reads drain bytes queued with
// Feed; an empty queue reports a timeout the way an idle socket under a
// read deadline does.
package netmock

import (
	"io"
	"net"
	"sync"
	"time"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "netmock: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type mockAddr struct{}

func (mockAddr) Network() string { return "mock" }
func (mockAddr) String() string  { return "mock" }

// Conn is a one-directional scripted connection: the test feeds the
// read side, the code under test writes into an inspectable buffer.
type Conn struct {
	mu      sync.Mutex
	read    []byte
	written []byte
	eof     bool
	readErr error
	closed  bool
}

func New() *Conn {
	return &Conn{}
}

// Feed queues bytes for subsequent reads.
func (c *Conn) Feed(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.read = append(c.read, b...)
}

// CloseRemote marks an orderly peer close: reads drain the queue, then
// report io.EOF.
func (c *Conn) CloseRemote() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eof = true
}

// FailReads makes reads report err once the queue is drained.
func (c *Conn) FailReads(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// Written returns everything the code under test has written.
func (c *Conn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.written))
	copy(out, c.written)
	return out
}

// Closed reports whether the local side closed the connection.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Read(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.read) > 0 {
		n := copy(b, c.read)
		c.read = c.read[n:]
		return n, nil
	}
	if c.eof {
		return 0, io.EOF
	}
	if c.readErr != nil {
		return 0, c.readErr
	}
	return 0, timeoutError{}
}

func (c *Conn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	c.written = append(c.written, b...)
	return len(b), nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Conn) LocalAddr() net.Addr                { return mockAddr{} }
func (c *Conn) RemoteAddr() net.Addr               { return mockAddr{} }
func (c *Conn) SetDeadline(t time.Time) error      { return nil }
func (c *Conn) SetReadDeadline(t time.Time) error  { return nil }
func (c *Conn) SetWriteDeadline(t time.Time) error { return nil }
