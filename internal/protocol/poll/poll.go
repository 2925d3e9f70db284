// Package poll provides bounded socket reads for tick-driven readers.
package poll

import (
	"errors"
	"net"
	"time"
)

// Window is how long one bounded read may wait for data. It is kept
// near-zero so a tick never stalls on an idle socket; a deadline in the
// past would make the runtime skip the read entirely even when data is
// buffered.
const Window = time.Millisecond

// Read performs one bounded read from c. A read that hits the deadline
// without an underlying failure reports (n, nil) so callers treat it as
// "no data yet".
func Read(c net.Conn, buf []byte) (int, error) {
	if err := c.SetReadDeadline(time.Now().Add(Window)); err != nil {
		return 0, err
	}
	n, err := c.Read(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return n, nil
		}
		return n, err
	}
	return n, nil
}
