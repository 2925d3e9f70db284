package sub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/roslink/internal/control"
	"github.com/danmuck/roslink/internal/observability"
	"github.com/danmuck/roslink/internal/protocol/frame"
	"github.com/danmuck/roslink/internal/protocol/header"
)

// LinkState enumerates the per-publisher connection lifecycle.
type LinkState int

const (
	StateDisconnected LinkState = iota
	StateTopicRequested
	StateTopicNegotiated
	StateConnecting
	StateConnected
	StateHeaderSent
	StateHeaderReceived
	StateCommunicating
	StateFailed
)

func (s LinkState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateTopicRequested:
		return "topic_requested"
	case StateTopicNegotiated:
		return "topic_negotiated"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateHeaderSent:
		return "header_sent"
	case StateHeaderReceived:
		return "header_received"
	case StateCommunicating:
		return "communicating"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultRetryLimit is the transient-failure budget per link.
const DefaultRetryLimit = 10

// DialFunc opens the data-plane socket.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// LinkConfig carries the per-topic parameters every link shares.
type LinkConfig struct {
	CallerID     string
	Topic        string
	TypeName     string
	Digest       string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	HeaderLimits header.Limits
	FrameLimits  frame.Limits
	Backoff      BackoffConfig
	RetryLimit   int
	Dial         DialFunc
}

func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		DialTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		HeaderLimits: header.DefaultLimits(),
		FrameLimits:  frame.DefaultLimits(),
		Backoff:      DefaultBackoff(),
		RetryLimit:   DefaultRetryLimit,
	}
}

type dialResult struct {
	conn net.Conn
	err  error
}

// LinkStats is one row of the bus-statistics report.
type LinkStats struct {
	RemoteID         string
	BytesReceived    uint64
	MessagesReceived uint64
	DropEstimate     int
	Connected        bool
}

// PublisherLink owns the connection to one remote publisher: it
// negotiates the transport through the peer proxy, performs the wire
// handshake, then drains framed messages in steady state. Every slow
// operation is a pollable step; Step and Drain never block.
type PublisherLink struct {
	uri   string
	proxy *control.PeerProxy
	cfg   LinkConfig

	state        LinkState
	retries      int
	removed      bool
	closedByPeer bool

	transport control.TransportParams
	dialCh    chan dialResult
	conn      net.Conn
	hdr       *header.Reader
	frames    *frame.Reader

	remoteID     string
	remoteDigest string
	bytesRx      uint64
	msgsRx       uint64

	retryAt time.Time
	rng     *rand.Rand
	log     zerolog.Logger
}

func NewPublisherLink(uri string, proxy *control.PeerProxy, cfg LinkConfig, logger zerolog.Logger) *PublisherLink {
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = DefaultRetryLimit
	}
	if cfg.Dial == nil {
		dialer := &net.Dialer{Timeout: cfg.DialTimeout}
		cfg.Dial = dialer.DialContext
	}
	return &PublisherLink{
		uri:   uri,
		proxy: proxy,
		cfg:   cfg,
		state: StateDisconnected,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		log: logger.With().
			Str("topic", cfg.Topic).
			Str("publisher", uri).
			Logger(),
	}
}

func (l *PublisherLink) URI() string        { return l.uri }
func (l *PublisherLink) State() LinkState   { return l.state }
func (l *PublisherLink) Retries() int       { return l.retries }
func (l *PublisherLink) Removed() bool      { return l.removed }
func (l *PublisherLink) ClosedByPeer() bool { return l.closedByPeer }
func (l *PublisherLink) RemoteID() string   { return l.remoteID }

// Step advances the state machine by one non-blocking step.
func (l *PublisherLink) Step(ctx context.Context, now time.Time) {
	if l.removed {
		return
	}
	switch l.state {
	case StateDisconnected:
		l.stepDisconnected(ctx, now)
	case StateTopicRequested:
		l.stepTopicRequested(now)
	case StateTopicNegotiated:
		l.stepTopicNegotiated(ctx, now)
	case StateConnecting:
		l.stepConnecting(now)
	case StateConnected:
		l.stepConnected(now)
	case StateHeaderSent:
		l.stepHeaderSent(now)
	case StateHeaderReceived:
		l.stepHeaderReceived(now)
	case StateCommunicating:
		// Drained by the owning topic.
	case StateFailed:
		// Terminal: budget exhausted or digest mismatch.
	}
}

func (l *PublisherLink) stepDisconnected(ctx context.Context, now time.Time) {
	if now.Before(l.retryAt) {
		return
	}
	err := l.proxy.RequestTopicStart(ctx, l.cfg.Topic, [][]string{{TransportTCPROS}})
	if err != nil {
		if errors.Is(err, control.ErrPrecedingCallNotFinished) {
			// Another link is negotiating through this proxy; wait.
			return
		}
		l.fail(now, err)
		return
	}
	l.state = StateTopicRequested
}

func (l *PublisherLink) stepTopicRequested(now time.Time) {
	busy, err := l.proxy.RequestTopicBusy()
	if err != nil {
		l.fail(now, err)
		return
	}
	if busy {
		return
	}
	failed, err := l.proxy.RequestTopicFailed()
	if err != nil {
		l.fail(now, err)
		return
	}
	if failed {
		callErr := l.proxy.RequestTopicErr()
		l.proxy.RequestTopicReset()
		l.fail(now, callErr)
		return
	}
	params, err := l.proxy.RequestTopicResult()
	l.proxy.RequestTopicReset()
	if err != nil {
		l.fail(now, err)
		return
	}
	if params.Name != TransportTCPROS {
		l.log.Warn().Str("transport", params.Name).Msg("peer negotiated unsupported transport")
		l.scheduleRetry(now)
		return
	}
	l.transport = params
	l.state = StateTopicNegotiated
}

func (l *PublisherLink) stepTopicNegotiated(ctx context.Context, now time.Time) {
	if l.transport.Host == "" || l.transport.Port <= 0 {
		l.fail(now, fmt.Errorf("sub: bad transport endpoint %q:%d", l.transport.Host, l.transport.Port))
		return
	}
	addr := net.JoinHostPort(l.transport.Host, strconv.Itoa(l.transport.Port))
	ch := make(chan dialResult, 1)
	dial := l.cfg.Dial
	go func() {
		conn, err := dial(ctx, "tcp", addr)
		ch <- dialResult{conn: conn, err: err}
	}()
	l.dialCh = ch
	l.state = StateConnecting
}

func (l *PublisherLink) stepConnecting(now time.Time) {
	select {
	case res := <-l.dialCh:
		l.dialCh = nil
		if res.err != nil {
			l.fail(now, res.err)
			return
		}
		l.conn = res.conn
		l.state = StateConnected
	default:
	}
}

func (l *PublisherLink) stepConnected(now time.Time) {
	fields := map[string]string{
		header.FieldCallerID:   l.cfg.CallerID,
		header.FieldTopic:      l.cfg.Topic,
		header.FieldType:       l.cfg.TypeName,
		header.FieldMD5Sum:     l.cfg.Digest,
		header.FieldTCPNoDelay: "1",
	}
	_ = l.conn.SetWriteDeadline(now.Add(l.cfg.WriteTimeout))
	err := header.WriteBlock(l.conn, fields, l.cfg.HeaderLimits)
	_ = l.conn.SetWriteDeadline(time.Time{})
	if err != nil {
		l.fail(now, err)
		return
	}
	l.hdr = header.NewReader(l.cfg.HeaderLimits)
	l.state = StateHeaderSent
}

func (l *PublisherLink) stepHeaderSent(now time.Time) {
	fields, complete, err := l.hdr.Resume(l.conn)
	if err != nil {
		l.fail(now, err)
		return
	}
	if !complete {
		return
	}
	l.hdr = nil
	if msg, ok := fields[header.FieldError]; ok {
		l.fail(now, fmt.Errorf("sub: publisher rejected handshake: %s", msg))
		return
	}
	l.remoteID = fields[header.FieldCallerID]
	l.remoteDigest = fields[header.FieldMD5Sum]
	l.state = StateHeaderReceived
}

func (l *PublisherLink) stepHeaderReceived(now time.Time) {
	if l.remoteDigest != l.cfg.Digest {
		// A digest disagreement is a configuration fault, not a
		// transient failure: no retry will fix it.
		l.log.Error().
			Str("local_md5sum", l.cfg.Digest).
			Str("remote_md5sum", l.remoteDigest).
			Msg("content digest mismatch, disabling link")
		l.retries = l.cfg.RetryLimit
		l.closeConn()
		l.state = StateFailed
		l.removed = true
		return
	}
	l.frames = frame.NewReader(l.cfg.FrameLimits)
	l.state = StateCommunicating
	l.log.Info().Str("remote", l.remoteID).Msg("publisher link established")
}

// Drain pulls whatever complete frames have arrived. Valid only while
// Communicating. An orderly peer close marks the link for removal with
// no retry penalty; other I/O errors go through the retry path.
func (l *PublisherLink) Drain(now time.Time, maxFrames int) (payloads [][]byte, bytes uint64) {
	if l.state != StateCommunicating {
		return nil, 0
	}
	payloads, bytes, err := l.frames.Drain(l.conn, maxFrames)
	l.msgsRx += uint64(len(payloads))
	l.bytesRx += bytes
	if err != nil {
		if errors.Is(err, io.EOF) {
			l.log.Info().Msg("publisher closed connection")
			l.closedByPeer = true
			l.closeConn()
			l.removed = true
			return payloads, bytes
		}
		l.fail(now, err)
	}
	return payloads, bytes
}

// fail runs the failure path: release the socket, then either schedule
// a retry or mark the link for permanent removal.
func (l *PublisherLink) fail(now time.Time, cause error) {
	l.log.Warn().Err(cause).Str("state", l.state.String()).Msg("link failure")
	l.closeConn()
	l.scheduleRetry(now)
}

func (l *PublisherLink) scheduleRetry(now time.Time) {
	l.retries++
	observability.RecordLinkRetry(l.cfg.Topic)
	if l.retries >= l.cfg.RetryLimit {
		l.log.Warn().Int("retries", l.retries).Msg("retry budget exhausted, dropping link")
		l.state = StateFailed
		l.removed = true
		return
	}
	l.state = StateDisconnected
	l.retryAt = now.Add(NextRetryDelay(l.cfg.Backoff, l.retries, l.rng))
}

// Close releases the socket and any pending negotiation slot. The link
// must not be stepped afterwards.
func (l *PublisherLink) Close() {
	if l.state == StateTopicRequested {
		l.proxy.RequestTopicReset()
	}
	l.closeConn()
	l.removed = true
}

func (l *PublisherLink) closeConn() {
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	l.hdr = nil
	l.frames = nil
}

// Stats reports the bus-statistics row for this link. The drop estimate
// is not tracked and reported as -1.
func (l *PublisherLink) Stats() LinkStats {
	return LinkStats{
		RemoteID:         l.remoteID,
		BytesReceived:    l.bytesRx,
		MessagesReceived: l.msgsRx,
		DropEstimate:     -1,
		Connected:        true,
	}
}
