package sub

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/roslink/internal/control"
	"github.com/danmuck/roslink/internal/observability"
)

var (
	ErrTopicName = errors.New("sub: topic name required")
	ErrTopicType = errors.New("sub: topic message type required")
)

// TopicConfig describes one subscription.
type TopicConfig struct {
	Name     string
	Type     MessageType
	Latching bool
	// DrainLimit caps frames pulled per link per tick; 0 is unlimited.
	DrainLimit int
	Link       LinkConfig
}

// TopicStats is the external bus-statistics report for one topic.
type TopicStats struct {
	Topic string
	Links []LinkStats
}

// Topic owns the publisher links for one subscription. The host calls
// Tick repeatedly; each tick advances every link one step, drains
// steady-state links, and dispatches the collected batch to listeners.
type Topic struct {
	name       string
	msgType    MessageType
	latching   bool
	drainLimit int
	linkCfg    LinkConfig
	cache      *control.ProxyCache

	links map[string]*PublisherLink
	// order preserves link registration order for deterministic
	// iteration; cross-link message ordering is otherwise unspecified.
	order     []string
	listeners []Listener
	buf       []Message
	log       zerolog.Logger
}

func NewTopic(cfg TopicConfig, cache *control.ProxyCache, logger zerolog.Logger) (*Topic, error) {
	if cfg.Name == "" {
		return nil, ErrTopicName
	}
	if cfg.Type == nil {
		return nil, ErrTopicType
	}
	linkCfg := cfg.Link
	linkCfg.Topic = cfg.Name
	linkCfg.TypeName = cfg.Type.Name()
	linkCfg.Digest = cfg.Type.MD5Sum()
	return &Topic{
		name:       cfg.Name,
		msgType:    cfg.Type,
		latching:   cfg.Latching,
		drainLimit: cfg.DrainLimit,
		linkCfg:    linkCfg,
		cache:      cache,
		links:      make(map[string]*PublisherLink),
		log:        logger.With().Str("topic", cfg.Name).Logger(),
	}, nil
}

func (t *Topic) Name() string       { return t.name }
func (t *Topic) TypeName() string   { return t.msgType.Name() }
func (t *Topic) NumPublishers() int { return len(t.links) }

// PublisherURIs returns the URIs of live links in registration order.
func (t *Topic) PublisherURIs() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Link exposes one link for inspection.
func (t *Topic) Link(uri string) (*PublisherLink, bool) {
	link, ok := t.links[uri]
	return link, ok
}

// Messages returns the current buffer contents.
func (t *Topic) Messages() []Message {
	out := make([]Message, len(t.buf))
	copy(out, t.buf)
	return out
}

// UpdatePublishers reconciles the link set against the registry's
// current publisher list: unseen URIs get fresh links, links for
// vanished URIs are destroyed. With connectNow the new membership is
// driven forward immediately instead of waiting for the next tick.
func (t *Topic) UpdatePublishers(ctx context.Context, uris []string, connectNow bool) {
	want := make(map[string]bool, len(uris))
	for _, uri := range uris {
		want[uri] = true
	}
	for _, uri := range t.PublisherURIs() {
		if !want[uri] {
			t.destroyLink(uri, "publisher withdrawn")
		}
	}
	for _, uri := range uris {
		if _, ok := t.links[uri]; ok {
			continue
		}
		proxy, err := t.cache.Acquire(uri)
		if err != nil {
			t.log.Error().Err(err).Str("publisher", uri).Msg("cannot reach publisher control endpoint")
			continue
		}
		t.links[uri] = NewPublisherLink(uri, proxy, t.linkCfg, t.log)
		t.order = append(t.order, uri)
		t.log.Debug().Str("publisher", uri).Msg("publisher link created")
	}
	if connectNow {
		t.stepLinks(ctx, time.Now())
	}
}

// Tick is one cooperative scheduling step: advance links, drain
// steady-state links, dispatch the batch.
func (t *Topic) Tick(ctx context.Context, now time.Time) {
	t.stepLinks(ctx, now)

	if !t.latching {
		t.buf = nil
	}
	fresh := 0
	for _, uri := range t.PublisherURIs() {
		link := t.links[uri]
		if link.State() != StateCommunicating {
			continue
		}
		payloads, bytes := link.Drain(now, t.drainLimit)
		if len(payloads) > 0 {
			observability.RecordFrames(t.name, len(payloads), bytes)
		}
		for _, payload := range payloads {
			msg, err := t.msgType.Unmarshal(payload)
			if err != nil {
				t.log.Warn().Err(err).Str("publisher", uri).Msg("undecodable payload dropped")
				continue
			}
			// Latched content survives idle ticks and is replaced
			// wholesale when a fresh batch starts arriving.
			if t.latching && fresh == 0 {
				t.buf = nil
			}
			t.buf = append(t.buf, msg)
			fresh++
		}
		if link.Removed() {
			t.destroyLink(uri, "closed by publisher")
		}
	}

	t.dispatch(t.buf[len(t.buf)-fresh:])

	streaming := 0
	for _, link := range t.links {
		if link.State() == StateCommunicating {
			streaming++
		}
	}
	observability.SetLinkCounts(t.name, len(t.links), streaming)
}

// stepLinks advances every link one step and reaps links marked for
// permanent removal.
func (t *Topic) stepLinks(ctx context.Context, now time.Time) {
	for _, uri := range t.PublisherURIs() {
		link := t.links[uri]
		link.Step(ctx, now)
		if link.Removed() && link.State() == StateFailed {
			t.destroyLink(uri, "link permanently failed")
		}
	}
}

// dispatch invokes every listener, in registration order, once per
// message, in arrival order. A listener failure is reported and never
// blocks the rest of the batch.
func (t *Topic) dispatch(batch []Message) {
	if len(batch) == 0 || len(t.listeners) == 0 {
		return
	}
	delivered, failed := 0, 0
	for _, msg := range batch {
		for _, listener := range t.listeners {
			if err := listener.Deliver(msg); err != nil {
				t.log.Error().Err(err).Msg("listener failed")
				failed++
				continue
			}
			delivered++
		}
	}
	observability.RecordDispatch(t.name, delivered, failed)
}

func (t *Topic) destroyLink(uri, reason string) {
	link, ok := t.links[uri]
	if !ok {
		return
	}
	link.Close()
	t.cache.Release(uri)
	delete(t.links, uri)
	for i, u := range t.order {
		if u == uri {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.log.Info().Str("publisher", uri).Str("reason", reason).Msg("publisher link destroyed")
}

// AddListener registers a delivery capability; registering the same
// capability twice is rejected.
func (t *Topic) AddListener(l Listener) error {
	if l == nil {
		return ErrNilListener
	}
	for _, existing := range t.listeners {
		if sameListener(existing, l) {
			return ErrListenerRegistered
		}
	}
	t.listeners = append(t.listeners, l)
	return nil
}

// RemoveListener unregisters a capability; it reports whether anything
// was removed.
func (t *Topic) RemoveListener(l Listener) bool {
	for i, existing := range t.listeners {
		if sameListener(existing, l) {
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// GetStats reports per-link reception statistics for links in steady
// state.
func (t *Topic) GetStats() TopicStats {
	stats := TopicStats{Topic: t.name}
	for _, uri := range t.order {
		link := t.links[uri]
		if link.State() != StateCommunicating {
			continue
		}
		stats.Links = append(stats.Links, link.Stats())
	}
	return stats
}

// Close destroys every link.
func (t *Topic) Close() {
	for _, uri := range t.PublisherURIs() {
		t.destroyLink(uri, "topic closed")
	}
}
