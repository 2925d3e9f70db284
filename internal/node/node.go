// Package node assembles the subscriber runtime: the set of topics, the
// proxy cache and master client they share, the spin loop that drives
// them, and the control HTTP API other nodes and the master talk to.
package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danmuck/roslink/internal/config"
	"github.com/danmuck/roslink/internal/control"
	"github.com/danmuck/roslink/internal/sub"
)

var (
	ErrTopicExists  = errors.New("node: topic already subscribed")
	ErrTopicUnknown = errors.New("node: topic not subscribed")
)

type Node struct {
	name         string
	pid          int
	cfg          config.NodeConfig
	cache        *control.ProxyCache
	master       *control.MasterProxy
	spinInterval time.Duration
	started      time.Time

	// mu serializes topic mutation between the spin loop and the
	// control API handlers; topics themselves are not safe for
	// concurrent use.
	mu     sync.Mutex
	topics map[string]*sub.Topic

	srv      *http.Server
	shutdown chan struct{}
	once     sync.Once
	log      zerolog.Logger
}

// Deps injects the control-plane collaborators; zero values select the
// HTTP defaults.
type Deps struct {
	MasterCaller control.Caller
	PeerDial     control.DialFunc
}

func New(cfg config.NodeConfig, logger zerolog.Logger) (*Node, error) {
	return NewWithDeps(cfg, Deps{}, logger)
}

func NewWithDeps(cfg config.NodeConfig, deps Deps, logger zerolog.Logger) (*Node, error) {
	if err := config.ValidateNodeConfig(cfg); err != nil {
		return nil, err
	}
	name := cfg.Name
	if cfg.Anonymous {
		name = fmt.Sprintf("%s_%s", cfg.Name, uuid.NewString()[:8])
	}

	masterCaller := deps.MasterCaller
	if masterCaller == nil {
		caller, err := control.NewHTTPCaller(cfg.MasterURI)
		if err != nil {
			return nil, err
		}
		masterCaller = caller
	}

	n := &Node{
		name:         name,
		pid:          os.Getpid(),
		cfg:          cfg,
		cache:        control.NewProxyCache(name, deps.PeerDial, logger),
		master:       control.NewMasterProxy(masterCaller, name, logger),
		spinInterval: time.Duration(cfg.SpinIntervalMS) * time.Millisecond,
		started:      time.Now(),
		topics:       make(map[string]*sub.Topic),
		shutdown:     make(chan struct{}),
		log:          logger.With().Str("node", name).Logger(),
	}
	n.srv = &http.Server{Addr: cfg.Addr, Handler: n.buildRouter()}
	return n, nil
}

func (n *Node) Name() string { return n.name }
func (n *Node) Pid() int     { return n.pid }

// AdvertiseURI is the control endpoint handed to the master so it can
// push publisher updates back.
func (n *Node) AdvertiseURI() string {
	if n.cfg.AdvertiseURI != "" {
		return n.cfg.AdvertiseURI
	}
	return "http://" + n.cfg.Addr
}

// Subscribe creates the topic, registers it with the master, and seeds
// the link set from the returned publisher list.
func (n *Node) Subscribe(ctx context.Context, topicCfg sub.TopicConfig) (*sub.Topic, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.topics[topicCfg.Name]; ok {
		return nil, ErrTopicExists
	}
	if topicCfg.Link.CallerID == "" {
		topicCfg.Link.CallerID = n.name
	}
	topic, err := sub.NewTopic(topicCfg, n.cache, n.log)
	if err != nil {
		return nil, err
	}
	uris, err := n.master.RegisterSubscriber(ctx, topicCfg.Name, topicCfg.Type.Name(), n.AdvertiseURI())
	if err != nil {
		return nil, fmt.Errorf("node: register subscriber for %s: %w", topicCfg.Name, err)
	}
	topic.UpdatePublishers(ctx, uris, false)
	n.topics[topicCfg.Name] = topic
	n.log.Info().Str("topic", topicCfg.Name).Int("publishers", len(uris)).Msg("subscribed")
	return topic, nil
}

// Unsubscribe withdraws the registration and destroys the topic's
// links. A master failure is logged, not fatal: local teardown always
// completes.
func (n *Node) Unsubscribe(ctx context.Context, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	topic, ok := n.topics[name]
	if !ok {
		return ErrTopicUnknown
	}
	if err := n.master.UnregisterSubscriber(ctx, name, n.AdvertiseURI()); err != nil {
		n.log.Warn().Err(err).Str("topic", name).Msg("unregister failed")
	}
	topic.Close()
	delete(n.topics, name)
	n.log.Info().Str("topic", name).Msg("unsubscribed")
	return nil
}

// SpinOnce ticks every topic exactly once.
func (n *Node) SpinOnce(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now()
	for _, name := range n.topicNamesLocked() {
		n.topics[name].Tick(ctx, now)
	}
}

// Run serves the control API and spins until the context is cancelled
// or a remote shutdown request arrives.
func (n *Node) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := n.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	n.log.Info().Str("addr", n.cfg.Addr).Msg("control API listening")

	ticker := time.NewTicker(n.spinInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return n.stop(context.WithoutCancel(ctx))
		case <-n.shutdown:
			return n.stop(context.WithoutCancel(ctx))
		case err := <-errCh:
			return err
		case <-ticker.C:
			n.SpinOnce(ctx)
		}
	}
}

// RequestShutdown triggers the same orderly exit as the shutdown
// control call.
func (n *Node) RequestShutdown(reason string) {
	n.once.Do(func() {
		n.log.Info().Str("reason", reason).Msg("shutdown requested")
		close(n.shutdown)
	})
}

func (n *Node) stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = n.srv.Shutdown(shutdownCtx)

	n.mu.Lock()
	names := n.topicNamesLocked()
	n.mu.Unlock()
	for _, name := range names {
		_ = n.Unsubscribe(ctx, name)
	}
	return nil
}

// Topic exposes one subscription for inspection.
func (n *Node) Topic(name string) (*sub.Topic, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	topic, ok := n.topics[name]
	return topic, ok
}

func (n *Node) topicNamesLocked() []string {
	names := make([]string, 0, len(n.topics))
	for name := range n.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
