package control

import (
	"sync"

	"github.com/rs/zerolog"
)

// DialFunc builds a Caller for one remote control endpoint.
type DialFunc func(uri string) (Caller, error)

// HTTPDial is the default DialFunc.
func HTTPDial(uri string) (Caller, error) {
	return NewHTTPCaller(uri)
}

type cacheEntry struct {
	proxy *PeerProxy
	refs  int
}

// ProxyCache hands out one shared PeerProxy per remote URI. Entries are
// refcounted: a proxy is dropped when the last holder releases it. The
// cache is constructed once and passed into whatever needs peer
// proxies; there is no ambient global.
type ProxyCache struct {
	callerID string
	dial     DialFunc
	log      zerolog.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

func NewProxyCache(callerID string, dial DialFunc, logger zerolog.Logger) *ProxyCache {
	if dial == nil {
		dial = HTTPDial
	}
	return &ProxyCache{
		callerID: callerID,
		dial:     dial,
		log:      logger.With().Str("component", "proxy_cache").Logger(),
		entries:  make(map[string]*cacheEntry),
	}
}

// Acquire returns the proxy for uri, creating it lazily, and takes a
// reference.
func (c *ProxyCache) Acquire(uri string) (*PeerProxy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[uri]; ok {
		entry.refs++
		return entry.proxy, nil
	}
	caller, err := c.dial(uri)
	if err != nil {
		return nil, err
	}
	proxy := NewPeerProxy(uri, c.callerID, caller, c.log)
	c.entries[uri] = &cacheEntry{proxy: proxy, refs: 1}
	c.log.Debug().Str("uri", uri).Msg("peer proxy created")
	return proxy, nil
}

// Release drops one reference; the entry is destroyed at zero.
func (c *ProxyCache) Release(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[uri]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(c.entries, uri)
		c.log.Debug().Str("uri", uri).Msg("peer proxy destroyed")
	}
}

// Len reports the number of live proxies.
func (c *ProxyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
