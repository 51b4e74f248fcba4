// Package connectivity tracks whether the client currently has a usable
// path to the server. It is a pure signal source: retry and backoff policy
// live with the consumers (sync orchestrator, real-time channel).
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/notehub/notehub-client/internal/logging"
)

// DefaultProbeTimeout bounds the server reachability check. Platform online
// signals reflect link-layer state only, so a probe against the server is
// the authoritative answer.
const DefaultProbeTimeout = 5 * time.Second

// Monitor exposes a subscribable online/offline boolean and an active
// server reachability probe.
type Monitor struct {
	mu          sync.Mutex
	online      bool
	subscribers map[int]func(bool)
	nextSubID   int

	probeURL string
	client   *http.Client
	log      logging.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithHTTPClient overrides the HTTP client used for reachability probes.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Monitor) { m.client = c }
}

// WithInitialState sets the starting online state. Default is offline until
// a probe or platform signal says otherwise.
func WithInitialState(online bool) Option {
	return func(m *Monitor) { m.online = online }
}

// NewMonitor creates a Monitor probing the given URL.
func NewMonitor(probeURL string, log logging.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		subscribers: make(map[int]func(bool)),
		probeURL:    probeURL,
		client:      &http.Client{},
		log:         log.Component("connectivity"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsOnline returns the last known connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers cb and invokes it immediately with the current state,
// so subscribers never miss the initial value. The returned function
// unsubscribes.
func (m *Monitor) Subscribe(cb func(online bool)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = cb
	current := m.online
	m.mu.Unlock()

	cb(current)

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// SetOnline records a platform connectivity signal. Subscribers are
// notified only on transitions.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), 0, len(m.subscribers))
	for _, cb := range m.subscribers {
		subs = append(subs, cb)
	}
	m.mu.Unlock()

	m.log.Info("connectivity changed", map[string]interface{}{"online": online})
	for _, cb := range subs {
		cb(online)
	}
}

// CheckServerConnectivity issues a lightweight HEAD probe against url and
// returns false on any error or timeout. A zero timeout uses
// DefaultProbeTimeout.
func (m *Monitor) CheckServerConnectivity(ctx context.Context, url string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.log.Debug("server probe failed", map[string]interface{}{"url": url, "error": err.Error()})
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError
}

// StartProbing runs a background loop that probes the server every interval
// and feeds the result into SetOnline. It returns when ctx is cancelled.
// A headless client has no browser online/offline events, so this loop is
// the platform signal.
func (m *Monitor) StartProbing(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Probe once up front rather than waiting a full interval.
	m.SetOnline(m.CheckServerConnectivity(ctx, m.probeURL, 0))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(m.CheckServerConnectivity(ctx, m.probeURL, 0))
		}
	}
}
