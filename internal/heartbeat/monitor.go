// Package heartbeat probes connections with application-level pings and closes
// the ones that stop answering.
package heartbeat

import (
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-partynight/internal/stats"
	"github.com/npezzotti/go-partynight/internal/types"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// Target is a connection the monitor can probe. Close must go through the
// transport's regular close path so the disconnect is handled once.
type Target interface {
	ID() string
	Send(msg *types.ServerMessage) bool
	Close() error
}

type state struct {
	target   Target
	lastPing time.Time
	// seq identifies the ping the pending timeout belongs to
	seq     uint64
	timeout *time.Timer
	stop    chan struct{}
	stopped bool
}

type Monitor struct {
	mu       sync.Mutex
	log      *log.Logger
	stats    stats.StatsProvider
	conns    map[string]*state
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

func NewMonitor(logger *log.Logger, su stats.StatsProvider, interval, timeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Monitor{
		log:      logger,
		stats:    su,
		conns:    make(map[string]*state),
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Register starts probing t. A target already registered under the same id
// has its previous probe and timeout cancelled first.
func (m *Monitor) Register(t Target) {
	st := &state{
		target: t,
		stop:   make(chan struct{}),
	}

	m.mu.Lock()
	if old, ok := m.conns[t.ID()]; ok {
		m.cancel(old)
	}
	m.conns[t.ID()] = st
	m.mu.Unlock()

	go m.probe(st)
}

// Unregister stops probing the connection and forgets it.
func (m *Monitor) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.conns[id]; ok {
		m.cancel(st)
		delete(m.conns, id)
	}
}

// Pong records a reply from the connection and clears the pending timeout.
func (m *Monitor) Pong(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.conns[id]
	if !ok {
		return
	}

	if st.timeout != nil {
		st.timeout.Stop()
		st.timeout = nil
	}
}

// Registered reports whether id is currently being probed.
func (m *Monitor) Registered(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.conns[id]
	return ok
}

// LastPing returns when id was last pinged; the zero time means never.
func (m *Monitor) LastPing(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.conns[id]
	if !ok {
		return time.Time{}, false
	}
	return st.lastPing, true
}

// Stop cancels every probe.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, st := range m.conns {
		m.cancel(st)
		delete(m.conns, id)
	}
}

// stopProbe and cancel must be called with m.mu held.
func (m *Monitor) stopProbe(st *state) {
	if !st.stopped {
		close(st.stop)
		st.stopped = true
	}
}

func (m *Monitor) cancel(st *state) {
	m.stopProbe(st)
	if st.timeout != nil {
		st.timeout.Stop()
		st.timeout = nil
	}
}

func (m *Monitor) probe(st *state) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-st.stop:
			return
		case <-ticker.C:
			m.ping(st)
		}
	}
}

func (m *Monitor) ping(st *state) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conns[st.target.ID()] != st {
		return
	}

	// still waiting on the previous ping
	if st.timeout != nil {
		return
	}

	st.seq++
	seq := st.seq
	st.lastPing = m.now()
	st.target.Send(types.NewHeartbeatPing(st.lastPing))
	st.timeout = time.AfterFunc(m.timeout, func() {
		m.expire(st, seq)
	})
}

func (m *Monitor) expire(st *state, seq uint64) {
	m.mu.Lock()
	if m.conns[st.target.ID()] != st || st.timeout == nil || st.seq != seq {
		m.mu.Unlock()
		return
	}
	st.timeout = nil
	// no more pings; the state is dropped when the transport unregisters
	m.stopProbe(st)
	m.mu.Unlock()

	m.log.Printf("heartbeat timeout for connection %q", st.target.ID())
	m.stats.Incr(stats.NumHeartbeatTimeouts)

	st.target.Send(types.NewHeartbeatTimeout())
	if err := st.target.Close(); err != nil {
		m.log.Printf("close connection %q: %v", st.target.ID(), err)
	}
}
