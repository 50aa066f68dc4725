// Package connmgr implements the connection manager named in spec.md
// §4.9: a permit semaphore bounding concurrent connections, a registry
// of live connections for stats, and a background sweeper that logs
// stats and evicts stale entries. It generalizes the goroutine-per-
// connection dispatch pattern (`myServer.Start()`/`pgServer.Start()`
// each spinning off a goroutine per accepted socket) into an explicit
// manager both wire servers share.
package connmgr

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yamldb/yamldb/internal/srvconfig"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

// connInfo tracks one live connection for the stats registry.
type connInfo struct {
	clientAddr   string
	startedAt    time.Time
	lastActivity atomic.Int64 // unix nanos
}

// Stats is a point-in-time snapshot of manager counters, readable from
// any goroutine.
type Stats struct {
	Total     int64
	Active    int64
	Failed    int64
	TimedOut  int64
}

// Manager bounds concurrency with a buffered-channel permit semaphore
// (the idiomatic Go substitute for a counting semaphore), tracks every
// live connection in a registry guarded by its own RWMutex, and runs a
// background sweeper per spec.md §4.9.
type Manager struct {
	cfg     srvconfig.Config
	permits chan struct{}

	total, active, failed, timedOut atomic.Int64

	mu    sync.RWMutex
	conns map[uint64]*connInfo
	nextID uint64

	stopOnce sync.Once
	stop     chan struct{}
}

func New(cfg srvconfig.Config) *Manager {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 1000
	}
	m := &Manager{
		cfg:     cfg,
		permits: make(chan struct{}, cfg.MaxConnections),
		conns:   make(map[uint64]*connInfo),
		stop:    make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Acquire blocks for up to PermitAcquireTO waiting for a free permit,
// registers the connection, and returns a release func plus the
// assigned connection id. On timeout it returns a Resource-kind error
// without ever having accepted a socket's permit (spec.md §4.9
// "exhaustion returns connection pool timeout without leaking a
// socket").
func (m *Manager) Acquire(conn net.Conn) (id uint64, release func(), err error) {
	timeout := m.cfg.PermitAcquireTO
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case m.permits <- struct{}{}:
	case <-time.After(timeout):
		return 0, nil, yamlerr.New(yamlerr.KindResource, "connection pool timeout")
	}

	m.mu.Lock()
	m.nextID++
	id = m.nextID
	info := &connInfo{clientAddr: conn.RemoteAddr().String(), startedAt: time.Now()}
	info.lastActivity.Store(time.Now().UnixNano())
	m.conns[id] = info
	m.mu.Unlock()

	m.total.Add(1)
	m.active.Add(1)

	release = func() {
		m.mu.Lock()
		delete(m.conns, id)
		m.mu.Unlock()
		m.active.Add(-1)
		<-m.permits
	}
	return id, release, nil
}

// Touch records activity on a connection, resetting its idle clock.
func (m *Manager) Touch(id uint64) {
	m.mu.RLock()
	info, ok := m.conns[id]
	m.mu.RUnlock()
	if ok {
		info.lastActivity.Store(time.Now().UnixNano())
	}
}

// MarkFailed/MarkTimedOut bump the corresponding counters; callers
// invoke these from the protocol handler when a connection ends
// abnormally.
func (m *Manager) MarkFailed()   { m.failed.Add(1) }
func (m *Manager) MarkTimedOut() { m.timedOut.Add(1) }

// ConnTimeout is the configured per-connection inactivity timeout
// (spec.md §4.9, default 300s).
func (m *Manager) ConnTimeout() time.Duration {
	if m.cfg.ConnTimeout <= 0 {
		return 300 * time.Second
	}
	return m.cfg.ConnTimeout
}

func (m *Manager) Snapshot() Stats {
	return Stats{
		Total:    m.total.Load(),
		Active:   m.active.Load(),
		Failed:   m.failed.Load(),
		TimedOut: m.timedOut.Load(),
	}
}

// sweepLoop ticks every 60s to log stats and every 300s sweeps
// connections idle longer than 30 minutes, per spec.md §4.9. Since the
// sweeper has no actual handle to force-close idle sockets (that's each
// handler's own ConnTimeout), it logs them as a diagnostic signal.
func (m *Manager) sweepLoop() {
	statsTicker := time.NewTicker(60 * time.Second)
	sweepTicker := time.NewTicker(300 * time.Second)
	defer statsTicker.Stop()
	defer sweepTicker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-statsTicker.C:
			s := m.Snapshot()
			logrus.WithFields(logrus.Fields{
				"total": s.Total, "active": s.Active, "failed": s.Failed, "timed_out": s.TimedOut,
			}).Info("connection manager stats")
		case <-sweepTicker.C:
			m.sweepStale()
		}
	}
}

func (m *Manager) sweepStale() {
	cutoff := time.Now().Add(-30 * time.Minute).UnixNano()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, info := range m.conns {
		if info.lastActivity.Load() < cutoff {
			logrus.Warnf("connection %d (%s) idle for more than 30 minutes", id, info.clientAddr)
		}
	}
}

func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) String() string {
	s := m.Snapshot()
	return fmt.Sprintf("connmgr{total=%d active=%d failed=%d timed_out=%d}", s.Total, s.Active, s.Failed, s.TimedOut)
}

// TuneSocket sets TCP_NODELAY and the keepalive knobs spec.md §4.9
// names explicitly (TCP_KEEPIDLE=60s, TCP_KEEPINTVL=10s, TCP_KEEPCNT=6);
// failures are logged but non-fatal since a mistuned socket still works.
func TuneSocket(conn net.Conn) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if err := tcp.SetNoDelay(true); err != nil {
		logrus.WithError(err).Warn("failed to set TCP_NODELAY")
	}
	err := tcp.SetKeepAliveConfig(net.KeepAliveConfig{
		Enable:   true,
		Idle:     60 * time.Second,
		Interval: 10 * time.Second,
		Count:    6,
	})
	if err != nil {
		logrus.WithError(err).Warn("failed to set keepalive config")
	}
}
