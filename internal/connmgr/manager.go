// Package connmgr implements the process-wide connection registry: it
// assigns connection ids, enforces the max-connection cap, spawns one
// session per admitted socket, periodically reaps idle connections, and
// orchestrates graceful shutdown.
package connmgr

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/hchdb/hchdb/internal/session"
)

// ConnectionInfo is the manager's per-connection bookkeeping record.
// Username and Database are empty until the owning session authenticates.
type ConnectionInfo struct {
	ID            uint32
	RemoteAddr    net.Addr
	Username      string
	Database      string
	ConnectedAt   time.Time
	LastActivity  time.Time
	QueryCount    uint64
	BytesSent     uint64
	BytesReceived uint64
}

// Snapshot is a point-in-time copy of one connection's bookkeeping,
// returned by read-only queries so callers never see the live record.
type Snapshot = ConnectionInfo

// Stats is the set of metrics the manager exposes, matching the original
// connection manager's get_statistics() shape.
type Stats struct {
	CurrentConnections  int
	MaxConnections      int
	TotalConnections    uint64
	RejectedConnections uint64
	UptimeSeconds       float64
	ConnectionRate      float64
	RejectionRate       float64
}

// SessionFactory constructs the per-connection session given the accepted
// socket, the assigned connection id, and an ActivityRecorder the session
// reports back through. Extracted as a field (rather than a free function)
// so tests can substitute a fake session.
type SessionFactory func(conn net.Conn, id uint32, activity session.ActivityRecorder) interface {
	Run()
	Close() error
}

// ConnMetrics receives connection lifecycle events, broken out by the
// listening port a connection arrived on. Nil-safe: a Manager built
// without one simply skips instrumentation.
type ConnMetrics interface {
	ConnectionAdmitted(port string)
	ConnectionClosed(port string, d time.Duration)
	ConnectionRejected(port string)
}

// Manager admits, tracks, idle-reaps, and gracefully shuts down
// connections. Its admission mutex is held only across pointer-sized
// bookkeeping, never across I/O.
type Manager struct {
	mu          sync.Mutex
	connections map[uint32]*trackedConnection
	nextID      uint32
	max         int
	total       uint64
	rejected    uint64
	startTime   time.Time

	idleTimeout time.Duration

	newSession SessionFactory
	metrics    ConnMetrics
	logger     *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type trackedConnection struct {
	info   ConnectionInfo
	port   string
	sess   interface {
		Run()
		Close() error
	}
	mu sync.Mutex
}

// New creates a Manager. maxConnections bounds |connections|; idleTimeout
// is the threshold the reaper uses to close connections that have gone
// quiet; New applies no default (the config loader defaults it to 300s).
// metrics may be nil, in which case connection-lifecycle instrumentation
// is skipped.
func New(maxConnections int, idleTimeout time.Duration, newSession SessionFactory, metrics ConnMetrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		connections: make(map[uint32]*trackedConnection),
		nextID:      1,
		max:         maxConnections,
		startTime:   time.Now(),
		idleTimeout: idleTimeout,
		newSession:  newSession,
		metrics:     metrics,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// StartReaper begins the periodic idle-connection sweep, grounded on the
// 60-second tick this protocol's connection manager specifies.
func (m *Manager) StartReaper() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reapLoop()
	}()
}

func (m *Manager) reapLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reapIdle()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) reapIdle() {
	now := time.Now()

	m.mu.Lock()
	var idle []*trackedConnection
	for _, tc := range m.connections {
		tc.mu.Lock()
		last := tc.info.LastActivity
		tc.mu.Unlock()
		if now.Sub(last) > m.idleTimeout {
			idle = append(idle, tc)
		}
	}
	m.mu.Unlock()

	for _, tc := range idle {
		m.logger.Info("reaping idle connection", "connection_id", tc.info.ID)
		tc.sess.Close()
	}
}

// HandleConnection admits or rejects conn, which arrived on the named
// listening port. On admission it constructs and runs a session
// synchronously in the calling goroutine — callers (the listener's accept
// loop) are expected to invoke this in its own goroutine per accepted
// socket.
func (m *Manager) HandleConnection(conn net.Conn, port string) {
	tc, ok := m.admit(conn, port)
	if !ok {
		conn.Close()
		return
	}

	defer m.release(tc.info.ID)
	tc.sess.Run()
}

func (m *Manager) admit(conn net.Conn, port string) (*trackedConnection, bool) {
	m.mu.Lock()
	if len(m.connections) >= m.max {
		m.rejected++
		m.mu.Unlock()
		m.logger.Warn("rejecting connection, at capacity", "remote_addr", conn.RemoteAddr(), "max", m.max)
		if m.metrics != nil {
			m.metrics.ConnectionRejected(port)
		}
		return nil, false
	}

	id := m.nextID
	m.nextID++
	m.total++

	tc := &trackedConnection{
		port: port,
		info: ConnectionInfo{
			ID:           id,
			RemoteAddr:   conn.RemoteAddr(),
			ConnectedAt:  time.Now(),
			LastActivity: time.Now(),
		},
	}
	m.connections[id] = tc
	m.mu.Unlock()

	tc.sess = m.newSession(conn, id, &activityAdapter{tc: tc})
	m.logger.Info("connection admitted", "connection_id", id, "remote_addr", conn.RemoteAddr())
	if m.metrics != nil {
		m.metrics.ConnectionAdmitted(port)
	}
	return tc, true
}

func (m *Manager) release(id uint32) {
	m.mu.Lock()
	tc, ok := m.connections[id]
	delete(m.connections, id)
	m.mu.Unlock()

	if ok {
		tc.mu.Lock()
		duration := time.Since(tc.info.ConnectedAt)
		queries := tc.info.QueryCount
		tc.mu.Unlock()
		m.logger.Info("connection closed", "connection_id", id, "duration", duration, "queries", queries)
		if m.metrics != nil {
			m.metrics.ConnectionClosed(tc.port, duration)
		}
	}
}

// Stop cancels the reaper and closes every live session concurrently,
// awaiting completion with errors aggregated rather than propagated.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.mu.Lock()
	sessions := make([]*trackedConnection, 0, len(m.connections))
	for _, tc := range m.connections {
		sessions = append(sessions, tc)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var errs []error
	for _, tc := range sessions {
		tc := tc
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tc.sess.Close(); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		}()
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		m.logger.Warn("errors closing sessions on shutdown", "error", err)
	}

	m.wg.Wait()
}

// Stats returns a snapshot of the manager's exposed metrics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	uptime := time.Since(m.startTime).Seconds()
	var connRate, rejRate float64
	if uptime > 0 {
		connRate = float64(m.total) / uptime
		rejRate = float64(m.rejected) / uptime
	}

	return Stats{
		CurrentConnections:  len(m.connections),
		MaxConnections:      m.max,
		TotalConnections:    m.total,
		RejectedConnections: m.rejected,
		UptimeSeconds:       uptime,
		ConnectionRate:      connRate,
		RejectionRate:       rejRate,
	}
}

// Get returns a snapshot of one connection's bookkeeping.
func (m *Manager) Get(id uint32) (Snapshot, bool) {
	m.mu.Lock()
	tc, ok := m.connections[id]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.info, true
}

// activityAdapter implements session.ActivityRecorder against one
// trackedConnection's mutex-guarded ConnectionInfo.
type activityAdapter struct {
	tc *trackedConnection
}

func (a *activityAdapter) RecordAuth(username, database string) {
	a.tc.mu.Lock()
	defer a.tc.mu.Unlock()
	a.tc.info.Username = username
	a.tc.info.Database = database
	a.tc.info.LastActivity = time.Now()
}

func (a *activityAdapter) RecordActivity(queryDelta, bytesSent, bytesReceived uint64) {
	a.tc.mu.Lock()
	defer a.tc.mu.Unlock()
	a.tc.info.QueryCount += queryDelta
	a.tc.info.BytesSent += bytesSent
	a.tc.info.BytesReceived += bytesReceived
	a.tc.info.LastActivity = time.Now()
}
