// Package session implements the per-connection MySQL protocol state
// machine: the greeting, the authentication handshake, and the
// command-dispatch loop that drives a client from GREETING through
// CLOSED.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/hchdb/hchdb/internal/mysqlproto"
)

// State is one of the per-connection protocol states.
type State int

const (
	StateGreeting State = iota
	StateAuthWait
	StateReady
	StateInCommand
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateGreeting:
		return "GREETING"
	case StateAuthWait:
		return "AUTH_WAIT"
	case StateReady:
		return "READY"
	case StateInCommand:
		return "IN_COMMAND"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ActivityRecorder lets a session report authentication and per-command
// activity back to its owning connection manager without depending on the
// manager's package — it is the only channel through which a session
// mutates state outside itself.
type ActivityRecorder interface {
	RecordAuth(username, database string)
	RecordActivity(queryDelta, bytesSent, bytesReceived uint64)
}

// MetricsRecorder is an optional collaborator a session reports
// authentication outcomes and command timings to. A nil MetricsRecorder
// disables instrumentation entirely.
type MetricsRecorder interface {
	AuthOutcome(outcome string)
	CommandCompleted(command string, d time.Duration)
}

// Session owns one socket, one packet builder (and therefore one sequence
// counter), and drives it through the protocol state machine. Nothing
// about a Session is shared with any other session.
type Session struct {
	conn          net.Conn
	connectionID  uint32
	serverVersion string

	auth         Authenticator
	queryHandler QueryHandler
	activity     ActivityRecorder
	metrics      MetricsRecorder
	logger       *slog.Logger

	builder  mysqlproto.Builder
	state    State
	username string
	database string
}

// New constructs a Session ready to Run. queryHandler may be nil, in which
// case a FallbackResponder using serverVersion is installed. metrics may
// be nil, in which case instrumentation is skipped.
func New(conn net.Conn, connectionID uint32, serverVersion string, maxConnections int, auth Authenticator, queryHandler QueryHandler, activity ActivityRecorder, metrics MetricsRecorder, logger *slog.Logger) *Session {
	if queryHandler == nil {
		queryHandler = &FallbackResponder{ServerVersion: serverVersion, MaxConnections: maxConnections}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		conn:          conn,
		connectionID:  connectionID,
		serverVersion: serverVersion,
		auth:          auth,
		queryHandler:  queryHandler,
		activity:      activity,
		metrics:       metrics,
		logger:        logger,
		state:         StateGreeting,
	}
}

// Close forces the underlying socket closed, unblocking a pending Run.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Run drives the session through its full lifecycle and returns once the
// connection has reached CLOSED, whether the client quit (COM_QUIT or EOF)
// or the session ended on an error.
func (s *Session) Run() {
	defer s.transitionClosing()

	seed, err := generateAuthSeed()
	if err != nil {
		s.logger.Error("generating auth seed", "connection_id", s.connectionID, "error", err)
		return
	}

	s.builder.Reset()
	handshake := s.builder.BuildHandshake(s.serverVersion, s.connectionID, seed, "mysql_native_password")
	if err := s.writePacket(handshake); err != nil {
		s.logger.Debug("writing handshake", "connection_id", s.connectionID, "error", err)
		return
	}
	s.state = StateAuthWait

	if !s.authenticate(seed) {
		return
	}
	s.state = StateReady

	for s.state == StateReady {
		if !s.runOneCommand() {
			return
		}
	}
}

// authenticate reads and validates the client's HandshakeResponse. It
// returns false if the session should terminate (auth failure or a
// protocol-level read/parse error), true if the session transitioned to
// READY.
func (s *Session) authenticate(seed []byte) bool {
	pkt, err := s.readPacket()
	if err != nil {
		s.logger.Debug("reading handshake response", "connection_id", s.connectionID, "error", err)
		return false
	}

	hr, err := mysqlproto.ParseHandshakeResponse(pkt.Payload)
	if err != nil {
		if mErr, ok := err.(*mysqlproto.Error); ok {
			s.sendErr(pkt.SequenceID, mErr)
		} else {
			s.sendErr(pkt.SequenceID, mysqlproto.InternalError(err))
		}
		return false
	}

	s.username = hr.Username
	if hr.HasDatabase {
		s.database = hr.Database
	}
	s.activity.RecordAuth(s.username, s.database)

	ok, err := s.auth.Authenticate(hr.Username, seed, hr.AuthData)
	if err != nil {
		s.recordAuthOutcome("error")
		s.sendErr(pkt.SequenceID, mysqlproto.InternalError(err))
		return false
	}
	if !ok {
		s.recordAuthOutcome("denied")
		s.sendErr(pkt.SequenceID, mysqlproto.AccessDenied(hr.Username))
		return false
	}
	s.recordAuthOutcome("ok")

	s.builder.SetSeq(pkt.SequenceID + 1)
	okPkt := s.builder.BuildOK(0, 0, mysqlproto.StatusAutocommit, 0, "")
	if err := s.writePacket(okPkt); err != nil {
		s.logger.Debug("writing auth OK", "connection_id", s.connectionID, "error", err)
		return false
	}
	return true
}

// runOneCommand handles exactly one inbound command round-trip. It returns
// false when the session should move to CLOSING.
func (s *Session) runOneCommand() bool {
	pkt, err := s.readPacket()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.logger.Debug("reading command packet", "connection_id", s.connectionID, "error", err)
		}
		return false
	}

	s.state = StateInCommand
	// Each command round-trip restarts the sequence counter: the client's
	// command packet is always sequence 0, so the first reply is 1.
	s.builder.SetSeq(pkt.SequenceID + 1)

	cmd, err := mysqlproto.ParseCommand(pkt.Payload)
	if err != nil {
		s.sendErr(pkt.SequenceID, err.(*mysqlproto.Error))
		s.state = StateReady
		s.activity.RecordActivity(0, 0, 0)
		return true
	}

	keepGoing := s.dispatch(cmd)
	s.state = StateReady
	return keepGoing
}

func (s *Session) recordAuthOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.AuthOutcome(outcome)
	}
}

func (s *Session) recordCommand(name string, start time.Time) {
	if s.metrics != nil {
		s.metrics.CommandCompleted(name, time.Since(start))
	}
}

func (s *Session) dispatch(cmd mysqlproto.Command) bool {
	start := time.Now()
	switch cmd.Kind {
	case mysqlproto.CommandQuit:
		return false

	case mysqlproto.CommandPing:
		s.writePacket(s.builder.BuildOK(0, 0, mysqlproto.StatusAutocommit, 0, ""))
		s.activity.RecordActivity(0, 0, 0)
		s.recordCommand("PING", start)
		return true

	case mysqlproto.CommandInitDB:
		s.database = string(cmd.Body)
		s.writePacket(s.builder.BuildOK(0, 0, mysqlproto.StatusAutocommit, 0, ""))
		s.activity.RecordActivity(0, 0, 0)
		s.recordCommand("INIT_DB", start)
		return true

	case mysqlproto.CommandFieldList:
		s.writePacket(s.builder.BuildEOF(0, mysqlproto.StatusAutocommit))
		s.activity.RecordActivity(0, 0, 0)
		s.recordCommand("FIELD_LIST", start)
		return true

	case mysqlproto.CommandQuery:
		s.handleQuery(string(cmd.Body))
		s.activity.RecordActivity(1, 0, 0)
		s.recordCommand("QUERY", start)
		return true

	default:
		s.writePacket(s.builder.BuildErrFromError(mysqlproto.UnknownCommand(cmd.Byte)))
		s.activity.RecordActivity(0, 0, 0)
		s.recordCommand("UNKNOWN", start)
		return true
	}
}

func (s *Session) handleQuery(query string) {
	result := s.safeHandleQuery(query)

	switch result.Kind {
	case ResultOK:
		s.writePacket(s.builder.BuildOK(result.AffectedRows, 0, mysqlproto.StatusAutocommit, 0, ""))
	case ResultError:
		s.writePacket(s.builder.BuildErrFromError(result.Err))
	case ResultRows:
		s.emitResultSet(result.Columns, result.Rows)
	}
}

// safeHandleQuery recovers a panicking QueryHandler and converts it into
// ERR(1105), matching the state table's "handler raises" transition.
func (s *Session) safeHandleQuery(query string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = ErrorResult(mysqlproto.InternalError(fmt.Errorf("%v", r)))
		}
	}()
	return s.queryHandler.HandleQuery(s.database, query)
}

func (s *Session) emitResultSet(columns []mysqlproto.ColumnDefinition, rows [][]*string) {
	s.writePacket(s.builder.BuildColumnCount(len(columns)))
	for _, col := range columns {
		s.writePacket(s.builder.BuildColumnDefinition(col))
	}
	s.writePacket(s.builder.BuildEOF(0, mysqlproto.StatusAutocommit))
	for _, row := range rows {
		s.writePacket(s.builder.BuildRow(row))
	}
	s.writePacket(s.builder.BuildEOF(0, mysqlproto.StatusAutocommit))
}

func (s *Session) sendErr(replyTo byte, err *mysqlproto.Error) {
	s.builder.SetSeq(replyTo + 1)
	s.writePacket(s.builder.BuildErrFromError(err))
}

// transitionClosing performs the half-close and releases the socket. The
// connection manager is responsible for removing the ConnectionInfo entry
// once Run returns.
func (s *Session) transitionClosing() {
	s.state = StateClosing
	if tcp, ok := s.conn.(*net.TCPConn); ok {
		tcp.CloseWrite()
	}
	s.conn.Close()
	s.state = StateClosed
}

func (s *Session) readPacket() (mysqlproto.Packet, error) {
	pkt, err := mysqlproto.ReadPacket(s.conn)
	return pkt, err
}

func (s *Session) writePacket(pkt mysqlproto.Packet) error {
	return mysqlproto.WritePacket(s.conn, pkt.Payload, pkt.SequenceID)
}

// generateAuthSeed produces a 20-byte auth-plugin-data seed with no zero
// bytes, since the wire format null-terminates the seed's second half.
func generateAuthSeed() ([]byte, error) {
	seed := make([]byte, 20)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	for i := range seed {
		if seed[i] == 0 {
			seed[i] = 1
		}
	}
	return seed, nil
}
