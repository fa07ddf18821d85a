package mysqlproto

import "fmt"

// ErrorKind tags an Error with its category in the error taxonomy
// (protocol, authentication, connection, command, configuration), so one
// Go type covers every category instead of one type per class.
type ErrorKind int

const (
	KindProtocol ErrorKind = iota
	KindAuthentication
	KindConnection
	KindCommand
	KindConfiguration
)

func (k ErrorKind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindAuthentication:
		return "authentication"
	case KindConnection:
		return "connection"
	case KindCommand:
		return "command"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is the error taxonomy carried across the wire-protocol boundary.
// Every error the session needs to turn into an ERR packet (or a decision
// to close) carries a MySQL error code and SQL state alongside its kind.
type Error struct {
	Kind     ErrorKind
	Code     uint16
	SQLState string
	Message  string
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newErr(kind ErrorKind, code uint16, sqlState, message string) *Error {
	return &Error{Kind: kind, Code: code, SQLState: sqlState, Message: message}
}

// Wrap attaches a cause to an existing Error without changing its kind,
// code, or sql state.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, SQLState: e.SQLState, Message: e.Message, cause: cause}
}

// WithMessage returns a copy of e with a replacement message, e.g. to
// interpolate the offending username or command byte.
func (e *Error) WithMessage(message string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, SQLState: e.SQLState, Message: message, cause: e.cause}
}

// Standard MySQL error codes this server produces, matching the numbers
// named in the protocol's error-handling design.
var (
	ErrAccessDenied    = newErr(KindAuthentication, 1045, "28000", "Access denied")
	ErrUnknownCommand  = newErr(KindCommand, 1047, "HY000", "Unknown command")
	ErrSyntaxError     = newErr(KindCommand, 1064, "42000", "SQL syntax error")
	ErrUnknownDatabase = newErr(KindCommand, 1049, "42000", "Unknown database")
	ErrInternal        = newErr(KindProtocol, 1105, "HY000", "Internal error")
	ErrTooManyConns    = newErr(KindConnection, 1040, "08004", "Too many connections")

	ErrShortPacket   = newErr(KindProtocol, 1105, "HY000", "short packet")
	ErrBadLEI        = newErr(KindProtocol, 1105, "HY000", "malformed length-encoded integer")
	ErrBadNTS        = newErr(KindProtocol, 1105, "HY000", "malformed null-terminated string")
	ErrConfiguration = newErr(KindConfiguration, 1105, "HY000", "configuration error")
)

// AccessDenied builds the canonical "Access denied for user '<u>'" error.
func AccessDenied(username string) *Error {
	return ErrAccessDenied.WithMessage(fmt.Sprintf("Access denied for user '%s'", username))
}

// UnknownCommand builds the canonical unknown-command error carrying the
// decimal value of the offending command byte, as the protocol's
// end-to-end scenarios require.
func UnknownCommand(b byte) *Error {
	return ErrUnknownCommand.WithMessage(fmt.Sprintf("Unknown command: %d", b))
}

// InternalError wraps an arbitrary handler failure as ERR(1105).
func InternalError(cause error) *Error {
	return ErrInternal.Wrap(cause).WithMessage(fmt.Sprintf("Internal error: %s", cause))
}
