package session

import "github.com/hchdb/hchdb/internal/mysqlproto"

// ResultKind tags the shape of a QueryHandler's response.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultError
	ResultRows
)

// Result is the structured outcome of dispatching one QUERY command,
// sufficient for the session to emit an OK packet, an ERR packet, or a
// full text result set without the handler touching the wire itself.
type Result struct {
	Kind ResultKind

	AffectedRows uint64

	Columns []mysqlproto.ColumnDefinition
	Rows    [][]*string

	Err *mysqlproto.Error
}

// OKResult builds a Result that emits a plain OK packet.
func OKResult(affectedRows uint64) Result {
	return Result{Kind: ResultOK, AffectedRows: affectedRows}
}

// ErrorResult builds a Result that emits an ERR packet.
func ErrorResult(err *mysqlproto.Error) Result {
	return Result{Kind: ResultError, Err: err}
}

// RowsResult builds a Result that emits a full text result set.
func RowsResult(columns []mysqlproto.ColumnDefinition, rows [][]*string) Result {
	return Result{Kind: ResultRows, Columns: columns, Rows: rows}
}

// QueryHandler is the external collaborator a session dispatches COM_QUERY
// to. When none is installed, the session falls back to the built-in
// fallback responder (see fallback.go).
type QueryHandler interface {
	HandleQuery(database, query string) Result
}
