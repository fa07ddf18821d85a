package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hchdb/hchdb/internal/mysqlproto"
)

// FallbackResponder is the QueryHandler installed when no external query
// executor is configured. It recognizes a small set of statement shapes by
// leading keyword and synthesizes a plausible-looking mock result, purely
// to exercise the protocol engine's result-set emission path end to end.
type FallbackResponder struct {
	ServerVersion  string
	MaxConnections int
}

func str(s string) *string { return &s }

// HandleQuery implements QueryHandler.
func (f *FallbackResponder) HandleQuery(database, query string) Result {
	upper := strings.ToUpper(strings.TrimSpace(query))

	switch {
	case strings.HasPrefix(upper, "SELECT"):
		message := "Hello from HchDB! Echo: " + truncate(strings.TrimSpace(query), 50)
		return RowsResult(
			[]mysqlproto.ColumnDefinition{{Name: "message", Type: mysqlproto.FieldTypeVarString}},
			[][]*string{{str(message)}},
		)

	case strings.HasPrefix(upper, "INSERT"), strings.HasPrefix(upper, "UPDATE"), strings.HasPrefix(upper, "DELETE"):
		return OKResult(1)

	case strings.HasPrefix(upper, "SHOW DATABASES"):
		return RowsResult(
			[]mysqlproto.ColumnDefinition{{Name: "SCHEMA_NAME", Type: mysqlproto.FieldTypeVarString}},
			[][]*string{{str("information_schema")}, {str("hchdb")}, {str("test")}},
		)

	case strings.HasPrefix(upper, "SHOW TABLES"):
		db := database
		if db == "" {
			db = "hchdb"
		}
		return RowsResult(
			[]mysqlproto.ColumnDefinition{{Name: fmt.Sprintf("Tables_in_%s", db), Type: mysqlproto.FieldTypeVarString}},
			[][]*string{{str("users")}, {str("orders")}, {str("products")}},
		)

	case strings.HasPrefix(upper, "SHOW VARIABLES") || (strings.HasPrefix(upper, "SHOW") && strings.Contains(upper, "VERSION")):
		return RowsResult(
			[]mysqlproto.ColumnDefinition{
				{Name: "Variable_name", Type: mysqlproto.FieldTypeVarString},
				{Name: "Value", Type: mysqlproto.FieldTypeVarString},
			},
			[][]*string{
				{str("version"), str(f.ServerVersion)},
				{str("version_comment"), str("HchDB distributed database")},
				{str("max_connections"), str(strconv.Itoa(f.MaxConnections))},
			},
		)

	default:
		return OKResult(0)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
