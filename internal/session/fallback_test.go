package session

import (
	"strings"
	"testing"
)

func TestFallbackResponderSelectEchoesQuery(t *testing.T) {
	f := &FallbackResponder{ServerVersion: "8.0.0-hchdb", MaxConnections: 100}
	result := f.HandleQuery("", "SELECT 'Hello HchDB' as message")

	if result.Kind != ResultRows {
		t.Fatalf("kind = %v, want ResultRows", result.Kind)
	}
	if len(result.Columns) != 1 || result.Columns[0].Name != "message" {
		t.Fatalf("unexpected columns: %+v", result.Columns)
	}
	if len(result.Rows) != 1 || !strings.HasPrefix(*result.Rows[0][0], "Hello from HchDB!") {
		t.Fatalf("unexpected rows: %+v", result.Rows)
	}
}

func TestFallbackResponderDMLReturnsOK(t *testing.T) {
	f := &FallbackResponder{}
	for _, q := range []string{"INSERT INTO t VALUES (1)", "UPDATE t SET x=1", "DELETE FROM t"} {
		result := f.HandleQuery("", q)
		if result.Kind != ResultOK || result.AffectedRows != 1 {
			t.Errorf("query %q: got %+v, want OKResult(1)", q, result)
		}
	}
}

func TestFallbackResponderShowTablesUsesDatabaseName(t *testing.T) {
	f := &FallbackResponder{}
	result := f.HandleQuery("mydb", "SHOW TABLES")

	if result.Kind != ResultRows {
		t.Fatalf("kind = %v, want ResultRows", result.Kind)
	}
	if result.Columns[0].Name != "Tables_in_mydb" {
		t.Errorf("column name = %q, want %q", result.Columns[0].Name, "Tables_in_mydb")
	}
}

func TestFallbackResponderShowVariablesIncludesMaxConnections(t *testing.T) {
	f := &FallbackResponder{ServerVersion: "8.0.0-hchdb", MaxConnections: 42}
	result := f.HandleQuery("", "SHOW VARIABLES")

	var found bool
	for _, row := range result.Rows {
		if *row[0] == "max_connections" && *row[1] == "42" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected max_connections=42 in rows, got %+v", result.Rows)
	}
}

func TestFallbackResponderDefaultReturnsOK(t *testing.T) {
	f := &FallbackResponder{}
	result := f.HandleQuery("", "BEGIN")
	if result.Kind != ResultOK || result.AffectedRows != 0 {
		t.Errorf("got %+v, want OKResult(0)", result)
	}
}
