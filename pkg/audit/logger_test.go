package audit

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func openTestLogger(t *testing.T) (*SQLiteLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	l, err := Open(path, "stdio")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestLogWritesEntry(t *testing.T) {
	l, path := openTestLogger(t)

	err := l.Log(context.Background(), &Entry{
		Tool:       "execute-query",
		Parameters: `{"query":"SELECT 1"}`,
		DurationMs: 3,
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var tool, transport, status string
	row := db.QueryRow("SELECT tool, transport, status FROM audit_log LIMIT 1")
	if err := row.Scan(&tool, &transport, &status); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if tool != "execute-query" || transport != "stdio" || status != "success" {
		t.Fatalf("unexpected row: %s %s %s", tool, transport, status)
	}
}

func TestFillDefaultsErrorStatus(t *testing.T) {
	l, _ := openTestLogger(t)

	e := &Entry{Tool: "describe-table", Error: "boom"}
	l.fillDefaults(e)
	if e.Status != "error" {
		t.Fatalf("expected error status, got %q", e.Status)
	}
	if e.EntryID == "" || e.Timestamp == 0 {
		t.Fatalf("defaults not filled: %+v", e)
	}
}

func TestMiddlewareRecordsFailure(t *testing.T) {
	l, path := openTestLogger(t)

	endpoint := Middleware(l, "execute-query")(func(ctx context.Context, request any) (any, error) {
		return nil, errors.New("backend unreachable")
	})
	if _, err := endpoint(context.Background(), map[string]string{"query": "SELECT 1"}); err == nil {
		t.Fatal("middleware must propagate the endpoint error")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var status, errMsg string
	row := db.QueryRow("SELECT status, error_message FROM audit_log WHERE tool = 'execute-query'")
	if err := row.Scan(&status, &errMsg); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if status != "error" || errMsg != "backend unreachable" {
		t.Fatalf("unexpected row: %s %s", status, errMsg)
	}
}
