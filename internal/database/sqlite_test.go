package database

import (
	"context"
	"strings"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func TestMemoryPath(t *testing.T) {
	got := MemoryPath("TestStore/sub test")
	if !strings.HasPrefix(got, "file:") || !strings.HasSuffix(got, "?mode=memory&cache=shared") {
		t.Errorf("unexpected path %q", got)
	}
	if strings.Contains(got, " ") {
		t.Errorf("name not escaped: %q", got)
	}
}

func TestNewSQLitePoolSharesMemoryDatabase(t *testing.T) {
	pool, err := NewSQLitePool(MemoryPath(t.Name()), 2, nil)
	if err != nil {
		t.Fatalf("NewSQLitePool: %v", err)
	}
	defer pool.Close()

	ctx := context.Background()
	writer, err := pool.Take(ctx)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(writer)

	err = sqlitex.Execute(writer, `INSERT INTO students (id, email, full_name, created_at, updated_at)
		VALUES ('stu-1', 'ana@example.com', 'Ana', '2026-03-02T10:00:00Z', '2026-03-02T10:00:00Z')`, nil)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	reader, err := pool.Take(ctx)
	if err != nil {
		t.Fatalf("Take second conn: %v", err)
	}
	defer pool.Put(reader)

	var count int64
	err = sqlitex.Execute(reader, "SELECT COUNT(*) FROM students", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("second connection sees %d students, want 1", count)
	}
}

func TestNewSQLitePoolRequiresPath(t *testing.T) {
	if _, err := NewSQLitePool("", 1, nil); err == nil {
		t.Error("expected error for empty path")
	}
}
