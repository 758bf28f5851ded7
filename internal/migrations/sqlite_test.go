package migrations

import (
	"context"
	"database/sql"
	"reflect"
	"testing"

	_ "modernc.org/sqlite"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count); err != nil {
		t.Fatalf("lookup table %q: %v", name, err)
	}
	return count > 0
}

func TestRunnerAppliesAndRollsBackOnSQLite(t *testing.T) {
	db := openMemoryDB(t)
	ctx := context.Background()
	runner := NewRunner()

	applied, err := runner.Up(ctx, db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 2 {
		t.Fatalf("Up() applied %d migrations, want 2", applied)
	}
	for _, table := range []string{"chat", "chat_turn", "export_archive"} {
		if !tableExists(t, db, table) {
			t.Fatalf("table %s missing after Up()", table)
		}
	}

	again, err := runner.Up(ctx, db, 0)
	if err != nil || again != 0 {
		t.Fatalf("second Up() = %d, %v", again, err)
	}

	rolledBack, err := runner.Down(ctx, db, 1)
	if err != nil || rolledBack != 1 {
		t.Fatalf("Down() = %d, %v", rolledBack, err)
	}
	if tableExists(t, db, "export_archive") || !tableExists(t, db, "chat") {
		t.Fatal("Down(1) should only remove the newest migration")
	}

	status, err := runner.Status(ctx, db)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !reflect.DeepEqual(status, Status{Applied: []int64{1}, Pending: []int64{2}}) {
		t.Fatalf("Status() = %#v", status)
	}
}
