package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
)

func TestMigrateCreatesKVTable(t *testing.T) {
	sqdb, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "app.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })

	if err := Migrate(context.Background(), sqdb, SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Second run must be a no-op.
	if err := Migrate(context.Background(), sqdb, SQLite); err != nil {
		t.Fatalf("migrate again: %v", err)
	}

	for _, col := range []string{"namespace", "entry_key", "payload", "version", "updated_at"} {
		if !hasColumn(t, sqdb, "kv_entries", col) {
			t.Fatalf("expected kv_entries.%s to exist after migration", col)
		}
	}
}

func TestMigrateWrapsGooseErrors(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "migrations/postgres" {
			t.Fatalf("unexpected migration dir %q", dir)
		}
		return errors.New("boom")
	}
	err := Migrate(context.Background(), nil, Postgres)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestDialectFor(t *testing.T) {
	cases := map[string]Dialect{"sqlite3": SQLite, "PostgreSQL": Postgres, "pgx": Postgres, "mariadb": MySQL}
	for in, want := range cases {
		got, err := DialectFor(in)
		if err != nil || got != want {
			t.Fatalf("DialectFor(%q)=%+v err=%v", in, got, err)
		}
	}
	if _, err := DialectFor("oracle"); err == nil {
		t.Fatalf("expected unsupported dialect error")
	}
	if Postgres.Placeholder(3) != "$3" || MySQL.Placeholder(3) != "?" {
		t.Fatalf("unexpected placeholders")
	}
}

func hasColumn(t *testing.T, sqdb *sql.DB, tableName, colName string) bool {
	t.Helper()
	rows, err := sqdb.Query("PRAGMA table_info(" + tableName + ")")
	if err != nil {
		t.Fatalf("table_info %s: %v", tableName, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			t.Fatalf("scan table_info %s: %v", tableName, err)
		}
		if name == colName {
			return true
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate table_info %s: %v", tableName, err)
	}
	return false
}
