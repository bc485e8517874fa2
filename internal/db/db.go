package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect ties a database/sql driver to its goose dialect and placeholder style.
type Dialect struct {
	Name   string
	Driver string
	goose  string
}

var (
	SQLite   = Dialect{Name: "sqlite", Driver: "sqlite", goose: "sqlite3"}
	Postgres = Dialect{Name: "postgres", Driver: "pgx", goose: "postgres"}
	MySQL    = Dialect{Name: "mysql", Driver: "mysql", goose: "mysql"}
)

func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	}
	return Dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
}

// Placeholder returns the n-th (1-based) bind parameter marker.
func (d Dialect) Placeholder(n int) string {
	if d.Name == Postgres.Name {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func OpenSQLite(path string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	return open(SQLite.Driver, dsn, maxOpen, maxIdle, maxLifetime)
}

// Open connects to a postgres or mysql DSN; sqlite goes through OpenSQLite.
func Open(d Dialect, dsn string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	if d.Name == SQLite.Name {
		return OpenSQLite(dsn, maxOpen, maxIdle, maxLifetime)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s dsn is required", d.Name)
	}
	return open(d.Driver, dsn, maxOpen, maxIdle, maxLifetime)
}

func open(driver, dsn string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
