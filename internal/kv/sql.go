package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"betclever/internal/db"
)

const putAttempts = 3

// SQL stores entries in the kv_entries table created by db.Migrate.
type SQL struct {
	db      *sql.DB
	dialect db.Dialect
	now     func() time.Time
}

func NewSQL(sqdb *sql.DB, dialect db.Dialect) *SQL {
	return &SQL{db: sqdb, dialect: dialect, now: time.Now}
}

func (s *SQL) ph(n int) string { return s.dialect.Placeholder(n) }

func (s *SQL) Get(ctx context.Context, ns, key string) (Entry, error) {
	q := fmt.Sprintf(`SELECT payload, version FROM kv_entries WHERE namespace=%s AND entry_key=%s`, s.ph(1), s.ph(2))
	e := Entry{Key: key}
	err := s.db.QueryRowContext(ctx, q, ns, key).Scan(&e.Value, &e.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (s *SQL) List(ctx context.Context, ns string) ([]Entry, error) {
	q := fmt.Sprintf(`SELECT entry_key, payload, version FROM kv_entries WHERE namespace=%s ORDER BY entry_key ASC`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, q, ns)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Entry, 0, 16)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.Version); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQL) Put(ctx context.Context, ns, key string, value []byte, expect int64) (int64, error) {
	for attempt := 0; attempt < putAttempts; attempt++ {
		cur, err := s.version(ctx, ns, key)
		if err != nil {
			return 0, err
		}
		if expect != AnyVersion && expect != cur {
			return 0, ErrVersionConflict
		}
		now := s.now().UTC()
		if cur == 0 {
			q := fmt.Sprintf(`INSERT INTO kv_entries(namespace, entry_key, payload, version, updated_at) VALUES(%s,%s,%s,1,%s)`,
				s.ph(1), s.ph(2), s.ph(3), s.ph(4))
			if _, err := s.db.ExecContext(ctx, q, ns, key, value, now); err != nil {
				if !isDuplicateKeyErr(err) {
					return 0, err
				}
				if expect != AnyVersion {
					return 0, ErrVersionConflict
				}
				continue
			}
			return 1, nil
		}
		q := fmt.Sprintf(`UPDATE kv_entries SET payload=%s, version=%s, updated_at=%s WHERE namespace=%s AND entry_key=%s AND version=%s`,
			s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6))
		res, err := s.db.ExecContext(ctx, q, value, cur+1, now, ns, key, cur)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if n == 1 {
			return cur + 1, nil
		}
		if expect != AnyVersion {
			return 0, ErrVersionConflict
		}
	}
	return 0, ErrVersionConflict
}

func (s *SQL) version(ctx context.Context, ns, key string) (int64, error) {
	q := fmt.Sprintf(`SELECT version FROM kv_entries WHERE namespace=%s AND entry_key=%s`, s.ph(1), s.ph(2))
	var v int64
	err := s.db.QueryRowContext(ctx, q, ns, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

func (s *SQL) Delete(ctx context.Context, ns, key string) error {
	q := fmt.Sprintf(`DELETE FROM kv_entries WHERE namespace=%s AND entry_key=%s`, s.ph(1), s.ph(2))
	res, err := s.db.ExecContext(ctx, q, ns, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQL) Close() error { return s.db.Close() }

func isDuplicateKeyErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
