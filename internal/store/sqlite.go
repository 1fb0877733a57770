package store

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	_ "modernc.org/sqlite"

	appErr "github.com/xxxsen/redpen/internal/pkg/errors"
	"github.com/xxxsen/redpen/internal/pkg/timeutil"
)

const kvTable = "kv_entries"

const kvSchema = `CREATE TABLE IF NOT EXISTS kv_entries (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	ctime INTEGER NOT NULL,
	mtime INTEGER NOT NULL
)`

func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if _, err := db.Exec(kvSchema); err != nil {
		return nil, err
	}
	return db, nil
}

type SQLiteKV struct {
	db *sql.DB
}

func NewSQLiteKV(db *sql.DB) *SQLiteKV {
	return &SQLiteKV{db: db}
}

func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, error) {
	where := map[string]interface{}{"key": key}
	sqlStr, args, err := builder.BuildSelect(kvTable, where, []string{"value"})
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	var value []byte
	if err := rows.Scan(&value); err != nil {
		return nil, err
	}
	return value, rows.Err()
}

func (s *SQLiteKV) Set(ctx context.Context, key string, value []byte) error {
	now := timeutil.NowUnix()
	data := map[string]interface{}{
		"key":   key,
		"value": value,
		"ctime": now,
		"mtime": now,
	}
	sqlStr, args, err := builder.BuildReplaceInsert(kvTable, []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (s *SQLiteKV) Delete(ctx context.Context, key string) error {
	where := map[string]interface{}{"key": key}
	sqlStr, args, err := builder.BuildDelete(kvTable, where)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (s *SQLiteKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	where := map[string]interface{}{
		"key like": prefix + "%",
		"_orderby": "key asc",
	}
	sqlStr, args, err := builder.BuildSelect(kvTable, where, []string{"key"})
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
