package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/templog/internal/series"
)

//go:embed sql/schema.sql
var schemaSQL string

//go:embed sql/list-temperatures.sql
var listTemperaturesSQL string

//go:embed sql/upsert-temperature.sql
var upsertTemperatureSQL string

//go:embed sql/delete-temperature.sql
var deleteTemperatureSQL string

// SQLiteStore is a series.Provider on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
// path may be a plain file path, a "file:" URI or ":memory:".
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	// One writer; also keeps a ":memory:" database on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) List(ctx context.Context) ([]series.Record, error) {
	rows, err := s.db.QueryContext(ctx, listTemperaturesSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close temperature rows", "error", err)
		}
	}()

	var out []series.Record
	for rows.Next() {
		var (
			rec  series.Record
			temp sql.NullFloat64
		)
		if err := rows.Scan(&rec.Date, &temp); err != nil {
			return nil, err
		}
		if temp.Valid {
			v := temp.Float64
			rec.Temperature = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Upsert(ctx context.Context, e series.Entry) error {
	if _, err := s.db.ExecContext(ctx, upsertTemperatureSQL, e.Date.String(), e.Temperature); err != nil {
		return fmt.Errorf("upsert %s: %w", e.Date, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, date series.Date) error {
	res, err := s.db.ExecContext(ctx, deleteTemperatureSQL, date.String())
	if err != nil {
		return fmt.Errorf("delete %s: %w", date, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return series.ErrNotFound
	}
	return nil
}

func buildDSN(path string) (string, error) {
	if path == ":memory:" {
		return "file::memory:?_foreign_keys=on", nil
	}

	// Ensure directory exists for file-backed sqlite db
	if !strings.HasPrefix(path, "file:") {
		dir := filepath.Dir(path)
		if dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
	}

	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
