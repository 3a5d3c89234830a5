package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/msto63/grpc-sample/pkg/core/discovery"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps instances in a SQLite table, one JSON document per row
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig holds configuration for the SQLite store
type SQLiteConfig struct {
	Path string
}

// NewSQLiteStore opens (and creates) the database at cfg.Path.
// ":memory:" keeps the database in memory.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	dsn := ":memory:"
	if cfg.Path != "" && cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = cfg.Path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dsn == ":memory:" {
		// every connection would see its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS instances (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_instances_name ON instances(name);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, info *discovery.ServiceInfo) error {
	data, err := encode(info)
	if err != nil {
		return storageError("sqlite.Put", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO instances (id, name, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, data = excluded.data, updated_at = excluded.updated_at`,
		info.ID, info.Name, string(data), time.Now().UTC(),
	)
	if err != nil {
		return storageError("sqlite.Put", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*discovery.ServiceInfo, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM instances WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, storageError("sqlite.Get", err)
	}
	return decode([]byte(data))
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id); err != nil {
		return storageError("sqlite.Delete", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*discovery.ServiceInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM instances ORDER BY id`)
	if err != nil {
		return nil, storageError("sqlite.List", err)
	}
	defer rows.Close()

	var out []*discovery.ServiceInfo
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, storageError("sqlite.List", err)
		}
		info, err := decode([]byte(data))
		if err != nil {
			return nil, storageError("sqlite.List", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("sqlite.List", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
