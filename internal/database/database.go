package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens the SQLite file and creates the schema.
// ":memory:" is supported for tests and pinned to one connection.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	inMemory := path == ":memory:"
	if !inMemory {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: sqlDB, path: path, logger: logger}, nil
}

// BEGIN IMMEDIATE takes the write lock up front, so the conflict check and
// the insert of an admission never interleave with another writer.
func dsn(path string) string {
	params := "_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
	if path == ":memory:" {
		return path + "?" + params
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params + "&_journal_mode=WAL"
}

func (db *DB) Path() string {
	return db.path
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS salons (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            address TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS specialists (
            id INTEGER PRIMARY KEY,
            full_name TEXT NOT NULL,
            bio TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS specialist_salons (
            specialist_id INTEGER NOT NULL REFERENCES specialists(id) ON DELETE CASCADE,
            salon_id INTEGER NOT NULL REFERENCES salons(id) ON DELETE CASCADE,
            PRIMARY KEY (specialist_id, salon_id)
        )`,
		`CREATE TABLE IF NOT EXISTS procedures (
            id INTEGER PRIMARY KEY,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            duration_minutes INTEGER NOT NULL DEFAULT 60,
            base_price TEXT NOT NULL DEFAULT '0'
        )`,
		`CREATE TABLE IF NOT EXISTS specialist_procedures (
            specialist_id INTEGER NOT NULL REFERENCES specialists(id) ON DELETE CASCADE,
            procedure_id INTEGER NOT NULL REFERENCES procedures(id) ON DELETE CASCADE,
            PRIMARY KEY (specialist_id, procedure_id)
        )`,
		`CREATE TABLE IF NOT EXISTS procedure_offerings (
            salon_id INTEGER NOT NULL REFERENCES salons(id) ON DELETE CASCADE,
            procedure_id INTEGER NOT NULL REFERENCES procedures(id) ON DELETE CASCADE,
            price TEXT NOT NULL,
            PRIMARY KEY (salon_id, procedure_id)
        )`,
		`CREATE TABLE IF NOT EXISTS shifts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            salon_id INTEGER NOT NULL REFERENCES salons(id) ON DELETE CASCADE,
            specialist_id INTEGER NOT NULL REFERENCES specialists(id) ON DELETE CASCADE,
            date TEXT NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            UNIQUE (salon_id, specialist_id, date, start_time, end_time)
        )`,
		`CREATE TABLE IF NOT EXISTS appointments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            salon_id INTEGER NOT NULL REFERENCES salons(id),
            specialist_id INTEGER NOT NULL REFERENCES specialists(id),
            procedure_id INTEGER NOT NULL REFERENCES procedures(id),
            customer_name TEXT NOT NULL,
            phone TEXT NOT NULL,
            question TEXT NOT NULL DEFAULT '',
            start_at INTEGER NOT NULL,
            end_at INTEGER NOT NULL,
            price_original TEXT NOT NULL,
            price_final TEXT NOT NULL,
            source TEXT NOT NULL DEFAULT 'web',
            status TEXT NOT NULL DEFAULT 'new',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            appointment_id INTEGER NOT NULL,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_shifts_lookup ON shifts(salon_id, specialist_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_lookup ON appointments(salon_id, specialist_id, start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}
