package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"innkeeper/internal/domain"
)

// DB is the SQLite-backed store. Reads outside InTx see committed data only.
type DB struct {
	*sql.DB
	reader
	path   string
	logger *zerolog.Logger
}

var _ domain.Store = (*DB)(nil)

// NewDB opens the database and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	// Создаем директорию для БД, если её нет
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL, busy timeout, foreign keys for cascades, and BEGIN IMMEDIATE so a
	// transaction holds the write lock from its first read.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{
		DB:     sqlDB,
		reader: reader{q: sqlDB},
		path:   path,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS room_types (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			base_price TEXT NOT NULL,
			amenities TEXT NOT NULL DEFAULT '[]',
			total_quantity INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS room_instances (
			id TEXT PRIMARY KEY,
			room_type_id TEXT NOT NULL,
			room_number TEXT NOT NULL,
			base_status TEXT NOT NULL DEFAULT 'available',
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (room_type_id) REFERENCES room_types(id) ON DELETE CASCADE
		)`,
		// Разреженная карта переопределений: одна строка на (номер, дата)
		`CREATE TABLE IF NOT EXISTS room_overrides (
			instance_id TEXT NOT NULL,
			date_key TEXT NOT NULL,
			status TEXT,
			price TEXT,
			booking_code TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (instance_id, date_key),
			FOREIGN KEY (instance_id) REFERENCES room_instances(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS reservations (
			id TEXT PRIMARY KEY,
			booking_code TEXT NOT NULL,
			room_type_id TEXT NOT NULL,
			room_instance_id TEXT NOT NULL,
			guest_name TEXT NOT NULL,
			guest_phone TEXT NOT NULL,
			guest_count INTEGER NOT NULL DEFAULT 1,
			check_in TEXT NOT NULL,
			check_out TEXT NOT NULL,
			nights INTEGER NOT NULL,
			total_price TEXT NOT NULL DEFAULT '0',
			payment_status TEXT NOT NULL DEFAULT 'unpaid',
			source TEXT NOT NULL DEFAULT 'manual',
			status TEXT NOT NULL DEFAULT 'booked',
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_room_types_owner ON room_types(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_room_instances_type ON room_instances(room_type_id)`,
		`CREATE INDEX IF NOT EXISTS idx_room_overrides_date ON room_overrides(date_key)`,
		`CREATE INDEX IF NOT EXISTS idx_room_overrides_code ON room_overrides(booking_code)`,
		// Reverse lookup from a calendar cell back to the reservation.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_code ON reservations(booking_code)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_instance_dates ON reservations(room_instance_id, check_in, check_out)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return db.ensureNewColumns()
}

// ensureNewColumns adds columns introduced after the first schema.
func (db *DB) ensureNewColumns() error {
	migrations := []string{
		`ALTER TABLE reservations ADD COLUMN source TEXT NOT NULL DEFAULT 'manual'`,
		`ALTER TABLE reservations ADD COLUMN payment_status TEXT NOT NULL DEFAULT 'unpaid'`,
	}

	for _, m := range migrations {
		_, err := db.Exec(m)
		if err != nil && !strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
			return fmt.Errorf("migration %q: %w", m, err)
		}
	}
	return nil
}

// InTx runs fn in one transaction. Any error from fn rolls back every write.
// Busy and locked errors surface as domain.ErrTransactionFailure.
func (db *DB) InTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr("begin", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{reader: reader{q: sqlTx}, tx: sqlTx}); err != nil {
		return mapErr("tx", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return mapErr("commit", err)
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// mapErr leaves domain errors alone and turns store contention into ErrTransactionFailure.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%s: %v: %w", op, err, domain.ErrTransactionFailure)
		case sqlite3.ErrConstraint:
			if sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
				return fmt.Errorf("%s: %v: %w", op, err, domain.ErrTransactionFailure)
			}
		}
	}
	if op == "begin" || op == "commit" {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrTransactionFailure)
	}
	return err
}
