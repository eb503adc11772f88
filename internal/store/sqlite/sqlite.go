// Package sqlite implements store.Store on modernc.org/sqlite, the
// teacher's own pure-Go sqlite driver, following its PRAGMA discipline,
// embedded-schema bootstrap and golang-migrate upgrade path.
package sqlite

import (
	"compress/gzip"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

//go:embed schema.sql
var schemaSQL string

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a sql.DB opened against a venue-tracking database, applying
// the same WAL/busy-timeout PRAGMAs the teacher applies to every
// database it opens regardless of how the database was created.
type DB struct {
	*sql.DB
	log *slog.Logger
}

// Open opens (creating if necessary) the sqlite database at path,
// applies the standard PRAGMAs, and brings the schema up to date: a
// brand-new file gets schema.sql directly, an existing one is migrated
// forward with golang-migrate.
func Open(path string, log *slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := &DB{DB: sqlDB, log: log}
	if err := db.bootstrap(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("sqlite: apply %q: %w", p, err)
		}
	}
	return nil
}

// bootstrap brings a database up to the current schema. A database with
// no tables first gets schema.sql; then every database is migrated
// forward.
func (db *DB) bootstrap() error {
	var tableCount int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
	`).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("sqlite: inspect schema: %w", err)
	}

	if tableCount == 0 {
		if _, err := db.Exec(schemaSQL); err != nil {
			return fmt.Errorf("sqlite: apply schema.sql: %w", err)
		}
	}
	return db.MigrateUp()
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("sqlite: migrations sub-fs: %w", err)
	}
	sourceDriver, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("sqlite: iofs source: %w", err)
	}
	dbDriver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlite: migrate driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
}

// MigrateUp runs every pending migration. It is a no-op once the
// database is already at the latest version. Right after a fresh
// schema.sql bootstrap no version is recorded yet, so the migrations
// run over the existing tables; their CREATE ... IF NOT EXISTS
// statements leave those tables as they are.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m.Close() is not called: WithInstance shares db.DB's connection,
	// which this DB owns and closes separately.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: migrate up: %w", err)
	}
	return nil
}

// AttachAdminRoutes mounts tailsql live SQL debugging and an on-demand
// VACUUM INTO backup handler under mux's /debug tree, exactly as the
// teacher's top-level db.AttachAdminRoutes does.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux, label string) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{RoutePrefix: "/debug/tailsql/"})
	if err != nil {
		return fmt.Errorf("sqlite: tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+label, db.DB, &tailsql.DBOptions{Label: label})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a database backup now", http.HandlerFunc(db.handleBackup))
	return nil
}

func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := fmt.Sprintf("backup-%d.db", time.Now().UnixNano())
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("backup failed: %v", err), http.StatusInternalServerError)
		return
	}
	defer os.Remove(backupPath)

	f, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("open backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", backupPath))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		db.log.Error("backup stream failed", "err", err)
	}
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.DB.Close()
}
