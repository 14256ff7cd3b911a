// Package store persists per-subject QC metrics in SQLite: one table per
// modality, one row per subject, columns that only ever grow.
package store

import (
	"database/sql"
	"fmt"

	"github.com/franz/neuroqc/internal/util"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	currentSchemaVersion = 2
)

// FileName is the store's file name inside the database directory
const FileName = "subject-qc.db"

// Store is the metrics store
type Store struct {
	db *sql.DB
}

// OpenOptions holds options for opening a database
type OpenOptions struct {
	NetworkOptimized bool // Apply network-optimized pragmas
}

// Open opens or creates a SQLite database at the given path with default options
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, nil)
}

// OpenWithOptions opens or creates a SQLite database with custom options
func OpenWithOptions(path string, opts *OpenOptions) (*Store, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}

	// modernc applies _pragma parameters on every new connection
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: open")
	}

	// Metrics are written through a single serial connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}

	if opts.NetworkOptimized {
		if err := store.applyNetworkPragmas(); err != nil {
			db.Close()
			return nil, eris.Wrap(err, "store: network pragmas")
		}
	}

	// a dashboard reading the store can hold the lock briefly
	if err := util.StoreBackoff.Retry("store migration", store.migrate); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "store: migration failed")
	}

	return store, nil
}

// applyNetworkPragmas applies SQLite optimizations for network filesystems
func (s *Store) applyNetworkPragmas() error {
	pragmas := []string{
		// NORMAL is safe with WAL: fsync at checkpoints only
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		// negative value is KiB
		"PRAGMA cache_size = -16000",
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return eris.Wrapf(err, "execute %s", pragma)
		}
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SQLiteVersion returns the SQLite version string
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return ""
	}
	return version
}

// CheckIntegrity runs PRAGMA integrity_check on the database
func (s *Store) CheckIntegrity() error {
	var result string
	if err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return eris.Wrap(err, "store: integrity check query")
	}
	if result != "ok" {
		return eris.Wrapf(util.ErrCorrupt, "integrity check failed: %s", result)
	}
	return nil
}

// SchemaVersion returns the applied schema version
func (s *Store) SchemaVersion() (int, error) {
	return s.getSchemaVersion()
}

// migrate applies database migrations
func (s *Store) migrate() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}
	if version >= currentSchemaVersion {
		return nil
	}

	return s.Transaction(func(tx *sql.Tx) error {
		// v1: base tables, keyed by subject
		if version < 1 {
			if _, err := tx.Exec(schemaV1); err != nil {
				return eris.Wrap(err, "apply schema v1")
			}
			if err := s.setSchemaVersion(tx, 1); err != nil {
				return eris.Wrap(err, "set schema version")
			}
		}

		// v2: known metric columns and the extension table
		if version < 2 {
			if err := applySchemaV2(tx); err != nil {
				return eris.Wrap(err, "apply schema v2")
			}
			if err := s.setSchemaVersion(tx, 2); err != nil {
				return eris.Wrap(err, "set schema version")
			}
		}

		return nil
	})
}

// getSchemaVersion returns the current schema version
func (s *Store) getSchemaVersion() (int, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&exists)
	if err != nil {
		return 0, err
	}

	if exists == 0 {
		return 0, nil
	}

	var version int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// setSchemaVersion records a schema version in a transaction
func (s *Store) setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// Transaction executes a function within a transaction
func (s *Store) Transaction(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return eris.Wrap(err, "store: begin transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "store: commit transaction")
	}
	return nil
}
