// Package nvram implements the key→opaque-blob store from spec §3/§6 on a
// single modernc.org/sqlite file — cgo-free, matching an embedded target
// with no native toolchain, grounded on the teacher's internal/store
// sqlite-with-embedded-migrations shape.
package nvram

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/alljoynjs/ajcore/internal/corerr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the NVRAM handle. All methods are safe for concurrent use,
// though in practice only the loop thread calls them (spec §5).
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Well-known keys, per spec §3/§6's NVRAM layout.
const (
	KeyScript     = "script"
	KeyScriptSize = "script_size"
	KeyScriptName = "script_name"
	KeyLockdown   = "lockdown"
	KeyPropPrefix = "prop."
)

// Open opens (creating if needed) the sqlite file at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindResources, "nvram.Open", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, corerr.Wrap(corerr.KindResources, "nvram.Open", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, corerr.Wrap(corerr.KindResources, "nvram.Open", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

// Exist reports whether key has a value.
func (s *Store) Exist(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	s.db.QueryRow("SELECT COUNT(*) FROM blobs WHERE key = ?", key).Scan(&n)
	return n > 0
}

// Read returns the blob stored at key.
func (s *Store) Read(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v []byte
	err := s.db.QueryRow("SELECT value FROM blobs WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, corerr.New(corerr.KindInvalid, "nvram.Read")
	}
	if err != nil {
		return nil, corerr.Wrap(corerr.KindResources, "nvram.Read", err)
	}
	return v, nil
}

// Peek returns the length of the blob stored at key, without reading it.
func (s *Store) Peek(key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow("SELECT length FROM blobs WHERE key = ?", key).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, corerr.New(corerr.KindInvalid, "nvram.Peek")
	}
	if err != nil {
		return 0, corerr.Wrap(corerr.KindResources, "nvram.Peek", err)
	}
	return n, nil
}

// Write stores value at key, replacing any existing blob.
func (s *Store) Write(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO blobs (key, value, length) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, length = excluded.length`,
		key, value, len(value))
	if err != nil {
		return corerr.Wrap(corerr.KindResources, "nvram.Write", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM blobs WHERE key = ?", key)
	if err != nil {
		return corerr.Wrap(corerr.KindResources, "nvram.Delete", err)
	}
	return nil
}

// WriteScript atomically installs the script body, its length, and its
// display name, so the §3 invariant ("script and script_size are
// created/deleted atomically from the client's perspective") holds
// structurally rather than by convention.
func (s *Store) WriteScript(body []byte, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return corerr.Wrap(corerr.KindResources, "nvram.WriteScript", err)
	}
	upsert := func(key string, value []byte) error {
		_, err := tx.Exec(`INSERT INTO blobs (key, value, length) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, length = excluded.length`,
			key, value, len(value))
		return err
	}
	if err := upsert(KeyScript, body); err != nil {
		tx.Rollback()
		return corerr.Wrap(corerr.KindResources, "nvram.WriteScript", err)
	}
	sizeBuf := []byte(fmt.Sprintf("%d", len(body)))
	if err := upsert(KeyScriptSize, sizeBuf); err != nil {
		tx.Rollback()
		return corerr.Wrap(corerr.KindResources, "nvram.WriteScript", err)
	}
	if err := upsert(KeyScriptName, []byte(name)); err != nil {
		tx.Rollback()
		return corerr.Wrap(corerr.KindResources, "nvram.WriteScript", err)
	}
	if err := tx.Commit(); err != nil {
		return corerr.Wrap(corerr.KindResources, "nvram.WriteScript", err)
	}
	return nil
}

// DeleteScript atomically removes the script body, size, and name keys —
// used on a failed install so the half-written script never lingers
// (spec §7's "half-written script is deleted" behaviour).
func (s *Store) DeleteScript() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return corerr.Wrap(corerr.KindResources, "nvram.DeleteScript", err)
	}
	for _, k := range []string{KeyScript, KeyScriptSize, KeyScriptName} {
		if _, err := tx.Exec("DELETE FROM blobs WHERE key = ?", k); err != nil {
			tx.Rollback()
			return corerr.Wrap(corerr.KindResources, "nvram.DeleteScript", err)
		}
	}
	return tx.Commit()
}
