// Package cache is fuelprobe's content-addressed build cache: the
// synthesized probe module for a given input is stored keyed by a hash
// of that input, so re-running the pipeline on an unchanged module
// skips straight to the cached output. Adapted from the teacher's
// database connection manager, narrowed from a general multi-backend
// SQL pool down to one purpose-built SQLite-backed table.
package cache

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite" // pure Go driver, registered as "sqlite"

	"fuelprobe/internal/version"
)

// Cache owns a single SQLite database file holding one row per
// previously synthesized output module.
type Cache struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (if needed) and opens the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway

	const schema = `
CREATE TABLE IF NOT EXISTS probes (
	key        TEXT PRIMARY KEY,
	output     BLOB NOT NULL,
	format     TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	last_used  DATETIME NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Key hashes moduleBytes with blake2b-256 and returns the hex digest
// used as the cache's primary key.
func Key(moduleBytes []byte) string {
	sum := blake2b.Sum256(moduleBytes)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached output module bytes for key, if present and
// stamped with a format version this build can still read. An entry
// written by an incompatible format version is treated as a miss, not
// an error, so the caller simply rebuilds and overwrites it.
func (c *Cache) Get(key string) (output []byte, hit bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var format string
	row := c.db.QueryRow(`SELECT output, format FROM probes WHERE key = ?`, key)
	if err := row.Scan(&output, &format); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	if !version.Compatible(format) {
		return nil, false, nil
	}

	if _, err := c.db.Exec(`UPDATE probes SET last_used = ? WHERE key = ?`, time.Now(), key); err != nil {
		return output, true, fmt.Errorf("touch cache entry: %w", err)
	}
	return output, true, nil
}

// Put stores output under key, stamped with the current format
// version, overwriting any previous entry.
func (c *Cache) Put(key string, output []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	_, err := c.db.Exec(
		`INSERT INTO probes (key, output, format, created_at, last_used) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET output = excluded.output, format = excluded.format, last_used = excluded.last_used`,
		key, output, version.Format, now, now,
	)
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}
