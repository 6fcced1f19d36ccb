// Package state persists the station endpoint across process restarts.
package state

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Endpoint is a host/port pair for the station device
type Endpoint struct {
	Host string
	Port int
}

// Addr returns the endpoint formatted for net.Dial
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Store is the persistence interface the station registry writes through
type Store interface {
	Load() (Endpoint, bool, error)
	Save(Endpoint) error
	Close() error
}

// SQLiteStore implements Store on a single-row SQLite table
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (and if necessary bootstraps) the state database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping state database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS station_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			hostname TEXT NOT NULL,
			port INTEGER NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create station_state table: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Load returns the persisted endpoint, with found=false when no
// endpoint has been recorded yet
func (s *SQLiteStore) Load() (Endpoint, bool, error) {
	var ep Endpoint

	row := s.db.QueryRow(`SELECT hostname, port FROM station_state WHERE id = 1`)
	err := row.Scan(&ep.Host, &ep.Port)
	if err == sql.ErrNoRows {
		return Endpoint{}, false, nil
	}
	if err != nil {
		return Endpoint{}, false, fmt.Errorf("failed to load station endpoint: %w", err)
	}

	return ep, true, nil
}

// Save records the endpoint, replacing any previous value
func (s *SQLiteStore) Save(ep Endpoint) error {
	_, err := s.db.Exec(`
		INSERT INTO station_state (id, hostname, port, updated_at)
		VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			hostname = excluded.hostname,
			port = excluded.port,
			updated_at = CURRENT_TIMESTAMP
	`, ep.Host, ep.Port)
	if err != nil {
		return fmt.Errorf("failed to save station endpoint: %w", err)
	}

	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
