package history

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteDriver persists session-storage records in a single table of a
// SQLite database, satisfying the "key-value" persistence tier named in
// §2. It uses modernc.org/sqlite, a pure-Go driver, so this module never
// requires cgo to ship a durable store.
type SQLiteDriver struct {
	db *sql.DB
}

// NewSQLiteDriver opens (creating if needed) a SQLite database at path and
// ensures its schema exists.
func NewSQLiteDriver(path string) (*SQLiteDriver, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite %s: %w", path, err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS session_records (
	session_key TEXT PRIMARY KEY,
	data        TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrate sqlite: %w", err)
	}
	return &SQLiteDriver{db: db}, nil
}

// Close releases the underlying database handle.
func (d *SQLiteDriver) Close() error { return d.db.Close() }

func (d *SQLiteDriver) Read(key string) (map[string]any, error) {
	var raw string
	err := d.db.QueryRow(`SELECT data FROM session_records WHERE session_key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: sqlite read %s: %w", key, err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("history: sqlite decode %s: %w", key, err)
	}
	return data, nil
}

func (d *SQLiteDriver) Write(key string, data map[string]any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(`
INSERT INTO session_records (session_key, data) VALUES (?, ?)
ON CONFLICT(session_key) DO UPDATE SET data = excluded.data`, key, string(b))
	if err != nil {
		return fmt.Errorf("history: sqlite write %s: %w", key, err)
	}
	return nil
}
