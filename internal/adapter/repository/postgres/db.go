package postgres

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	pingAttempts = 5
	pingBackoff  = 2 * time.Second
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
// connectionString should be in the format: "host=localhost port=5432 user=postgres password=postgres dbname=errandlink sslmode=disable"
// The initial ping is retried with a short backoff so the service can
// start while Postgres is still coming up (Docker friendly).
func NewDB(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Settlement batches are short bursts of small queries; keep the pool
	// modest and recycle connections that sit idle between ticks.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	var pingErr error
	for attempt := 0; attempt < pingAttempts; attempt++ {
		if pingErr = db.Ping(); pingErr == nil {
			return &DB{DB: db}, nil
		}
		time.Sleep(pingBackoff)
	}

	db.Close()
	return nil, fmt.Errorf("failed to ping database: %w", pingErr)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
