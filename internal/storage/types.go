package storage

import (
	"errors"
	"time"
)

var (
	ErrClosed        = errors.New("storage closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Config configures the registry backend.
//
// Driver values:
//   - "memory": process-local map, lost on restart (default)
//   - "file": journal + snapshot files under Path
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL at DSN
//   - "redis": Redis at RedisURL
type Config struct {
	Driver string
	Path   string

	// DSN is the postgres connection string.
	DSN string

	// Table names the SQL table (sqlite/postgres).
	Table string

	RedisURL  string
	KeyPrefix string

	BusyTimeout time.Duration // sqlite only; 0 means default

	// CompactEvery compacts the file journal after this many writes.
	CompactEvery int

	// OpTimeout bounds each backend call that does network I/O. 0 means no bound.
	OpTimeout time.Duration
}

const (
	defaultTable     = "register"
	defaultKeyPrefix = "botmon"
)
