package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"botmon/internal/registry"
	logx "botmon/pkg/logx"
)

// dialect covers the few spots where sqlite and postgres differ.
type dialect struct {
	name       string
	positional bool // $1, $2 ... instead of ?
}

var (
	dialectSQLite   = dialect{name: "sqlite"}
	dialectPostgres = dialect{name: "postgres", positional: true}
)

var reIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// sqlStore keeps one row per (subject_id, watcher_id) with an index on
// watcher_id, mirroring the key-value layout the other backends use.
type sqlStore struct {
	db      *sql.DB
	log     logx.Logger
	d       dialect
	table   string
	timeout time.Duration

	qAdd, qRemove, qBySubject, qByWatcher string
}

func openSQLite(cfg Config, log logx.Logger) (*sqlStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	return newSQLStore(db, dialectSQLite, cfg, log)
}

func openPostgres(cfg Config, log logx.Logger) (*sqlStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return newSQLStore(db, dialectPostgres, cfg, log)
}

func newSQLStore(db *sql.DB, d dialect, cfg Config, log logx.Logger) (*sqlStore, error) {
	table := strings.TrimSpace(cfg.Table)
	if !reIdent.MatchString(table) {
		_ = db.Close()
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	s := &sqlStore{db: db, log: log, d: d, table: table, timeout: cfg.OpTimeout}
	s.qAdd = s.rebind(`INSERT INTO ` + table + ` (subject_id, watcher_id, added_at) VALUES (?, ?, ?)
		ON CONFLICT (subject_id, watcher_id) DO UPDATE SET added_at = excluded.added_at`)
	s.qRemove = s.rebind(`DELETE FROM ` + table + ` WHERE subject_id = ? AND watcher_id = ?`)
	s.qBySubject = s.rebind(`SELECT subject_id, watcher_id FROM ` + table + ` WHERE subject_id = ? ORDER BY watcher_id`)
	s.qByWatcher = s.rebind(`SELECT subject_id, watcher_id FROM ` + table + ` WHERE watcher_id = ? ORDER BY subject_id`)

	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			subject_id TEXT NOT NULL,
			watcher_id TEXT NOT NULL,
			added_at   BIGINT NOT NULL,
			PRIMARY KEY (subject_id, watcher_id)
		)`,
		`CREATE INDEX IF NOT EXISTS ` + s.table + `_watcher_idx ON ` + s.table + ` (watcher_id)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("%s migrate: %w", s.d.name, err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders for dialects that use $n.
func (s *sqlStore) rebind(q string) string {
	if !s.d.positional {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *sqlStore) Add(ctx context.Context, e registry.Entry) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, s.qAdd, e.SubjectID, e.WatcherID, time.Now().UnixMilli())
	return err
}

func (s *sqlStore) Remove(ctx context.Context, e registry.Entry) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, s.qRemove, e.SubjectID, e.WatcherID)
	return err
}

func (s *sqlStore) FetchBySubject(ctx context.Context, subjectID string) ([]registry.Entry, error) {
	return s.query(ctx, s.qBySubject, subjectID)
}

func (s *sqlStore) FetchByWatcher(ctx context.Context, watcherID string) ([]registry.Entry, error) {
	return s.query(ctx, s.qByWatcher, watcherID)
}

func (s *sqlStore) query(ctx context.Context, q, arg string) ([]registry.Entry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []registry.Entry{}
	for rows.Next() {
		var e registry.Entry
		if err := rows.Scan(&e.SubjectID, &e.WatcherID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqlStore) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
