package storage

import (
	"fmt"
	"strings"

	"botmon/internal/registry"
	logx "botmon/pkg/logx"
)

// Open initializes the configured backend.
// An empty driver selects the in-memory store.
func Open(cfg Config, log logx.Logger) (registry.Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"))

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if strings.TrimSpace(cfg.Table) == "" {
		cfg.Table = defaultTable
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}

	var (
		st  registry.Store
		err error
	)
	switch driver {
	case "", "memory", "mem":
		driver = "memory"
		st = NewMemory()
	case "file":
		st, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		st, err = openSQLite(cfg, log)
	case "postgres", "postgresql", "pgx":
		st, err = openPostgres(cfg, log)
	case "redis":
		st, err = openRedis(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	log.Info("registry store opened", logx.String("driver", driver))
	return st, nil
}
