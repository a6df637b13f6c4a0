package storage

import (
	"context"
	"errors"
	"strings"

	logx "tsched/pkg/logx"
)

// Store is the journal API used by the recorder and the CLI.
type Store interface {
	Append(ctx context.Context, r Record) error
	// Recent returns up to limit records for jobID in append order.
	// An empty jobID matches every record.
	Recent(ctx context.Context, jobID string, limit int) ([]Record, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
