package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kopfenjager/Vision-crm-agent/internal/common"
)

// ErrNotFound is returned by Get when no artifact exists under the key.
var ErrNotFound = errors.New("face artifact not found")

// FaceStore persists face crops keyed by customer id.
// Save returns the reference placed in the response envelope.
type FaceStore interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Backend is a FaceStore that owns resources.
type Backend interface {
	FaceStore
	io.Closer
	Name() string
}

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg common.StorageConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		b   Backend
		err error
	)
	switch cfg.Backend {
	case "", "fs":
		var s *FSStore
		if s, err = NewFSStore(cfg.FaceDir, logger); err == nil {
			b = s
		}
	case "memory":
		b = NewMemoryStore()
	case "sqlite":
		var s *SQLiteStore
		if s, err = OpenSQLite(ctx, cfg.SQLitePath, logger); err == nil {
			b = s
		}
	case "postgres":
		pool, perr := OpenPool(ctx, PoolConfig{DSN: cfg.DSN, MaxConns: cfg.MaxConns}, logger)
		if perr != nil {
			return nil, perr
		}
		var s *PostgresStore
		if s, err = NewPostgresStore(ctx, pool, logger); err == nil {
			b = s
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("storage.open", "backend", b.Name())
	return b, nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("empty storage key")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}
