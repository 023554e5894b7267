package main

import (
	"context"
	"flag"
	"fmt"

	"gitlab.com/henri.philipps/diffdetect/storage"
	"gitlab.com/henri.philipps/diffdetect/storage/memory"
	"gitlab.com/henri.philipps/diffdetect/storage/sqldb"
	"golang.org/x/exp/slog"
)

const (
	memoryBackend   = "memory"
	postgresBackend = "postgres"
	sqliteBackend   = "sqlite"
)

type storageFlags struct {
	backend     *string
	postgresURI *string
	sqlitePath  *string
}

// addStorageFlags is registering the storage flags on fs.
func addStorageFlags(fs *flag.FlagSet) storageFlags {
	return storageFlags{
		backend:     fs.String("backend", sqliteBackend, "the storage backend (memory|postgres|sqlite)"),
		postgresURI: fs.String("pguri", "postgres://localhost?sslmode=disable", "postgres connection uri"),
		sqlitePath:  fs.String("sqlite", "diffdetect.db", "path of the sqlite database file"),
	}
}

// open is returning the configured storage backend and a func to close it.
func (f storageFlags) open(ctx context.Context, logger *slog.Logger) (storage.Storage, func(), error) {
	switch *f.backend {
	case memoryBackend:
		return memory.New(logger), func() {}, nil
	case postgresBackend:
		db, err := sqldb.OpenPostgres(ctx, *f.postgresURI, logger)
		if err != nil {
			return nil, nil, err
		}
		return db, closer(db, logger), nil
	case sqliteBackend:
		db, err := sqldb.OpenSQLite(ctx, *f.sqlitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return db, closer(db, logger), nil
	default:
		return nil, nil, fmt.Errorf("storage backend %s not supported", *f.backend)
	}
}

func closer(c interface{ Close() error }, logger *slog.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}
}
