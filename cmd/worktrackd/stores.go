package main

import (
	"context"
	"fmt"
	"log/slog"

	"worktrack/internal/config"
	"worktrack/internal/store"
	"worktrack/internal/store/file"
	"worktrack/internal/store/memory"
	"worktrack/internal/store/postgres"
	"worktrack/internal/store/rediskv"
)

// sessionBackend is what the daemon needs from the session store.
type sessionBackend interface {
	store.SessionStore
	store.JobRegistry
	store.WorkHistory
	Ping(ctx context.Context) error
}

type stores struct {
	sessions sessionBackend
	kv       store.KV
	closers  []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores builds the session store and the KV store the config selects.
// Both postgres backends share one connection pool.
func openStores(ctx context.Context, cfg *config.Config, migrate bool, logger *slog.Logger) (*stores, error) {
	s := &stores{}

	var pg *postgres.Store
	if cfg.SessionBackend == config.BackendPostgres || cfg.KVBackend == config.BackendPostgres {
		var err error
		pg, err = postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pg.Close)

		if migrate {
			logger.Info("running database migrations")
			version, err := postgres.Migrate(pg.DB())
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("migration failed: %w", err)
			}
			logger.Info("migrations completed", "version", version)
		}
	}

	var mem *memory.Store
	switch cfg.SessionBackend {
	case config.BackendPostgres:
		s.sessions = pg
	default:
		mem = memory.New()
		s.sessions = mem
	}

	switch cfg.KVBackend {
	case config.BackendPostgres:
		s.kv = pg
	case config.BackendRedis:
		kv, err := rediskv.New(ctx, rediskv.Config{Addr: cfg.RedisAddr, Namespace: "worktrack"}, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, kv.Close)
		s.kv = kv
	case config.BackendFile:
		kv, err := file.New(cfg.StateDir)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.kv = kv
	default:
		if mem == nil {
			mem = memory.New()
		}
		s.kv = mem
	}

	logger.Info("stores ready", "sessions", cfg.SessionBackend, "kv", cfg.KVBackend)
	return s, nil
}
