package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/l1jgo/forge/internal/config"
	"github.com/l1jgo/forge/internal/persist"
	"github.com/l1jgo/forge/internal/snapshot"
	"go.uber.org/zap"
)

// store is where the daemon keeps snapshots and frame hashes.
type store interface {
	// Load returns the newest snapshot, or nil when there is none.
	Load(ctx context.Context) (*snapshot.Snapshot, error)
	Save(ctx context.Context, s *snapshot.Snapshot, hash string) error
	RecordHash(frame uint64, hash string)
	Flush(ctx context.Context) error
	Close() error
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store, error) {
	switch cfg.Snapshot.Store {
	case "postgres":
		return openPGStore(ctx, cfg, log)
	default:
		return &fileStore{path: cfg.Snapshot.Path, log: log}, nil
	}
}

// fileStore keeps a single YAML snapshot on disk. Hashes only go to the log.
type fileStore struct {
	path string
	log  *zap.Logger
}

func (s *fileStore) Load(context.Context) (*snapshot.Snapshot, error) {
	snap, err := snapshot.LoadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return snap, err
}

func (s *fileStore) Save(_ context.Context, snap *snapshot.Snapshot, hash string) error {
	if err := snapshot.SaveFile(s.path, snap); err != nil {
		return err
	}
	s.log.Info("snapshot saved",
		zap.String("path", s.path),
		zap.Uint64("frame", snap.Frame),
		zap.String("hash", hash),
	)
	return nil
}

func (s *fileStore) RecordHash(frame uint64, hash string) {
	s.log.Debug("frame hash", zap.Uint64("frame", frame), zap.String("hash", hash))
}

func (s *fileStore) Flush(context.Context) error { return nil }
func (s *fileStore) Close() error                { return nil }

// pgStore keeps labelled snapshots and the hash journal in PostgreSQL.
type pgStore struct {
	db     *persist.DB
	repo   *persist.SnapshotRepo
	hashes *persist.HashLog
	label  string
	log    *zap.Logger
}

func openPGStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*pgStore, error) {
	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if _, err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	run := uuid.New()
	log.Info("hash journal started", zap.Stringer("run", run))
	return &pgStore{
		db:     db,
		repo:   persist.NewSnapshotRepo(db),
		hashes: persist.NewHashLog(db, run),
		label:  cfg.Snapshot.Label,
		log:    log,
	}, nil
}

func (s *pgStore) Load(ctx context.Context) (*snapshot.Snapshot, error) {
	snap, row, err := s.repo.Latest(ctx, s.label)
	if err != nil || snap == nil {
		return nil, err
	}
	s.log.Info("snapshot found",
		zap.Stringer("id", row.ID),
		zap.String("label", row.Label),
		zap.Uint64("frame", row.Frame),
		zap.Time("created_at", row.CreatedAt),
	)
	return snap, nil
}

func (s *pgStore) Save(ctx context.Context, snap *snapshot.Snapshot, hash string) error {
	id, err := s.repo.Save(ctx, s.label, snap, hash)
	if err != nil {
		return err
	}
	s.log.Info("snapshot saved",
		zap.Stringer("id", id),
		zap.Uint64("frame", snap.Frame),
		zap.String("hash", hash),
	)
	return s.Flush(ctx)
}

func (s *pgStore) RecordHash(frame uint64, hash string) { s.hashes.Record(frame, hash) }

func (s *pgStore) Flush(ctx context.Context) error { return s.hashes.Flush(ctx) }

func (s *pgStore) Close() error { return s.db.Close() }
