package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/l1jgo/forge/internal/snapshot"
	"go.uber.org/zap"
)

// SnapshotRow describes a stored snapshot without its payload.
type SnapshotRow struct {
	ID        uuid.UUID
	Label     string
	Frame     uint64
	Hash      string
	CreatedAt time.Time
}

type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Save stores s under label and returns the new row id.
func (r *SnapshotRepo) Save(ctx context.Context, label string, s *snapshot.Snapshot, hash string) (uuid.UUID, error) {
	payload, err := snapshot.Encode(s)
	if err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	if _, err := r.db.Pool.Exec(ctx,
		`INSERT INTO snapshots (id, label, frame, hash, payload) VALUES ($1, $2, $3, $4, $5)`,
		id, label, int64(s.Frame), hash, payload,
	); err != nil {
		return uuid.Nil, fmt.Errorf("save snapshot %s: %w", label, err)
	}
	r.db.log.Debug("snapshot saved",
		zap.Stringer("id", id),
		zap.String("label", label),
		zap.Uint64("frame", s.Frame),
		zap.Int("bytes", len(payload)),
	)
	return id, nil
}

// Latest returns the newest snapshot stored under label, or nil if there is
// none.
func (r *SnapshotRepo) Latest(ctx context.Context, label string) (*snapshot.Snapshot, *SnapshotRow, error) {
	return r.loadOne(ctx,
		`SELECT id, label, frame, hash, created_at, payload
		 FROM snapshots WHERE label = $1
		 ORDER BY created_at DESC, frame DESC LIMIT 1`, label)
}

// Load returns the snapshot with the given id, or nil if it does not exist.
func (r *SnapshotRepo) Load(ctx context.Context, id uuid.UUID) (*snapshot.Snapshot, *SnapshotRow, error) {
	return r.loadOne(ctx,
		`SELECT id, label, frame, hash, created_at, payload
		 FROM snapshots WHERE id = $1`, id)
}

func (r *SnapshotRepo) loadOne(ctx context.Context, query string, arg any) (*snapshot.Snapshot, *SnapshotRow, error) {
	var (
		row     SnapshotRow
		frame   int64
		payload []byte
	)
	err := r.db.Pool.QueryRow(ctx, query, arg).
		Scan(&row.ID, &row.Label, &frame, &row.Hash, &row.CreatedAt, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load snapshot: %w", err)
	}
	row.Frame = uint64(frame)
	s, err := snapshot.Decode(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot %s: %w", row.ID, err)
	}
	return s, &row, nil
}

// List returns the newest limit snapshots under label.
func (r *SnapshotRepo) List(ctx context.Context, label string, limit int) ([]SnapshotRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, label, frame, hash, created_at
		 FROM snapshots WHERE label = $1
		 ORDER BY created_at DESC LIMIT $2`, label, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SnapshotRow
	for rows.Next() {
		var (
			s     SnapshotRow
			frame int64
		)
		if err := rows.Scan(&s.ID, &s.Label, &frame, &s.Hash, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Frame = uint64(frame)
		result = append(result, s)
	}
	return result, rows.Err()
}

// Prune keeps the newest keep snapshots under label and deletes the rest.
func (r *SnapshotRepo) Prune(ctx context.Context, label string, keep int) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM snapshots WHERE label = $1 AND id NOT IN (
			SELECT id FROM snapshots WHERE label = $1 ORDER BY created_at DESC LIMIT $2
		)`, label, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots %s: %w", label, err)
	}
	return tag.RowsAffected(), nil
}
