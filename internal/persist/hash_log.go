package persist

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HashEntry is one verification hash recorded after a frame.
type HashEntry struct {
	Frame uint64
	Hash  string
}

// HashLog journals per-frame verification hashes for one run. Record only
// buffers; Flush writes the buffered entries in a single transaction.
type HashLog struct {
	db  *DB
	run uuid.UUID

	mu      sync.Mutex
	pending []HashEntry
}

func NewHashLog(db *DB, run uuid.UUID) *HashLog {
	return &HashLog{db: db, run: run, pending: make([]HashEntry, 0, 64)}
}

func (l *HashLog) Run() uuid.UUID { return l.run }

// Record buffers a hash for the next Flush.
func (l *HashLog) Record(frame uint64, hash string) {
	l.mu.Lock()
	l.pending = append(l.pending, HashEntry{Frame: frame, Hash: hash})
	l.mu.Unlock()
}

// Pending returns the number of buffered entries.
func (l *HashLog) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Flush atomically writes the buffered entries. On failure the entries stay
// buffered for the next attempt.
func (l *HashLog) Flush(ctx context.Context) error {
	l.mu.Lock()
	batch := l.pending
	l.pending = make([]HashEntry, 0, cap(batch))
	l.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	if err := l.write(ctx, batch); err != nil {
		l.mu.Lock()
		l.pending = append(batch, l.pending...)
		l.mu.Unlock()
		return err
	}
	l.db.log.Debug("hash journal flushed",
		zap.Stringer("run", l.run),
		zap.Int("entries", len(batch)),
		zap.Uint64("last_frame", batch[len(batch)-1].Frame),
	)
	return nil
}

func (l *HashLog) write(ctx context.Context, batch []HashEntry) error {
	tx, err := l.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("hash log begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range batch {
		if _, err := tx.Exec(ctx,
			`INSERT INTO frame_hashes (run_id, frame, hash) VALUES ($1, $2, $3)
			 ON CONFLICT (run_id, frame) DO UPDATE SET hash = EXCLUDED.hash`,
			l.run, int64(e.Frame), e.Hash,
		); err != nil {
			return fmt.Errorf("hash log insert frame %d: %w", e.Frame, err)
		}
	}

	return tx.Commit(ctx)
}

// Hashes returns the journal of run between from and to inclusive, ordered
// by frame.
func (l *HashLog) Hashes(ctx context.Context, run uuid.UUID, from, to uint64) ([]HashEntry, error) {
	rows, err := l.db.Pool.Query(ctx,
		`SELECT frame, hash FROM frame_hashes
		 WHERE run_id = $1 AND frame BETWEEN $2 AND $3
		 ORDER BY frame`, run, int64(from), int64(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HashEntry
	for rows.Next() {
		var (
			frame int64
			hash  string
		)
		if err := rows.Scan(&frame, &hash); err != nil {
			return nil, err
		}
		result = append(result, HashEntry{Frame: uint64(frame), Hash: hash})
	}
	return result, rows.Err()
}

// Diverged compares two hash sequences frame by frame and returns the first
// frame where they differ. Frames present in only one sequence are ignored.
func Diverged(a, b []HashEntry) (uint64, bool) {
	byFrame := make(map[uint64]string, len(b))
	for _, e := range b {
		byFrame[e.Frame] = e.Hash
	}
	for _, e := range a {
		if h, ok := byFrame[e.Frame]; ok && h != e.Hash {
			return e.Frame, true
		}
	}
	return 0, false
}
