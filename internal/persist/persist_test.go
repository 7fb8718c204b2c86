package persist

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/l1jgo/forge/internal/config"
	"github.com/l1jgo/forge/internal/core/ecs"
	"github.com/l1jgo/forge/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mark struct {
	V int `yaml:"v"`
}

func init() { ecs.RegisterComponent[mark]("mark") }

func TestDiverged(t *testing.T) {
	a := []HashEntry{{1, "a"}, {2, "b"}, {3, "c"}}
	_, ok := Diverged(a, []HashEntry{{2, "b"}, {3, "c"}, {4, "d"}})
	assert.False(t, ok)

	f, ok := Diverged(a, []HashEntry{{1, "a"}, {2, "x"}, {3, "y"}})
	require.True(t, ok)
	assert.EqualValues(t, 2, f)
}

// openTestDB connects to FORGE_TEST_DSN and migrates it; tests using it are
// skipped when the variable is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("FORGE_TEST_DSN")
	if dsn == "" {
		t.Skip("FORGE_TEST_DSN not set")
	}
	ctx := context.Background()
	db, err := NewDB(ctx, config.DatabaseConfig{
		DSN:             dsn,
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	version, err := db.Migrate(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, version)
	return db
}

func TestSnapshotRepoSaveLatest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewSnapshotRepo(db)
	label := "test-" + uuid.NewString()

	none, row, err := repo.Latest(ctx, label)
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.Nil(t, row)

	s := &snapshot.Snapshot{
		Frame: 7,
		Pool:  ecs.PoolState{Generations: []uint32{0, 0}, NextIndex: 2},
		Active: []snapshot.Entity{{
			ID:         ecs.NewEntityID(1, 0),
			Components: snapshot.Components{"mark": mark{V: 3}},
		}},
	}
	id, err := repo.Save(ctx, label, s, "abc")
	require.NoError(t, err)

	got, row, err := repo.Latest(ctx, label)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, row.ID)
	assert.EqualValues(t, 7, row.Frame)
	assert.Equal(t, "abc", row.Hash)
	assert.Equal(t, mark{V: 3}, got.Active[0].Components["mark"])

	byID, _, err := repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, got, byID)

	rows, err := repo.List(ctx, label, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	n, err := repo.Prune(ctx, label, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestHashLogFlush(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	log := NewHashLog(db, uuid.New())

	require.NoError(t, log.Flush(ctx))
	log.Record(1, "h1")
	log.Record(2, "h2")
	assert.Equal(t, 2, log.Pending())
	require.NoError(t, log.Flush(ctx))
	assert.Zero(t, log.Pending())

	got, err := log.Hashes(ctx, log.Run(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []HashEntry{{1, "h1"}, {2, "h2"}}, got)
}
