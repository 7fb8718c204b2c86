// snapconv moves forge snapshots between YAML files and PostgreSQL and
// compares frame hash journals.
//
// Usage:
//
//	go run ./cmd/snapconv <command> [flags]
//
// Commands: import, export, list, prune, diverge
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/l1jgo/forge/internal/component"
	"github.com/l1jgo/forge/internal/config"
	"github.com/l1jgo/forge/internal/persist"
	"github.com/l1jgo/forge/internal/snapshot"
	"go.uber.org/zap"
)

func printUsage() {
	fmt.Println("Usage: snapconv <command> [-config path] [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  import   -file path [-label name] [-hash h]   Store a YAML snapshot in PostgreSQL")
	fmt.Println("  export   -file path [-label name | -id uuid]  Write the newest (or given) snapshot to YAML")
	fmt.Println("  list     [-label name] [-limit n]             List stored snapshots")
	fmt.Println("  prune    [-label name] -keep n                Delete all but the newest n snapshots")
	fmt.Println("  diverge  -a run -b run [-from f] [-to f]      Find the first frame where two runs differ")
}

type options struct {
	file  string
	label string
	hash  string
	id    string
	limit int
	keep  int
	runA  string
	runB  string
	from  uint64
	to    uint64
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}

	var o options
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfgPath := fs.String("config", config.Path(), "config file")
	fs.StringVar(&o.file, "file", "", "snapshot YAML file")
	fs.StringVar(&o.label, "label", "", "snapshot label (defaults to snapshot.label)")
	fs.StringVar(&o.hash, "hash", "", "hash recorded with an imported snapshot")
	fs.StringVar(&o.id, "id", "", "snapshot id")
	fs.IntVar(&o.limit, "limit", 20, "rows to list")
	fs.IntVar(&o.keep, "keep", -1, "snapshots to keep")
	fs.StringVar(&o.runA, "a", "", "first run id")
	fs.StringVar(&o.runB, "b", "", "second run id")
	fs.Uint64Var(&o.from, "from", 0, "first frame")
	fs.Uint64Var(&o.to, "to", 1<<62, "last frame")
	_ = fs.Parse(os.Args[2:])

	commands := map[string]func(context.Context, *persist.DB, options) error{
		"import":  importSnapshot,
		"export":  exportSnapshot,
		"list":    listSnapshots,
		"prune":   pruneSnapshots,
		"diverge": diverge,
	}
	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err := run(*cfgPath, o, fn); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR [%s]: %v\n", cmd, err)
		os.Exit(1)
	}
}

func run(cfgPath string, o options, fn func(context.Context, *persist.DB, options) error) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.label == "" {
		o.label = cfg.Snapshot.Label
	}
	component.Register()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, zap.NewNop())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	if _, err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return fn(ctx, db, o)
}

func importSnapshot(ctx context.Context, db *persist.DB, o options) error {
	if o.file == "" {
		return fmt.Errorf("-file is required")
	}
	s, err := snapshot.LoadFile(o.file)
	if err != nil {
		return err
	}
	id, err := persist.NewSnapshotRepo(db).Save(ctx, o.label, s, o.hash)
	if err != nil {
		return err
	}
	fmt.Printf("  %s -> %s (label %s, frame %d, %d active)\n", o.file, id, o.label, s.Frame, len(s.Active))
	return nil
}

func exportSnapshot(ctx context.Context, db *persist.DB, o options) error {
	if o.file == "" {
		return fmt.Errorf("-file is required")
	}
	repo := persist.NewSnapshotRepo(db)
	var (
		s   *snapshot.Snapshot
		row *persist.SnapshotRow
		err error
	)
	if o.id != "" {
		id, perr := uuid.Parse(o.id)
		if perr != nil {
			return fmt.Errorf("-id: %w", perr)
		}
		s, row, err = repo.Load(ctx, id)
	} else {
		s, row, err = repo.Latest(ctx, o.label)
	}
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("no snapshot found")
	}
	if err := snapshot.SaveFile(o.file, s); err != nil {
		return err
	}
	fmt.Printf("  %s -> %s (frame %d, hash %s)\n", row.ID, o.file, row.Frame, row.Hash)
	return nil
}

func listSnapshots(ctx context.Context, db *persist.DB, o options) error {
	rows, err := persist.NewSnapshotRepo(db).List(ctx, o.label, o.limit)
	if err != nil {
		return err
	}
	for _, r := range rows {
		fmt.Printf("  %s  %-12s frame %-10d %s  %s\n",
			r.ID, r.Label, r.Frame, r.CreatedAt.Format(time.RFC3339), r.Hash)
	}
	fmt.Printf("  %d snapshot(s)\n", len(rows))
	return nil
}

func pruneSnapshots(ctx context.Context, db *persist.DB, o options) error {
	if o.keep < 0 {
		return fmt.Errorf("-keep is required")
	}
	n, err := persist.NewSnapshotRepo(db).Prune(ctx, o.label, o.keep)
	if err != nil {
		return err
	}
	fmt.Printf("  pruned %d snapshot(s) under %s\n", n, o.label)
	return nil
}

func diverge(ctx context.Context, db *persist.DB, o options) error {
	a, err := uuid.Parse(o.runA)
	if err != nil {
		return fmt.Errorf("-a: %w", err)
	}
	b, err := uuid.Parse(o.runB)
	if err != nil {
		return fmt.Errorf("-b: %w", err)
	}
	journal := persist.NewHashLog(db, a)
	ha, err := journal.Hashes(ctx, a, o.from, o.to)
	if err != nil {
		return err
	}
	hb, err := journal.Hashes(ctx, b, o.from, o.to)
	if err != nil {
		return err
	}
	if frame, ok := persist.Diverged(ha, hb); ok {
		fmt.Printf("  runs diverge at frame %d\n", frame)
		return nil
	}
	fmt.Printf("  no divergence (%d and %d frames compared)\n", len(ha), len(hb))
	return nil
}
