// Package engine drives frames over an ecs.World: it swaps the staging
// buffers, commits lifecycle changes, fans the per-system workers out, waits
// for them and then runs the sequential phases.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/l1jgo/forge/internal/core/ecs"
	"github.com/l1jgo/forge/internal/core/event"
	"github.com/l1jgo/forge/internal/core/system"
	"github.com/l1jgo/forge/internal/snapshot"
	"go.uber.org/zap"
)

var (
	// ErrSystemAfterEntities is returned by Register once entities exist.
	ErrSystemAfterEntities = errors.New("system registered after entities exist")
	// ErrUnmatchedRestore is returned when a snapshot carries state for a
	// restore id no registered system claims, or claims it twice.
	ErrUnmatchedRestore = errors.New("unmatched restore id")
	// ErrFrameInFlight is returned when a frame is started or the engine is
	// exported before the previous frame completed.
	ErrFrameInFlight = errors.New("frame already in flight")
	// ErrEngineFailed is returned for every frame after one aborted.
	ErrEngineFailed = errors.New("engine failed")
	// ErrWorldNotEmpty is returned by Restore once the world has entities or
	// has advanced.
	ErrWorldNotEmpty = errors.New("world not empty")
)

// Options configures New.
type Options struct {
	// Snapshot to import; nil starts an empty world.
	Snapshot *snapshot.Snapshot
	// Systems are trigger values, registered in order.
	Systems []any
	// MaxWorkers caps concurrent workers; 0 runs one goroutine per system.
	MaxWorkers int
	// Bus receives entity events at the end of each frame; a fresh bus is
	// created when nil.
	Bus *event.Bus
	Log *zap.Logger
}

// Engine advances a world frame by frame. Frames never overlap: Advance must
// be waited on before the next call.
type Engine struct {
	log    *zap.Logger
	world  *ecs.World
	runner *system.Runner
	bus    *event.Bus

	inFlight atomic.Bool
	failed   error
}

// New builds an engine, registers opts.Systems and imports opts.Snapshot.
func New(opts Options) (*Engine, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	bus := opts.Bus
	if bus == nil {
		bus = event.NewBus()
	}
	e := &Engine{
		log:    log,
		world:  ecs.NewWorld(),
		runner: system.NewRunner(opts.MaxWorkers),
		bus:    bus,
	}
	for _, trig := range opts.Systems {
		if err := e.Register(trig); err != nil {
			return nil, err
		}
	}
	if opts.Snapshot != nil {
		if err := e.Restore(opts.Snapshot); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Restore imports snap into an engine that has systems but no entities yet.
// Systems that need the world can be built against World() first and
// registered before restoring.
func (e *Engine) Restore(snap *snapshot.Snapshot) error {
	if e.inFlight.Load() {
		return ErrFrameInFlight
	}
	if e.world.HasEntities() || e.world.Frame() != 0 {
		return fmt.Errorf("import snapshot: %w", ErrWorldNotEmpty)
	}
	if err := e.importSnapshot(snap); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	e.runner.Prime(e.world)
	e.log.Info("snapshot loaded",
		zap.Uint64("frame", snap.Frame),
		zap.Int("active", len(snap.Active)),
		zap.Int("added", len(snap.Added)),
		zap.Int("removed", len(snap.Removed)),
		zap.Int("systems", len(e.runner.Systems())),
	)
	return nil
}

// Register adds a system. It fails once any entity exists.
func (e *Engine) Register(trigger any) error {
	s := system.New(trigger)
	if err := e.runner.Register(s, e.world); err != nil {
		if errors.Is(err, ecs.ErrEntitiesExist) {
			return fmt.Errorf("register %s: %w", s.Name(), ErrSystemAfterEntities)
		}
		return err
	}
	e.log.Debug("system registered",
		zap.String("system", s.Name()),
		zap.Bool("filtered", s.Filtered()),
		zap.Uint16("caps", uint16(s.Capabilities())),
	)
	return nil
}

func (e *Engine) World() *ecs.World         { return e.world }
func (e *Engine) Bus() *event.Bus           { return e.bus }
func (e *Engine) Frame() uint64             { return e.world.Frame() }
func (e *Engine) Systems() []*system.System { return e.runner.Systems() }
func (e *Engine) Singleton() *ecs.Entity    { return e.world.Singleton() }

// Create queues a new entity; it becomes active at the next frame.
func (e *Engine) Create() *ecs.Entity { return e.world.Create() }

// Failed returns the error that aborted the engine, or nil. Call it between
// frames.
func (e *Engine) Failed() error { return e.failed }

// Remove hides ent and queues its removal for the next frame.
func (e *Engine) Remove(ent *ecs.Entity) bool { return e.world.Remove(ent) }

// Frame is the completion handle of one Advance call.
type Frame struct {
	number uint64
	done   chan struct{}
	err    error
}

// Wait blocks until the frame finished and returns its error.
func (f *Frame) Wait() error {
	<-f.done
	return f.err
}

func (f *Frame) Done() <-chan struct{} { return f.done }

// Number is the frame that ran; valid after Wait.
func (f *Frame) Number() uint64 { return f.number }

// Advance starts the next frame with the given inputs and returns at once.
// The caller must Wait on the result before advancing again or reading the
// world.
func (e *Engine) Advance(ctx context.Context, inputs []any) *Frame {
	f := &Frame{done: make(chan struct{})}
	if !e.inFlight.CompareAndSwap(false, true) {
		f.err = ErrFrameInFlight
		close(f.done)
		return f
	}
	go func() {
		defer close(f.done)
		defer e.inFlight.Store(false)
		f.number, f.err = e.step(ctx, inputs)
	}()
	return f
}

// Step advances one frame and waits for it.
func (e *Engine) Step(ctx context.Context, inputs ...any) error {
	return e.Advance(ctx, inputs).Wait()
}

func (e *Engine) step(ctx context.Context, inputs []any) (frame uint64, err error) {
	if e.failed != nil {
		return e.world.Frame(), fmt.Errorf("%w: %w", ErrEngineFailed, e.failed)
	}
	frame = e.world.Frame() + 1
	start := time.Now()

	phase := "begin"
	defer func() {
		if r := recover(); r != nil {
			err = e.abort(frame, phase, fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
		}
	}()

	// Begin
	e.world.Swap()
	e.runner.Swap()
	e.world.Commit(frame)

	// Concurrent
	phase = "concurrent"
	if err := e.runner.Run(ctx); err != nil {
		return frame, e.abort(frame, phase, err)
	}
	concurrent := time.Since(start)

	// End
	phase = "end"
	e.world.End(frame)

	// Sequential
	phase = "sequential"
	if err := e.runner.Sequential(frame, inputs); err != nil {
		return frame, e.abort(frame, phase, err)
	}
	e.world.CommitSingleton()

	phase = "events"
	events := e.world.FlushEvents(e.bus.Publish)
	e.bus.Flush()

	e.log.Debug("frame",
		zap.Uint64("frame", frame),
		zap.Int("entities", e.world.Registry().Len()),
		zap.Int("inputs", len(inputs)),
		zap.Int("events", events),
		zap.Duration("concurrent", concurrent),
		zap.Duration("total", time.Since(start)),
	)
	return frame, nil
}

func (e *Engine) abort(frame uint64, phase string, err error) error {
	err = fmt.Errorf("frame %d %s: %w", frame, phase, err)
	e.failed = err
	e.log.Warn("frame aborted", zap.Uint64("frame", frame), zap.String("phase", phase), zap.Error(err))
	return err
}
