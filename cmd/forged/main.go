// forged runs a forge world: it restores the latest snapshot (or spawns the
// configured templates into an empty world), advances frames on a ticker and
// saves snapshots on the persistence cadence and at shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/l1jgo/forge/internal/component"
	"github.com/l1jgo/forge/internal/config"
	"github.com/l1jgo/forge/internal/core/ecs"
	"github.com/l1jgo/forge/internal/core/engine"
	"github.com/l1jgo/forge/internal/core/event"
	"github.com/l1jgo/forge/internal/data"
	"github.com/l1jgo/forge/internal/scripting"
	"github.com/l1jgo/forge/internal/system"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	// 1. Load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Open the snapshot store
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	st, err := openStore(openCtx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	// 4. Load data
	component.Register()
	templates, err := data.LoadTemplateTable(cfg.Data.Templates)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	log.Info("templates loaded", zap.Int("count", templates.Count()))

	// 5. Build the engine and its systems
	bus := event.NewBus()
	eng, err := engine.New(engine.Options{
		MaxWorkers: cfg.Engine.MaxWorkers,
		Bus:        bus,
		Log:        log,
	})
	if err != nil {
		return err
	}
	w := eng.World()
	events := system.NewEventLog(bus, log)
	event.Subscribe(bus, func(id ecs.EntityID, ev scripting.Event) {
		log.Info("script event",
			zap.String("script", ev.Script),
			zap.Stringer("entity", id),
			zap.Any("data", ev.Data),
		)
	})
	persistence := system.NewPersistenceSystem(cfg.Snapshot.SaveEvery)
	triggers := []any{
		system.NewInputSystem(w, templates, log),
		system.NewMovementSystem(),
		system.NewLifetimeSystem(w),
		system.NewRegenSystem(),
		system.NewDeathSystem(w),
		persistence,
	}

	scripts, err := scripting.LoadDir(cfg.Scripting.Dir, scripting.Options{Log: log, Remover: w})
	if err != nil {
		return fmt.Errorf("load scripts: %w", err)
	}
	defer func() {
		for _, s := range scripts {
			s.Close()
		}
	}()
	for _, s := range scripts {
		triggers = append(triggers, s.Trigger())
	}
	for _, trig := range triggers {
		if err := eng.Register(trig); err != nil {
			return err
		}
	}
	log.Info("systems registered",
		zap.Int("systems", len(eng.Systems())),
		zap.Int("scripts", len(scripts)),
	)

	// 6. Restore or seed the world
	snap, err := st.Load(openCtx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap != nil {
		if err := eng.Restore(snap); err != nil {
			return err
		}
	} else {
		for _, name := range cfg.Data.Spawn {
			if _, err := templates.Spawn(w, name); err != nil {
				return fmt.Errorf("spawn: %w", err)
			}
		}
		log.Info("world seeded", zap.Int("entities", len(cfg.Data.Spawn)))
	}
	cancel()

	// 7. Run frames
	loopErr := loop(ctx, cfg, eng, st, persistence, log)

	expired, died, healed := events.Totals()
	log.Info("shutting down",
		zap.Uint64("frame", eng.Frame()),
		zap.Int("expired", expired),
		zap.Int("died", died),
		zap.Int64("healed", healed),
	)

	// The failed engine's world is not saved; the last good snapshot stays.
	if eng.Failed() != nil {
		return loopErr
	}
	saveCtx, cancelSave := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelSave()
	return multierr.Combine(loopErr, save(saveCtx, eng, st))
}

func loop(ctx context.Context, cfg *config.Config, eng *engine.Engine, st store, persistence *system.PersistenceSystem, log *zap.Logger) error {
	ticker := time.NewTicker(cfg.Engine.TickRate)
	defer ticker.Stop()
	log.Info("frame loop started",
		zap.Duration("tick", cfg.Engine.TickRate),
		zap.Uint64("frame", eng.Frame()),
	)

	for {
		select {
		case <-ctx.Done():
			log.Info("signal received")
			return nil
		case <-ticker.C:
		}

		// Frames run to completion even while shutting down.
		f := eng.Advance(context.Background(), nil)
		if err := f.Wait(); err != nil {
			return fmt.Errorf("frame %d: %w", f.Number(), err)
		}
		n := f.Number()

		if every := cfg.Engine.HashEvery; every > 0 && n%every == 0 {
			h, err := eng.Hash()
			if err != nil {
				return err
			}
			st.RecordHash(n, h)
		}
		if persistence.Due() {
			if err := save(ctx, eng, st); err != nil {
				log.Error("periodic save failed", zap.Error(err))
			}
		}
		if cfg.Engine.MaxFrames > 0 && n >= cfg.Engine.MaxFrames {
			log.Info("frame limit reached", zap.Uint64("frame", n))
			return nil
		}
	}
}

func save(ctx context.Context, eng *engine.Engine, st store) error {
	snap, err := eng.Export()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	h, err := eng.Hash()
	if err != nil {
		return err
	}
	if err := st.Save(ctx, snap, h); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return st.Flush(ctx)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
