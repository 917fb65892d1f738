package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/factoryforge/simcore/internal/chunk"
	"github.com/factoryforge/simcore/internal/component"
	"github.com/factoryforge/simcore/internal/config"
	"github.com/factoryforge/simcore/internal/data"
	"github.com/factoryforge/simcore/internal/persist"
	"github.com/factoryforge/simcore/internal/savegame"
	"github.com/factoryforge/simcore/internal/scripting"
	"github.com/factoryforge/simcore/internal/sim"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(slot string, seed int64) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m           FactoryForge  simcore           \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mslot:\033[0m %s \033[90m(seed %d)\033[0m\n\n", slot, seed)
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-len(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main simulation logic ──────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/sim.toml"
	if p := os.Getenv("FACTORYFORGE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Storage.Slot, cfg.Simulation.Seed)

	// 3. Prototypes
	printSection("data")
	protos, err := data.LoadPrototypes(cfg.Data.Prototypes)
	if err != nil {
		return fmt.Errorf("prototypes: %w", err)
	}
	printStat("prototypes", protos.Count())
	fmt.Println()

	// 4. Storage backend
	printSection("storage")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		store chunk.Store
		saves savegame.Store
	)
	switch cfg.Storage.Backend {
	case "postgres":
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		if err := db.RunMigrations(ctx); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		version, err := db.SchemaVersion(ctx)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		st := db.Stats()
		printOK(fmt.Sprintf("schema at version %d (%d connections)", version, st.Total))
		store = persist.NewChunkRepo(db)
		saves = persist.NewSnapshotRepo(db)
	default:
		store = chunk.NewFileStore(cfg.Storage.Dir)
		saves = savegame.Files{Dir: cfg.Storage.Dir}
		printOK(fmt.Sprintf("file store at %s", cfg.Storage.Dir))
	}

	// 5. Terrain generator
	var gen chunk.Generator
	if cfg.Scripting.TerrainScript != "" {
		script, err := scripting.LoadTerrainScript(cfg.Scripting.TerrainScript, log)
		if err != nil {
			return fmt.Errorf("terrain script: %w", err)
		}
		defer script.Close()
		gen = script
		printOK(fmt.Sprintf("Lua terrain %s", cfg.Scripting.TerrainScript))
	} else {
		printOK("built-in terrain generator")
	}
	fmt.Println()

	// 6. Simulation
	printSection("world")
	s := sim.New(sim.OptionsFromConfig(cfg), sim.Deps{
		Chunks:     store,
		Generator:  gen,
		Saves:      saves,
		Prototypes: protos,
		Log:        log,
	})
	defer s.Close()

	switch err := s.Load(ctx, cfg.Storage.Slot); {
	case err == nil:
		printOK("save restored")
	case errors.Is(err, savegame.ErrNoSave):
		n, err := seedDemo(s)
		if err != nil {
			return fmt.Errorf("seed demo: %w", err)
		}
		printOK(fmt.Sprintf("new world, %d demo entities", n))
	default:
		return fmt.Errorf("load slot %s: %w", cfg.Storage.Slot, err)
	}
	s.SetInterest(component.Tile{})
	if err := s.Chunks().ForceLoadChunksAround(ctx, component.Tile{}); err != nil {
		return fmt.Errorf("load spawn chunks: %w", err)
	}
	st := s.Stats()
	printStat("entities", st.Entities)
	printStat("resident chunks", st.Chunks)
	printStat("belts", st.Belts)
	printStat("fluid networks", st.FluidNetworks)
	fmt.Println()

	// 7. Start simulation loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Simulation.TickRate)
	defer ticker.Stop()

	printSection("running")
	printReady(fmt.Sprintf("tick %s, autosave every %d ticks", cfg.Simulation.TickRate, cfg.Simulation.AutosaveInterval))
	fmt.Println()

	const statusInterval = 60 * 60 // one minute at 60 UPS
	for {
		select {
		case <-ticker.C:
			s.Step(cfg.Simulation.TickRate)
			if s.Tick()%statusInterval == 0 {
				st := s.Stats()
				log.Info("status",
					zap.Uint64("tick", st.Tick),
					zap.Int("entities", st.Entities),
					zap.Int("chunks", st.Chunks),
					zap.Int("fluid_networks", st.FluidNetworks),
					zap.Int("save_failures", st.SaveFailures),
					zap.Int("chunk_failures", st.ChunkFailures),
					zap.Uint64("slow_ticks", st.SlowTicks))
				if log.Core().Enabled(zap.DebugLevel) {
					if err := s.CheckInvariants(); err != nil {
						log.Warn("invariant check failed", zap.Error(err))
					}
				}
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal", zap.String("signal", sig.String()))
			saveCtx, saveCancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := s.Save(saveCtx)
			saveCancel()
			if err != nil {
				return fmt.Errorf("final save: %w", err)
			}
			log.Info("simulation stopped", zap.Uint64("tick", s.Tick()))
			return nil
		}
	}
}

// seedDemo lays out a small water line and a split belt so a fresh world
// has something to simulate.
func seedDemo(s *sim.Simulation) (int, error) {
	type placement struct {
		proto string
		at    component.Tile
		dir   component.Direction
	}
	var plan []placement
	plan = append(plan, placement{"offshore-pump", component.Tile{X: 0, Y: 4}, component.North})
	for x := int32(1); x < 5; x++ {
		plan = append(plan, placement{"pipe", component.Tile{X: x, Y: 4}, component.North})
	}
	plan = append(plan,
		placement{"storage-tank", component.Tile{X: 5, Y: 4}, component.North},
		placement{"boiler", component.Tile{X: 8, Y: 4}, component.North},
		placement{"pipe", component.Tile{X: 6, Y: 4}, component.North},
		placement{"pipe", component.Tile{X: 7, Y: 4}, component.North},
	)
	for x := int32(0); x < 6; x++ {
		plan = append(plan, placement{"transport-belt", component.Tile{X: x, Y: 0}, component.East})
	}
	plan = append(plan,
		placement{"splitter", component.Tile{X: 6, Y: 0}, component.East},
		placement{"transport-belt", component.Tile{X: 7, Y: 0}, component.East},
		placement{"transport-belt", component.Tile{X: 6, Y: -1}, component.North},
		placement{"transport-belt", component.Tile{X: 6, Y: 1}, component.South},
	)
	for _, p := range plan {
		if _, err := s.Place(p.proto, p.at, p.dir); err != nil {
			return 0, err
		}
	}
	s.Belts().Insert(component.Tile{}, component.ItemStack{Item: "iron-plate", Count: 1})
	return len(plan), nil
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
