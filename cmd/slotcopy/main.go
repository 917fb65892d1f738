// slotcopy copies a save slot, world snapshot and chunk records, between
// the file store and PostgreSQL.
//
// Usage:
//
//	go run ./cmd/slotcopy -from file -to postgres -slot default [-as name] [-replace] [-config path]
//	go run ./cmd/slotcopy -list -from postgres
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/factoryforge/simcore/internal/chunk"
	"github.com/factoryforge/simcore/internal/config"
	"github.com/factoryforge/simcore/internal/persist"
	"github.com/factoryforge/simcore/internal/savegame"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type chunkStore interface {
	chunk.Store
	chunk.Lister
}

// slotPurger removes a whole slot in one statement.
type slotPurger interface {
	DeleteSlot(ctx context.Context, slot string) (int64, error)
}

type backend struct {
	chunks chunkStore
	saves  interface {
		savegame.Store
		savegame.Lister
	}
	close func()
}

func open(ctx context.Context, kind string, cfg *config.Config) (*backend, error) {
	switch kind {
	case "file":
		return &backend{
			chunks: chunk.NewFileStore(cfg.Storage.Dir),
			saves:  savegame.Files{Dir: cfg.Storage.Dir},
			close:  func() {},
		}, nil
	case "postgres":
		db, err := persist.NewDB(ctx, cfg.Database, zap.NewNop())
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &backend{
			chunks: persist.NewChunkRepo(db),
			saves:  persist.NewSnapshotRepo(db),
			close:  db.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", kind)
}

func main() {
	cfgPath := flag.String("config", "config/sim.toml", "config file for storage dir and database dsn")
	from := flag.String("from", "file", "source backend: file or postgres")
	to := flag.String("to", "postgres", "target backend: file or postgres")
	slot := flag.String("slot", "default", "slot to copy")
	as := flag.String("as", "", "target slot name (default: same as -slot)")
	workers := flag.Int("workers", 8, "parallel chunk copies")
	replace := flag.Bool("replace", false, "delete the target slot's chunks before copying")
	list := flag.Bool("list", false, "list the slots saved in the -from backend and exit")
	flag.Parse()

	if *as == "" {
		*as = *slot
	}
	if !*list && *from == *to && *as == *slot {
		fmt.Fprintln(os.Stderr, "source and target are the same slot")
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if *list {
		b, err := open(ctx, *from, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open %s: %v\n", *from, err)
			os.Exit(1)
		}
		defer b.close()
		names, err := b.saves.Slots(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return
	}

	src, err := open(ctx, *from, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *from, err)
		os.Exit(1)
	}
	defer src.close()
	dst, err := open(ctx, *to, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *to, err)
		os.Exit(1)
	}
	defer dst.close()

	if *replace {
		removed, err := purgeSlot(ctx, dst.chunks, *as)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("Removed %d chunks from %s (%s)\n", removed, *as, *to)
	}

	n, err := copySlot(ctx, src, dst, *slot, *as, *workers)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("Copied slot %s (%s) to %s (%s): snapshot and %d chunks\n", *slot, *from, *as, *to, n)
}

func copySlot(ctx context.Context, src, dst *backend, slot, as string, workers int) (int, error) {
	snap, err := src.saves.Load(ctx, slot)
	if err != nil {
		return 0, fmt.Errorf("read snapshot: %w", err)
	}
	if err := dst.saves.Save(ctx, as, snap); err != nil {
		return 0, fmt.Errorf("write snapshot: %w", err)
	}

	coords, err := src.chunks.List(ctx, slot)
	if err != nil {
		return 0, fmt.Errorf("list chunks: %w", err)
	}
	var copied atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, c := range coords {
		g.Go(func() error {
			rec, err := src.chunks.Load(gctx, slot, c)
			if err != nil {
				return fmt.Errorf("read chunk %s: %w", c, err)
			}
			if err := dst.chunks.Save(gctx, as, rec); err != nil {
				return fmt.Errorf("write chunk %s: %w", c, err)
			}
			copied.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return int(copied.Load()), err
}

// purgeSlot deletes every chunk record of slot.
func purgeSlot(ctx context.Context, chunks chunkStore, slot string) (int64, error) {
	if p, ok := chunks.(slotPurger); ok {
		return p.DeleteSlot(ctx, slot)
	}
	coords, err := chunks.List(ctx, slot)
	if err != nil {
		return 0, fmt.Errorf("list chunks: %w", err)
	}
	for _, c := range coords {
		if err := chunks.Delete(ctx, slot, c); err != nil {
			return 0, fmt.Errorf("delete chunk %s: %w", c, err)
		}
	}
	return int64(len(coords)), nil
}
