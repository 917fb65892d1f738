package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/factoryforge/simcore/internal/savegame"
	"github.com/factoryforge/simcore/internal/world"
	"github.com/jackc/pgx/v5"
)

// SnapshotRepo keeps one world snapshot per save slot and a history row
// for every save. It implements savegame.Store.
type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Save replaces the slot's snapshot and appends a history entry in a
// single transaction.
func (r *SnapshotRepo) Save(ctx context.Context, slot string, snap *world.Snapshot) error {
	body, err := savegame.Encode(snap)
	if err != nil {
		return err
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO snapshots (slot, seed, tick, entities, body, saved_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (slot) DO UPDATE
		 SET seed = EXCLUDED.seed, tick = EXCLUDED.tick, entities = EXCLUDED.entities,
		     body = EXCLUDED.body, saved_at = now()`,
		slot, snap.Seed, int64(snap.Tick), len(snap.Entities), body,
	); err != nil {
		return fmt.Errorf("snapshot upsert: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO snapshot_history (slot, tick) VALUES ($1, $2)`,
		slot, int64(snap.Tick),
	); err != nil {
		return fmt.Errorf("snapshot history: %w", err)
	}
	return tx.Commit(ctx)
}

// Load returns the slot's snapshot or savegame.ErrNoSave.
func (r *SnapshotRepo) Load(ctx context.Context, slot string) (*world.Snapshot, error) {
	var body []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT body FROM snapshots WHERE slot = $1`, slot,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, savegame.ErrNoSave
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", slot, err)
	}
	return savegame.Decode(body)
}

// SlotInfo summarises one saved slot.
type SlotInfo struct {
	Slot     string
	Seed     int64
	Tick     int64
	Entities int32
}

// ListSlots returns every saved slot ordered by name.
func (r *SnapshotRepo) ListSlots(ctx context.Context) ([]SlotInfo, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT slot, seed, tick, entities FROM snapshots ORDER BY slot`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SlotInfo
	for rows.Next() {
		var s SlotInfo
		if err := rows.Scan(&s.Slot, &s.Seed, &s.Tick, &s.Entities); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// Slots lists slot names; it satisfies savegame.Lister.
func (r *SnapshotRepo) Slots(ctx context.Context) ([]string, error) {
	infos, err := r.ListSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	names := make([]string, len(infos))
	for i, s := range infos {
		names[i] = s.Slot
	}
	return names, nil
}
