package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/factoryforge/simcore/internal/chunk"
	"github.com/jackc/pgx/v5"
)

// ChunkRepo stores chunk records in PostgreSQL. It implements chunk.Store
// and is safe for concurrent use by the chunk writer and save workers.
type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) Load(ctx context.Context, slot string, c chunk.Coord) (*chunk.Record, error) {
	var (
		terrain  []byte
		entities []int64
	)
	err := r.db.Pool.QueryRow(ctx,
		`SELECT terrain, entities FROM chunks WHERE slot = $1 AND cx = $2 AND cy = $3`,
		slot, c.X, c.Y,
	).Scan(&terrain, &entities)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chunk.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load chunk %s/%s: %w", slot, c, err)
	}
	rec := &chunk.Record{Coord: c, Terrain: terrain}
	if len(entities) > 0 {
		rec.Entities = make([]uint64, len(entities))
		for i, e := range entities {
			rec.Entities[i] = uint64(e)
		}
	}
	return rec, nil
}

// Save upserts one record keyed by (slot, cx, cy).
func (r *ChunkRepo) Save(ctx context.Context, slot string, rec *chunk.Record) error {
	entities := make([]int64, len(rec.Entities))
	for i, e := range rec.Entities {
		entities[i] = int64(e)
	}
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO chunks (slot, cx, cy, terrain, entities, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (slot, cx, cy) DO UPDATE
		 SET terrain = EXCLUDED.terrain, entities = EXCLUDED.entities, updated_at = now()`,
		slot, rec.Coord.X, rec.Coord.Y, rec.Terrain, entities,
	)
	if err != nil {
		return fmt.Errorf("save chunk %s/%s: %w", slot, rec.Coord, err)
	}
	return nil
}

func (r *ChunkRepo) Delete(ctx context.Context, slot string, c chunk.Coord) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM chunks WHERE slot = $1 AND cx = $2 AND cy = $3`, slot, c.X, c.Y,
	)
	if err != nil {
		return fmt.Errorf("delete chunk %s/%s: %w", slot, c, err)
	}
	return nil
}

// DeleteSlot removes every chunk of a save slot.
func (r *ChunkRepo) DeleteSlot(ctx context.Context, slot string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM chunks WHERE slot = $1`, slot)
	if err != nil {
		return 0, fmt.Errorf("delete slot %s: %w", slot, err)
	}
	return tag.RowsAffected(), nil
}

// List returns the coordinates stored for slot, sorted row-major.
func (r *ChunkRepo) List(ctx context.Context, slot string) ([]chunk.Coord, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT cx, cy FROM chunks WHERE slot = $1 ORDER BY cy, cx`, slot,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []chunk.Coord
	for rows.Next() {
		var c chunk.Coord
		if err := rows.Scan(&c.X, &c.Y); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
