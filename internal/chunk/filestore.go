package chunk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// FileStore keeps one YAML file per chunk under <dir>/<slot>/.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(slot string, c Coord) string {
	return filepath.Join(s.dir, slot, fmt.Sprintf("chunk_%d_%d.yaml", c.X, c.Y))
}

func (s *FileStore) Load(_ context.Context, slot string, c Coord) (*Record, error) {
	raw, err := os.ReadFile(s.path(slot, c))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read chunk %s: %w", c, err)
	}
	var rec Record
	if err := yaml.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parse chunk %s: %w", c, err)
	}
	if rec.Coord != c {
		return nil, fmt.Errorf("chunk file %s holds %s", c, rec.Coord)
	}
	return &rec, nil
}

// Save writes through a temp file and renames it over the target so a
// crash never leaves a half-written chunk.
func (s *FileStore) Save(_ context.Context, slot string, rec *Record) error {
	target := s.path(slot, rec.Coord)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create slot dir: %w", err)
	}
	raw, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode chunk %s: %w", rec.Coord, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".chunk-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write chunk %s: %w", rec.Coord, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close chunk %s: %w", rec.Coord, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit chunk %s: %w", rec.Coord, err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, slot string, c Coord) error {
	err := os.Remove(s.path(slot, c))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete chunk %s: %w", c, err)
	}
	return nil
}

// List returns the coordinates stored for slot, sorted row-major.
func (s *FileStore) List(_ context.Context, slot string) ([]Coord, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, slot))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list slot %s: %w", slot, err)
	}
	var out []Coord
	for _, e := range entries {
		var c Coord
		if e.IsDir() {
			continue
		}
		if n, _ := fmt.Sscanf(e.Name(), "chunk_%d_%d.yaml", &c.X, &c.Y); n != 2 {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, compareCoord)
	return out, nil
}
