// Package savegame reads and writes world snapshots.
package savegame

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/factoryforge/simcore/internal/world"
	"gopkg.in/yaml.v3"
)

// ErrNoSave is returned when a slot has never been saved.
var ErrNoSave = errors.New("no save for slot")

// Store persists one snapshot per save slot.
type Store interface {
	Save(ctx context.Context, slot string, snap *world.Snapshot) error
	Load(ctx context.Context, slot string) (*world.Snapshot, error)
}

// Lister is implemented by stores that can enumerate their saved slots.
type Lister interface {
	Slots(ctx context.Context) ([]string, error)
}

// Encode renders a snapshot as YAML.
func Encode(snap *world.Snapshot) ([]byte, error) {
	raw, err := yaml.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return raw, nil
}

// Decode parses a YAML snapshot.
func Decode(raw []byte) (*world.Snapshot, error) {
	var snap world.Snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Path returns the snapshot file of a slot under dir.
func Path(dir, slot string) string {
	return filepath.Join(dir, slot, "world.yaml")
}

// Write stores snap at path atomically.
func Write(path string, snap *world.Snapshot) error {
	raw, err := Encode(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create save dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// Read loads the snapshot at path. A missing file yields ErrNoSave.
func Read(path string) (*world.Snapshot, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSave
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Decode(raw)
}

// Files keeps snapshots next to the file-backed chunk records.
type Files struct {
	Dir string
}

func (f Files) Save(_ context.Context, slot string, snap *world.Snapshot) error {
	return Write(Path(f.Dir, slot), snap)
}

func (f Files) Load(_ context.Context, slot string) (*world.Snapshot, error) {
	return Read(Path(f.Dir, slot))
}

// Slots returns the names of directories holding a snapshot, sorted.
func (f Files) Slots(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(Path(f.Dir, e.Name())); err == nil {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
