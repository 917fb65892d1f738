package scripting

import (
	"fmt"
	"sync"

	"github.com/factoryforge/simcore/internal/chunk"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// TerrainScript generates chunk terrain by calling the Lua function
// generate_tile(seed, x, y) for every tile. The function returns terrain,
// resource and amount; missing returns default to zero.
//
// The VM is guarded by a mutex so the generator may be shared, but calls
// are made from the simulation goroutine in practice.
type TerrainScript struct {
	mu  sync.Mutex
	vm  *lua.LState
	fn  lua.LValue
	log *zap.Logger
}

// NewTerrainScript compiles src and looks up generate_tile.
func NewTerrainScript(src string, log *zap.Logger) (*TerrainScript, error) {
	vm := newVM()
	if err := vm.DoString(src); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load terrain script: %w", err)
	}
	return bind(vm, log)
}

// LoadTerrainScript loads the script from a file.
func LoadTerrainScript(path string, log *zap.Logger) (*TerrainScript, error) {
	vm := newVM()
	if err := vm.DoFile(path); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	log.Debug("loaded lua script", zap.String("file", path))
	return bind(vm, log)
}

func newVM() *lua.LState {
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	vm.SetGlobal("CHUNK_SIZE", lua.LNumber(chunk.Size))
	for name, v := range map[string]uint8{
		"TERRAIN_WATER":   chunk.TerrainWater,
		"TERRAIN_SAND":    chunk.TerrainSand,
		"TERRAIN_GRASS":   chunk.TerrainGrass,
		"TERRAIN_DIRT":    chunk.TerrainDirt,
		"TERRAIN_ROCK":    chunk.TerrainRock,
		"RESOURCE_NONE":   chunk.ResourceNone,
		"RESOURCE_IRON":   chunk.ResourceIron,
		"RESOURCE_COPPER": chunk.ResourceCopper,
		"RESOURCE_COAL":   chunk.ResourceCoal,
		"RESOURCE_STONE":  chunk.ResourceStone,
		"RESOURCE_OIL":    chunk.ResourceOil,
	} {
		vm.SetGlobal(name, lua.LNumber(v))
	}
	return vm
}

func bind(vm *lua.LState, log *zap.Logger) (*TerrainScript, error) {
	fn := vm.GetGlobal("generate_tile")
	if fn.Type() != lua.LTFunction {
		vm.Close()
		return nil, fmt.Errorf("terrain script does not define generate_tile")
	}
	return &TerrainScript{vm: vm, fn: fn, log: log}, nil
}

// Generate fills tiles for chunk c. A Lua error aborts the chunk and is
// returned; the manager then falls back to its built-in generator.
func (s *TerrainScript) Generate(seed int64, c chunk.Coord, tiles []chunk.Tile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	origin := c.Origin()
	for ly := int32(0); ly < chunk.Size; ly++ {
		for lx := int32(0); lx < chunk.Size; lx++ {
			x, y := origin.X+lx, origin.Y+ly
			if err := s.vm.CallByParam(lua.P{
				Fn:      s.fn,
				NRet:    3,
				Protect: true,
			}, lua.LNumber(seed), lua.LNumber(x), lua.LNumber(y)); err != nil {
				return fmt.Errorf("generate_tile(%d, %d): %w", x, y, err)
			}
			terrain := s.vm.Get(-3)
			resource := s.vm.Get(-2)
			amount := s.vm.Get(-1)
			s.vm.Pop(3)

			tiles[ly*chunk.Size+lx] = chunk.Tile{
				Terrain:  clampU8(terrain),
				Resource: clampU8(resource),
				Amount:   clampU16(amount),
			}
		}
	}
	return nil
}

func clampU8(v lua.LValue) uint8 {
	n := int64(lua.LVAsNumber(v))
	return uint8(max(0, min(n, 255)))
}

func clampU16(v lua.LValue) uint16 {
	n := int64(lua.LVAsNumber(v))
	return uint16(max(0, min(n, 65535)))
}

func (s *TerrainScript) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vm.Close()
}
