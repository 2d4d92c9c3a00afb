// This project is licensed under the MIT License (see LICENSE).

// Package config holds the flat simulation parameter record (spec.md
// §6) and a pair of built-in presets bundled into the binary. Loading a
// config from an arbitrary external file is explicitly out of scope
// (spec.md §1) and is left to the CLI/GUI collaborator; what ships here
// are named, embedded presets unmarshalled at package-init time, in the
// style of pthm-soup's config/defaults.yaml.
package config

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed presets/default.yaml
var defaultYAML []byte

//go:embed presets/minimal.yaml
var minimalYAML []byte

// ErrConfigError is returned by Validate (and wrapped by Simulation's
// constructor) when a config's fields are not a valid combination.
var ErrConfigError = errors.New("invalid configuration")

// AllocPolicy selects the Soup allocator's block-selection strategy.
type AllocPolicy int

const (
	AllocFirstFit AllocPolicy = iota
	AllocBetterFit
	AllocRandom
	AllocNearParent
	AllocNearAddress
)

// Config is the flat record of recognized simulation options (spec.md
// §6). Field names follow the si0 option names translated to Go case;
// yaml tags keep the original lower_snake names for the embedded
// presets.
type Config struct {
	// Soup / time
	SoupSize    int     `yaml:"soup_size"`
	SliceSize   int     `yaml:"slice_size"`
	SizDepSlice int     `yaml:"siz_dep_slice"`
	SlicePow    float64 `yaml:"slice_pow"`
	SliceStyle  int     `yaml:"slice_style"`
	SlicFixFrac float64 `yaml:"slic_fix_frac"`
	SlicRanFrac float64 `yaml:"slic_ran_frac"`

	// Mutation
	GenPerBkgMut int     `yaml:"gen_per_bkg_mut"`
	GenPerFlaw   int     `yaml:"gen_per_flaw"`
	GenPerMovMut int     `yaml:"gen_per_mov_mut"`
	GenPerDivMut int     `yaml:"gen_per_div_mut"`
	MutBitProp   float64 `yaml:"mut_bit_prop"`

	// Genetic operators (all independent, triggered at divide)
	GenPerCroInsSamSiz int `yaml:"gen_per_cro_ins_sam_siz"`
	GenPerInsIns       int `yaml:"gen_per_ins_ins"`
	GenPerDelIns       int `yaml:"gen_per_del_ins"`
	GenPerCroIns       int `yaml:"gen_per_cro_ins"`
	GenPerDelSeg       int `yaml:"gen_per_del_seg"`
	GenPerInsSeg       int `yaml:"gen_per_ins_seg"`
	GenPerCroSeg       int `yaml:"gen_per_cro_seg"`

	// Allocator
	MalMode       AllocPolicy `yaml:"mal_mode"`
	MalReapTol    int         `yaml:"mal_reap_tol"`
	MalTol        int         `yaml:"mal_tol"`
	MaxFreeBlocks int         `yaml:"max_free_blocks"`
	MalSamSiz     int         `yaml:"mal_sam_siz"`

	// Cells
	MinCellSize   int     `yaml:"min_cell_size"`
	MinGenMemSiz  int     `yaml:"min_gen_mem_siz"`
	MinTemplSize  int     `yaml:"min_templ_size"`
	MovPropThrDiv float64 `yaml:"mov_prop_thr_div"`
	SearchLimit   int     `yaml:"search_limit"`

	// Reaper
	ReapRndProp float64 `yaml:"reap_rnd_prop"`
	LazyTol     int     `yaml:"lazy_tol"`
	DropDead    int     `yaml:"drop_dead"`

	// Division
	DivSameGen int `yaml:"div_same_gen"`
	DivSameSiz int `yaml:"div_same_siz"`

	// Disturbance
	DistFreq  float64 `yaml:"dist_freq"`
	DistProp  float64 `yaml:"dist_prop"`
	EjectRate int     `yaml:"eject_rate"`

	// Protection: bit-sets {execute=1, write=2, read=4}
	MemModeFree int `yaml:"mem_mode_free"`
	MemModeMine int `yaml:"mem_mode_mine"`
	MemModeProt int `yaml:"mem_mode_prot"`

	// Genebank
	DiskBank  int     `yaml:"disk_bank"`
	SaveFreq  int     `yaml:"save_freq"`
	SavMinNum int     `yaml:"sav_min_num"`
	SavThrMem float64 `yaml:"sav_thr_mem"`
	SavThrPop float64 `yaml:"sav_thr_pop"`

	// Initial
	Seed    int64 `yaml:"seed"`
	NewSoup int   `yaml:"new_soup"`
}

// Default returns the built-in "default" preset, matching spec.md §6's
// documented defaults.
func Default() Config {
	var c Config
	if err := yaml.Unmarshal(defaultYAML, &c); err != nil {
		panic(fmt.Sprintf("config: embedded default preset is malformed: %v", err))
	}
	return c
}

// Minimal returns the built-in "minimal" preset: a small soup and tight
// slices, useful for fast deterministic tests (spec.md §8 scenario 1).
func Minimal() Config {
	var c Config
	if err := yaml.Unmarshal(minimalYAML, &c); err != nil {
		panic(fmt.Sprintf("config: embedded minimal preset is malformed: %v", err))
	}
	return c
}

// Validate reports a non-nil, ErrConfigError-wrapped error if c is not a
// valid combination of options (spec.md §7: "ConfigError... refuses to
// initialize").
func (c Config) Validate() error {
	switch {
	case c.SoupSize <= 0:
		return fmt.Errorf("%w: soup_size must be positive, got %d", ErrConfigError, c.SoupSize)
	case c.MinCellSize <= 0:
		return fmt.Errorf("%w: min_cell_size must be positive, got %d", ErrConfigError, c.MinCellSize)
	case c.MinCellSize > c.SoupSize:
		return fmt.Errorf("%w: min_cell_size (%d) exceeds soup_size (%d)", ErrConfigError, c.MinCellSize, c.SoupSize)
	case c.SliceSize <= 0 && c.SizDepSlice == 0:
		return fmt.Errorf("%w: slice_size must be positive when siz_dep_slice is disabled", ErrConfigError)
	case c.MovPropThrDiv < 0 || c.MovPropThrDiv > 1:
		return fmt.Errorf("%w: mov_prop_thr_div must be in [0, 1], got %f", ErrConfigError, c.MovPropThrDiv)
	case c.SearchLimit <= 0:
		return fmt.Errorf("%w: search_limit must be positive, got %d", ErrConfigError, c.SearchLimit)
	case c.MaxFreeBlocks <= 0:
		return fmt.Errorf("%w: max_free_blocks must be positive, got %d", ErrConfigError, c.MaxFreeBlocks)
	}
	return nil
}
