// This project is licensed under the MIT License (see LICENSE).

package tierra

import "container/list"

// stackDepth is the fixed CPU stack depth (spec.md §3).
const stackDepth = 10

// Region is a contiguous, possibly wrapping, span of soup addresses.
// Length is never negative; Start is always taken modulo the soup size.
type Region struct {
	Start  int
	Length int
}

// Contains reports whether addr (already reduced mod soupSize) falls
// within r, accounting for toroidal wraparound.
func (r Region) Contains(addr, soupSize int) bool {
	if r.Length <= 0 {
		return false
	}
	start := r.Start % soupSize
	end := (r.Start + r.Length) % soupSize
	if start < end {
		return start <= addr && addr < end
	}
	return addr >= start || addr < end
}

// End returns the address one past the last byte of r, mod soupSize.
func (r Region) End(soupSize int) int {
	return (r.Start + r.Length) % soupSize
}

// Flags holds the three CPU condition flags (spec.md §3).
type Flags struct {
	E bool // error: set by a recoverable fault, cleared on the next successful op
	S bool // sign: last arithmetic result was negative
	Z bool // zero: last arithmetic result was zero
}

// CPU is a cell's register file, instruction pointer, and stack.
type CPU struct {
	AX, BX, CX, DX int32
	IP             int
	SP             int
	Stack          [stackDepth]int32
	Flags          Flags

	ipModified bool // set by jump/call/ret handlers so the dispatcher skips the default IP++
}

// setFlags updates S/Z from a value the caller has just written to a
// register, clearing E — the pattern every arithmetic instruction follows
// (grounded on pytierra/cpu.py's set_flags, called after every
// register-writing op).
func (c *CPU) setFlags(value int32) {
	c.Flags.Z = value == 0
	c.Flags.S = value < 0
	c.Flags.E = false
}

// Push stores value at the next stack slot. Returns false (and leaves
// the stack unchanged) on overflow — spec.md §4.2's "on overflow set E,
// no push".
func (c *CPU) Push(value int32) bool {
	if c.SP >= stackDepth {
		return false
	}
	c.Stack[c.SP] = value
	c.SP++
	return true
}

// Pop removes and returns the top stack value. ok is false (and the
// stack unchanged) on underflow.
func (c *CPU) Pop() (value int32, ok bool) {
	if c.SP <= 0 {
		return 0, false
	}
	c.SP--
	return c.Stack[c.SP], true
}

// Demographics tracks a cell's lifetime statistics (spec.md §3).
type Demographics struct {
	BirthInstruction            int64
	InstructionsExecuted        int64
	MovCount                    int64 // successful movii writes into the daughter
	OffspringCount              int64
	Mutations                   int64
	ErrorCount                  int64 // cumulative CPU.Flags.E occurrences, feeds reaper ordering
	GenotypeName                string
	ParentGenotypeName          string
	LastReproductionInstruction int64
}

// Cell is one scheduled creature: a CPU running against a mother memory
// region, optionally filling a daughter region it is copying itself
// into.
type Cell struct {
	ID             int64
	MotherRegion   Region
	DaughterRegion *Region

	CPU          CPU
	Demographics Demographics

	Alive bool

	// schedElem/reaperElem locate this cell within the Scheduler's and
	// Reaper's ordered queues in O(1) — the Go analogue of spec.md's
	// slice_position/reaper_position index fields, using a direct
	// reference instead of a numeric index so removal never needs a
	// linear rescan (cyclic references resolved by ID everywhere else,
	// per spec.md §9's arena+integer-ID note; these two are the queues'
	// own bookkeeping, not part of the cell/genotype graph).
	schedElem  *list.Element
	reaperElem *list.Element
}

func newCell(id int64, mother Region) *Cell {
	return &Cell{
		ID:           id,
		MotherRegion: mother,
		Alive:        true,
	}
}

// ownsMother reports whether addr (mod soupSize) lies in the cell's own
// mother region.
func (c *Cell) ownsMother(addr, soupSize int) bool {
	return c.MotherRegion.Contains(addr, soupSize)
}

// ownsDaughter reports whether addr (mod soupSize) lies in the cell's
// current daughter region, if any.
func (c *Cell) ownsDaughter(addr, soupSize int) bool {
	if c.DaughterRegion == nil {
		return false
	}
	return c.DaughterRegion.Contains(addr, soupSize)
}

// recordError bumps the error counter used by the reaper's age/error
// ranking (spec.md §4.4) whenever the CPU's error flag is set.
func (c *Cell) recordError() {
	if c.CPU.Flags.E {
		c.Demographics.ErrorCount++
	}
}
