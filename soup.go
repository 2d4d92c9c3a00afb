// This project is licensed under the MIT License (see LICENSE).

package tierra

import (
	"fmt"
	"sort"

	"tierra/config"
)

// ErrNoSpace is returned by Soup.Allocate when no free block (after an
// optional reap-and-retry) satisfies a request.
var ErrNoSpace = fmt.Errorf("soup: no free block large enough")

// protBits mirror the {execute=1, write=2, read=4} bit-set spec.md §6
// assigns to mem_mode_free/mine/prot.
const (
	protExecute = 1
	protWrite   = 2
	protRead    = 4
)

// freeBlock is one entry of the soup's free-space index: non-overlapping,
// non-adjacent (adjacent runs are always merged on free), sorted by
// Start.
type freeBlock struct {
	Start  int
	Length int
}

// ownerSpan records which cell currently owns a contiguous mother region
// of the soup. Only mother regions are tracked here — daughter regions
// are reserved (removed from the free list) but are not "owned" until
// Divide promotes them, matching pytierra/soup.py's owner_at, which only
// ever sees mother allocations.
type ownerSpan struct {
	Start  int
	Length int
	Cell   int64
}

// Soup is the toroidal byte array every cell's CPU executes against and
// writes into, plus the free-block allocator and owner index that
// arbitrate access to it (spec.md §4.1).
type Soup struct {
	size  int
	bytes []byte

	free   []freeBlock // sorted ascending by Start, merged, gapless within each run
	owners []ownerSpan // sorted ascending by Start, non-overlapping

	cfg config.Config
}

// NewSoup allocates an empty soup of the configured size, entirely free.
func NewSoup(cfg config.Config) *Soup {
	s := &Soup{
		size:  cfg.SoupSize,
		bytes: make([]byte, cfg.SoupSize),
		cfg:   cfg,
	}
	s.free = []freeBlock{{Start: 0, Length: cfg.SoupSize}}
	return s
}

// Size returns the soup's total byte count.
func (s *Soup) Size() int { return s.size }

// mod reduces addr into [0, size).
func (s *Soup) mod(addr int) int {
	addr %= s.size
	if addr < 0 {
		addr += s.size
	}
	return addr
}

// ReadByte returns the raw byte at addr (mod soup size) with no
// protection check. Template search and movii's source read go through
// here unchecked; only writes (movii) and execution (fetch, checked by
// the caller beforehand) are gated, per pytierra/instructions.py's
// _find_template, which calls soup.read directly.
func (s *Soup) ReadByte(addr int) byte {
	return s.bytes[s.mod(addr)]
}

// writeByteRaw stores a byte with no protection check, for use by
// callers (movii, cosmic ray, boot placement) that have already done
// their own access check.
func (s *Soup) writeByteRaw(addr int, b byte) {
	s.bytes[s.mod(addr)] = b
}

// ownerAt returns the id of the cell whose mother region contains addr,
// or (0, false) if the address is currently free. Spans are sorted, so
// this is a binary search (grounded on pytierra/soup.py's owner_at).
func (s *Soup) ownerAt(addr int) (int64, bool) {
	addr = s.mod(addr)
	i := sort.Search(len(s.owners), func(i int) bool {
		return s.owners[i].Start+s.owners[i].Length > addr
	})
	if i < len(s.owners) {
		sp := s.owners[i]
		region := Region{Start: sp.Start, Length: sp.Length}
		if region.Contains(addr, s.size) {
			return sp.Cell, true
		}
	}
	return 0, false
}

// accessMode picks which of the three configured protection bit-sets
// governs an access to addr by actor (0 for no particular actor, e.g.
// instruction fetch always uses the executing cell itself).
func (s *Soup) accessMode(addr int, actor int64) int {
	owner, owned := s.ownerAt(addr)
	switch {
	case !owned:
		return s.cfg.MemModeFree
	case owner == actor:
		return s.cfg.MemModeMine
	default:
		return s.cfg.MemModeProt
	}
}

// A set bit in the governing mask forbids that access type — so an
// all-zero mask (the default for free and own memory) permits
// everything, while mem_mode_prot's default of 2 forbids only writes to
// another cell's memory, leaving read/execute open (grounded on
// pytierra/soup.py's _check_access).

// CheckExecute reports whether actor may fetch an instruction from addr.
func (s *Soup) CheckExecute(addr int, actor int64) bool {
	return s.accessMode(addr, actor)&protExecute == 0
}

// CheckWrite reports whether actor may write to addr.
func (s *Soup) CheckWrite(addr int, actor int64) bool {
	return s.accessMode(addr, actor)&protWrite == 0
}

// CheckRead reports whether actor may read from addr.
func (s *Soup) CheckRead(addr int, actor int64) bool {
	return s.accessMode(addr, actor)&protRead == 0
}

// WriteProtected writes b to addr if actor is permitted to write there.
// Reports whether the write happened.
func (s *Soup) WriteProtected(addr int, actor int64, b byte) bool {
	if !s.CheckWrite(addr, actor) {
		return false
	}
	s.writeByteRaw(addr, b)
	return true
}

// addOwner records a mother-region allocation. The span list stays
// sorted and non-overlapping by construction (allocate only ever hands
// out free space).
func (s *Soup) addOwner(r Region, cell int64) {
	sp := ownerSpan{Start: s.mod(r.Start), Length: r.Length, Cell: cell}
	i := sort.Search(len(s.owners), func(i int) bool { return s.owners[i].Start >= sp.Start })
	s.owners = append(s.owners, ownerSpan{})
	copy(s.owners[i+1:], s.owners[i:])
	s.owners[i] = sp
}

// removeOwner drops the span belonging to cell starting at r.Start.
func (s *Soup) removeOwner(r Region, cell int64) {
	start := s.mod(r.Start)
	for i, sp := range s.owners {
		if sp.Start == start && sp.Cell == cell {
			s.owners = append(s.owners[:i], s.owners[i+1:]...)
			return
		}
	}
}

// freeRegion returns addr..addr+length to the free list, merging with
// any adjacent free runs (grounded on pytierra/soup.py's deallocate).
func (s *Soup) freeRegion(r Region) {
	if r.Length <= 0 {
		return
	}
	start := s.mod(r.Start)
	blk := freeBlock{Start: start, Length: r.Length}
	s.free = append(s.free, blk)
	sort.Slice(s.free, func(i, j int) bool { return s.free[i].Start < s.free[j].Start })
	s.mergeFree()
}

// mergeFree coalesces adjacent and wraparound-adjacent free blocks.
func (s *Soup) mergeFree() {
	if len(s.free) < 2 {
		return
	}
	merged := make([]freeBlock, 0, len(s.free))
	cur := s.free[0]
	for _, b := range s.free[1:] {
		if cur.Start+cur.Length == b.Start {
			cur.Length += b.Length
		} else {
			merged = append(merged, cur)
			cur = b
		}
	}
	merged = append(merged, cur)
	// wraparound: last block's end touches the first block's start
	if len(merged) > 1 {
		last := merged[len(merged)-1]
		first := merged[0]
		if last.Start+last.Length == s.size && first.Start == 0 {
			first.Start = last.Start
			first.Length += last.Length
			merged[0] = first
			merged = merged[:len(merged)-1]
		}
	}
	s.free = merged
}

// candidate is a free block big enough to satisfy a request, with its
// index in s.free for in-place shrinking.
type candidate struct {
	idx   int
	block freeBlock
}

func (s *Soup) sufficientBlocks(length int) []candidate {
	var out []candidate
	for i, b := range s.free {
		if b.Length >= length {
			out = append(out, candidate{idx: i, block: b})
		}
	}
	return out
}

// takeFromBlock carves length bytes off the start of the free block at
// idx (shrinking or removing it) and returns the carved region.
func (s *Soup) takeFromBlock(idx, length int) Region {
	b := s.free[idx]
	r := Region{Start: b.Start, Length: length}
	if b.Length == length {
		s.free = append(s.free[:idx], s.free[idx+1:]...)
	} else {
		s.free[idx] = freeBlock{Start: s.mod(b.Start + length), Length: b.Length - length}
	}
	return r
}

// wrapDistance is the shorter of the forward/backward toroidal distance
// between two addresses.
func (s *Soup) wrapDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if other := s.size - d; other < d {
		d = other
	}
	return d
}

// Allocate reserves length bytes according to policy, optionally biased
// toward hint (mal passes the mother cell's own start for near-parent
// and the cell's bx register for near-address). Returns ErrNoSpace if nothing — even after the caller's own
// reap-and-retry — is big enough.
func (s *Soup) Allocate(length int, policy config.AllocPolicy, hint int, rng RNG) (Region, error) {
	cands := s.sufficientBlocks(length)
	if len(cands) == 0 {
		return Region{}, ErrNoSpace
	}

	var chosen candidate
	switch policy {
	case config.AllocFirstFit:
		chosen = cands[0]

	case config.AllocBetterFit:
		tol := s.cfg.MalTol
		chosen = cands[0]
		bestWithin, haveWithin := candidate{}, false
		best := cands[0]
		for _, c := range cands {
			if c.block.Length < best.block.Length {
				best = c
			}
			if c.block.Length <= length+tol && (!haveWithin || c.block.Length < bestWithin.block.Length) {
				bestWithin, haveWithin = c, true
			}
		}
		if haveWithin {
			chosen = bestWithin
		} else {
			chosen = best
		}

	case config.AllocRandom:
		chosen = cands[rng.Intn(len(cands))]

	case config.AllocNearParent, config.AllocNearAddress:
		chosen = cands[0]
		bestDist := s.wrapDistance(cands[0].block.Start, hint)
		for _, c := range cands[1:] {
			d := s.wrapDistance(c.block.Start, hint)
			if d < bestDist {
				bestDist, chosen = d, c
			}
		}

	default:
		chosen = cands[0]
	}

	return s.takeFromBlock(chosen.idx, length), nil
}

// AllocateAt carves out an exact region at a fixed address for initial
// boot placement (spec.md §4.7's "place the ancestor at a fixed or
// random offset"). The region must currently be entirely free.
func (s *Soup) AllocateAt(start, length int) (Region, bool) {
	start = s.mod(start)
	for i, b := range s.free {
		blkStart, blkEnd := b.Start, b.Start+b.Length
		if start >= blkStart && start+length <= blkEnd {
			before := freeBlock{Start: blkStart, Length: start - blkStart}
			after := freeBlock{Start: start + length, Length: blkEnd - (start + length)}
			repl := make([]freeBlock, 0, 2)
			if before.Length > 0 {
				repl = append(repl, before)
			}
			if after.Length > 0 {
				repl = append(repl, after)
			}
			s.free = append(s.free[:i], append(repl, s.free[i+1:]...)...)
			return Region{Start: start, Length: length}, true
		}
	}
	return Region{}, false
}

// Free releases a mother-region allocation owned by cell back to the
// free list.
func (s *Soup) Free(r Region, cell int64) {
	s.removeOwner(r, cell)
	s.freeRegion(r)
}

// Grow attempts to extend r by extra bytes, taking them from the free
// block immediately following r's end. Returns the new region and true
// on success; on failure r is returned unchanged with false, and the
// caller (a genetic operator) must leave the cell's genome untouched.
func (s *Soup) Grow(r Region, extra int, cell int64) (Region, bool) {
	end := s.mod(r.Start + r.Length)
	for i, b := range s.free {
		if b.Start == end && b.Length >= extra {
			s.takeFromBlock(i, extra)
			grown := Region{Start: r.Start, Length: r.Length + extra}
			s.removeOwner(r, cell)
			s.addOwner(grown, cell)
			return grown, true
		}
	}
	return r, false
}

// Shrink releases the trailing shrinkBy bytes of r back to the free
// list and returns the reduced region.
func (s *Soup) Shrink(r Region, shrinkBy int, cell int64) Region {
	if shrinkBy <= 0 || shrinkBy >= r.Length {
		return r
	}
	reduced := Region{Start: r.Start, Length: r.Length - shrinkBy}
	tail := Region{Start: s.mod(r.Start + reduced.Length), Length: shrinkBy}
	s.removeOwner(r, cell)
	s.addOwner(reduced, cell)
	s.freeRegion(tail)
	return reduced
}

// Reallocate moves a region to a freshly allocated span of newLength,
// copying min(old, new) bytes starting at the old region's start, and
// frees the old span. Used when Grow can't extend in place.
func (s *Soup) Reallocate(r Region, newLength int, cell int64, policy config.AllocPolicy, hint int, rng RNG) (Region, error) {
	next, err := s.Allocate(newLength, policy, hint, rng)
	if err != nil {
		return r, err
	}
	n := r.Length
	if newLength < n {
		n = newLength
	}
	for i := 0; i < n; i++ {
		s.writeByteRaw(next.Start+i, s.ReadByte(r.Start+i))
	}
	s.removeOwner(r, cell)
	s.addOwner(next, cell)
	s.freeRegion(r)
	return next, nil
}

// RegisterOwner records r as owned by cell. Used once, right after the
// region is first allocated, to populate the owner index (Allocate
// itself doesn't know the owning cell's id yet when called from a
// divide in progress).
func (s *Soup) RegisterOwner(r Region, cell int64) {
	s.addOwner(r, cell)
}

// Fullness returns the fraction of the soup currently owned by a cell.
func (s *Soup) Fullness() float64 {
	used := 0
	for _, sp := range s.owners {
		used += sp.Length
	}
	return float64(used) / float64(s.size)
}

// FreeBlockCount reports how many distinct free runs exist, so callers
// can enforce max_free_blocks (spec.md §6).
func (s *Soup) FreeBlockCount() int {
	return len(s.free)
}

// RandomizeBlock overwrites a byte range with random bytes (used to
// scramble freshly freed memory the way pytierra/soup.py's
// randomize_block optionally does).
func (s *Soup) RandomizeBlock(r Region, rng RNG) {
	for i := 0; i < r.Length; i++ {
		s.writeByteRaw(r.Start+i, byte(rng.Intn(256)))
	}
}
