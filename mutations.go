// This project is licensed under the MIT License (see LICENSE).

package tierra

import (
	"tierra/config"
	"tierra/opcode"
)

// MutationEngine applies every source of genetic change: background
// cosmic rays and copy flaws that strike at any instant, and the set of
// genetic operators rolled once per cell division (spec.md §4.5,
// grounded on pytierra/mutations.py).
type MutationEngine struct {
	cfg    config.Config
	rng    RNG
	events *EventBus
}

// NewMutationEngine builds an engine bound to cfg's gen_per_X rates.
func NewMutationEngine(cfg config.Config, rng RNG, events *EventBus) *MutationEngine {
	return &MutationEngine{cfg: cfg, rng: rng, events: events}
}

func (m *MutationEngine) emit(instCount int64, cellID int64, kind string) {
	if m.events == nil {
		return
	}
	m.events.Emit(Event{Kind: Mutation, InstructionCount: instCount, Payload: map[string]any{
		"cell": cellID,
		"kind": kind,
	}})
}

// CosmicRay maybe flips a uniformly random bit at a uniformly random
// soup address, independent of any cell's execution (spec.md §4.5's
// background mutation, gen_per_bkg_mut, scaled by the population's
// current mean cell size). Called once per instruction executed,
// system-wide.
func (m *MutationEngine) CosmicRay(soup *Soup, instCount int64, meanSize float64) {
	if !chance(m.rng, ratePerMeanSize(m.cfg.GenPerBkgMut, meanSize)) {
		return
	}
	addr := m.rng.Intn(soup.Size())
	bit := byte(1) << uint(m.rng.Intn(8))
	b := soup.ReadByte(addr)
	soup.writeByteRaw(addr, b^bit)
	m.emit(instCount, -1, "cosmic_ray")
}

// FlawDelta draws the -1/0/+1 perturbation an "execution flaw" folds
// into the instruction currently being decoded, config-gated by
// gen_per_flaw and the population's current mean cell size (spec.md
// §4.5). Each opcode handler folds the delta into its own arithmetic
// expression at the exact point pytierra's _flaw is used, rather than
// adjusting a result after the fact, since zero uses it as the entire
// written value, not an offset to one.
func (m *MutationEngine) FlawDelta(instCount int64, cellID int64, meanSize float64) int32 {
	if !chance(m.rng, ratePerMeanSize(m.cfg.GenPerFlaw, meanSize)) {
		return 0
	}
	delta := m.rng.Intn(3) - 1 // -1, 0, or 1
	if delta != 0 {
		m.emit(instCount, cellID, "execution_flaw")
	}
	return int32(delta)
}

// CorruptCopy maybe corrupts a byte as movii copies it from mother to
// daughter (spec.md §4.5's copy mutation, gen_per_mov_mut scaled by the
// population's current mean cell size): with probability mut_bit_prop
// flip one random bit of the source byte, else overwrite it with a
// uniformly random opcode.
func (m *MutationEngine) CorruptCopy(b byte, instCount int64, cellID int64, meanSize float64) byte {
	if !chance(m.rng, ratePerMeanSize(m.cfg.GenPerMovMut, meanSize)) {
		return b
	}
	m.emit(instCount, cellID, "copy_mutation")
	if chance(m.rng, m.cfg.MutBitProp) {
		bit := byte(1) << uint(m.rng.Intn(8))
		return b ^ bit
	}
	return byte(m.rng.Intn(int(opcode.N)))
}

// findSegments splits genome into runs delimited by nop0/nop1
// instructions — the unit genetic operators duplicate, delete, or swap
// at the segment level (grounded on pytierra/mutations.py's
// _find_segments).
func findSegments(genome []byte) []Region {
	var segs []Region
	start := -1
	for i, b := range genome {
		op := opcode.FromByte(b)
		if op.IsTemplate() {
			if start >= 0 && i > start {
				segs = append(segs, Region{Start: start, Length: i - start})
			}
			start = i + 1
		}
	}
	if start >= 0 && start < len(genome) {
		segs = append(segs, Region{Start: start, Length: len(genome) - start})
	}
	return segs
}

// divideContext bundles what a genetic operator needs to read and
// rewrite a daughter genome in place; resizing operators call back into
// Soup through resize.
type divideContext struct {
	soup   *Soup
	cfg    config.Config
	rng    RNG
	cell   int64
	region Region // the daughter's current region, updated as operators resize it
}

// ApplyGeneticOps rolls every divide-time operator independently against
// the newly completed daughter region and returns the (possibly resized)
// final region plus how many operators fired. mates supplies candidate
// genomes of a given length for the crossover operators to draw from.
func (m *MutationEngine) ApplyGeneticOps(soup *Soup, cellID int64, daughter Region, mates func(length int) (Region, bool), instCount int64) (Region, int) {
	ctx := &divideContext{soup: soup, cfg: m.cfg, rng: m.rng, cell: cellID, region: daughter}
	fired := 0

	ops := []struct {
		rate int
		fn   func(*divideContext, func(int) (Region, bool)) bool
	}{
		{m.cfg.GenPerDivMut, applyPointMutation},
		{m.cfg.GenPerCroInsSamSiz, applySameSizeCrossover},
		{m.cfg.GenPerInsIns, applyInstructionInsertion},
		{m.cfg.GenPerDelIns, applyInstructionDeletion},
		{m.cfg.GenPerCroIns, applySizeChangingCrossover},
		{m.cfg.GenPerInsSeg, applySegmentInsertion},
		{m.cfg.GenPerDelSeg, applySegmentDeletion},
		{m.cfg.GenPerCroSeg, applySegmentCrossover},
	}

	names := []string{"point_mutation", "crossover_same_size", "instruction_insertion",
		"instruction_deletion", "crossover", "segment_insertion", "segment_deletion", "segment_crossover"}

	for i, op := range ops {
		if !triggersPer(m.rng, op.rate) {
			continue
		}
		if op.fn(ctx, mates) {
			fired++
			m.emit(instCount, cellID, names[i])
		}
	}

	return ctx.region, fired
}

func applyPointMutation(ctx *divideContext, _ func(int) (Region, bool)) bool {
	if ctx.region.Length == 0 {
		return false
	}
	offset := ctx.rng.Intn(ctx.region.Length)
	addr := ctx.soup.mod(ctx.region.Start + offset)
	bit := byte(1) << uint(ctx.rng.Intn(8))
	ctx.soup.writeByteRaw(addr, ctx.soup.ReadByte(addr)^bit)
	return true
}

// applySameSizeCrossover overwrites a random-length tail of the daughter
// genome with the corresponding tail of a same-size living genome,
// leaving both sizes unchanged; the mate's bytes are not modified, and
// the operator does nothing if the nearest mate differs in size.
func applySameSizeCrossover(ctx *divideContext, mates func(int) (Region, bool)) bool {
	mate, ok := mates(ctx.region.Length)
	if !ok || ctx.region.Length == 0 || mate.Length != ctx.region.Length {
		return false
	}
	point := ctx.rng.Intn(ctx.region.Length)
	for i := point; i < ctx.region.Length; i++ {
		a := ctx.soup.mod(ctx.region.Start + i)
		b := ctx.soup.mod(mate.Start + i)
		ctx.soup.writeByteRaw(a, ctx.soup.ReadByte(b))
	}
	return true
}

// applyInstructionInsertion inserts one random opcode byte at a random
// offset, shifting the tail right and growing the region by one byte.
func applyInstructionInsertion(ctx *divideContext, _ func(int) (Region, bool)) bool {
	offset := ctx.rng.Intn(ctx.region.Length + 1)
	grown, ok := ctx.soup.Grow(ctx.region, 1, ctx.cell)
	if !ok {
		return false
	}
	for i := grown.Length - 1; i > offset; i-- {
		src := ctx.soup.mod(grown.Start + i - 1)
		dst := ctx.soup.mod(grown.Start + i)
		ctx.soup.writeByteRaw(dst, ctx.soup.ReadByte(src))
	}
	ctx.soup.writeByteRaw(ctx.soup.mod(grown.Start+offset), byte(ctx.rng.Intn(int(opcode.N))))
	ctx.region = grown
	return true
}

// applyInstructionDeletion removes one instruction at a random offset,
// shifting the tail left and shrinking the region by one byte.
func applyInstructionDeletion(ctx *divideContext, _ func(int) (Region, bool)) bool {
	if ctx.region.Length <= ctx.cfg.MinCellSize {
		return false
	}
	offset := ctx.rng.Intn(ctx.region.Length)
	for i := offset; i < ctx.region.Length-1; i++ {
		src := ctx.soup.mod(ctx.region.Start + i + 1)
		dst := ctx.soup.mod(ctx.region.Start + i)
		ctx.soup.writeByteRaw(dst, ctx.soup.ReadByte(src))
	}
	ctx.region = ctx.soup.Shrink(ctx.region, 1, ctx.cell)
	return true
}

// applySizeChangingCrossover splices the daughter's head (up to a random
// crossover point) to a random-length tail borrowed from a mate of
// possibly different size, attempting to grow or shrink the daughter
// region to fit (spec.md §4.5's resize-on-divide requirement — this is
// where the result can legitimately fail to fit and the operator is a
// no-op, matching Grow/Reallocate's contract).
func applySizeChangingCrossover(ctx *divideContext, mates func(int) (Region, bool)) bool {
	mate, ok := mates(ctx.region.Length)
	if !ok || ctx.region.Length == 0 || mate.Length == 0 {
		return false
	}
	crossPoint := ctx.rng.Intn(ctx.region.Length)
	mateTail := mate.Length - ctx.rng.Intn(mate.Length)
	newLength := crossPoint + mateTail
	if newLength < ctx.cfg.MinCellSize {
		return false
	}

	var final Region
	if newLength <= ctx.region.Length {
		final = ctx.soup.Shrink(ctx.region, ctx.region.Length-newLength, ctx.cell)
	} else {
		grown, ok := ctx.soup.Grow(ctx.region, newLength-ctx.region.Length, ctx.cell)
		if !ok {
			var err error
			grown, err = ctx.soup.Reallocate(ctx.region, newLength, ctx.cell, ctx.cfg.MalMode, ctx.region.Start, ctx.rng)
			if err != nil {
				return false
			}
		}
		final = grown
	}

	for i := crossPoint; i < newLength; i++ {
		dst := ctx.soup.mod(final.Start + i)
		src := ctx.soup.mod(mate.Start + (mate.Length - mateTail) + (i - crossPoint))
		ctx.soup.writeByteRaw(dst, ctx.soup.ReadByte(src))
	}
	ctx.region = final
	return true
}

// applySegmentDeletion removes one whole nop-delimited segment.
func applySegmentDeletion(ctx *divideContext, _ func(int) (Region, bool)) bool {
	genome := readRegion(ctx.soup, ctx.region)
	segs := findSegments(genome)
	if len(segs) == 0 {
		return false
	}
	seg := segs[ctx.rng.Intn(len(segs))]
	if ctx.region.Length-seg.Length < ctx.cfg.MinCellSize {
		return false
	}
	for i := seg.Start; i < ctx.region.Length-seg.Length; i++ {
		src := ctx.soup.mod(ctx.region.Start + i + seg.Length)
		dst := ctx.soup.mod(ctx.region.Start + i)
		ctx.soup.writeByteRaw(dst, ctx.soup.ReadByte(src))
	}
	ctx.region = ctx.soup.Shrink(ctx.region, seg.Length, ctx.cell)
	return true
}

// applySegmentInsertion duplicates one random segment at a random
// insertion point, growing the region.
func applySegmentInsertion(ctx *divideContext, _ func(int) (Region, bool)) bool {
	genome := readRegion(ctx.soup, ctx.region)
	segs := findSegments(genome)
	if len(segs) == 0 {
		return false
	}
	seg := segs[ctx.rng.Intn(len(segs))]
	segBytes := genome[seg.Start : seg.Start+seg.Length]

	grown, ok := ctx.soup.Grow(ctx.region, seg.Length, ctx.cell)
	if !ok {
		return false
	}
	insertAt := ctx.rng.Intn(ctx.region.Length + 1)
	for i := grown.Length - 1; i >= insertAt+seg.Length; i-- {
		src := ctx.soup.mod(grown.Start + i - seg.Length)
		dst := ctx.soup.mod(grown.Start + i)
		ctx.soup.writeByteRaw(dst, ctx.soup.ReadByte(src))
	}
	for i, b := range segBytes {
		ctx.soup.writeByteRaw(ctx.soup.mod(grown.Start+insertAt+i), b)
	}
	ctx.region = grown
	return true
}

// applySegmentCrossover overwrites one daughter segment with a segment
// from a mate (copying only as many bytes as the shorter of the two),
// without resizing; the mate's bytes are not modified.
func applySegmentCrossover(ctx *divideContext, mates func(int) (Region, bool)) bool {
	genome := readRegion(ctx.soup, ctx.region)
	segs := findSegments(genome)
	if len(segs) == 0 {
		return false
	}
	seg := segs[ctx.rng.Intn(len(segs))]
	mate, ok := mates(ctx.region.Length)
	if !ok {
		return false
	}
	mateSegs := findSegments(readRegion(ctx.soup, mate))
	if len(mateSegs) == 0 {
		return false
	}
	mateSeg := mateSegs[ctx.rng.Intn(len(mateSegs))]
	n := seg.Length
	if mateSeg.Length < n {
		n = mateSeg.Length
	}
	for i := 0; i < n; i++ {
		dst := ctx.soup.mod(ctx.region.Start + seg.Start + i)
		src := ctx.soup.mod(mate.Start + mateSeg.Start + i)
		ctx.soup.writeByteRaw(dst, ctx.soup.ReadByte(src))
	}
	return true
}

func readRegion(soup *Soup, r Region) []byte {
	out := make([]byte, r.Length)
	for i := range out {
		out[i] = soup.ReadByte(r.Start + i)
	}
	return out
}
