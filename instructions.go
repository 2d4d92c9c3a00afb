// This project is licensed under the MIT License (see LICENSE).

package tierra

import (
	"tierra/config"
	"tierra/opcode"
)

// maxTemplateLen bounds how many consecutive nop0/nop1 bytes
// templateBits will collect. pytierra/instructions.py's _find_template
// caps this at soup_size as a pure safety net; real templates are a
// handful of instructions, so a much smaller practical cap keeps a
// pathological all-nop genome from turning every template instruction
// into an O(soup_size) scan.
const maxTemplateLen = 64

// templateBits reads the run of nop0/nop1 bytes immediately following
// addr, stopping at the first non-template opcode or after
// maxTemplateLen instructions. It returns each instruction's template
// bit (0 or 1).
func templateBits(soup *Soup, addr int) []int {
	bits := make([]int, 0, 8)
	for i := 0; i < maxTemplateLen; i++ {
		op := opcode.FromByte(soup.ReadByte(addr + i))
		if !op.IsTemplate() {
			break
		}
		bits = append(bits, op.Bit())
	}
	return bits
}

// complement flips every bit in a template (nop0 <-> nop1).
func complement(bits []int) []int {
	out := make([]int, len(bits))
	for i, b := range bits {
		out[i] = 1 - b
	}
	return out
}

// matchesAt reports whether the complement template occurs starting at
// addr.
func matchesAt(soup *Soup, addr int, want []int) bool {
	for i, w := range want {
		op := opcode.FromByte(soup.ReadByte(addr + i))
		if !op.IsTemplate() || op.Bit() != w {
			return false
		}
	}
	return true
}

// searchDirection identifies which way findTemplate scans.
type searchDirection int

const (
	searchForward searchDirection = iota
	searchBackward
	searchOutward
)

// templateResult is what a template-consuming instruction needs: where
// the match landed (if any) and how long its own template run was, so
// the caller can skip past it either way (spec.md §4.2: "advance IP
// past the template after handling").
type templateResult struct {
	target  int
	found   bool
	selfLen int // length of the template read at the instruction's own IP
}

// findTemplate looks for the nearest occurrence of the complement of the
// template immediately following from, within limit instructions, in
// the requested direction (grounded on pytierra/instructions.py's
// _find_template).
func findTemplate(soup *Soup, from int, dir searchDirection, limit int) templateResult {
	tmpl := templateBits(soup, from+1)
	if len(tmpl) == 0 {
		return templateResult{}
	}
	want := complement(tmpl)
	n := len(want)
	res := templateResult{selfLen: n}

	matchAt := func(addr int) (int, bool) {
		addr = soup.mod(addr)
		if matchesAt(soup, addr, want) {
			return soup.mod(addr + n), true
		}
		return 0, false
	}

	searchStart := soup.mod(from + 1 + n)

	switch dir {
	case searchForward:
		for d := 1; d <= limit; d++ {
			if addr, ok := matchAt(searchStart + d); ok {
				res.target, res.found = addr, true
				return res
			}
		}
	case searchBackward:
		for d := 1; d <= limit; d++ {
			if addr, ok := matchAt(from - d); ok {
				res.target, res.found = addr, true
				return res
			}
		}
	case searchOutward:
		for d := 1; d <= limit; d++ {
			if addr, ok := matchAt(searchStart + d); ok {
				res.target, res.found = addr, true
				return res
			}
			if addr, ok := matchAt(from - d); ok {
				res.target, res.found = addr, true
				return res
			}
		}
	}
	return res
}

// searchLimit derives the instruction-count bound template search is
// allowed to scan: search_limit * mean creature size (spec.md §4.2).
func (sim *Simulation) searchLimit() int {
	limit := int(float64(sim.cfg.SearchLimit) * sim.meanCellSize())
	if limit < sim.cfg.MinTemplSize {
		return sim.cfg.MinTemplSize
	}
	return limit
}

// skipTemplate advances IP past the template run following addr when
// one is present, so the dispatcher's default +1 lands just after it.
// Instructions that already redirected IP to a found match don't call
// this; instructions with no template at all leave IP for the default
// advance.
func skipTemplate(c *CPU, soup *Soup, addr, selfLen int) {
	if selfLen == 0 {
		return
	}
	c.IP = soup.mod(addr + 1 + selfLen)
	c.ipModified = true
}

// step executes exactly one instruction for cell. A recoverable fault
// (bad template, stack under/overflow, protection violation, ...) only
// ever sets the CPU's error flag; step never kills the executing cell
// (mal may reap a different cell to make room).
func (sim *Simulation) step(cell *Cell) {
	c := &cell.CPU
	addr := sim.soup.mod(c.IP)

	if !sim.soup.CheckExecute(addr, cell.ID) {
		c.Flags.E = true
		c.IP = sim.soup.mod(addr + 1)
		cell.recordError()
		sim.reaper.RecordError(cell)
		return
	}

	op := opcode.FromByte(sim.soup.ReadByte(addr))
	c.ipModified = false
	c.Flags.E = false
	meanSize := sim.meanCellSize()
	flaw := func() int32 { return sim.mutEngine.FlawDelta(sim.instCount, cell.ID, meanSize) }

	switch op {
	case opcode.Nop0, opcode.Nop1:
		// pure template marker, no effect beyond being skipped over

	case opcode.Not0:
		c.CX ^= 1 + flaw()
		c.setFlags(c.CX)

	case opcode.Shl:
		c.CX <<= uint32(1 + flaw())
		c.setFlags(c.CX)

	case opcode.Zero:
		c.CX = flaw()
		c.setFlags(c.CX)

	case opcode.Ifz:
		if c.CX != 0 {
			c.IP = sim.soup.mod(addr + 2) // skip the next instruction
			c.ipModified = true
		}

	case opcode.SubCAB:
		c.CX = c.AX - c.BX + flaw()
		c.setFlags(c.CX)

	case opcode.SubAAC:
		c.AX = c.AX - c.CX + flaw()
		c.setFlags(c.AX)

	case opcode.IncA:
		c.AX = c.AX + 1 + flaw()
		c.setFlags(c.AX)

	case opcode.IncB:
		c.BX = c.BX + 1 + flaw()
		c.setFlags(c.BX)

	case opcode.DecC:
		c.CX = c.CX - 1 + flaw()
		c.setFlags(c.CX)

	case opcode.IncC:
		c.CX = c.CX + 1 + flaw()
		c.setFlags(c.CX)

	case opcode.PushA:
		if !c.Push(c.AX + flaw()) {
			c.Flags.E = true
		}
	case opcode.PushB:
		if !c.Push(c.BX + flaw()) {
			c.Flags.E = true
		}
	case opcode.PushC:
		if !c.Push(c.CX + flaw()) {
			c.Flags.E = true
		}
	case opcode.PushD:
		if !c.Push(c.DX + flaw()) {
			c.Flags.E = true
		}

	case opcode.PopA:
		if v, ok := c.Pop(); ok {
			c.AX = v + flaw()
		} else {
			c.Flags.E = true
		}
	case opcode.PopB:
		if v, ok := c.Pop(); ok {
			c.BX = v + flaw()
		} else {
			c.Flags.E = true
		}
	case opcode.PopC:
		if v, ok := c.Pop(); ok {
			c.CX = v + flaw()
		} else {
			c.Flags.E = true
		}
	case opcode.PopD:
		if v, ok := c.Pop(); ok {
			c.DX = v + flaw()
		} else {
			c.Flags.E = true
		}

	case opcode.Jmpo:
		res := findTemplate(sim.soup, addr, searchOutward, sim.searchLimit())
		if res.found {
			c.IP, c.ipModified = res.target, true
		} else {
			c.Flags.E = true
			skipTemplate(c, sim.soup, addr, res.selfLen)
		}

	case opcode.Jmpb:
		res := findTemplate(sim.soup, addr, searchBackward, sim.searchLimit())
		if res.found {
			c.IP, c.ipModified = res.target, true
		} else {
			c.Flags.E = true
			skipTemplate(c, sim.soup, addr, res.selfLen)
		}

	case opcode.Call:
		res := findTemplate(sim.soup, addr, searchOutward, sim.searchLimit())
		if res.found {
			retAddr := int32(sim.soup.mod(addr + 1 + res.selfLen))
			if c.Push(retAddr) {
				c.IP, c.ipModified = res.target, true
			} else {
				c.Flags.E = true
			}
		} else {
			c.Flags.E = true
			skipTemplate(c, sim.soup, addr, res.selfLen)
		}

	case opcode.Ret:
		if v, ok := c.Pop(); ok {
			c.IP = sim.soup.mod(int(v + flaw()))
			c.ipModified = true
		} else {
			c.Flags.E = true
		}

	case opcode.MovDC:
		c.DX = c.CX + flaw()
		c.setFlags(c.DX)

	case opcode.MovBA:
		c.BX = c.AX + flaw()
		c.setFlags(c.BX)

	case opcode.Movii:
		dst := int(c.AX)
		src := int(c.BX)
		if cell.ownsDaughter(sim.soup.mod(dst), sim.soup.size) && sim.soup.CheckWrite(dst, cell.ID) {
			b := sim.mutEngine.CorruptCopy(sim.soup.ReadByte(src), sim.instCount, cell.ID, meanSize)
			sim.soup.writeByteRaw(dst, b)
			cell.Demographics.MovCount++
		} else {
			c.Flags.E = true
		}

	case opcode.Adro:
		res := findTemplate(sim.soup, addr, searchOutward, sim.searchLimit())
		if res.found {
			c.AX, c.CX = int32(res.target), int32(res.selfLen)
		} else {
			c.Flags.E = true
		}
		skipTemplate(c, sim.soup, addr, res.selfLen)

	case opcode.Adrb:
		res := findTemplate(sim.soup, addr, searchBackward, sim.searchLimit())
		if res.found {
			c.AX, c.CX = int32(res.target), int32(res.selfLen)
		} else {
			c.Flags.E = true
		}
		skipTemplate(c, sim.soup, addr, res.selfLen)

	case opcode.Adrf:
		res := findTemplate(sim.soup, addr, searchForward, sim.searchLimit())
		if res.found {
			c.AX, c.CX = int32(res.target), int32(res.selfLen)
		} else {
			c.Flags.E = true
		}
		skipTemplate(c, sim.soup, addr, res.selfLen)

	case opcode.Mal:
		sim.execMal(cell)

	case opcode.Divide:
		sim.execDivide(cell)
	}

	cell.Demographics.InstructionsExecuted++
	cell.recordError()
	if c.Flags.E {
		sim.reaper.RecordError(cell)
	}
	if !c.ipModified {
		c.IP = sim.soup.mod(addr + 1)
	}
}

// execMal handles the "mal" instruction: allocate a daughter region
// sized by cx, placing its start address in ax. Requested sizes outside
// [min_cell_size, 2x the mother's own size] are rejected outright,
// matching pytierra/instructions.py's mal. A pending daughter from an
// earlier, abandoned mal is freed first. On allocation failure, the
// reaper is asked for one cell to kill near the request and the
// allocation is retried exactly once before giving up and setting E
// (spec.md §4.1/§4.4).
func (sim *Simulation) execMal(cell *Cell) {
	c := &cell.CPU
	size := int(c.CX)
	if size < sim.cfg.MinCellSize || size > cell.MotherRegion.Length*2 {
		c.Flags.E = true
		return
	}

	if cell.DaughterRegion != nil {
		sim.soup.freeRegion(*cell.DaughterRegion)
		cell.DaughterRegion = nil
	}

	hint := cell.MotherRegion.Start
	if sim.cfg.MalMode == config.AllocNearAddress {
		hint = int(c.BX)
	}

	region, err := sim.soup.Allocate(size, sim.cfg.MalMode, hint, sim.rng)
	if err != nil {
		victim, ok := sim.reaper.SelectForSpace(sim.cells, sim.soup, hint, sim.meanCellSize(), cell.ID)
		if ok {
			sim.killCell(victim, "reaped_for_space")
			region, err = sim.soup.Allocate(size, sim.cfg.MalMode, hint, sim.rng)
		}
	}
	if err != nil {
		c.Flags.E = true
		return
	}

	cell.DaughterRegion = &region
	cell.Demographics.MovCount = 0
	c.AX = int32(region.Start)
	c.Flags.E = false
}

// execDivide finalizes reproduction: the daughter region must exist,
// meet the minimum size, and have been sufficiently copied into
// (mov_prop_thr_div), and match the mother's size/genome when
// div_same_siz/div_same_gen are set; after that the genetic operators
// run, the new genotype is registered, and a fresh Cell is spawned and scheduled
// (spec.md §4.5/§4.6, grounded on pytierra/instructions.py's divide).
func (sim *Simulation) execDivide(cell *Cell) {
	c := &cell.CPU
	if cell.DaughterRegion == nil {
		c.Flags.E = true
		return
	}
	daughter := *cell.DaughterRegion

	if daughter.Length < sim.cfg.MinCellSize {
		c.Flags.E = true
		return
	}
	threshold := int64(float64(daughter.Length) * sim.cfg.MovPropThrDiv)
	if cell.Demographics.MovCount < threshold {
		c.Flags.E = true
		return
	}
	if sim.cfg.DivSameSiz != 0 && daughter.Length != cell.MotherRegion.Length {
		c.Flags.E = true
		return
	}
	if sim.cfg.DivSameGen != 0 && genomeHash(readRegion(sim.soup, daughter)) != genomeHash(readRegion(sim.soup, cell.MotherRegion)) {
		c.Flags.E = true
		return
	}

	mates := func(length int) (Region, bool) { return sim.randomMateRegion(length, cell.ID) }
	finalRegion, _ := sim.mutEngine.ApplyGeneticOps(sim.soup, cell.ID, daughter, mates, sim.instCount)
	// resizing operators record the daughter span under the mother's id;
	// drop it so the child's RegisterOwner below is the only owner.
	sim.soup.removeOwner(finalRegion, cell.ID)

	genome := readRegion(sim.soup, finalRegion)
	parentName := cell.Demographics.GenotypeName
	gt, isNew := sim.genebank.Register(genome, parentName, sim.instCount)
	if isNew {
		sim.events.Emit(Event{Kind: NewGenotype, InstructionCount: sim.instCount, Payload: snapshotGenotype(gt)})
	}

	child := sim.spawnCell(finalRegion, gt.Name)
	sim.soup.RegisterOwner(finalRegion, child.ID)
	sim.scheduler.Add(child)
	sim.reaper.Add(child)

	cell.Demographics.OffspringCount++
	cell.Demographics.LastReproductionInstruction = sim.instCount
	cell.Demographics.MovCount = 0
	cell.DaughterRegion = nil
	c.Flags.E = false
	sim.lastBirthInst = sim.instCount

	sim.events.Emit(Event{Kind: CellBorn, InstructionCount: sim.instCount, Payload: snapshotCell(child)})
}
