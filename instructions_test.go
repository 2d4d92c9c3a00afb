// This project is licensed under the MIT License (see LICENSE).

package tierra

import (
	"testing"

	"tierra/config"
	"tierra/opcode"
)

// newTestSim returns a fresh simulation over the minimal preset with its
// soup pre-filled with a non-template opcode, so that tests placing an
// explicit template run don't have it silently extend into the
// soup's zero-initialized (and therefore nop0-decoding) background.
func newTestSim(t *testing.T) *Simulation {
	t.Helper()
	sim, err := NewSimulation(config.Minimal(), nil)
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	for i := 0; i < sim.soup.Size(); i++ {
		sim.soup.writeByteRaw(i, byte(opcode.Not0))
	}
	return sim
}

func writeOps(s *Soup, start int, ops ...opcode.Opcode) {
	for i, op := range ops {
		s.writeByteRaw(start+i, byte(op))
	}
}

func TestTemplateBitsStopsAtNonTemplate(t *testing.T) {
	sim := newTestSim(t)
	writeOps(sim.soup, 0, opcode.Nop0, opcode.Nop1, opcode.Nop0, opcode.Not0)
	bits := templateBits(sim.soup, 0)
	if len(bits) != 3 {
		t.Fatalf("templateBits = %v, want 3 entries", bits)
	}
	if bits[0] != 0 || bits[1] != 1 || bits[2] != 0 {
		t.Fatalf("templateBits = %v, want [0 1 0]", bits)
	}
}

func TestComplementFlipsEveryBit(t *testing.T) {
	got := complement([]int{0, 1, 0})
	want := []int{1, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("complement = %v, want %v", got, want)
		}
	}
}

func TestFindTemplateForward(t *testing.T) {
	sim := newTestSim(t)
	// at addr 10: template [nop0] (complement is nop1); forward search should
	// find the first nop1 after the template.
	writeOps(sim.soup, 10, opcode.Jmpo, opcode.Nop0)
	writeOps(sim.soup, 15, opcode.Nop1)
	res := findTemplate(sim.soup, 10, searchForward, 20)
	if !res.found {
		t.Fatalf("findTemplate should have found the complement template")
	}
	if res.target != 16 {
		t.Fatalf("res.target = %d, want 16 (one past the matched nop1)", res.target)
	}
	if res.selfLen != 1 {
		t.Fatalf("res.selfLen = %d, want 1", res.selfLen)
	}
}

func TestFindTemplateNoTemplateReturnsNotFound(t *testing.T) {
	sim := newTestSim(t)
	writeOps(sim.soup, 10, opcode.Jmpo, opcode.Not0)
	res := findTemplate(sim.soup, 10, searchForward, 20)
	if res.found || res.selfLen != 0 {
		t.Fatalf("findTemplate with no template following = %+v, want not found, selfLen 0", res)
	}
}

func TestFindTemplateBackward(t *testing.T) {
	sim := newTestSim(t)
	writeOps(sim.soup, 5, opcode.Nop1) // complement match target, placed before addr
	writeOps(sim.soup, 20, opcode.Jmpb, opcode.Nop0)
	res := findTemplate(sim.soup, 20, searchBackward, 30)
	if !res.found {
		t.Fatalf("findTemplate(backward) should have found the match")
	}
	if res.target != 6 {
		t.Fatalf("res.target = %d, want 6", res.target)
	}
}

func TestStepZeroWritesFlawOrZero(t *testing.T) {
	sim := newTestSim(t) // gen_per_flaw disabled in minimal preset
	c := newCell(1, Region{Start: 0, Length: 30})
	c.CPU.IP = 0
	sim.cells[c.ID] = c
	writeOps(sim.soup, 0, opcode.Zero)

	sim.step(c)
	if c.CPU.CX != 0 {
		t.Fatalf("zero: CX = %d, want 0 (flaw disabled)", c.CPU.CX)
	}
	if c.CPU.IP != 1 {
		t.Fatalf("IP after zero = %d, want 1", c.CPU.IP)
	}
}

func TestStepIncADoesNotAutoAdvanceExtra(t *testing.T) {
	sim := newTestSim(t)
	c := newCell(1, Region{Start: 0, Length: 30})
	sim.cells[c.ID] = c
	writeOps(sim.soup, 0, opcode.IncA)
	c.CPU.AX = 5
	sim.step(c)
	if c.CPU.AX != 6 {
		t.Fatalf("AX after incA = %d, want 6", c.CPU.AX)
	}
	if c.CPU.IP != 1 {
		t.Fatalf("IP after incA = %d, want 1", c.CPU.IP)
	}
}

func TestStepPushPopRoundTrip(t *testing.T) {
	sim := newTestSim(t)
	c := newCell(1, Region{Start: 0, Length: 30})
	sim.cells[c.ID] = c
	writeOps(sim.soup, 0, opcode.PushA, opcode.PopB)
	c.CPU.AX = 42
	sim.step(c) // pushA
	sim.step(c) // popB
	if c.CPU.BX != 42 {
		t.Fatalf("BX after pushA/popB = %d, want 42", c.CPU.BX)
	}
}

func TestStepPopUnderflowSetsError(t *testing.T) {
	sim := newTestSim(t)
	c := newCell(1, Region{Start: 0, Length: 30})
	sim.cells[c.ID] = c
	writeOps(sim.soup, 0, opcode.PopA)
	sim.step(c)
	if !c.CPU.Flags.E {
		t.Fatalf("popA on an empty stack should set the error flag")
	}
}

func TestStepMoviiRequiresDaughterOwnership(t *testing.T) {
	sim := newTestSim(t)
	c := newCell(1, Region{Start: 0, Length: 10})
	sim.cells[c.ID] = c
	writeOps(sim.soup, 0, opcode.Movii)
	c.CPU.AX = 50 // not inside any daughter region
	c.CPU.BX = 0
	sim.step(c)
	if !c.CPU.Flags.E {
		t.Fatalf("movii writing outside the daughter region should set E")
	}
}

func TestStepMoviiWritesIntoDaughter(t *testing.T) {
	sim := newTestSim(t)
	c := newCell(1, Region{Start: 0, Length: 10})
	d := Region{Start: 50, Length: 10}
	c.DaughterRegion = &d
	sim.cells[c.ID] = c
	c.CPU.IP = 1
	writeOps(sim.soup, 1, opcode.Movii)
	sim.soup.writeByteRaw(0, byte(opcode.Not0)) // source byte at BX=0
	c.CPU.AX = 50
	c.CPU.BX = 0
	sim.step(c)
	if c.CPU.Flags.E {
		t.Fatalf("movii into an owned daughter region should not set E")
	}
	if sim.soup.ReadByte(50) != byte(opcode.Not0) {
		t.Fatalf("movii did not copy the source byte")
	}
	if c.Demographics.MovCount != 1 {
		t.Fatalf("MovCount = %d, want 1", c.Demographics.MovCount)
	}
	if c.CPU.AX != 50 || c.CPU.BX != 0 {
		t.Fatalf("movii must not auto-increment AX/BX: AX=%d BX=%d", c.CPU.AX, c.CPU.BX)
	}
}

func TestStepAdrfSetsAddressAndTemplateLength(t *testing.T) {
	sim := newTestSim(t)
	c := newCell(1, Region{Start: 0, Length: 30})
	sim.cells[c.ID] = c
	writeOps(sim.soup, 0, opcode.Adrf, opcode.Nop0)
	writeOps(sim.soup, 8, opcode.Nop1)
	sim.step(c)
	if c.CPU.Flags.E {
		t.Fatalf("adrf should have found the complement template")
	}
	if c.CPU.CX != 1 {
		t.Fatalf("CX after adrf = %d, want 1 (template length)", c.CPU.CX)
	}
	if c.CPU.AX == 0 {
		t.Fatalf("AX after adrf should hold the found address")
	}
}

func TestExecMalRejectsOutOfRangeSize(t *testing.T) {
	sim := newTestSim(t)
	c := newCell(1, Region{Start: 0, Length: 20})
	sim.cells[c.ID] = c
	c.CPU.CX = int32(sim.cfg.MinCellSize - 1)
	sim.execMal(c)
	if !c.CPU.Flags.E {
		t.Fatalf("mal with size below min_cell_size should set E")
	}
	if c.DaughterRegion != nil {
		t.Fatalf("mal that rejected the size should not allocate a daughter")
	}
}

func TestExecMalSucceedsAndResetsMovCount(t *testing.T) {
	sim := newTestSim(t)
	region, _ := sim.soup.AllocateAt(0, 20)
	sim.soup.RegisterOwner(region, 1)
	c := newCell(1, region)
	c.Demographics.MovCount = 5
	sim.cells[c.ID] = c
	c.CPU.CX = 15

	sim.execMal(c)
	if c.CPU.Flags.E {
		t.Fatalf("mal within valid range should succeed")
	}
	if c.DaughterRegion == nil {
		t.Fatalf("mal should have allocated a daughter region")
	}
	if c.Demographics.MovCount != 0 {
		t.Fatalf("MovCount after successful mal = %d, want reset to 0", c.Demographics.MovCount)
	}
	if int(c.CPU.AX) != c.DaughterRegion.Start {
		t.Fatalf("AX = %d, want daughter start %d", c.CPU.AX, c.DaughterRegion.Start)
	}
}

func TestExecDivideFailsWithoutSufficientCopying(t *testing.T) {
	sim := newTestSim(t)
	region, _ := sim.soup.AllocateAt(0, 20)
	sim.soup.RegisterOwner(region, 1)
	c := newCell(1, region)
	sim.cells[c.ID] = c
	c.CPU.CX = 15
	sim.execMal(c)
	if c.CPU.Flags.E {
		t.Fatalf("setup mal failed: %v", c.CPU.Flags.E)
	}
	// no movii writes performed: MovCount stays 0, below mov_prop_thr_div
	sim.execDivide(c)
	if !c.CPU.Flags.E {
		t.Fatalf("divide before the copy threshold is met should set E")
	}
}

func TestExecDivideSucceedsAndSpawnsChild(t *testing.T) {
	sim := newTestSim(t)
	region, _ := sim.soup.AllocateAt(0, 20)
	sim.soup.RegisterOwner(region, 1)
	c := newCell(1, region)
	c.Demographics.GenotypeName = "parent"
	sim.cells[c.ID] = c
	sim.nextCellID = c.ID // keep spawnCell's counter clear of the manually assigned parent id
	c.CPU.CX = 15
	sim.execMal(c)
	if c.CPU.Flags.E {
		t.Fatalf("setup mal failed")
	}
	// satisfy the copy threshold directly
	c.Demographics.MovCount = int64(c.DaughterRegion.Length)

	popBefore := len(sim.cells)
	sim.execDivide(c)
	if c.CPU.Flags.E {
		t.Fatalf("divide should succeed once the copy threshold is met")
	}
	if len(sim.cells) != popBefore+1 {
		t.Fatalf("population = %d, want %d (one child spawned)", len(sim.cells), popBefore+1)
	}
	if c.Demographics.OffspringCount != 1 {
		t.Fatalf("OffspringCount = %d, want 1", c.Demographics.OffspringCount)
	}
	if c.DaughterRegion != nil {
		t.Fatalf("DaughterRegion should be cleared after a successful divide")
	}
}
