// This project is licensed under the MIT License (see LICENSE).

package tierra

import (
	"context"
	"errors"
	"testing"

	"tierra/config"
)

func TestBootRejectsTooSmallGenome(t *testing.T) {
	sim := newTestSim(t)
	err := sim.Boot([]byte{1, 2, 3}, 0, false)
	if !errors.Is(err, ErrGenomeTooSmall) {
		t.Fatalf("Boot with a too-small genome = %v, want ErrGenomeTooSmall", err)
	}
}

func TestBootPlacesAncestorAndSchedulesIt(t *testing.T) {
	sim := newTestSim(t)
	genome := make([]byte, 20)
	if err := sim.Boot(genome, 10, false); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if sim.Population() != 1 {
		t.Fatalf("Population() = %d, want 1", sim.Population())
	}
	snaps := sim.Snapshot()
	if len(snaps) != 1 || snaps[0].MotherRegion.Start != 10 {
		t.Fatalf("Snapshot() = %+v, want one cell starting at offset 10", snaps)
	}
}

func TestBootTwiceAtOverlappingOffsetFails(t *testing.T) {
	sim := newTestSim(t)
	genome := make([]byte, 20)
	if err := sim.Boot(genome, 0, false); err != nil {
		t.Fatalf("first Boot: %v", err)
	}
	if err := sim.Boot(genome, 5, false); err == nil {
		t.Fatalf("second Boot overlapping the first ancestor should fail")
	}
}

func TestTickReturnsFalseOnEmptyPopulation(t *testing.T) {
	sim := newTestSim(t)
	if sim.Tick() {
		t.Fatalf("Tick() on an empty simulation should report false")
	}
}

func TestTickAdvancesInstructionCount(t *testing.T) {
	sim := newTestSim(t)
	genome := make([]byte, 20)
	for i := range genome {
		genome[i] = byte(2) // not0: harmless, deterministic single-instruction loop
	}
	if err := sim.Boot(genome, 0, false); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	before := sim.InstructionCount()
	sim.Tick()
	if sim.InstructionCount() <= before {
		t.Fatalf("InstructionCount() did not advance after Tick()")
	}
}

func TestRunForStopsAtInstructionTarget(t *testing.T) {
	sim := newTestSim(t)
	genome := make([]byte, 20)
	if err := sim.Boot(genome, 0, false); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if err := sim.RunFor(context.Background(), 50); err != nil {
		t.Fatalf("RunFor: %v", err)
	}
	if sim.InstructionCount() < 50 {
		t.Fatalf("InstructionCount() = %d, want >= 50", sim.InstructionCount())
	}
}

func TestNewSimulationRejectsInvalidConfig(t *testing.T) {
	cfg := config.Minimal()
	cfg.SoupSize = 0
	if _, err := NewSimulation(cfg, nil); err == nil {
		t.Fatalf("NewSimulation with an invalid config should fail")
	}
}

func TestKillCellFreesItsMemoryAndUpdatesGenebank(t *testing.T) {
	sim := newTestSim(t)
	genome := make([]byte, 20)
	if err := sim.Boot(genome, 0, false); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	var id int64
	for cid := range sim.cells {
		id = cid
	}
	sim.killCell(id, "test")
	if sim.Population() != 0 {
		t.Fatalf("Population() after killCell = %d, want 0", sim.Population())
	}
	if len(sim.genebank.Living()) != 0 {
		t.Fatalf("genebank should report no living genotypes after the only cell died")
	}
}

func TestReportIncludesPopulationAndInstructionCount(t *testing.T) {
	sim := newTestSim(t)
	genome := make([]byte, 20)
	if err := sim.Boot(genome, 0, false); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	report := sim.Report()
	if report == "" {
		t.Fatalf("Report() returned empty string")
	}
}
