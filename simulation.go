// This project is licensed under the MIT License (see LICENSE).

package tierra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"tierra/config"
)

// ErrGenomeTooSmall is returned by Boot when the ancestor genome is
// smaller than min_cell_size and cannot be placed.
var ErrGenomeTooSmall = errors.New("tierra: genome smaller than min_cell_size")

// ErrNoReproduction is returned by Run/RunFor when drop_dead million
// instructions have elapsed without a single successful division
// anywhere in the population — the engine's drop-dead halt condition
// (spec.md §4.7 condition 5, §6's NoReproduction status).
var ErrNoReproduction = errors.New("tierra: no reproduction within drop_dead instructions")

// ErrExtinction is returned by Run when the population reaches zero and
// there is nothing left to schedule.
var ErrExtinction = errors.New("tierra: population extinct")

// Simulation owns every subsystem and drives the tick loop: pick the
// next scheduled cell, run its slice, handle any reproduction or death
// that results, and perform periodic bookkeeping (spec.md §4.7/§5,
// grounded on pytierra/simulation.py's Simulation).
type Simulation struct {
	mu sync.RWMutex

	cfg   config.Config
	soup  *Soup
	cells map[int64]*Cell

	nextCellID int64

	scheduler *Scheduler
	reaper    *Reaper
	genebank  *Genebank
	mutEngine *MutationEngine
	events    *EventBus
	datalog   *DataLog
	rng       RNG

	instCount int64

	lastSampleInst  int64
	sampleInterval  int64
	nextDisturbance int64

	// lastBirthInst is the instruction count at the most recent
	// successful division anywhere in the population (or at Boot, if
	// none has happened yet). enforceDropDead compares the elapsed gap
	// against drop_dead million instructions.
	lastBirthInst int64

	// haltErr records why Tick stopped scheduling, once it has: a
	// drop-dead timeout takes precedence over plain extinction when
	// Run/RunFor decide which sentinel error to surface.
	haltErr error

	logger *slog.Logger

	// commands is the injection inbox: external callers enqueue a
	// closure to run with the simulation lock held, applied at the
	// start of the next tick (grounded on jcrd-tidepool/env.go's
	// process loop, which drains a similar channel every iteration).
	commands chan func(*Simulation)
}

// NewSimulation validates cfg and constructs an empty simulation (no
// ancestor placed yet — call Boot next).
func NewSimulation(cfg config.Config, logger *slog.Logger) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	events := NewEventBus()
	rng := NewRNG(cfg.Seed)
	sim := &Simulation{
		cfg:            cfg,
		soup:           NewSoup(cfg),
		cells:          make(map[int64]*Cell),
		scheduler:      NewScheduler(),
		reaper:         NewReaper(cfg),
		genebank:       NewGenebank(),
		mutEngine:      NewMutationEngine(cfg, rng, events),
		events:         events,
		datalog:        NewDataLog(10000),
		rng:            rng,
		logger:         logger,
		sampleInterval: int64(cfg.SliceSize) * 50,
		commands:       make(chan func(*Simulation), 64),
	}
	if sim.sampleInterval <= 0 {
		sim.sampleInterval = 1000
	}
	sim.scheduleNextDisturbance()
	return sim, nil
}

// Subscribe registers an observer for kind, for callers that want to
// watch the simulation's event stream directly rather than polling.
func (sim *Simulation) Subscribe(kind EventKind, fn Observer) {
	sim.events.Subscribe(kind, fn)
}

// Boot places the given ancestor genome into the soup at a fixed or
// random offset and schedules it as the first living cell (spec.md
// §4.7). genome smaller than min_cell_size is rejected.
func (sim *Simulation) Boot(genome []byte, offset int, random bool) error {
	sim.mu.Lock()
	defer sim.mu.Unlock()

	if len(genome) < sim.cfg.MinCellSize {
		return fmt.Errorf("%w: got %d bytes, need at least %d", ErrGenomeTooSmall, len(genome), sim.cfg.MinCellSize)
	}

	start := offset
	if random {
		start = sim.rng.Intn(sim.soup.Size())
	}
	region, ok := sim.soup.AllocateAt(start, len(genome))
	if !ok {
		return fmt.Errorf("tierra: cannot place %d-byte ancestor at offset %d: region not free", len(genome), start)
	}
	for i, b := range genome {
		sim.soup.writeByteRaw(region.Start+i, b)
	}

	gt, isNew := sim.genebank.Register(genome, "", 0)
	if isNew {
		sim.events.Emit(Event{Kind: NewGenotype, InstructionCount: 0, Payload: snapshotGenotype(gt)})
	}

	cell := sim.spawnCell(region, gt.Name)
	sim.soup.RegisterOwner(region, cell.ID)
	sim.scheduler.Add(cell)
	sim.reaper.Add(cell)
	sim.lastBirthInst = sim.instCount
	sim.events.Emit(Event{Kind: CellBorn, InstructionCount: 0, Payload: snapshotCell(cell)})

	sim.logger.Info("ancestor booted", "genotype", gt.Name, "size", len(genome), "start", region.Start)
	return nil
}

// spawnCell allocates a new cell id, initializes its CPU at the start of
// its own region, and records it in the cell table. It does not touch
// the scheduler, reaper, or soup owner index — callers (Boot, divide)
// do that once they know whether this is an ancestor or an offspring.
func (sim *Simulation) spawnCell(region Region, genotypeName string) *Cell {
	sim.nextCellID++
	c := newCell(sim.nextCellID, region)
	c.CPU.IP = region.Start
	c.Demographics.BirthInstruction = sim.instCount
	c.Demographics.LastReproductionInstruction = sim.instCount
	c.Demographics.GenotypeName = genotypeName
	sim.cells[c.ID] = c
	return c
}

// killCell removes a cell from every subsystem that tracks it: the
// scheduler, the reaper, the soup's owner index (freeing its memory),
// and the genebank's population count.
func (sim *Simulation) killCell(id int64, reason string) {
	c, ok := sim.cells[id]
	if !ok {
		return
	}
	c.Alive = false
	sim.scheduler.Remove(c)
	sim.reaper.Remove(c)
	sim.soup.Free(c.MotherRegion, c.ID)
	sim.soup.RandomizeBlock(c.MotherRegion, sim.rng)
	if c.DaughterRegion != nil {
		sim.soup.Free(*c.DaughterRegion, c.ID)
		sim.soup.RandomizeBlock(*c.DaughterRegion, sim.rng)
	}
	delete(sim.cells, id)

	if extinct := sim.genebank.Unregister(c.Demographics.GenotypeName); extinct {
		if gt, ok := sim.genebank.Lookup(c.Demographics.GenotypeName); ok {
			sim.events.Emit(Event{Kind: GenotypeExtinct, InstructionCount: sim.instCount, Payload: snapshotGenotype(gt)})
		}
	}
	sim.events.Emit(Event{Kind: CellDied, InstructionCount: sim.instCount, Payload: snapshotCell(c)})
	sim.logger.Debug("cell died", "cell", id, "reason", reason)
}

// meanCellSize returns the population's mean mother-region length, used
// to scale slice sizes and template search bounds. Returns the
// configured min_cell_size if the population is currently empty.
func (sim *Simulation) meanCellSize() float64 {
	if len(sim.cells) == 0 {
		return float64(sim.cfg.MinCellSize)
	}
	total := 0
	for _, c := range sim.cells {
		total += c.MotherRegion.Length
	}
	return float64(total) / float64(len(sim.cells))
}

// randomMateRegion returns the mother region of the living cell, other
// than excludeID, whose length is closest to targetLength; among equally
// close cells the lowest id wins. No size tolerance is applied. Used by
// the genetic crossover operators to find a mate (spec.md §4.5).
func (sim *Simulation) randomMateRegion(targetLength int, excludeID int64) (Region, bool) {
	var best *Cell
	bestDiff := math.MaxInt64
	for id, c := range sim.cells {
		if id == excludeID {
			continue
		}
		diff := c.MotherRegion.Length - targetLength
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff || (best != nil && diff == bestDiff && id < best.ID) {
			bestDiff, best = diff, c
		}
	}
	if best == nil {
		return Region{}, false
	}
	return best.MotherRegion, true
}

// Enqueue schedules fn to run with the simulation lock held at the next
// tick boundary — the command-inbox pattern that lets an external
// caller inject a cell, change a live config field, or request a
// snapshot without racing the tick loop.
func (sim *Simulation) Enqueue(fn func(*Simulation)) {
	sim.commands <- fn
}

// drainCommands applies every pending command without blocking.
func (sim *Simulation) drainCommands() {
	for {
		select {
		case fn := <-sim.commands:
			fn(sim)
		default:
			return
		}
	}
}

// Tick runs exactly one scheduler turn: pop the head cell, compute its
// slice size, execute that many instructions (or until it dies
// mid-slice), then requeue it if it's still alive. Reports false once
// the population is extinct.
func (sim *Simulation) Tick() bool {
	sim.mu.Lock()
	defer sim.mu.Unlock()

	sim.drainCommands()

	id, ok := sim.scheduler.Next()
	if !ok {
		return false
	}
	cell, ok := sim.cells[id]
	if !ok {
		return sim.scheduler.Len() > 0 || len(sim.cells) > 0
	}

	slice := SliceSize(sim.cfg, cell.MotherRegion.Length, sim.meanCellSize(), sim.rng)

	for i := 0; i < slice && cell.Alive; i++ {
		sim.step(cell)
		sim.instCount++
		sim.mutEngine.CosmicRay(sim.soup, sim.instCount, sim.meanCellSize())
		sim.periodicBookkeeping(cell.ID)
		if sim.haltErr != nil {
			break
		}
	}

	if cell.Alive {
		if sim.reaper.CheckLazy(cell, sim.instCount) {
			sim.logger.Debug("cell promoted for lazy reproduction", "cell", cell.ID)
		}
		sim.scheduler.Add(cell)
	}

	if sim.haltErr != nil {
		return false
	}
	return len(sim.cells) > 0
}

// enforceDropDead reports whether drop_dead million instructions have
// elapsed since the population's last successful division (spec.md
// §4.7 condition 5). It does not kill anything itself — it only trips
// the halt that Run/RunFor surface as ErrNoReproduction, per the
// termination law.
func (sim *Simulation) enforceDropDead() bool {
	if sim.cfg.DropDead <= 0 {
		return false
	}
	threshold := int64(sim.cfg.DropDead) * 1_000_000
	return sim.instCount-sim.lastBirthInst >= threshold
}

// scheduleNextDisturbance picks the instruction count of the next
// disturbance event. A positive dist_freq is a fixed period; a negative
// one draws an exponentially distributed interval with rate -dist_freq,
// i.e. disturbances arrive as a Poisson process (spec.md §4.4,
// pytierra/simulation.py's _schedule_next_disturbance).
func (sim *Simulation) scheduleNextDisturbance() {
	if sim.cfg.DistFreq == 0 {
		sim.nextDisturbance = -1 // disabled
		return
	}
	if sim.cfg.DistFreq > 0 {
		sim.nextDisturbance = sim.instCount + int64(sim.cfg.DistFreq)
		return
	}
	rate := -sim.cfg.DistFreq
	interval := -math.Log(1-sim.rng.Float64()) / rate
	sim.nextDisturbance = sim.instCount + int64(interval)
}

// doDisturbance kills a random dist_prop fraction of the living
// population simultaneously, excluding whichever cell is currently
// executing.
func (sim *Simulation) doDisturbance(excludeID int64) {
	victims := sim.reaper.SelectDisturbance(sim.cfg.DistProp, sim.rng, excludeID)
	for _, id := range victims {
		sim.killCell(id, "disturbance")
	}
	sim.logger.Info("disturbance", "killed", len(victims), "instruction", sim.instCount)
	sim.scheduleNextDisturbance()
}

// periodicBookkeeping runs the once-per-interval housekeeping that
// doesn't belong to any single instruction: disturbance, and a DataLog
// sample of the population's vital statistics (spec.md §4.9).
// currentID is the cell whose slice is executing.
func (sim *Simulation) periodicBookkeeping(currentID int64) {
	if sim.nextDisturbance >= 0 && sim.instCount >= sim.nextDisturbance {
		sim.doDisturbance(currentID)
	}
	if sim.instCount-sim.lastSampleInst >= sim.sampleInterval {
		sim.sample()
		sim.emitMilestone()
		sim.lastSampleInst = sim.instCount
	}
	if sim.haltErr == nil && sim.enforceDropDead() {
		sim.haltErr = ErrNoReproduction
	}
}

// emitMilestone fires a MILESTONE event. It is called on the same
// cadence as DataLog sampling, since both are periodic
// population-level checkpoints (spec.md §4.8's MILESTONE event; no
// separate interval is specified, so it rides the existing sample tick).
func (sim *Simulation) emitMilestone() {
	sim.events.Emit(Event{Kind: Milestone, InstructionCount: sim.instCount})
}

// sample appends one Sample to the data log.
func (sim *Simulation) sample() {
	sizes := make([]int, 0, len(sim.cells))
	maxFitness := 0.0
	for _, c := range sim.cells {
		sizes = append(sizes, c.MotherRegion.Length)
		if f := fitness(c); f > maxFitness {
			maxFitness = f
		}
	}
	sim.datalog.Append(Sample{
		InstructionCount:      sim.instCount,
		PopulationSize:        len(sim.cells),
		MeanCreatureSize:      sim.meanCellSize(),
		MaxFitness:            maxFitness,
		NumGenotypes:          len(sim.genebank.Living()),
		SoupFullness:          sim.soup.Fullness(),
		InstructionsPerSecond: 0,
	})
}

// fitness approximates reproductive efficiency as offspring produced
// per instruction executed — higher is better, zero for a cell that
// hasn't yet divided.
func fitness(c *Cell) float64 {
	if c.Demographics.InstructionsExecuted == 0 {
		return 0
	}
	return float64(c.Demographics.OffspringCount) / float64(c.Demographics.InstructionsExecuted)
}

// Run drives Tick in a loop until the context is cancelled, maxTicks
// scheduler turns have elapsed (0 means unbounded), the population
// goes extinct, or the drop-dead timeout trips.
func (sim *Simulation) Run(ctx context.Context, maxTicks int64) error {
	var ticks int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if maxTicks > 0 && ticks >= maxTicks {
			return nil
		}
		if !sim.Tick() {
			return sim.terminationError()
		}
		ticks++
	}
}

// RunFor is a convenience wrapper that runs until instructionTarget
// total instructions have executed, the population dies out, or the
// drop-dead timeout trips.
func (sim *Simulation) RunFor(ctx context.Context, instructionTarget int64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		sim.mu.RLock()
		done := sim.instCount >= instructionTarget
		sim.mu.RUnlock()
		if done {
			return nil
		}
		if !sim.Tick() {
			return sim.terminationError()
		}
	}
}

// terminationError reports why Tick stopped scheduling: a drop-dead
// reproduction timeout takes precedence over plain extinction, since
// it can trip with cells still alive but stuck.
func (sim *Simulation) terminationError() error {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	if sim.haltErr != nil {
		return sim.haltErr
	}
	return ErrExtinction
}

// Snapshot returns a value-typed copy of every living cell, safe to
// retain and read without holding the simulation's lock.
func (sim *Simulation) Snapshot() []CellSnapshot {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	out := make([]CellSnapshot, 0, len(sim.cells))
	for _, c := range sim.cells {
		out = append(out, snapshotCell(c))
	}
	return out
}

// Population returns the current number of living cells.
func (sim *Simulation) Population() int {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	return len(sim.cells)
}

// InstructionCount returns the total number of instructions executed so
// far.
func (sim *Simulation) InstructionCount() int64 {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	return sim.instCount
}

// DataLog exposes the retained time series for reporting/export.
func (sim *Simulation) DataLog() *DataLog {
	return sim.datalog
}

// Report renders a one-line human-readable status string (spec.md
// §6's supplemented status reporting), in the style of
// pytierra/simulation.py's report().
func (sim *Simulation) Report() string {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	return fmt.Sprintf(
		"instr=%d pop=%d genotypes=%d soup_full=%.1f%% mean_size=%.1f",
		sim.instCount, len(sim.cells), len(sim.genebank.Living()), sim.soup.Fullness()*100, sim.meanCellSize(),
	)
}
