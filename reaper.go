// This project is licensed under the MIT License (see LICENSE).

package tierra

import (
	"container/list"
	"math"

	"tierra/config"
)

// Reaper is the ordered kill queue: head is the most reapable cell
// (oldest, adjusted for accumulated errors), tail the safest (spec.md
// §4.4). New cells enter at the tail; CPU errors nudge a cell toward the
// head one slot at a time (O(1), via container/list — grounded on the
// Scheduler's use of the same structure); lazy-tolerance promotion moves
// a cell straight to the head.
type Reaper struct {
	queue *list.List // Value: int64 cell id
	cfg   config.Config
}

// NewReaper returns an empty reaper queue.
func NewReaper(cfg config.Config) *Reaper {
	return &Reaper{queue: list.New(), cfg: cfg}
}

// Add enters a newly divided cell at the tail — the safest position,
// since it has no age or errors yet.
func (r *Reaper) Add(cell *Cell) {
	cell.reaperElem = r.queue.PushBack(cell.ID)
}

// Remove drops cell from the queue (on death, or prior to re-adding).
func (r *Reaper) Remove(cell *Cell) {
	if cell.reaperElem != nil {
		r.queue.Remove(cell.reaperElem)
		cell.reaperElem = nil
	}
}

// RecordError nudges cell one position toward the head. Called whenever
// the cell's CPU raises its error flag; repeated errors accumulate into
// a faster approach to the head than age alone would produce.
func (r *Reaper) RecordError(cell *Cell) {
	if cell.reaperElem == nil {
		return
	}
	if prev := cell.reaperElem.Prev(); prev != nil {
		r.queue.MoveBefore(cell.reaperElem, prev)
	}
}

// CheckLazy reports whether cell has gone too long without reproducing
// (instCount - last_reproduction_instruction > lazy_tol * mother region
// length) and, if so, promotes it straight to the reaper head (spec.md
// §4.4's lazy-tolerance rule — a promotion, not an immediate kill).
func (r *Reaper) CheckLazy(cell *Cell, instCount int64) bool {
	threshold := int64(r.cfg.LazyTol) * int64(cell.MotherRegion.Length)
	if instCount-cell.Demographics.LastReproductionInstruction <= threshold {
		return false
	}
	if cell.reaperElem != nil {
		r.queue.MoveToFront(cell.reaperElem)
	}
	return true
}

// Head returns the id of the most reapable cell, if any.
func (r *Reaper) Head() (int64, bool) {
	front := r.queue.Front()
	if front == nil {
		return 0, false
	}
	return front.Value.(int64), true
}

// Len reports the number of cells currently tracked.
func (r *Reaper) Len() int {
	return r.queue.Len()
}

// IDs returns a snapshot of the queue order, head (most reapable) first.
func (r *Reaper) IDs() []int64 {
	out := make([]int64, 0, r.queue.Len())
	for e := r.queue.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(int64))
	}
	return out
}

// SelectForSpace picks a cell to kill to make room for a failed
// allocation near hint, excluding exclude (the cell that triggered the
// allocation — it must never reap itself). With mal_reap_tol disabled,
// or if no cell falls within tolerance, it falls back to the queue
// head (spec.md §4.4).
func (r *Reaper) SelectForSpace(cells map[int64]*Cell, soup *Soup, hint int, meanSize float64, exclude int64) (int64, bool) {
	if r.cfg.MalReapTol == 0 {
		return r.firstExcluding(cells, exclude)
	}

	tolerance := int(math.Round(float64(r.cfg.MalTol) * meanSize))
	for e := r.queue.Front(); e != nil; e = e.Next() {
		id := e.Value.(int64)
		if id == exclude {
			continue
		}
		c, ok := cells[id]
		if !ok {
			continue
		}
		if soup.wrapDistance(c.MotherRegion.Start, hint) <= tolerance {
			return id, true
		}
	}
	return r.firstExcluding(cells, exclude)
}

func (r *Reaper) firstExcluding(cells map[int64]*Cell, exclude int64) (int64, bool) {
	for e := r.queue.Front(); e != nil; e = e.Next() {
		id := e.Value.(int64)
		if id != exclude {
			return id, true
		}
	}
	return 0, false
}

// SelectDisturbance samples a dist_prop-sized random fraction of live
// cells to kill simultaneously, excluding the currently executing cell
// (spec.md §4.4's periodic disturbance).
func (r *Reaper) SelectDisturbance(proportion float64, rng RNG, exclude int64) []int64 {
	ids := r.IDs()
	candidates := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != exclude {
			candidates = append(candidates, id)
		}
	}
	n := int(math.Ceil(proportion * float64(len(candidates))))
	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	if n > len(candidates) {
		n = len(candidates)
	}
	shuffled := append([]int64(nil), candidates...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n]
}
