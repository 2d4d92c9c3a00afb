// This project is licensed under the MIT License (see LICENSE).

package tierra

import (
	"container/list"
	"math"

	"tierra/config"
)

// Scheduler is the FIFO round-robin queue of live cell ids: Next pops
// the head and (by convention) the caller pushes it back to the tail
// once its slice is consumed (spec.md §4.3).
type Scheduler struct {
	queue *list.List
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{queue: list.New()}
}

// Add pushes id onto the tail and records the element on cell so it can
// be removed in O(1) later.
func (s *Scheduler) Add(cell *Cell) {
	cell.schedElem = s.queue.PushBack(cell.ID)
}

// Remove drops cell from the queue.
func (s *Scheduler) Remove(cell *Cell) {
	if cell.schedElem != nil {
		s.queue.Remove(cell.schedElem)
		cell.schedElem = nil
	}
}

// Next pops the head id and reports whether the queue was non-empty.
// The caller is responsible for re-adding the cell (via Add) once its
// slice ends, which is what gives the queue its round-robin shape.
func (s *Scheduler) Next() (int64, bool) {
	front := s.queue.Front()
	if front == nil {
		return 0, false
	}
	id := front.Value.(int64)
	s.queue.Remove(front)
	return id, true
}

// Len reports the number of queued cells.
func (s *Scheduler) Len() int {
	return s.queue.Len()
}

// IDs returns a snapshot of the queue order, head first.
func (s *Scheduler) IDs() []int64 {
	out := make([]int64, 0, s.queue.Len())
	for e := s.queue.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(int64))
	}
	return out
}

// SliceSize computes how many instructions a cell of the given length
// gets to execute this turn (spec.md §4.3). When siz_dep_slice is
// disabled, every cell gets the flat slice_size. Otherwise the base is
// scaled by (cellLength / refSize) ^ slice_pow, where refSize is the
// population's mean creature size; slice_style further mixes in a fixed
// and a randomized fraction of that base.
func SliceSize(cfg config.Config, cellLength int, refSize float64, rng RNG) int {
	if cfg.SizDepSlice == 0 {
		return cfg.SliceSize
	}
	if refSize <= 0 {
		refSize = float64(cellLength)
	}
	ratio := float64(cellLength) / refSize
	base := float64(cfg.SliceSize) * math.Pow(ratio, cfg.SlicePow)

	if cfg.SliceStyle == 2 {
		// fixed fraction plus a uniformly randomized fraction
		fixed := base * cfg.SlicFixFrac
		random := base * cfg.SlicRanFrac * rng.Float64()
		return maxInt(1, int(math.Round(fixed+random)))
	}
	// every other slice_style value is the flat, unvaried base
	// (pytierra/scheduler.py's compute_slice_size only special-cases 2).
	return maxInt(1, int(math.Round(base)))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
