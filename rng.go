// This project is licensed under the MIT License (see LICENSE).

package tierra

import "math/rand"

// RNG is the seeded source of randomness every component draws on —
// allocation tie-breaks, mutation rolls, reaper/disturbance selection.
// Wrapping math/rand behind an interface (grounded on
// jcrd-tidepool/rng.go's RNG/DefaultRNG split) lets tests substitute a
// fixed sequence without touching the global generator, and keeps the
// determinism law (spec.md §8: identical seed + config ⇒ identical event
// stream) to a single construction point.
type RNG interface {
	Intn(n int) int
	Float64() float64
	Int63() int64
}

// DefaultRNG wraps *rand.Rand to satisfy RNG.
type DefaultRNG struct {
	r *rand.Rand
}

// NewRNG constructs a DefaultRNG seeded deterministically.
func NewRNG(seed int64) *DefaultRNG {
	return &DefaultRNG{r: rand.New(rand.NewSource(seed))}
}

func (d *DefaultRNG) Intn(n int) int   { return d.r.Intn(n) }
func (d *DefaultRNG) Float64() float64 { return d.r.Float64() }
func (d *DefaultRNG) Int63() int64     { return d.r.Int63() }

// chance reports a boolean outcome of probability p in [0, 1].
func chance(rng RNG, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return rng.Float64() < p
}

// triggersPer reports whether a gen_per_X-style "1 in N" rate fires
// this roll. A rate of 0 (or negative) means "disabled", matching
// pytierra/mutations.py's treatment of a zero setting. Used only by the
// divide-time genetic operators, which spec.md §4.5 gives a plain
// 1/gen_per_X rate (no mean-size scaling).
func triggersPer(rng RNG, genPer int) bool {
	if genPer <= 0 {
		return false
	}
	return rng.Intn(genPer) == 0
}

// ratePerMeanSize computes the per-instruction rate spec.md §4.5 derives
// for background mutation, execution flaw, and copy mutation:
// 1/(gen_per_X * mean_cell_size), recomputed every instruction from the
// population's current mean size (pytierra/simulation.py's
// update_rates, called every tick). A non-positive gen_per_X disables
// the effect outright.
func ratePerMeanSize(genPer int, meanSize float64) float64 {
	if genPer <= 0 || meanSize <= 0 {
		return 0
	}
	return 1 / (float64(genPer) * meanSize)
}
