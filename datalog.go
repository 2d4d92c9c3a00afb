// This project is licensed under the MIT License (see LICENSE).

package tierra

import (
	"io"
	"sort"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/stat"
)

// Sample is one periodic snapshot of the simulation's vital statistics
// (spec.md §4.9, grounded on pytierra/datalog.py's DataCollector.sample).
type Sample struct {
	InstructionCount      int64   `csv:"instruction_count"`
	PopulationSize        int     `csv:"population_size"`
	MeanCreatureSize      float64 `csv:"mean_creature_size"`
	MaxFitness            float64 `csv:"max_fitness"`
	NumGenotypes          int     `csv:"num_genotypes"`
	SoupFullness          float64 `csv:"soup_fullness"`
	InstructionsPerSecond float64 `csv:"instructions_per_second"`
}

// GenotypeFrequency is one row of a population snapshot: how much of
// the living population a genotype currently accounts for.
type GenotypeFrequency struct {
	Name       string
	Population int
	Fraction   float64
}

// DataLog is a fixed-capacity ring buffer of Samples plus on-demand
// snapshot helpers (size histogram, genotype frequency) — the teacher's
// telemetry package exports these the same way, via gocsv and gonum/stat
// (grounded on pthm-soup/telemetry/{output,stats}.go).
type DataLog struct {
	capacity int
	buf      []Sample
	next     int
	full     bool
}

// NewDataLog returns a log that retains at most capacity samples,
// discarding the oldest once full.
func NewDataLog(capacity int) *DataLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &DataLog{capacity: capacity, buf: make([]Sample, capacity)}
}

// Append records a new sample, evicting the oldest if the ring is full.
func (d *DataLog) Append(s Sample) {
	d.buf[d.next] = s
	d.next = (d.next + 1) % d.capacity
	if d.next == 0 {
		d.full = true
	}
}

// Series returns the retained samples in chronological order.
func (d *DataLog) Series() []Sample {
	if !d.full {
		out := make([]Sample, d.next)
		copy(out, d.buf[:d.next])
		return out
	}
	out := make([]Sample, d.capacity)
	copy(out, d.buf[d.next:])
	copy(out[d.capacity-d.next:], d.buf[:d.next])
	return out
}

// WriteCSV writes the full retained series to w in CSV form.
func (d *DataLog) WriteCSV(w io.Writer) error {
	return gocsv.Marshal(d.Series(), w)
}

// Summary holds distributional statistics over the retained series'
// population-size column, computed with gonum/stat the way
// pthm-soup/telemetry/stats.go computes energy statistics.
type Summary struct {
	Mean   float64
	StdDev float64
	Median float64
}

// PopulationSummary summarizes PopulationSize across the retained
// series. Returns the zero Summary if the log is empty.
func (d *DataLog) PopulationSummary() Summary {
	series := d.Series()
	if len(series) == 0 {
		return Summary{}
	}
	values := make([]float64, len(series))
	for i, s := range series {
		values[i] = float64(s.PopulationSize)
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mean := stat.Mean(values, nil)
	return Summary{
		Mean:   mean,
		StdDev: stat.StdDev(values, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
	}
}

// SizeHistogram buckets the given creature lengths by exact byte size.
func SizeHistogram(sizes []int) map[int]int {
	hist := make(map[int]int)
	for _, n := range sizes {
		hist[n]++
	}
	return hist
}

// GenotypeFrequencies turns a genebank's living genotypes into a
// frequency snapshot, sorted by descending population.
func GenotypeFrequencies(living []*Genotype) []GenotypeFrequency {
	total := 0
	for _, gt := range living {
		total += gt.CurrentPopulation
	}
	out := make([]GenotypeFrequency, 0, len(living))
	for _, gt := range living {
		frac := 0.0
		if total > 0 {
			frac = float64(gt.CurrentPopulation) / float64(total)
		}
		out = append(out, GenotypeFrequency{Name: gt.Name, Population: gt.CurrentPopulation, Fraction: frac})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Population > out[j].Population })
	return out
}
