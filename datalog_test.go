// This project is licensed under the MIT License (see LICENSE).

package tierra

import (
	"strings"
	"testing"
)

func TestDataLogRetainsChronologicalOrderUnderCapacity(t *testing.T) {
	d := NewDataLog(3)
	d.Append(Sample{InstructionCount: 1})
	d.Append(Sample{InstructionCount: 2})
	series := d.Series()
	if len(series) != 2 || series[0].InstructionCount != 1 || series[1].InstructionCount != 2 {
		t.Fatalf("Series() = %+v, want [1 2]", series)
	}
}

func TestDataLogEvictsOldestPastCapacity(t *testing.T) {
	d := NewDataLog(3)
	for i := int64(1); i <= 5; i++ {
		d.Append(Sample{InstructionCount: i})
	}
	series := d.Series()
	if len(series) != 3 {
		t.Fatalf("len(Series()) = %d, want 3", len(series))
	}
	want := []int64{3, 4, 5}
	for i, s := range series {
		if s.InstructionCount != want[i] {
			t.Fatalf("Series()[%d].InstructionCount = %d, want %d", i, s.InstructionCount, want[i])
		}
	}
}

func TestWriteCSVIncludesHeaderAndRows(t *testing.T) {
	d := NewDataLog(10)
	d.Append(Sample{InstructionCount: 1, PopulationSize: 4})
	d.Append(Sample{InstructionCount: 2, PopulationSize: 6})

	var buf strings.Builder
	if err := d.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "instruction_count") {
		t.Fatalf("CSV output missing header: %q", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 { // header + 2 rows
		t.Fatalf("CSV row count = %d, want 3", len(lines))
	}
}

func TestPopulationSummaryOnEmptyLog(t *testing.T) {
	d := NewDataLog(5)
	if s := d.PopulationSummary(); s != (Summary{}) {
		t.Fatalf("PopulationSummary() on empty log = %+v, want zero value", s)
	}
}

func TestPopulationSummaryComputesMean(t *testing.T) {
	d := NewDataLog(5)
	d.Append(Sample{PopulationSize: 10})
	d.Append(Sample{PopulationSize: 20})
	d.Append(Sample{PopulationSize: 30})
	s := d.PopulationSummary()
	if s.Mean != 20 {
		t.Fatalf("Mean = %v, want 20", s.Mean)
	}
	if s.Median != 20 {
		t.Fatalf("Median = %v, want 20", s.Median)
	}
}

func TestSizeHistogramBucketsExactSizes(t *testing.T) {
	hist := SizeHistogram([]int{12, 12, 30})
	if hist[12] != 2 || hist[30] != 1 {
		t.Fatalf("SizeHistogram = %v, want {12:2 30:1}", hist)
	}
}

func TestGenotypeFrequenciesSortedDescending(t *testing.T) {
	living := []*Genotype{
		{Name: "a", CurrentPopulation: 1},
		{Name: "b", CurrentPopulation: 5},
		{Name: "c", CurrentPopulation: 2},
	}
	freqs := GenotypeFrequencies(living)
	if len(freqs) != 3 || freqs[0].Name != "b" || freqs[1].Name != "c" || freqs[2].Name != "a" {
		t.Fatalf("GenotypeFrequencies order = %+v, want b,c,a by descending population", freqs)
	}
	total := 1.0 + 5.0 + 2.0
	if want := 5.0 / total; freqs[0].Fraction != want {
		t.Fatalf("freqs[0].Fraction = %v, want %v", freqs[0].Fraction, want)
	}
}
