// This project is licensed under the MIT License (see LICENSE).

package tierra

import "fmt"

// Genotype is a distinct genome identity: one entry per (size, hash)
// pair ever seen; the record is kept after its population drops to
// zero (spec.md §4.6, grounded on pytierra/genebank.py's Genotype).
type Genotype struct {
	Name              string
	Genome            []byte
	Size              int
	ParentName        string
	OriginInstruction int64
	CurrentPopulation int
	MaxPopulation     int
}

// sizeClass tracks every distinct genome of one byte length, keyed by
// content hash, and the next base-26 label to hand out within that
// length (pytierra/genebank.py's SizeClass).
type sizeClass struct {
	byHash    map[uint64]*Genotype
	nextLabel int
}

// Genebank is the registry of every genotype ever registered, extinct
// ones included, organized by size class the way the teacher's genome bank
// names ancestors (e.g. "0080aaa").
type Genebank struct {
	classes map[int]*sizeClass
	byName  map[string]*Genotype
}

// NewGenebank returns an empty registry.
func NewGenebank() *Genebank {
	return &Genebank{
		classes: make(map[int]*sizeClass),
		byName:  make(map[string]*Genotype),
	}
}

// genomeHash is a simple order-sensitive rolling hash over genome bytes.
// It need not be cryptographic — only collision-resistant enough that
// two distinct genomes of the same size essentially never collide
// (grounded on pytierra/genebank.py's _genome_hash, a comparable
// weighted-sum scheme).
func genomeHash(genome []byte) uint64 {
	var h uint64 = 14695981039346656037 // FNV-1a offset basis
	for _, b := range genome {
		h ^= uint64(b)
		h *= 1099511628211 // FNV-1a prime
	}
	return h
}

// labelFor renders n (0-based) as a base-26 lowercase triple: 0 -> aaa,
// 1 -> aab, ... (pytierra/genebank.py's SizeClass._int_to_label).
func labelFor(n int) string {
	const base = 26
	digits := [3]byte{}
	for i := 2; i >= 0; i-- {
		digits[i] = byte('a' + n%base)
		n /= base
	}
	return string(digits[:])
}

// Register looks up or creates the Genotype for genome, bumping its
// population. It returns the genotype and whether this call created a
// brand-new identity (the caller should emit NewGenotype in that case).
func (g *Genebank) Register(genome []byte, parentName string, originInstruction int64) (*Genotype, bool) {
	size := len(genome)
	sc, ok := g.classes[size]
	if !ok {
		sc = &sizeClass{byHash: make(map[uint64]*Genotype)}
		g.classes[size] = sc
	}
	h := genomeHash(genome)
	if gt, ok := sc.byHash[h]; ok {
		gt.CurrentPopulation++
		if gt.CurrentPopulation > gt.MaxPopulation {
			gt.MaxPopulation = gt.CurrentPopulation
		}
		return gt, false
	}

	name := fmt.Sprintf("%04d%s", size, labelFor(sc.nextLabel))
	sc.nextLabel++
	gt := &Genotype{
		Name:              name,
		Genome:            append([]byte(nil), genome...),
		Size:              size,
		ParentName:        parentName,
		OriginInstruction: originInstruction,
		CurrentPopulation: 1,
		MaxPopulation:     1,
	}
	sc.byHash[h] = gt
	g.byName[name] = gt
	return gt, true
}

// Unregister decrements the named genotype's population. It reports
// whether the genotype just went extinct (population reached zero), in
// which case the caller should emit GenotypeExtinct; the record itself
// is kept (for lineage lookups / final reporting) rather than deleted.
func (g *Genebank) Unregister(name string) bool {
	gt, ok := g.byName[name]
	if !ok || gt.CurrentPopulation == 0 {
		return false
	}
	gt.CurrentPopulation--
	return gt.CurrentPopulation == 0
}

// Lookup returns the genotype registered under name, if any.
func (g *Genebank) Lookup(name string) (*Genotype, bool) {
	gt, ok := g.byName[name]
	return gt, ok
}

// Living returns every genotype with at least one surviving cell.
func (g *Genebank) Living() []*Genotype {
	var out []*Genotype
	for _, gt := range g.byName {
		if gt.CurrentPopulation > 0 {
			out = append(out, gt)
		}
	}
	return out
}

// Count returns the number of distinct genotypes ever registered
// (extinct ones included).
func (g *Genebank) Count() int {
	return len(g.byName)
}
