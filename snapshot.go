// This project is licensed under the MIT License (see LICENSE).

package tierra

// CellSnapshot is a value-typed copy of a Cell's externally interesting
// state: no pointers back into the live simulation, safe to hold and
// read after the tick that produced it has moved on (spec.md §5: "a
// reader must never observe a half-updated cell, and must never retain
// a reference into live state").
type CellSnapshot struct {
	ID             int64
	MotherRegion   Region
	HasDaughter    bool
	DaughterRegion Region
	CPU            CPU
	Demographics   Demographics
}

func snapshotCell(c *Cell) CellSnapshot {
	s := CellSnapshot{
		ID:           c.ID,
		MotherRegion: c.MotherRegion,
		CPU:          c.CPU,
		Demographics: c.Demographics,
	}
	if c.DaughterRegion != nil {
		s.HasDaughter = true
		s.DaughterRegion = *c.DaughterRegion
	}
	return s
}

// GenotypeSnapshot is a value-typed copy of a Genotype, safe to retain.
type GenotypeSnapshot struct {
	Name              string
	Genome            []byte
	Size              int
	ParentName        string
	OriginInstruction int64
	CurrentPopulation int
	MaxPopulation     int
}

func snapshotGenotype(g *Genotype) GenotypeSnapshot {
	return GenotypeSnapshot{
		Name:              g.Name,
		Genome:            append([]byte(nil), g.Genome...),
		Size:              g.Size,
		ParentName:        g.ParentName,
		OriginInstruction: g.OriginInstruction,
		CurrentPopulation: g.CurrentPopulation,
		MaxPopulation:     g.MaxPopulation,
	}
}
