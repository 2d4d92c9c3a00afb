// This project is licensed under the MIT License (see LICENSE).

package tierra

import "testing"

func TestRegisterAssignsStableNameAndDedupsByContent(t *testing.T) {
	g := NewGenebank()
	genome := []byte{1, 2, 3, 4}

	gt1, isNew1 := g.Register(genome, "", 0)
	if !isNew1 {
		t.Fatalf("first Register of a genome should report isNew=true")
	}
	if gt1.Name != "0004aaa" {
		t.Fatalf("Name = %q, want 0004aaa", gt1.Name)
	}

	gt2, isNew2 := g.Register(append([]byte(nil), genome...), "", 5)
	if isNew2 {
		t.Fatalf("re-registering an identical genome should report isNew=false")
	}
	if gt2 != gt1 {
		t.Fatalf("re-registering an identical genome should return the same *Genotype")
	}
	if gt1.CurrentPopulation != 2 {
		t.Fatalf("CurrentPopulation = %d, want 2", gt1.CurrentPopulation)
	}
}

func TestRegisterDistinctGenomesGetDistinctLabels(t *testing.T) {
	g := NewGenebank()
	a, _ := g.Register([]byte{1, 2, 3, 4}, "", 0)
	b, _ := g.Register([]byte{4, 3, 2, 1}, "", 0)
	if a.Name == b.Name {
		t.Fatalf("distinct genomes of the same size got the same name %q", a.Name)
	}
	if b.Name != "0004aab" {
		t.Fatalf("second distinct genome of size 4 = %q, want 0004aab", b.Name)
	}
}

func TestRegisterDifferentSizesAreIndependentClasses(t *testing.T) {
	g := NewGenebank()
	small, _ := g.Register([]byte{1, 2}, "", 0)
	big, _ := g.Register([]byte{1, 2, 3, 4}, "", 0)
	if small.Name == big.Name {
		t.Fatalf("genomes of different sizes should never collide in name")
	}
}

func TestUnregisterReportsExtinction(t *testing.T) {
	g := NewGenebank()
	gt, _ := g.Register([]byte{1, 2, 3}, "", 0)
	g.Register(append([]byte(nil), gt.Genome...), "", 1) // population now 2

	if extinct := g.Unregister(gt.Name); extinct {
		t.Fatalf("Unregister with population still 1 should not report extinction")
	}
	if extinct := g.Unregister(gt.Name); !extinct {
		t.Fatalf("Unregister dropping population to 0 should report extinction")
	}
	if len(g.Living()) != 0 {
		t.Fatalf("Living() after extinction = %v, want empty", g.Living())
	}
	if _, ok := g.Lookup(gt.Name); !ok {
		t.Fatalf("Lookup should still find an extinct genotype's record")
	}
}

func TestLabelForBase26Sequence(t *testing.T) {
	cases := map[int]string{0: "aaa", 1: "aab", 25: "aaz", 26: "aba"}
	for n, want := range cases {
		if got := labelFor(n); got != want {
			t.Errorf("labelFor(%d) = %q, want %q", n, got, want)
		}
	}
}
