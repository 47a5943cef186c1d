package octomap

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
)

func TestCoordToKey_Floors(t *testing.T) {
	cases := []struct {
		pt   r3.Vector
		want Key
	}{
		{r3.Vector{X: 0.005, Y: 0.015, Z: 0.025}, Key{0, 1, 2}},
		{r3.Vector{X: -0.005, Y: -0.01, Z: -0.0101}, Key{-1, -1, -2}},
		{r3.Vector{}, Key{0, 0, 0}},
	}
	for _, c := range cases {
		if got := CoordToKey(c.pt, 0.01); got != c.want {
			t.Errorf("CoordToKey(%v) = %v, want %v", c.pt, got, c.want)
		}
	}
}

func TestKeyCenter_RoundTrip(t *testing.T) {
	//nolint:gosec
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		k := Key{X: rng.Int31n(2000) - 1000, Y: rng.Int31n(2000) - 1000, Z: rng.Int31n(2000) - 1000}
		if got := CoordToKey(k.Center(0.02), 0.02); got != k {
			t.Fatalf("center of %v maps back to %v", k, got)
		}
	}
}

func TestKeyTranslation_ExactInteger(t *testing.T) {
	tr := KeyTranslation{
		OriginLocal:  Key{100, 100, 100},
		OriginGlobal: Key{-7, 250, 3},
	}
	local := Key{103, 98, 100}
	got := tr.Apply(local)
	want := Key{-4, 248, 3}
	if got != want {
		t.Errorf("Apply(%v) = %v, want %v", local, got, want)
	}
	if back := tr.Inverse().Apply(got); back != local {
		t.Errorf("inverse gave %v, want %v", back, local)
	}
}

func TestSortedKeys(t *testing.T) {
	s := NewKeySet(Key{1, 0, 0}, Key{0, 5, 0}, Key{0, 0, 9}, Key{0, 5, -1})
	got := SortedKeys(s)
	want := []Key{{0, 0, 9}, {0, 5, -1}, {0, 5, 0}, {1, 0, 0}}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SortedKeys = %v, want %v", got, want)
		}
	}
}

func TestNeighborhoodSizes(t *testing.T) {
	for nb, want := range map[Neighborhood]int{Face6: 6, Edge18: 18, Vertex26: 26} {
		if got := len(nb.Offsets()); got != want {
			t.Errorf("%s: %d offsets, want %d", nb, got, want)
		}
	}
	if _, err := ParseNeighborhood(3); err == nil {
		t.Error("expected error for neighborhood 3")
	}
	nb, err := ParseNeighborhood(1)
	if err != nil || nb != Edge18 {
		t.Errorf("ParseNeighborhood(1) = %v, %v", nb, err)
	}
}
