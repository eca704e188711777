package fieldintern

import "testing"

// TestTagReserved checks the §3 invariant that "$tag" is always field_id 0.
func TestTagReserved(t *testing.T) {
	in := New()
	id, ok := in.Lookup("$tag")
	if !ok || id != TagFieldID {
		t.Fatalf("expected $tag to be pre-registered at id 0, got id=%d ok=%v", id, ok)
	}
}

// TestFieldIDStability exercises the end-to-end scenario in spec.md §8:
// registering x, y, z then y, w, x on a second struct must keep x=1,
// y=2, z=3, w=4.
func TestFieldIDStability(t *testing.T) {
	in := New()
	x := in.ID("x")
	y := in.ID("y")
	z := in.ID("z")
	if x != 1 || y != 2 || z != 3 {
		t.Fatalf("expected x=1 y=2 z=3, got x=%d y=%d z=%d", x, y, z)
	}

	y2 := in.ID("y")
	w := in.ID("w")
	x2 := in.ID("x")
	if y2 != 2 || x2 != 1 {
		t.Fatalf("re-registering y/x must return their original ids, got y=%d x=%d", y2, x2)
	}
	if w != 4 {
		t.Fatalf("expected w=4, got %d", w)
	}
}

func TestHashDeterministic(t *testing.T) {
	in := New()
	h1 := in.Hash([]byte("hello"))
	h2 := in.Hash([]byte("hello"))
	if h1 != h2 {
		t.Fatalf("expected deterministic hash for same interner, got %d and %d", h1, h2)
	}
	if h1 == in.Hash([]byte("world")) {
		t.Fatalf("expected different hashes for different inputs")
	}
}
