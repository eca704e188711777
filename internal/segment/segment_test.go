package segment

import (
	"testing"

	"github.com/latticeforge/vbcc/internal/fieldintern"
	"github.com/latticeforge/vbcc/internal/ir"
	"github.com/latticeforge/vbcc/internal/types"
)

func TestConstantPool_NoDedupByDefault(t *testing.T) {
	pool := NewConstantPool(fieldintern.New(), false)
	a := pool.Add("hello")
	b := pool.Add("hello")
	if a == b {
		t.Fatalf("expected distinct offsets without dedup, got %d and %d", a, b)
	}
}

func TestConstantPool_Dedup(t *testing.T) {
	pool := NewConstantPool(fieldintern.New(), true)
	a := pool.Add("hello")
	b := pool.Add("hello")
	if a != b {
		t.Fatalf("expected same offset with dedup enabled, got %d and %d", a, b)
	}
	c := pool.Add("world")
	if c == a {
		t.Fatalf("expected distinct string to get a distinct offset")
	}
}

func TestGlobalTable_RejectsDuplicateUID(t *testing.T) {
	g := NewGlobalTable()
	if _, ok := g.Add(7); !ok {
		t.Fatalf("expected first Add(7) to succeed")
	}
	if _, ok := g.Add(7); ok {
		t.Fatalf("expected duplicate UID 7 to be rejected")
	}
	if _, ok := g.Add(8); !ok {
		t.Fatalf("expected Add(8) to succeed")
	}
}

func TestBuildTemplates_FieldsSortedByID(t *testing.T) {
	m := &ir.Module{
		Structs: []ir.Struct{
			{
				Name: "Point",
				Fields: []types.Field{
					{Name: "y", ID: 5, Offset: 8},
					{Name: "x", ID: 2, Offset: 0},
				},
			},
		},
	}
	out := BuildTemplates(m)
	if len(out) != 1 {
		t.Fatalf("expected one template entry, got %d", len(out))
	}
	fields := out[0].Fields
	if len(fields) != 2 || fields[0].ID != 2 || fields[1].ID != 5 {
		t.Fatalf("expected fields sorted by ID [2,5], got %+v", fields)
	}
}

func TestBuildTemplates_ClassMethodsSortedByUID(t *testing.T) {
	m := &ir.Module{
		Classes: []ir.Class{
			{
				Name:    "Shape",
				ClassID: 1,
				Methods: []types.Method{
					{UID: 30, Name: "area"},
					{UID: 10, Name: "perimeter"},
				},
			},
		},
	}
	out := BuildTemplates(m)
	if len(out) != 1 || !out[0].IsClass {
		t.Fatalf("expected one class template entry, got %+v", out)
	}
	methods := out[0].Methods
	if len(methods) != 2 || methods[0].UID != 10 || methods[1].UID != 30 {
		t.Fatalf("expected methods sorted by UID [10,30], got %+v", methods)
	}
}

func TestEncodeObjectKeys_FieldIDOrder(t *testing.T) {
	in := fieldintern.New()
	in.ID("x")
	in.ID("y")
	b := EncodeObjectKeys(in)
	if len(b) == 0 {
		t.Fatalf("expected non-empty object-keys segment")
	}
}
