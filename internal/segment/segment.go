// Package segment implements Component G: the constant pool, global
// table, template (struct/class layout), and object-key segments that
// sit alongside the linked code segment.
//
// Grounded on the teacher's own section-table builders in
// std/compiler/elf_x64.go (each section is built as an independent byte
// blob with its own offset table, assembled into the final image by the
// linker), generalized from ELF sections to the spec's four flat
// segments.
package segment

import (
	"golang.org/x/exp/slices"

	"github.com/latticeforge/vbcc/internal/bytewriter"
	"github.com/latticeforge/vbcc/internal/fieldintern"
	"github.com/latticeforge/vbcc/internal/ir"
	"github.com/latticeforge/vbcc/internal/types"
)

// ConstantPool accumulates string/byte constants. Dedup, keyed by the
// string's text, is supported but disabled by default (spec.md §9): two equal strings get
// two slots unless Dedup is enabled.
type ConstantPool struct {
	Dedup    bool
	interner *fieldintern.Interner
	offsets  map[string]int
	buf      *bytewriter.Writer
}

func NewConstantPool(interner *fieldintern.Interner, dedup bool) *ConstantPool {
	return &ConstantPool{Dedup: dedup, interner: interner, offsets: make(map[string]int), buf: bytewriter.New()}
}

// Add writes s's bytes (length-prefixed) into the pool and returns its
// byte offset, reusing a prior offset for an identical string when
// Dedup is enabled.
func (p *ConstantPool) Add(s string) int {
	if p.Dedup {
		key := s
		if p.interner != nil {
			// the hash itself isn't the lookup key (collisions would
			// silently merge distinct strings); it only pre-filters
			// candidates in a production-scale implementation. Here the
			// string itself is still the authoritative key.
			_ = p.interner.Hash([]byte(s))
		}
		if off, ok := p.offsets[key]; ok {
			return off
		}
		off := p.buf.Len()
		p.buf.VarUint(uint64(len(s)), 4)
		p.buf.Raw([]byte(s))
		p.offsets[key] = off
		return off
	}
	off := p.buf.Len()
	p.buf.VarUint(uint64(len(s)), 4)
	p.buf.Raw([]byte(s))
	return off
}

func (p *ConstantPool) Bytes() []byte { return p.buf.Bytes() }

// GlobalTable lays out one 8-byte-aligned slot per declared global,
// keyed by symbol UID; a duplicate UID is a build-time error the caller
// must catch before linking (spec.md §3 "Global slot").
type GlobalTable struct {
	buf    *bytewriter.Writer
	Offset map[uint32]int
}

func NewGlobalTable() *GlobalTable {
	return &GlobalTable{buf: bytewriter.New(), Offset: make(map[uint32]int)}
}

func (g *GlobalTable) Add(uid uint32) (int, bool) {
	if _, dup := g.Offset[uid]; dup {
		return 0, false
	}
	off := g.buf.Len()
	g.buf.U64(0) // 8-byte slot, content patched in by the linker at link time
	g.Offset[uid] = off
	return off, true
}

func (g *GlobalTable) Bytes() []byte { return g.buf.Bytes() }

// MethodSlot is one placeholder entry in a class's method table: the
// interface-method UID it implements and the code offset the linker
// will patch in once the method's body is placed.
type MethodSlot struct {
	UID        uint32
	CodeOffset int // patched by the linker
}

// TemplateEntry is one struct or class's emitted layout: fields sorted
// by field ID (spec.md §4.F), and for classes, methods sorted by
// interface-method UID.
type TemplateEntry struct {
	Name    string
	IsClass bool
	ClassID uint32
	Fields  []types.Field
	Methods []MethodSlot
}

// BuildTemplates lays out every struct and class in m, sorting struct
// fields by field ID and class methods by UID, matching spec.md §4.F
// ("Template segment").
func BuildTemplates(m *ir.Module) []TemplateEntry {
	var out []TemplateEntry
	for _, s := range m.Structs {
		fields := append([]types.Field(nil), s.Fields...)
		slices.SortFunc(fields, func(a, b types.Field) bool { return a.ID < b.ID })
		out = append(out, TemplateEntry{Name: s.Name, Fields: fields})
	}
	for _, c := range m.Classes {
		attrs := append([]types.Field(nil), c.Attrs...)
		slices.SortFunc(attrs, func(a, b types.Field) bool { return a.ID < b.ID })
		methods := make([]MethodSlot, len(c.Methods))
		for i, mm := range c.Methods {
			methods[i] = MethodSlot{UID: mm.UID}
		}
		slices.SortFunc(methods, func(a, b MethodSlot) bool { return a.UID < b.UID })
		out = append(out, TemplateEntry{Name: c.Name, IsClass: true, ClassID: c.ClassID, Fields: attrs, Methods: methods})
	}
	return out
}

// EncodeTemplates serializes entries into the template segment's byte
// form: for each entry, a field count, then (id, offset) pairs, then
// (for classes) a method count and (uid, code-offset-placeholder) pairs.
func EncodeTemplates(entries []TemplateEntry) []byte {
	w := bytewriter.New()
	for _, e := range entries {
		w.VarUint(uint64(len(e.Fields)), 4)
		for _, f := range e.Fields {
			w.U32(f.ID)
			w.U32(uint32(f.Offset))
		}
		if !e.IsClass {
			continue
		}
		w.VarUint(uint64(len(e.Methods)), 4)
		for _, ms := range e.Methods {
			w.U32(ms.UID)
			w.U32(uint32(ms.CodeOffset))
		}
	}
	return w.Bytes()
}

// EncodeObjectKeys serializes the interner's field names, in field-ID
// order, as a length-prefixed text blob — the "object-keys segment" a
// reflective runtime uses to print/parse field names back from ids.
func EncodeObjectKeys(interner *fieldintern.Interner) []byte {
	w := bytewriter.New()
	names := interner.Names()
	w.VarUint(uint64(len(names)), 4)
	for _, n := range names {
		w.VarUint(uint64(len(n)), 4)
		w.Raw([]byte(n))
	}
	return w.Bytes()
}
