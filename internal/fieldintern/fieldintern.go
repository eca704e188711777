// Package fieldintern implements the struct-field name interner
// described in spec.md §3 and re-architected per §9's design note: an
// explicit FieldIdInterner owned by the back-end driver rather than
// process-wide mutable state, so concurrent compilations (spec.md §5)
// never need a critical section around a package-level map.
package fieldintern

import "github.com/dchest/siphash"

// TagFieldID is the reserved field ID for the synthetic "$tag" field
// every tagged union / variant carries. It is never assigned to a
// user-named field.
const TagFieldID = 0

// Interner assigns a monotonically growing, stable field_id to each
// distinct field name. Once a name is registered its ID never changes
// for the lifetime of the build (spec.md §3 invariant, §8 "Field-ID
// stability").
type Interner struct {
	ids   map[string]uint32
	names []string // index i holds the name registered with id i
	seeds [2]uint64
}

// New returns an Interner with the $tag reservation already applied,
// per §9: "the $tag reservation becomes a constructor invariant."
func New() *Interner {
	in := &Interner{
		ids:   make(map[string]uint32),
		names: make([]string, 1, 64),
		seeds: [2]uint64{0x9ae16a3b2f90404f, 0xc3a5c85c97cb3127},
	}
	in.ids["$tag"] = TagFieldID
	in.names[0] = "$tag"
	return in
}

// ID returns the stable field_id for name, registering it on first use.
func (in *Interner) ID(name string) uint32 {
	if id, ok := in.ids[name]; ok {
		return id
	}
	id := uint32(len(in.names))
	in.ids[name] = id
	in.names = append(in.names, name)
	return id
}

// Lookup returns the field_id for name without registering it.
func (in *Interner) Lookup(name string) (uint32, bool) {
	id, ok := in.ids[name]
	return id, ok
}

// Name returns the name registered under id, if any.
func (in *Interner) Name(id uint32) (string, bool) {
	if int(id) >= len(in.names) {
		return "", false
	}
	return in.names[id], true
}

// Len reports how many distinct names (including "$tag") are registered.
func (in *Interner) Len() int { return len(in.names) }

// Names returns the registered names in ascending field_id order. The
// returned slice must not be mutated by the caller.
func (in *Interner) Names() []string { return in.names }

// Hash returns a build-stable SipHash-2-4 digest of name, seeded from
// the interner's own seeds. This is not used for field_id assignment
// (that is strictly monotonic-on-first-sight). internal/segment's
// constant pool calls it when dedup is enabled, but discards the result:
// its dedup lookup is keyed by the string's text.
func (in *Interner) Hash(b []byte) uint64 {
	return siphash.Hash(in.seeds[0], in.seeds[1], b)
}
