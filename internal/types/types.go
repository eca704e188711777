// Package types implements the resolved-type model of spec.md §3 and
// the sizing/classification rules of §4.B. The tagged-variant shape
// follows the teacher's own TypeInfo (std/compiler/ir.go) — a single
// struct with a Kind discriminator and payload fields used only for the
// kinds that need them — generalized to the richer surface type system
// spec.md describes (classes, enums, interfaces, closures, coroutines,
// promises, nullable references) rather than the teacher's smaller
// {void, bool, byte, int32, int, uintptr, string, pointer, slice,
// struct, interface, func, map} set.
package types

import (
	"fmt"

	"github.com/latticeforge/vbcc/internal/diag"
	"github.com/latticeforge/vbcc/internal/fieldintern"
)

// Kind discriminates the variant of a Resolved type.
type Kind int

const (
	Bool Kind = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	Array
	Struct
	Class
	Enum
	Function
	Closure
	Coroutine
	Promise
	Reference // nullable wrapper
	Interface
	Unreachable
)

// Field describes one struct field: name, type, and (once laid out)
// its byte offset within the struct.
type Field struct {
	Name   string
	Type   *Resolved
	Offset int // set by the template builder, §4.F
	ID     uint32
}

// Method describes one class method: its stable interface-method UID
// and the function type it implements.
type Method struct {
	UID  uint32
	Name string
	Type *Resolved
}

// Resolved is the tagged-variant resolved type of spec.md §3.
type Resolved struct {
	Kind Kind

	// Array / Reference
	Elem *Resolved

	// Struct
	Fields []Field

	// Class
	ClassID    uint32
	Attrs      []Field
	Methods    []Method // sorted by UID before template emission
	Interfaces []uint32 // implemented interface IDs

	// Struct: set when this structural type corresponds to a declared
	// template (spec.md §4.F) that s_alloc_t can reference directly by
	// id, rather than an ad hoc field count — false for a structurally
	// synthesized type with no template entry of its own (e.g. a
	// deconstruct ...rest binding, built fresh at lowering time).
	HasTemplate bool
	TemplateID  uint32

	// Enum
	BackingWidth int          // 1, 2, 4, or 8
	EnumMembers  []EnumMember // resolved name/value pairs, via ResolveEnum

	// Function / Closure / Coroutine
	Params  []*Resolved
	Results []*Resolved
}

// EnumField is one field of an enum declaration before resolution:
// either unassigned (Value == nil) or an explicit integer literal in
// source radix (spec.md §3 "Enum").
type EnumField struct {
	Name  string
	Value *int64
}

// EnumMember is one enum field after resolution: its name paired with
// its final integer value.
type EnumMember struct {
	Name  string
	Value int64
}

// ResolveEnum assigns each field in fields its resolved integer value,
// per spec.md §3's enum resolution rule:
//
//	(i)   all unassigned: the first is 0, each later field is the prior
//	      field's value plus 1.
//	(ii)  only the first is assigned: every later field still
//	      auto-increments from it.
//	(iii) any explicit value after the first forces every field after
//	      it to also be explicit — auto-increment never resumes once a
//	      non-first field has been assigned.
//
// It then checks the "all resolved values must be unique" invariant
// (spec.md §8 scenario 2), returning a fatal ResolutionError naming the
// conflicting fields on violation, matching the "Enum fields values
// must be unique" wording spec.md prescribes.
func ResolveEnum(fields []EnumField) ([]EnumMember, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	out := make([]EnumMember, len(fields))
	var next int64
	forceExplicit := false
	for i, f := range fields {
		switch {
		case f.Value != nil:
			out[i] = EnumMember{Name: f.Name, Value: *f.Value}
			next = *f.Value + 1
			if i > 0 {
				forceExplicit = true
			}
		case forceExplicit:
			return nil, diag.New(diag.ResolutionError, diag.Loc{}, "enum field %q must have an explicit value: a preceding field in this enum was explicitly assigned", f.Name)
		default:
			out[i] = EnumMember{Name: f.Name, Value: next}
			next++
		}
	}
	seenAt := make(map[int64]string, len(out))
	for _, m := range out {
		if prior, dup := seenAt[m.Value]; dup {
			return nil, diag.New(diag.ResolutionError, diag.Loc{}, "enum fields values must be unique: %q and %q both resolve to %d", prior, m.Name, m.Value)
		}
		seenAt[m.Value] = m.Name
	}
	return out, nil
}

// NewEnum builds a Resolved Enum type: it resolves fields per
// ResolveEnum and, on success, fills BackingWidth/EnumMembers. This is
// the sole construction path for an Enum Resolved, so every Enum type
// in the back end has already passed resolution and uniqueness
// checking before it can be sized, loaded, or compared.
func NewEnum(backingWidth int, fields []EnumField) (*Resolved, error) {
	switch backingWidth {
	case 1, 2, 4, 8:
	default:
		return nil, diag.New(diag.ResolutionError, diag.Loc{}, "enum backing width must be 1, 2, 4, or 8, got %d", backingWidth)
	}
	members, err := ResolveEnum(fields)
	if err != nil {
		return nil, err
	}
	return &Resolved{Kind: Enum, BackingWidth: backingWidth, EnumMembers: members}, nil
}

// SizeOf maps a resolved type to its value-level byte size, one of
// {1, 2, 4, 8}, per spec.md §4.B. Composite/heap types (arrays,
// structs, classes, variants, interfaces, closures, coroutines,
// promises, functions) are always 8: they are referenced via pointer at
// the value level. Enums take their backing width. References resolve
// to the base type's size (a nullable int32 is 4), even though
// IsPointer below reports every Reference as pointer-represented.
func SizeOf(t *Resolved) (int, error) {
	if t == nil {
		return 0, errf("size_of: nil type")
	}
	switch t.Kind {
	case Bool, Int8, Uint8:
		return 1, nil
	case Int16, Uint16:
		return 2, nil
	case Int32, Uint32, Float32:
		return 4, nil
	case Int64, Uint64, Float64:
		return 8, nil
	case Enum:
		switch t.BackingWidth {
		case 1, 2, 4, 8:
			return t.BackingWidth, nil
		default:
			return 0, errf("size_of: enum has invalid backing width %d", t.BackingWidth)
		}
	case Reference:
		if t.Elem == nil {
			return 0, errf("size_of: reference has no element type")
		}
		return SizeOf(t.Elem)
	case Array, Struct, Class, Function, Closure, Coroutine, Promise, Interface:
		return 8, nil
	case Unreachable:
		return 0, errf("size_of: unreachable type has no size")
	default:
		return 0, errf("size_of: unknown kind %d", int(t.Kind))
	}
}

// IsPointer reports whether t is a composite/heap type referenced via
// pointer at the value level, per spec.md §4.B. The opcode family for
// an operation is selected purely by (width, is_pointer), never by
// surface type.
func IsPointer(t *Resolved) bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case Array, Struct, Class, Function, Closure, Coroutine, Promise, Interface:
		return true
	case Reference:
		return true
	default:
		return false
	}
}

// LayoutFields assigns each field of fields a byte offset, sorted by
// field ID (not declaration order) so the VM's hash-probe matches the
// compile-time layout (spec.md §4.F). All fields in a struct template
// use the same slot width, equal to the maximum field size, matching
// the "Template alignment" invariant of §8: total_size == max(field
// size) × field_count, and offset == index × max(field size) in the
// post-sort layout.
func LayoutFields(in *fieldintern.Interner, fields []Field) (laidOut []Field, totalSize int, err error) {
	out := make([]Field, len(fields))
	copy(out, fields)
	for i := range out {
		out[i].ID = in.ID(out[i].Name)
	}
	// sort by field ID ascending (simple insertion sort: field counts
	// are small and this keeps the dependency-free baseline obvious;
	// internal/segment's template builder sorts the same way via
	// golang.org/x/exp/slices.SortFunc on the build-time path that
	// actually processes every struct/class in a module).
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && out[j-1].ID > out[j].ID {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	maxSize := 0
	for i := range out {
		sz, serr := SizeOf(out[i].Type)
		if serr != nil {
			return nil, 0, serr
		}
		if sz > maxSize {
			maxSize = sz
		}
	}
	for i := range out {
		out[i].Offset = i * maxSize
	}
	return out, maxSize * len(out), nil
}

func errf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
