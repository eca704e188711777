// Package diag defines the back end's diagnostic model: error kinds,
// source locations, and a single-hook logging callback in the style of
// the teacher's package-level Errorf hook.
package diag

import "fmt"

// Kind classifies a Diagnostic per the error-handling design in spec.md §7.
type Kind int

const (
	// TypeError covers operand-kind mismatches the back end re-asserts
	// (e.g. loading a function pointer into a narrower-than-pointer register).
	TypeError Kind = iota
	// ResolutionError covers enum value conflicts, exhausted struct
	// deconstruction, forward references to undefined symbols, and
	// unresolved labels remaining after linking.
	ResolutionError
	// AllocationError covers graph coloring exhausting even maximal spilling.
	AllocationError
	// EncodingError covers opcode operand-count mismatches and
	// out-of-width integers — an internal invariant break.
	EncodingError
	// IOError covers failures writing the image or source map.
	IOError
)

func (k Kind) String() string {
	switch k {
	case TypeError:
		return "type error"
	case ResolutionError:
		return "resolution error"
	case AllocationError:
		return "allocation error"
	case EncodingError:
		return "encoding error"
	case IOError:
		return "I/O error"
	default:
		return fmt.Sprintf("diagnostic(%d)", int(k))
	}
}

// Loc is a source-map stack entry: the active (file, line, column,
// function) at the point a diagnostic was raised.
type Loc struct {
	File string
	Line int
	Col  int
	Func string
}

func (l Loc) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d: in %s", l.File, l.Line, l.Col, l.Func)
}

// Diagnostic is the back end's single error type. The back end recovers
// nothing internally: the first Diagnostic aborts the current compilation.
type Diagnostic struct {
	Kind Kind
	Loc  Loc
	Msg  string
}

func (d *Diagnostic) Error() string {
	if d.Loc.File == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", d.Loc, d.Kind, d.Msg)
}

// New builds a Diagnostic with a formatted message.
func New(kind Kind, loc Loc, format string, args ...any) *Diagnostic {
	return &Diagnostic{Kind: kind, Loc: loc, Msg: fmt.Sprintf(format, args...)}
}

// Diagnostics collects errors from a multi-unit driver; a single
// compilation unit still aborts on its first error, but a driver
// compiling several units may continue with the next one and report
// them all at the end.
type Diagnostics []error

func (ds Diagnostics) Error() string {
	if len(ds) == 0 {
		return "no diagnostics"
	}
	if len(ds) == 1 {
		return ds[0].Error()
	}
	s := fmt.Sprintf("%d diagnostics:", len(ds))
	for _, d := range ds {
		s += "\n  " + d.Error()
	}
	return s
}

// logHook mirrors the teacher's nil-checked package-level diagnostic
// hook (vm.Errorf in the retrieval pack's sneller teacher-adjacent
// package): nil by default, never required, set by a driver that wants
// progress/trace output.
var logHook func(format string, args ...any)

// SetLogger installs the hook used by Logf. Passing nil disables logging.
func SetLogger(fn func(format string, args ...any)) {
	logHook = fn
}

// Logf calls the installed logger, if any. It is a silent no-op otherwise.
func Logf(format string, args ...any) {
	if logHook != nil {
		logHook(format, args...)
	}
}
