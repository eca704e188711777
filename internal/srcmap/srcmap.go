// Package srcmap reconstructs the per-instruction source map a linked
// image's debugger/backtrace consumer wants: one line per encoded
// instruction position, "<file>,<line>,<col>,<function>", blank for a
// position with no active source location.
//
// Grounded on the teacher's own line-table approach in
// std/compiler/backend.go (the teacher emits a debug line table
// alongside the ELF output); generalized here to the spec's push/pop
// location-stack pseudo-instructions (internal/ir's srcmap_push_loc/
// srcmap_pop_loc) rather than a single current-line global.
package srcmap

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/latticeforge/vbcc/internal/diag"
	"github.com/latticeforge/vbcc/internal/ir"
)

// Entry is one encoded instruction's source location, in encoding order.
type Entry struct {
	Loc diag.Loc
}

// Build walks fn's instruction stream in the same order and with the
// same skip set the encoder uses (internal/encoder.EncodeFunc: labels
// and srcmap_push_loc/srcmap_pop_loc/destroy_tmp carry no machine
// encoding) and returns one Entry per instruction the encoder actually
// emits bytes for. The push/pop pseudo-instructions themselves are
// consumed here only to validate the location stack balances; each
// real instruction already carries its own resolved Loc (internal/ir's
// build pass stamps it at emission time), so Build does not need to
// replay the stack to attribute a location — it needs the stack only
// to catch an unbalanced push without a matching pop, which would
// indicate a code-gen bug upstream.
func Build(fn *ir.Func) ([]Entry, error) {
	var entries []Entry
	depth := 0
	for _, inst := range fn.Code {
		switch inst.Op {
		case ir.OpSrcmapPush:
			depth++
			continue
		case ir.OpSrcmapPop:
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("srcmap: pop without matching push in %s", fn.Name)
			}
			continue
		case ir.OpLabel, ir.OpDestroyTmp:
			continue
		}
		entries = append(entries, Entry{Loc: inst.Loc})
	}
	if depth != 0 {
		return nil, fmt.Errorf("srcmap: %d unclosed push(es) in %s", depth, fn.Name)
	}
	return entries, nil
}

// Write serializes entries as the flat text format, one line per entry:
// "<file>,<line>,<col>,<function>", or a blank line when Loc.File is empty.
func Write(w io.Writer, entries []Entry) error {
	var b strings.Builder
	for _, e := range entries {
		if e.Loc.File == "" {
			b.WriteByte('\n')
			continue
		}
		b.WriteString(e.Loc.File)
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(e.Loc.Line))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(e.Loc.Col))
		b.WriteByte(',')
		b.WriteString(e.Loc.Func)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteGzip writes entries through a gzip writer, for transport alongside
// a linked image whose source map a caller wants compressed at rest.
func WriteGzip(w io.Writer, entries []Entry) error {
	gz := gzip.NewWriter(w)
	if err := Write(gz, entries); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}
