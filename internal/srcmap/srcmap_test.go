package srcmap

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/latticeforge/vbcc/internal/diag"
	"github.com/latticeforge/vbcc/internal/fieldintern"
	"github.com/latticeforge/vbcc/internal/inast"
	"github.com/latticeforge/vbcc/internal/ir"
	"github.com/latticeforge/vbcc/internal/types"
)

func buildFn(t *testing.T) *ir.Func {
	t.Helper()
	i32 := &types.Resolved{Kind: types.Int32}
	fn := &inast.Func{
		Name:    "f",
		UID:     1,
		Results: []*types.Resolved{i32},
		Body: []*inast.Stmt{{
			Kind: inast.SReturn,
			Loc:  inast.Loc{File: "f.rtg", Line: 3, Col: 1},
			Exprs: []*inast.Expr{{Kind: inast.EInt, Type: i32, IntVal: 1}},
		}},
	}
	f, err := ir.BuildFunc(fieldintern.New(), fn)
	if err != nil {
		t.Fatalf("BuildFunc: %v", err)
	}
	return f
}

func TestBuild_BalancedPushPop(t *testing.T) {
	f := buildFn(t)
	entries, err := Build(f)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected at least one entry")
	}
	found := false
	for _, e := range entries {
		if e.Loc.File == "f.rtg" && e.Loc.Line == 3 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an entry at f.rtg:3, got %+v", entries)
	}
}

func TestBuild_UnbalancedPop(t *testing.T) {
	f := &ir.Func{Name: "bad"}
	f.Emit(ir.Instruction{Op: ir.OpSrcmapPop})
	if _, err := Build(f); err == nil {
		t.Fatalf("expected an error for an unmatched pop")
	}
}

func TestWrite_BlankForUnannotated(t *testing.T) {
	var buf bytes.Buffer
	entries := []Entry{{Loc: diag.Loc{}}, {Loc: diag.Loc{File: "a.rtg", Line: 1, Col: 2, Func: "f"}}}
	if err := Write(&buf, entries); err != nil {
		t.Fatalf("Write: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if lines[0] != "" {
		t.Fatalf("expected blank first line, got %q", lines[0])
	}
	if lines[1] != "a.rtg,1,2,f" {
		t.Fatalf("expected %q, got %q", "a.rtg,1,2,f", lines[1])
	}
}

func TestWriteGzip_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	entries := []Entry{{Loc: diag.Loc{File: "a.rtg", Line: 1, Col: 2, Func: "f"}}}
	if err := WriteGzip(&buf, entries); err != nil {
		t.Fatalf("WriteGzip: %v", err)
	}
	gr, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer gr.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(gr); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if out.String() != "a.rtg,1,2,f\n" {
		t.Fatalf("unexpected round-tripped content: %q", out.String())
	}
}
