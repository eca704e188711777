package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/latticeforge/vbcc/internal/fieldintern"
	"github.com/latticeforge/vbcc/internal/inast"
	"github.com/latticeforge/vbcc/internal/ir"
)

// fixture is the on-disk JSON shape a "compile"/"dump-ir"/"sizes" run
// consumes: a module's worth of already-typed functions plus its
// declared globals/structs/classes, matching internal/inast.Func and
// internal/ir.{Global,Struct,Class} field-for-field. Grounded on the
// rules.json fixture shape the retrieval pack's z80-optimizer CLI reads
// with plain encoding/json (cmd/z80opt/main.go's result.ReadJSON) —
// generalized from a flat rule list to a whole typed-IR module.
type fixture struct {
	Main    string        `json:"main"`
	Funcs   []*inast.Func `json:"funcs"`
	Globals []ir.Global   `json:"globals"`
	Structs []ir.Struct   `json:"structs"`
	Classes []ir.Class    `json:"classes"`
}

// loadFixture reads and JSON-decodes a fixture file from path.
func loadFixture(path string) (*fixture, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	var fx fixture
	if err := json.Unmarshal(b, &fx); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}
	return &fx, nil
}

// buildModule lowers every function in fx through internal/ir.BuildFunc,
// sharing one field interner across the whole module (spec.md §3's
// field-ID stability requires exactly one interner per build).
func buildModule(fx *fixture) (*ir.Module, *fieldintern.Interner, error) {
	interner := fieldintern.New()
	m := &ir.Module{
		Main:    fx.Main,
		Globals: fx.Globals,
		Structs: fx.Structs,
		Classes: fx.Classes,
	}
	for _, fn := range fx.Funcs {
		irFn, err := ir.BuildFunc(interner, fn)
		if err != nil {
			return nil, nil, fmt.Errorf("building %s: %w", fn.Name, err)
		}
		m.Funcs = append(m.Funcs, irFn)
	}
	return m, interner, nil
}
