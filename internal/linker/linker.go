// Package linker implements Component H: assembling per-function
// encoded bodies, the constant/global/template/object-key segments, and
// the fixed 5-offset header into one linked image.
//
// Grounded on the teacher's own ELF assembly pass in
// std/compiler/elf_x64.go (lay out sections, compute their offsets,
// patch every forward reference once all sections have a final
// address), generalized from an OS executable format to the spec's
// single custom image format.
package linker

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/latticeforge/vbcc/internal/bytewriter"
	"github.com/latticeforge/vbcc/internal/diag"
	"github.com/latticeforge/vbcc/internal/encoder"
	"github.com/latticeforge/vbcc/internal/fieldintern"
	"github.com/latticeforge/vbcc/internal/image"
	"github.com/latticeforge/vbcc/internal/ir"
	"github.com/latticeforge/vbcc/internal/regalloc"
	"github.com/latticeforge/vbcc/internal/segment"
	"github.com/latticeforge/vbcc/internal/types"
)

// FuncSize reports one function's final encoded size, in bytes, for
// the supplemented per-function size report (grounded on the teacher's
// std/compiler/size_analysis.go).
type FuncSize struct {
	Name string
	UID  uint32
	Size int
}

// Options toggles supplemented, non-default linker behavior.
type Options struct {
	PruneDeadFunctions bool // grounded on std/compiler/dce.go
	// Dedup is passed to the constant pool. Link itself already adds each
	// distinct string constant to the pool once (patch sites are keyed by
	// the string's text), so setting it does not change the image.
	Dedup bool

	// StampBuildID assigns Image.BuildID a fresh random build identifier,
	// for a caller that wants to correlate a linked image with a
	// specific build (e.g. matching an image against its source map).
	StampBuildID bool

	// ComputeDigest fills Image.Digest with a content hash of the whole
	// linked image, for a caller that wants to detect a corrupted or
	// tampered image before loading it.
	ComputeDigest bool
}

// Image is the final linked artifact plus the diagnostics a caller may
// want to inspect without re-deriving them from the bytes.
type Image struct {
	Bytes   []byte
	Sizes   []FuncSize
	BuildID string   // set only when Options.StampBuildID is set
	Digest  [32]byte // set only when Options.ComputeDigest is set
}

// Link runs the whole pipeline over m: allocates registers for every
// function, encodes each one, assembles the four segments, resolves
// every label and constant reference, and writes the fixed header. It
// fails fatally (spec.md §7) if any label remains unresolved once all
// functions have been placed.
func Link(m *ir.Module, interner *fieldintern.Interner, opts Options) (*Image, error) {
	funcs := m.Funcs
	if opts.PruneDeadFunctions {
		funcs = pruneDead(m)
	}

	mainFn := m.FuncByName(m.Main)
	if mainFn == nil {
		return nil, fmt.Errorf("entry function %q not found in module", m.Main)
	}

	codeW := bytewriter.New()
	funcOffset := make(map[uint32]int) // symbol UID -> code offset, covers class methods too
	var sizes []FuncSize

	type pending struct {
		res  *encoder.Result
		base int
		fn   *ir.Func
	}
	var all []pending

	// Entry prologue, placed first so the code segment's first byte is
	// always the program's true entry point (see buildEntryFunc for the
	// instructions it carries). Built as an ordinary synthetic function so
	// it goes through the same allocator/encoder path as everything else.
	entry := buildEntryFunc(mainFn)
	regalloc.Allocate(entry)
	entryRes, err := encoder.EncodeFunc(entry)
	if err != nil {
		return nil, err
	}
	entryBase := codeW.Len()
	codeW.Raw(entryRes.Code)
	all = append(all, pending{res: entryRes, base: entryBase, fn: entry})

	for _, fn := range funcs {
		regalloc.Allocate(fn)
		res, err := encoder.EncodeFunc(fn)
		if err != nil {
			return nil, err
		}
		base := codeW.Len()
		if isClassMethod(m, fn) {
			// class methods are prefixed by their 4-byte interface-method UID
			codeW.U32(fn.UID)
		}
		bodyStart := codeW.Len()
		codeW.Raw(res.Code)
		funcOffset[fn.UID] = bodyStart
		sizes = append(sizes, FuncSize{Name: fn.Name, UID: fn.UID, Size: codeW.Len() - base})
		all = append(all, pending{res: res, base: bodyStart, fn: fn})
	}

	pool := segment.NewConstantPool(interner, opts.Dedup)
	constOffset := make(map[string]int)
	for _, p := range all {
		for _, c := range p.res.Consts {
			if _, ok := constOffset[c]; !ok {
				constOffset[c] = pool.Add(c)
			}
		}
	}

	globals := segment.NewGlobalTable()
	for _, g := range m.Globals {
		if _, ok := globals.Add(g.UID); !ok {
			return nil, fmt.Errorf("duplicate global symbol UID %d (%s)", g.UID, g.Name)
		}
	}

	templates := segment.BuildTemplates(m)
	// Patch each class method's code-offset placeholder now that every
	// function has a final code-segment address.
	for i := range templates {
		if !templates[i].IsClass {
			continue
		}
		for j := range templates[i].Methods {
			uid := templates[i].Methods[j].UID
			if off, ok := funcOffset[uid]; ok {
				templates[i].Methods[j].CodeOffset = off
			}
		}
	}
	templateBytes := segment.EncodeTemplates(templates)
	objectKeyBytes := segment.EncodeObjectKeys(interner)

	code := codeW.Bytes()
	var unresolvedNames []string
	for _, p := range all {
		for name, sites := range p.res.Unresolved {
			target, ok := p.res.Labels[name]
			if !ok {
				unresolvedNames = append(unresolvedNames, fmt.Sprintf("%s:%s", p.fn.Name, name))
				continue
			}
			for _, site := range sites {
				bytewriter.PutU32(code[p.base+site.Offset:], uint32(p.base+target))
			}
		}
		for name, sites := range p.res.ConstRefs {
			off, ok := constOffset[name]
			if !ok {
				unresolvedNames = append(unresolvedNames, fmt.Sprintf("%s:$const:%s", p.fn.Name, name))
				continue
			}
			for _, site := range sites {
				bytewriter.PutU32(code[p.base+site.Offset:], uint32(off))
			}
		}
	}
	for _, p := range all {
		for uid, sites := range p.res.FuncRefs {
			off, ok := funcOffset[uid]
			if !ok {
				unresolvedNames = append(unresolvedNames, fmt.Sprintf("%s:func#%d", p.fn.Name, uid))
				continue
			}
			for _, site := range sites {
				bytewriter.PutU32(code[p.base+site.Offset:], uint32(off))
			}
		}
		for uid, sites := range p.res.GlobalRefs {
			off, ok := globals.Offset[uid]
			if !ok {
				unresolvedNames = append(unresolvedNames, fmt.Sprintf("%s:global#%d", p.fn.Name, uid))
				continue
			}
			for _, site := range sites {
				bytewriter.PutU32(code[p.base+site.Offset:], uint32(off))
			}
		}
	}
	if len(unresolvedNames) > 0 {
		sort.Strings(unresolvedNames)
		return nil, diag.New(diag.ResolutionError, diag.Loc{}, "unresolved reference(s) after linking: %v", unresolvedNames)
	}

	header := bytewriter.New()
	segOffsets := make([]uint32, image.NumSegments)
	body := bytewriter.New()
	body.Raw(code)
	segOffsets[image.SegCode] = 0
	segOffsets[image.SegConstants] = uint32(body.Len())
	body.Raw(pool.Bytes())
	segOffsets[image.SegGlobals] = uint32(body.Len())
	body.Raw(globals.Bytes())
	segOffsets[image.SegTemplates] = uint32(body.Len())
	body.Raw(templateBytes)
	segOffsets[image.SegObjectKeys] = uint32(body.Len())
	body.Raw(objectKeyBytes)

	for _, off := range segOffsets {
		header.U64(uint64(off) + image.HeaderSize)
	}

	out := append(header.Bytes(), body.Bytes()...)
	img := &Image{Bytes: out, Sizes: sizes}
	if opts.StampBuildID {
		img.BuildID = uuid.New().String()
	}
	if opts.ComputeDigest {
		img.Digest = blake2b.Sum256(out)
	}
	return img, nil
}

// buildEntryFunc synthesizes the fixed entry prologue as an ordinary
// ir.Func: s_alloc (standing in for fn_alloc); call <main>;
// fn_get_ret_reg <tmp>,255,<size>; halt 255. It emits no fn_set_reg_ptr
// step, so main's argv register is never set, and it reads the return
// register even when main returns nothing (size 8 in that case). The
// entry function uses UID 0.
func buildEntryFunc(mainFn *ir.Func) *ir.Func {
	f := &ir.Func{Name: "$entry", UID: 0}
	f.Emit(ir.Instruction{Op: ir.OpSAlloc, Dst: ir.NoVReg})
	f.Emit(ir.Instruction{Op: ir.OpCall, Args: []ir.Operand{ir.SymbolOp(mainFn.UID)}})
	retWidth := 8
	if len(mainFn.RetTypes) > 0 {
		if w, err := sizeOfOrDefault(mainFn.RetTypes[0]); err == nil {
			retWidth = w
		}
	}
	dst := f.NewTemp()
	f.Emit(ir.Instruction{
		Op: ir.OpFnGetRetReg, Dst: dst, Width: retWidth,
		Args: []ir.Operand{ir.Reg(dst), ir.SmallOp(255), ir.SmallOp(retWidth)},
	})
	f.Emit(ir.Instruction{Op: ir.OpHalt, Args: []ir.Operand{ir.SmallOp(255)}})
	return f
}

func sizeOfOrDefault(t *types.Resolved) (int, error) {
	return types.SizeOf(t)
}

func isClassMethod(m *ir.Module, fn *ir.Func) bool {
	for _, c := range m.Classes {
		for _, mm := range c.Methods {
			if mm.UID == fn.UID {
				return true
			}
		}
	}
	return false
}

// pruneDead removes functions unreachable from the entry point, by a
// simple reachability walk that follows every non-zero symbol operand of
// every instruction (call, closure/coroutine and function-pointer
// targets, but also field IDs, template IDs and global UIDs, which keep
// any function with the same UID alive). Grounded on
// std/compiler/dce.go's mark-and-sweep pass over the teacher's own IR.
func pruneDead(m *ir.Module) []*ir.Func {
	reachable := make(map[uint32]bool)
	var walk func(uid uint32)
	byUID := make(map[uint32]*ir.Func)
	for _, f := range m.Funcs {
		byUID[f.UID] = f
	}
	walk = func(uid uint32) {
		if reachable[uid] {
			return
		}
		reachable[uid] = true
		fn, ok := byUID[uid]
		if !ok {
			return
		}
		for _, inst := range fn.Code {
			for _, a := range inst.Args {
				if a.Symbol != 0 {
					walk(a.Symbol)
				}
			}
		}
	}
	if mainFn := m.FuncByName(m.Main); mainFn != nil {
		walk(mainFn.UID)
	}
	var out []*ir.Func
	for _, f := range m.Funcs {
		if reachable[f.UID] {
			out = append(out, f)
		}
	}
	return out
}
