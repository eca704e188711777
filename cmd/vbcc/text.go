package main

import (
	"fmt"
	"strings"

	"github.com/latticeforge/vbcc/internal/ir"
)

// instText renders one instruction as a single human-readable line for
// dump-ir, teacher-style: mnemonic followed by its operands, one line
// per instruction, no attempt at column alignment beyond the mnemonic.
func instText(inst ir.Instruction) string {
	var parts []string
	if inst.Dst != ir.NoVReg {
		parts = append(parts, fmt.Sprintf("tmp_%d <-", inst.Dst))
	}
	parts = append(parts, inst.Mnemonic())
	for _, a := range inst.Args {
		parts = append(parts, operandText(a))
	}
	if inst.Comment != "" {
		parts = append(parts, "; "+inst.Comment)
	}
	return strings.Join(parts, " ")
}

func operandText(a ir.Operand) string {
	switch {
	case a.Label != "":
		return a.Label
	case a.VReg != ir.NoVReg:
		return fmt.Sprintf("tmp_%d", a.VReg)
	case a.Symbol != 0:
		return fmt.Sprintf("sym#%d", a.Symbol)
	case a.IsFloat:
		return fmt.Sprintf("%g", a.FImm)
	case a.Imm != 0:
		return fmt.Sprintf("%d", a.Imm)
	default:
		return fmt.Sprintf("%d", a.Small)
	}
}
