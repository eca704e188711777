package regalloc

import "github.com/latticeforge/vbcc/internal/ir"

// MaxColor is the highest general-purpose physical register id the
// colorer may hand out. Register 255 is reserved as the fixed scratch
// register fn_get_ret_reg writes a call's return value into (spec.md §4.C)
// and is never a coloring candidate.
const MaxColor = 254

// colorOnce attempts one greedy smallest-available-color pass, skipping
// any vreg already marked spilled. Argument vregs are pinned to the
// physical register equal to their argument index (spec.md §4.D
// "pinned-argument exclusion"): the colorer must never hand that color
// to anything else live at the same time, which falls out naturally
// from ordinary interference-graph coloring once the pin is recorded
// first.
func colorOnce(vregs []ir.VRegInfo, g [][]bool, spilled map[int]bool) (map[int]int, int, bool) {
	n := len(vregs)
	color := make(map[int]int, n)

	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if !spilled[i] {
			order = append(order, i)
		}
	}
	// Pin arguments first so their color is reserved before anything
	// else picks a smallest-available color.
	for _, vi := range order {
		if vregs[vi].Origin == ir.OriginArg {
			color[vi] = vregs[vi].Index
		}
	}
	for _, vi := range order {
		if _, ok := color[vi]; ok {
			continue
		}
		used := make(map[int]bool)
		for other, c := range color {
			if g[vi][other] {
				used[c] = true
			}
		}
		picked := -1
		for c := 0; c <= MaxColor; c++ {
			if !used[c] {
				picked = c
				break
			}
		}
		if picked == -1 {
			return nil, vi, false
		}
		color[vi] = picked
	}
	return color, -1, true
}

// degree counts how many live vregs vi interferes with, among those not
// already spilled — used to pick a spill candidate.
func degree(vi int, g [][]bool, spilled map[int]bool) int {
	d := 0
	for j, edge := range g[vi] {
		if edge && !spilled[j] {
			d++
		}
	}
	return d
}

// Color runs phase 4: greedy coloring with a retry-until-success spill
// protocol. On failure to color some vreg, it spills the
// highest-interference-degree uncolored candidate among those touching
// the failure and retries from scratch, until every remaining vreg
// colors successfully, spilling as many vregs as it must. The one
// exception is a failure whose only candidates are pinned arguments:
// Color then returns a nil coloring (with the candidate appended to the
// spill list) instead of retrying.
func Color(vregs []ir.VRegInfo, g [][]bool) (map[int]int, []int) {
	spilled := make(map[int]bool)
	var spillOrder []int
	for {
		color, failedAt, ok := colorOnce(vregs, g, spilled)
		if ok {
			return color, spillOrder
		}
		// Pick the highest-degree neighbor of the failure point that
		// isn't already spilled and isn't a pinned argument (arguments
		// cannot be spilled away from their pinned register; spec.md
		// §4.D pins them for the function's whole body).
		candidate := failedAt
		bestDeg := -1
		for j, edge := range g[failedAt] {
			if !edge || spilled[j] || vregs[j].Origin == ir.OriginArg {
				continue
			}
			d := degree(j, g, spilled)
			if d > bestDeg {
				bestDeg = d
				candidate = j
			}
		}
		if vregs[candidate].Origin == ir.OriginArg {
			// Every neighbor (and the failure point itself) is pinned:
			// nothing left to spill. This cannot happen for a function
			// with <= MaxColor+1 arguments, which is the only input this
			// allocator is asked to handle.
			spillOrder = append(spillOrder, candidate)
			spilled[candidate] = true
			return nil, spillOrder
		}
		spilled[candidate] = true
		spillOrder = append(spillOrder, candidate)
	}
}
