// Package discretize implements the comparator discretization pass: it
// rewrites every Comparator node in a compile graph into an FPGAComparator
// carrying the finite set of output levels it can ever emit, so the
// assembler can represent it as a bundle of boolean wires instead of a
// 4-bit bus.
//
// Grounded on original_source/crates/redpiler/src/passes/discrete_comps.rs,
// generalized from petgraph edge iteration to compilegraph.Graph.
package discretize

import (
	"math/bits"

	"github.com/voltplot/roc/internal/compilegraph"
)

// Run rewrites every Comparator node in g into an FPGAComparator. It is
// idempotent (re-running it on an already-discretized graph is a no-op,
// since FPGAComparator nodes are left alone) and visits nodes in id order;
// the transform is purely local so the visit order does not affect the
// fixpoint.
func Run(g *compilegraph.Graph) {
	for i := 0; i < g.NodeBound(); i++ {
		idx := compilegraph.NodeIndex(i)
		if !g.ContainsNode(idx) {
			continue
		}
		n := g.Node(idx)
		if n.Kind != compilegraph.Comparator {
			continue
		}

		back, side := discretize(g, idx)
		outputs := combine(n.Mode, back, side)

		g.SetNode(idx, compilegraph.Node{
			Kind:     compilegraph.FPGAComparator,
			Pos:      n.Pos,
			Powered:  n.Powered,
			Mode:     n.Mode,
			FarInput: n.FarInput,
			Outputs:  outputs,
			Side:     side,
			Back:     back,
		})
	}
}

// discretize computes the back and side bitmasks for the comparator at idx,
// per spec.md §4.1 step 2. Both start at the anchor bit (bit 0, level 0,
// always reachable as the comparator's idle level).
func discretize(g *compilegraph.Graph, idx compilegraph.NodeIndex) (back, side uint16) {
	back, side = 0b1, 0b1

	for _, e := range g.EdgesDirected(idx, compilegraph.Incoming) {
		src := g.Node(e.Source)

		var contribution uint16
		switch {
		case src.IsOneBitSource():
			// Level 15-ss as a single bit: 0x8000 is bit 15, shifting
			// right by ss walks the bit down to position 15-ss.
			contribution = 0x8000 >> e.SS
		case src.IsDiscretizedComparator():
			contribution = attenuate(src.Outputs, e.SS)
		default:
			continue
		}

		switch e.Type {
		case compilegraph.Default:
			back |= contribution
			if src.Kind == compilegraph.Constant {
				back &^= 0x1
			}
		case compilegraph.Side:
			side |= contribution
		}
	}

	return back, side
}

// attenuate shifts every set bit l of outputs down to l-ss-1, dropping bits
// that would go negative (spec.md §4.1 step 2, comparator-source case).
func attenuate(outputs uint16, ss uint8) uint16 {
	var out uint16
	for l := 0; l < 16; l++ {
		if outputs&(1<<uint(l)) == 0 {
			continue
		}
		target := l - int(ss) - 1
		if target < 0 {
			continue
		}
		out |= 1 << uint(target)
	}
	return out
}

// combine applies the Compare or Subtract discretization formula
// (discrete_comps.rs; Compare's mask corrected per spec.md §4.1 step 3).
func combine(mode compilegraph.ComparatorMode, back, side uint16) uint16 {
	switch mode {
	case compilegraph.ModeCompare:
		// Zero every bit of back strictly below the highest set bit of
		// side. The anchor bit always occupies side's lowest position, so
		// masking relative to side's lowest set bit (as a literal
		// transliteration of the original's bit trick would) is always a
		// no-op; the mask has to key off side's highest set bit instead,
		// and the anchor bit of the result is reasserted unconditionally
		// since masking can otherwise clear it.
		top := uint(bits.Len16(side) - 1)
		mask := ^((uint16(1) << top) - 1)
		return (back & mask) | 0b1
	case compilegraph.ModeSubtract:
		var outputs uint16
		// The original loop runs i in 0..15 (exclusive of 15): bit 15 of
		// side (a full-strength side input) never itself shifts back,
		// while the anchor at bit 0 ORs back in unshifted. Preserved
		// exactly as the original has it.
		for i := 0; i < 15; i++ {
			if (side>>uint(i))&0x1 == 1 {
				outputs |= back >> uint(i)
			}
		}
		return outputs
	default:
		return back
	}
}
