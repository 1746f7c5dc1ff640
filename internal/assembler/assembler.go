// Package assembler turns a compiled, discretized graph into a synthesizable
// Verilog module: one wire per logic node, OR-chain thermometer buses for
// each discretized comparator's back/side/output levels.
//
// Grounded on original_source/crates/backend/src/fpga/assembler.rs.
package assembler

import (
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"strings"

	"github.com/voltplot/roc/internal/compilegraph"
)

// Assemble renders g as a RoC Verilog module and writes it to path,
// creating parent directories as needed. The write is atomic: the module
// text lands in a temp file first, then is renamed into place, so a reader
// polling path never observes a half-written module.
func Assemble(g *compilegraph.Graph, path string) error {
	var v strings.Builder
	v.WriteString("module RoC #(\n")
	v.WriteString("    parameter OUTPUTS,\n")
	v.WriteString("    parameter INPUTS\n")
	v.WriteString(") (\n")
	v.WriteString("    input                   tick,\n")
	v.WriteString("    input   [INPUTS-1:0]    inputs,\n")
	v.WriteString("    output  [OUTPUTS-1:0]   outputs\n")
	v.WriteString(");\n\n")

	inputCount := 0
	outputCount := 0

	for _, idx := range g.NodeIndices() {
		n := g.Node(idx)
		id := int(idx)

		switch n.Kind {
		case compilegraph.Lever, compilegraph.PressurePlate, compilegraph.Button:
			fmt.Fprintf(&v, "\twire w%d = inputs[%d];\n", id, inputCount)
			inputCount++

		case compilegraph.Lamp, compilegraph.Trapdoor:
			fmt.Fprintf(&v, "\tassign outputs[%d] = (%s);\n", outputCount,
				getInputsStr(g, idx, compilegraph.Default))
			outputCount++

		case compilegraph.Repeater:
			fmt.Fprintf(&v, "\twire w%d;\n", id)
			fmt.Fprintf(&v, "\trepeater #(%d, 1'b%d, %d, %d) c%d (.i_clk(tick), .i_in(%s), .i_lock(%s), .o_out(w%d));\n",
				n.RepeaterDelay,
				boolBit(n.Powered),
				boolBit(compilegraph.IsLocker(g, idx)),
				boolBit(compilegraph.IsLocking(g, idx)),
				id,
				getInputsStr(g, idx, compilegraph.Default),
				getInputsStr(g, idx, compilegraph.Side),
				id)

		case compilegraph.Torch:
			fmt.Fprintf(&v, "\twire w%d;\n", id)
			fmt.Fprintf(&v, "\ttorch #(1'b%d) c%d (.i_clk(tick), .i_in(%s), .o_out(w%d));\n",
				boolBit(n.Powered), id, getInputsStr(g, idx, compilegraph.Default), id)

		case compilegraph.FPGAComparator:
			v.WriteString(compToStr(g, idx, n.Back, n.Side, n.Outputs))
		}
	}

	v.WriteString("endmodule\n")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("assembler: create %s: %w", dir, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(v.String()), 0o644); err != nil {
		return fmt.Errorf("assembler: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("assembler: rename %s: %w", tmp, err)
	}
	return nil
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isPhysicalSource reports whether n drives a real wire in the generated
// module (as opposed to Constant, whose contribution is folded entirely
// into a comparator's back/side bitmask at discretization time and never
// gets a wire of its own).
func isPhysicalSource(n *compilegraph.Node) bool {
	switch n.Kind {
	case compilegraph.Repeater, compilegraph.Button, compilegraph.Lever, compilegraph.Torch, compilegraph.PressurePlate:
		return true
	default:
		return false
	}
}

// getInputsStr builds the bitwise-OR'd input expression for a node's
// incoming edges of the given type: a direct wire reference for a
// single-bit source, or a level-select into a comparator's output bus.
// The leading 1'b0 term guards against an empty, invalid `()` expression
// when a lamp, repeater, or torch has no driving edges of this type.
func getInputsStr(g *compilegraph.Graph, node compilegraph.NodeIndex, ty compilegraph.LinkType) string {
	terms := []string{"1'b0"}
	for _, e := range g.EdgesDirected(node, compilegraph.Incoming) {
		if e.Type != ty {
			continue
		}
		src := g.Node(e.Source)
		switch {
		case isPhysicalSource(src):
			terms = append(terms, fmt.Sprintf("w%d", e.Source))
		case src.IsDiscretizedComparator():
			idx := ssToIdx(src.Outputs, wrapSub(14, e.SS))
			terms = append(terms, fmt.Sprintf("w%d[%d]", e.Source, idx))
		}
	}
	return strings.Join(terms, "|")
}

// wrapSub computes a-b with the same u8 two's-complement wraparound the
// original release-mode Rust arithmetic produced, since callers rely on
// the wrap when b exceeds a.
func wrapSub(a int, b uint8) uint8 {
	return uint8(a - int(b))
}

type sourceRef struct {
	node     compilegraph.NodeIndex
	hasLevel bool
	level    uint8
}

// compToStr emits a discretized comparator's back bus, side bus, and
// output bus as three thermometer-coded wire declarations: each bit is
// high if a source drives that exact level, OR'd with the bit above it so
// that reaching a level implies every level below it is also asserted.
func compToStr(g *compilegraph.Graph, node compilegraph.NodeIndex, back, side, out uint16) string {
	var v strings.Builder

	sSize := bits.OnesCount16(side)
	bSize := bits.OnesCount16(back)
	sInputs := make([][]sourceRef, sSize)
	bInputs := make([][]sourceRef, bSize)

	for _, e := range g.EdgesDirected(node, compilegraph.Incoming) {
		src := g.Node(e.Source)

		switch {
		case isPhysicalSource(src):
			if e.Type == compilegraph.Default {
				if b := ssToIdx(back, e.SS); int(b) < bSize {
					bInputs[b] = append(bInputs[b], sourceRef{node: e.Source})
				}
			} else {
				if b := ssToIdx(side, e.SS); int(b) < sSize {
					sInputs[b] = append(sInputs[b], sourceRef{node: e.Source})
				}
			}

		case src.IsDiscretizedComparator():
			for i := int(e.SS); i < 16; i++ {
				if (uint32(src.Outputs)<<uint(i-int(e.SS)))&0x8000 != 0x8000 {
					continue
				}
				level := ssToIdx(src.Outputs, uint8(i-int(e.SS)))
				ref := sourceRef{node: e.Source, hasLevel: true, level: level}
				if e.Type == compilegraph.Default {
					if b := ssToIdx(back, uint8(i)); int(b) < bSize {
						bInputs[b] = append(bInputs[b], ref)
					}
				} else {
					if b := ssToIdx(side, uint8(i)); int(b) < sSize {
						sInputs[b] = append(sInputs[b], ref)
					}
				}
			}
		}
	}

	if bSize > 0 {
		writeThermometerBus(&v, node, "b", bSize, bInputs)
	}
	if sSize > 0 {
		writeThermometerBus(&v, node, "s", sSize, sInputs)
	}

	bTable := getIndexTable(back)
	sTable := getIndexTable(side)

	oSize := bits.OnesCount16(out)
	outBuckets := make([][][2]uint8, oSize)
	for i := 0; i < bSize; i++ {
		for j := 0; j < sSize; j++ {
			if bTable[i] > sTable[j] {
				level := ssToIdx(out, 15-bTable[i]+sTable[j])
				if int(level) < oSize {
					outBuckets[level] = append(outBuckets[level], [2]uint8{uint8(i), uint8(j)})
				}
			}
		}
	}

	fmt.Fprintf(&v, "\twire[%d:0] w%d = {", oSize-1, node)
	terms := make([]string, oSize)
	for i := 0; i < oSize; i++ {
		bucket := oSize - i - 1
		var parts []string
		if len(outBuckets[bucket]) == 0 {
			parts = append(parts, "1'b0")
		}
		if i > 0 {
			parts = append(parts, fmt.Sprintf("w%d[%d]", node, oSize-i))
		}
		for _, pair := range outBuckets[bucket] {
			bIdx, sIdx := pair[0], pair[1]
			parts = append(parts, fmt.Sprintf("(w%d_s[%d]&~w%d_s[%d]&w%d_b[%d])", node, sIdx, node, sIdx+1, node, bIdx))
		}
		terms[i] = strings.Join(parts, "|")
	}
	v.WriteString(strings.Join(terms, ","))
	v.WriteString("};\n")

	return v.String()
}

// writeThermometerBus emits a single `wire[n-1:0] w{node}_{suffix} = {...}`
// declaration: MSB (bucket size-1) first, each lower bit OR'd with the bit
// immediately above it so the bus reads as a running max rather than a
// one-hot code.
func writeThermometerBus(v *strings.Builder, node compilegraph.NodeIndex, suffix string, size int, buckets [][]sourceRef) {
	fmt.Fprintf(v, "\twire[%d:0] w%d_%s = {", size-1, node, suffix)
	terms := make([]string, size)
	for i := 0; i < size; i++ {
		bucket := size - i - 1
		var parts []string
		if len(buckets[bucket]) == 0 {
			parts = append(parts, "1'b0")
		}
		if i > 0 {
			parts = append(parts, fmt.Sprintf("w%d_%s[%d]", node, suffix, size-i))
		}
		for _, ref := range buckets[bucket] {
			if ref.hasLevel {
				parts = append(parts, fmt.Sprintf("w%d[%d]", ref.node, ref.level))
			} else {
				parts = append(parts, fmt.Sprintf("w%d", ref.node))
			}
		}
		terms[i] = strings.Join(parts, "|")
	}
	v.WriteString(strings.Join(terms, ","))
	v.WriteString("};\n")
}

// getIndexTable returns the set bit positions of states in ascending
// order, e.g. 0b1001 -> [0, 3].
func getIndexTable(states uint16) []uint8 {
	var table []uint8
	for i := uint8(0); i < 16; i++ {
		if (states>>i)&1 == 1 {
			table = append(table, i)
		}
	}
	return table
}

// ssToIdx maps ss to level 15-ss and returns the number of set bits of
// states strictly below that level's position, i.e. the bus index that
// level occupies once states has been compacted down to its count_ones()
// wires.
func ssToIdx(states uint16, ss uint8) uint8 {
	shift := uint(ss) + 1
	var mask uint16
	if shift < 16 {
		mask = 0xFFFF >> shift
	}
	return uint8(bits.OnesCount16(states & mask))
}
