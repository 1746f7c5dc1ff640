// Package linker maintains the bijection between in-world interface blocks
// (lamps, trapdoors, levers, buttons, pressure plates) and bit offsets in
// the serial input/output streams, and persists that mapping so a
// previously-synthesized bitstream can be rebound without recompiling.
//
// Grounded on original_source/crates/fpga/src/linker.rs, with the known
// get_input_bytes bug (computing input byte count from output_bits) fixed.
package linker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voltplot/roc/internal/compilegraph"
)

// IntfKind tags an interface block's physical role and bit width.
type IntfKind int

const (
	KindLamp IntfKind = iota
	KindTrapdoor
	KindHexLamp
	KindLever
	KindButton
	KindPressurePlate
)

// BitCount returns how many bits of the serial stream this kind occupies:
// 4 for a HexLamp (a 0-15 comparator readout rendered on redstone lamps),
// 1 for everything else.
func (k IntfKind) BitCount() int {
	if k == KindHexLamp {
		return 4
	}
	return 1
}

func (k IntfKind) isOutput() bool {
	switch k {
	case KindLamp, KindTrapdoor, KindHexLamp:
		return true
	default:
		return false
	}
}

func (k IntfKind) String() string {
	switch k {
	case KindLamp:
		return "lamp"
	case KindTrapdoor:
		return "trapdoor"
	case KindHexLamp:
		return "hex_lamp"
	case KindLever:
		return "lever"
	case KindButton:
		return "button"
	case KindPressurePlate:
		return "pressure_plate"
	default:
		return "unknown"
	}
}

func parseIntfKind(s string) (IntfKind, error) {
	switch s {
	case "lamp":
		return KindLamp, nil
	case "trapdoor":
		return KindTrapdoor, nil
	case "hex_lamp":
		return KindHexLamp, nil
	case "lever":
		return KindLever, nil
	case "button":
		return KindButton, nil
	case "pressure_plate":
		return KindPressurePlate, nil
	default:
		return 0, fmt.Errorf("linker: unknown interface kind %q", s)
	}
}

// IntfBlock is a single world block bound into the interface table: its
// kind, its world position, and the last state written or read for it.
type IntfBlock struct {
	Kind  IntfKind
	Pos   compilegraph.Pos
	State uint8
}

// Linker is the ordered interface table for one compiled plot. Outputs and
// Inputs are insertion-ordered: that order fixes each block's bit offset
// into the output/input streams, and MUST be preserved across persistence.
type Linker struct {
	Name string

	Outputs    []IntfBlock
	OutputBits int

	Inputs    []IntfBlock
	InputBits int
}

// New returns an empty linker for a plot named name.
func New(name string) *Linker {
	return &Linker{Name: name}
}

// AddBlock appends block to the inputs or outputs table depending on its
// kind, and grows the corresponding bit count. The returned offset is the
// bit offset the block was assigned.
func (l *Linker) AddBlock(block IntfBlock) int {
	if block.Kind.isOutput() {
		offset := l.OutputBits
		l.Outputs = append(l.Outputs, block)
		l.OutputBits += block.Kind.BitCount()
		return offset
	}
	offset := l.InputBits
	l.Inputs = append(l.Inputs, block)
	l.InputBits += block.Kind.BitCount()
	return offset
}

// OutputBytes is the number of whole bytes needed to hold OutputBits.
func (l *Linker) OutputBytes() int {
	return (l.OutputBits + 7) / 8
}

// InputBytes is the number of whole bytes needed to hold InputBits. The
// original's get_input_bytes reads output_bits here instead; this is the
// corrected version, per spec's Open Question (1).
func (l *Linker) InputBytes() int {
	return (l.InputBits + 7) / 8
}

// ToggleInput finds the input block at pos, flips its stored state, and
// returns its bit offset in the input stream, its kind code, and the new
// state. If pos names no input block, it returns (0, 0, 0) — this zero
// tuple is indistinguishable from a genuine toggle at offset 0, matching
// the original's own ambiguous sentinel; callers that care must check
// membership themselves first via BlockAt.
func (l *Linker) ToggleInput(pos compilegraph.Pos) (offset int, kindCode int, newState uint8) {
	bit := 0
	for i := range l.Inputs {
		b := &l.Inputs[i]
		if b.Pos != pos {
			bit += b.Kind.BitCount()
			continue
		}
		if b.State == 0 {
			b.State = 1
		} else {
			b.State = 0
		}
		return bit, int(b.Kind), b.State
	}
	return 0, 0, 0
}

// BlockAt reports whether pos names a known input block, to disambiguate
// ToggleInput's zero-tuple sentinel.
func (l *Linker) BlockAt(pos compilegraph.Pos) bool {
	for i := range l.Inputs {
		if l.Inputs[i].Pos == pos {
			return true
		}
	}
	return false
}

// BlocksToChange walks the output table against a freshly-captured bit
// stream (as returned by a GetOutputs serial command), returning every
// output block whose decoded state differs from what is currently stored
// (updating the stored state in the same pass), followed by every input
// block at its current state. The input echo lets a client-side renderer
// stay in sync with input blocks it doesn't itself poll. The returned
// blocks are in table order (changed outputs, then all inputs), each
// carrying its current state.
func (l *Linker) BlocksToChange(bitstream []byte) []IntfBlock {
	var changed []IntfBlock
	bitOffset := 0
	for i := range l.Outputs {
		b := &l.Outputs[i]
		width := b.Kind.BitCount()
		state := readBits(bitstream, bitOffset, width)
		if state != b.State {
			b.State = state
			changed = append(changed, *b)
		}
		bitOffset += width
	}
	for i := range l.Inputs {
		changed = append(changed, l.Inputs[i])
	}
	return changed
}

// readBits extracts a width-bit (width <= 8) value starting at bitOffset
// from a big-endian packed bit stream, MSB of byte 0 first.
func readBits(stream []byte, bitOffset, width int) uint8 {
	var v uint8
	for i := 0; i < width; i++ {
		bit := bitOffset + i
		byteIdx := bit / 8
		if byteIdx >= len(stream) {
			break
		}
		bitIdx := 7 - uint(bit%8)
		v <<= 1
		v |= (stream[byteIdx] >> bitIdx) & 0x1
	}
	return v
}

type posJSON struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

type intfBlockJSON struct {
	Ty    string  `json:"ty"`
	Pos   posJSON `json:"pos"`
	State uint8   `json:"state"`
}

type linkerJSON struct {
	Name       string          `json:"name"`
	Outputs    []intfBlockJSON `json:"outputs"`
	OutputBits int             `json:"output_bits"`
	Inputs     []intfBlockJSON `json:"inputs"`
	InputBits  int             `json:"input_bits"`
}

func toJSON(blocks []IntfBlock) []intfBlockJSON {
	out := make([]intfBlockJSON, len(blocks))
	for i, b := range blocks {
		out[i] = intfBlockJSON{
			Ty:    b.Kind.String(),
			Pos:   posJSON{X: b.Pos.X, Y: b.Pos.Y, Z: b.Pos.Z},
			State: b.State,
		}
	}
	return out
}

func fromJSON(blocks []intfBlockJSON) ([]IntfBlock, error) {
	out := make([]IntfBlock, len(blocks))
	for i, b := range blocks {
		kind, err := parseIntfKind(b.Ty)
		if err != nil {
			return nil, err
		}
		out[i] = IntfBlock{
			Kind:  kind,
			Pos:   compilegraph.Pos{X: b.Pos.X, Y: b.Pos.Y, Z: b.Pos.Z},
			State: b.State,
		}
	}
	return out, nil
}

// Persist serializes l to path as indented JSON, preserving insertion
// order of Inputs and Outputs exactly. The write is atomic (temp file plus
// rename), matching the assembler's write discipline.
func (l *Linker) Persist(path string) error {
	doc := linkerJSON{
		Name:       l.Name,
		Outputs:    toJSON(l.Outputs),
		OutputBits: l.OutputBits,
		Inputs:     toJSON(l.Inputs),
		InputBits:  l.InputBits,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("linker: marshal %s: %w", l.Name, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("linker: create %s: %w", dir, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("linker: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("linker: rename %s: %w", tmp, err)
	}
	return nil
}

// Load reads a linker file previously written by Persist.
func Load(path string) (*Linker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("linker: read %s: %w", path, err)
	}
	var doc linkerJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("linker: parse %s: %w", path, err)
	}
	outputs, err := fromJSON(doc.Outputs)
	if err != nil {
		return nil, fmt.Errorf("linker: parse %s: %w", path, err)
	}
	inputs, err := fromJSON(doc.Inputs)
	if err != nil {
		return nil, fmt.Errorf("linker: parse %s: %w", path, err)
	}
	return &Linker{
		Name:       doc.Name,
		Outputs:    outputs,
		OutputBits: doc.OutputBits,
		Inputs:     inputs,
		InputBits:  doc.InputBits,
	}, nil
}
