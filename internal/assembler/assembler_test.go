package assembler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voltplot/roc/internal/compilegraph"
)

// Scenario A — identity wire, spec.md §8.
func TestIdentityWireLeverToLamp(t *testing.T) {
	g := compilegraph.New()
	lever := g.AddNode(compilegraph.Node{Kind: compilegraph.Lever})
	lamp := g.AddNode(compilegraph.Node{Kind: compilegraph.Lamp})
	g.AddEdge(lever, lamp, compilegraph.Default, 0)

	dir := t.TempDir()
	path := filepath.Join(dir, "roc.v")
	if err := Assemble(g, path); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(data)

	if !strings.Contains(out, "wire w0 = inputs[0];") {
		t.Fatalf("missing identity wire declaration, got:\n%s", out)
	}
	if !strings.Contains(out, "assign outputs[0] = (1'b0|w0);") {
		t.Fatalf("missing lamp output assignment, got:\n%s", out)
	}
	if !strings.HasPrefix(out, "module RoC #(") {
		t.Fatalf("missing module header")
	}
	if !strings.HasSuffix(out, "endmodule\n") {
		t.Fatalf("missing endmodule trailer")
	}
}

func TestAssembleWritesAtomically(t *testing.T) {
	g := compilegraph.New()
	g.AddNode(compilegraph.Node{Kind: compilegraph.Lever})

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "roc.v")
	if err := Assemble(g, path); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("leftover temp file at %s.tmp", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected final file to exist: %v", err)
	}
}

// Scenario B — subtract comparator, spec.md §8: a comparator whose back
// and side are both anchor+one level emits a 2-bit bus for each.
func TestSubtractComparatorEmitsTwoBitBuses(t *testing.T) {
	g := compilegraph.New()
	cmp := g.AddNode(compilegraph.Node{
		Kind:    compilegraph.FPGAComparator,
		Mode:    compilegraph.ModeSubtract,
		Back:    0b1000000000000001,
		Side:    0b1000000000000001,
		Outputs: 0b1000000000000001,
	})

	out := compToStr(g, cmp, 0b1000000000000001, 0b1000000000000001, 0b1000000000000001)

	if !strings.Contains(out, "wire[1:0] w0_b = {") {
		t.Fatalf("expected 2-bit back bus, got:\n%s", out)
	}
	if !strings.Contains(out, "wire[1:0] w0_s = {") {
		t.Fatalf("expected 2-bit side bus, got:\n%s", out)
	}
	if !strings.Contains(out, "wire[1:0] w0 = {") {
		t.Fatalf("expected 2-bit output bus, got:\n%s", out)
	}
}

// Scenario C — compare comparator with attenuation, spec.md §8: outputs
// collapses to the anchor bit only, so the output bus is a single wire
// with no self-reference term.
func TestCompareComparatorAnchorOnlyOutputBus(t *testing.T) {
	g := compilegraph.New()
	cmp := g.AddNode(compilegraph.Node{Kind: compilegraph.FPGAComparator, Mode: compilegraph.ModeCompare})

	out := compToStr(g, cmp, 0b1000010000000001, 0b1000000000000001, 0b0000000000000001)

	if !strings.Contains(out, "wire[0:0] w0 = {") {
		t.Fatalf("expected single-bit output bus, got:\n%s", out)
	}
}

func TestSsToIdx(t *testing.T) {
	cases := []struct {
		states uint16
		ss     uint8
		want   uint8
	}{
		// Anchor bit (position 0, ss=15): no lower set bits, rank 0.
		{states: 0b1, ss: 15, want: 0},
		// Two-bucket back/side (anchor at position 0, one level at
		// position 15, ss=0): the level bit ranks above the anchor.
		{states: 0b1000000000000001, ss: 0, want: 1},
		{states: 0b1000000000000001, ss: 15, want: 0},
		{states: 0b1111111111111111, ss: 14, want: 1},
	}
	for _, c := range cases {
		if got := ssToIdx(c.states, c.ss); got != c.want {
			t.Errorf("ssToIdx(%016b, %d) = %d, want %d", c.states, c.ss, got, c.want)
		}
	}
}

func TestGetIndexTable(t *testing.T) {
	got := getIndexTable(0b1001)
	want := []uint8{0, 3}
	if len(got) != len(want) {
		t.Fatalf("getIndexTable(0b1001) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("getIndexTable(0b1001) = %v, want %v", got, want)
		}
	}
}

func TestGetInputsStrAlwaysHasAnchorTerm(t *testing.T) {
	g := compilegraph.New()
	lamp := g.AddNode(compilegraph.Node{Kind: compilegraph.Lamp})

	got := getInputsStr(g, lamp, compilegraph.Default)
	if got != "1'b0" {
		t.Fatalf("getInputsStr with no edges = %q, want %q", got, "1'b0")
	}
}

func TestRepeaterEmitsLockerAndLockingFlags(t *testing.T) {
	g := compilegraph.New()
	r1 := g.AddNode(compilegraph.Node{Kind: compilegraph.Repeater, RepeaterDelay: 2})
	r2 := g.AddNode(compilegraph.Node{Kind: compilegraph.Repeater, RepeaterDelay: 1})
	g.AddEdge(r1, r2, compilegraph.Side, 0)

	dir := t.TempDir()
	path := filepath.Join(dir, "roc.v")
	if err := Assemble(g, path); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(data)

	if !strings.Contains(out, "repeater #(2, 1'b0, 1, 0) c0 ") {
		t.Fatalf("expected r1 emitted as a locker, got:\n%s", out)
	}
	if !strings.Contains(out, "repeater #(1, 1'b0, 0, 1) c1 ") {
		t.Fatalf("expected r2 emitted as locked, got:\n%s", out)
	}
}
