package options

import "testing"

func TestParseLongFlags(t *testing.T) {
	o := Parse([]string{"--optimize", "--fpga", "--compile"})
	if !o.Optimize || !o.FPGA || !o.Compile {
		t.Fatalf("Parse long flags = %+v", o)
	}
	if o.Export || o.IOOnly || o.Update {
		t.Fatalf("unrequested flags set: %+v", o)
	}
}

func TestParseClusteredShortFlags(t *testing.T) {
	o := Parse([]string{"-iou"})
	if !o.IOOnly || !o.Update || !o.Optimize {
		t.Fatalf("Parse -iou = %+v, want IOOnly, Update, Optimize set", o)
	}
	if o.FPGA || o.Compile || o.Export {
		t.Fatalf("unrequested flags set: %+v", o)
	}
}

func TestParseMixedLongAndShort(t *testing.T) {
	o := Parse([]string{"-fc", "--export-dot", "-s"})
	if !o.FPGA || !o.Compile || !o.ExportDot || !o.Selection {
		t.Fatalf("Parse mixed = %+v", o)
	}
}

func TestParseUnknownFlagsDoNotPanic(t *testing.T) {
	o := Parse([]string{"--bogus", "-z", "notaflag"})
	if o != (CompilerOptions{}) {
		t.Fatalf("Parse unknown flags = %+v, want zero value", o)
	}
}

func TestParseEmptyArgs(t *testing.T) {
	o := Parse(nil)
	if o != (CompilerOptions{}) {
		t.Fatalf("Parse(nil) = %+v, want zero value", o)
	}
}
