// Package options parses compiler flags: the long (--flag) and clustered
// short (-iou) forms spec.md's flag table lists. Unknown flags are
// warnings, never hard failures, matching the rest of this module's
// tolerant diagnostics.
//
// Grounded on original_source/crates/redpiler/src/lib.rs's
// CompilerOptions::parse, extended with clustered short-flag support.
package options

import (
	"log"
	"strings"
)

// CompilerOptions holds every flag spec.md §6 enumerates.
type CompilerOptions struct {
	Optimize   bool // o: run optional passes
	Export     bool // e: export graph to a binary format
	IOOnly     bool // i: only reflect interface blocks on flush
	Update     bool // u: run block updates after reset
	ExportDot  bool // export-dot: emit graph as a DOT file
	WireDotOut bool // d: treat dot-wires as outputs
	Selection  bool // s: compile only selected region
	FPGA       bool // f: target FPGA backend
	Compile    bool // c: invoke external synthesizer
}

// Parse reads args (long --flags and clustered short -flags mixed freely)
// into a CompilerOptions. Arguments that are neither a recognized flag nor
// a known short letter are logged and otherwise ignored.
func Parse(args []string) CompilerOptions {
	var o CompilerOptions
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, "--"):
			applyLong(&o, strings.TrimPrefix(arg, "--"))
		case strings.HasPrefix(arg, "-") && len(arg) > 1:
			for _, r := range strings.TrimPrefix(arg, "-") {
				applyShort(&o, r)
			}
		default:
			log.Printf("options: ignoring unrecognized argument %q", arg)
		}
	}
	return o
}

func applyLong(o *CompilerOptions, name string) {
	switch name {
	case "optimize":
		o.Optimize = true
	case "export":
		o.Export = true
	case "io-only":
		o.IOOnly = true
	case "update":
		o.Update = true
	case "export-dot":
		o.ExportDot = true
	case "wire-dot-out":
		o.WireDotOut = true
	case "selection":
		o.Selection = true
	case "fpga":
		o.FPGA = true
	case "compile":
		o.Compile = true
	default:
		log.Printf("options: unknown flag --%s", name)
	}
}

func applyShort(o *CompilerOptions, r rune) {
	switch r {
	case 'o':
		o.Optimize = true
	case 'e':
		o.Export = true
	case 'i':
		o.IOOnly = true
	case 'u':
		o.Update = true
	case 'd':
		o.WireDotOut = true
	case 's':
		o.Selection = true
	case 'f':
		o.FPGA = true
	case 'c':
		o.Compile = true
	default:
		log.Printf("options: unknown short flag -%c", r)
	}
}
