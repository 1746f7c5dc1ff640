// Package device holds the device profile (pin assignments, synthesizer
// identity) and the external Verilog toolchain driver: project-file
// emission plus the synthesize/program subprocess invocations.
//
// Grounded on original_source/crates/backend/src/fpga/compiler.rs.
package device

// PinAssignments names the physical pins a device profile binds the
// command interface to. i_rst, o_tick, and o_debug are optional: an empty
// string means the pin is not wired on that board.
type PinAssignments struct {
	IClk   string `json:"i_clk"`
	IRx    string `json:"i_rx"`
	IRst   string `json:"i_rst,omitempty"`
	OTx    string `json:"o_tx"`
	ODebug string `json:"o_debug,omitempty"`
	OTick  string `json:"o_tick,omitempty"`
}

// Config describes one synthesizable device target: its Quartus family
// and part number, the subprocess command lines used to drive synthesis
// and programming, and its pin assignments.
type Config struct {
	Name            string          `json:"name"`
	Device          string          `json:"device"`
	Family          string          `json:"family"`
	CommandCom      string          `json:"command_com"`
	ProgramCom      string          `json:"program_com"`
	PinAssignments  PinAssignments  `json:"pin_assignments"`
}
