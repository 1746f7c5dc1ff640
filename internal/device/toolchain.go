package device

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Invoker runs an external command in dir with args, returning its
// combined output. Abstracted so tests can swap in a fake subprocess
// runner instead of shelling out to a real Quartus install.
type Invoker interface {
	Run(dir string, args []string) ([]byte, error)
}

// ExecInvoker runs commands via os/exec, matching the original's capture
// of combined stdout/stderr for a later log.Printf.
type ExecInvoker struct{}

// Run launches args[0] with the remaining args in dir, returning combined
// stdout and stderr exactly as the original captures out.stdout.
func (ExecInvoker) Run(dir string, args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("device: empty command")
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// CreateProject writes a Quartus project TCL script at path that compiles
// the fixed set of library sources plus the generated redstone.sv, wires
// up the command pins, and sets the ROC_OUTPUTS/ROC_INPUTS parameters.
// Optional pins are only emitted when the profile names them.
func (c *Config) CreateProject(path string, outputCount, inputCount int) error {
	var tcl strings.Builder

	tcl.WriteString("package require ::quartus::project\n")
	tcl.WriteString("project_new -overwrite -revision RoC RoC\n")
	fmt.Fprintf(&tcl, "set_global_assignment -name FAMILY \"%s\"\n", c.Family)
	fmt.Fprintf(&tcl, "set_global_assignment -name DEVICE %s\n", c.Device)
	tcl.WriteString("set_global_assignment -name TOP_LEVEL_ENTITY top\n")
	tcl.WriteString("set_global_assignment -name SYSTEMVERILOG_FILE ../../../../src/top.sv\n")
	tcl.WriteString("set_global_assignment -name SYSTEMVERILOG_FILE ../../../../src/interface/uart.sv\n")
	tcl.WriteString("set_global_assignment -name SYSTEMVERILOG_FILE ../../../../src/interface/clk_div.sv\n")
	tcl.WriteString("set_global_assignment -name SYSTEMVERILOG_FILE ../../../../src/interface/command_controller.sv\n")
	tcl.WriteString("set_global_assignment -name SYSTEMVERILOG_FILE ../redstone.sv\n")
	tcl.WriteString("set_global_assignment -name SYSTEMVERILOG_FILE ../../../../src/redstone/components.sv\n")
	tcl.WriteString("set_global_assignment -name SYSTEMVERILOG_FILE ../../../../src/redstone/tps_clk_div.sv\n")
	tcl.WriteString("set_global_assignment -name SOURCE_FILE ../../../../ip/tick_clk.cmp\n")
	tcl.WriteString("set_global_assignment -name QIP_FILE ../../../../ip/tick_clk.qip\n")
	tcl.WriteString("set_global_assignment -name SIP_FILE ../../../../ip/tick_clk.sip\n")
	fmt.Fprintf(&tcl, "set_parameter -name ROC_OUTPUTS %d\n", outputCount)
	fmt.Fprintf(&tcl, "set_parameter -name ROC_INPUTS %d\n", inputCount)
	fmt.Fprintf(&tcl, "set_location_assignment PIN_%s -to i_RX\n", c.PinAssignments.IRx)
	fmt.Fprintf(&tcl, "set_location_assignment PIN_%s -to o_TX\n", c.PinAssignments.OTx)
	fmt.Fprintf(&tcl, "set_location_assignment PIN_%s -to i_clk\n", c.PinAssignments.IClk)

	if c.PinAssignments.IRst != "" {
		fmt.Fprintf(&tcl, "set_location_assignment PIN_%s -to i_rst\n", c.PinAssignments.IRst)
	}
	if c.PinAssignments.OTick != "" {
		fmt.Fprintf(&tcl, "set_location_assignment PIN_%s -to o_tick\n", c.PinAssignments.OTick)
	}
	if c.PinAssignments.ODebug != "" {
		fmt.Fprintf(&tcl, "set_location_assignment PIN_%s -to o_debug\n", c.PinAssignments.ODebug)
	}

	tcl.WriteString("export_assignments\n")
	tcl.WriteString("project_close\n")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("device: create %s: %w", dir, err)
	}
	if err := os.WriteFile(path, []byte(tcl.String()), 0o644); err != nil {
		return fmt.Errorf("device: write %s: %w", path, err)
	}
	return nil
}

// Compile invokes the synthesizer over the project directory via inv,
// returning combined output for the caller to log. A non-nil error means
// the invoker reported failure: with ExecInvoker, either the subprocess
// could not be launched or it exited non-zero. The output is returned in
// both cases.
func (c *Config) Compile(inv Invoker, projectDir string) ([]byte, error) {
	args := strings.Fields(c.CommandCom)
	args = append(args, "--flow", "compile", "RoC")
	out, err := inv.Run(projectDir, args)
	if err != nil {
		return out, fmt.Errorf("device: compile %s: %w", c.Name, err)
	}
	return out, nil
}

// Program invokes the JTAG programmer against the built bitstream at
// bitstreamPath. It expects a connected adapter and does not retry.
func (c *Config) Program(inv Invoker, projectDir, bitstreamPath string) ([]byte, error) {
	args := strings.Fields(c.ProgramCom)
	args = append(args, "-o", fmt.Sprintf("p;%s@2", bitstreamPath))
	out, err := inv.Run(projectDir, args)
	if err != nil {
		return out, fmt.Errorf("device: program %s: %w", c.Name, err)
	}
	return out, nil
}
