// Package vm - debugger support
package vm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cmtristano/koji/pkg/bytecode"
	"github.com/cmtristano/koji/pkg/value"
)

// Debugger provides interactive breakpoint/step debugging over a VM's
// frame stack. It is retargeted from the teacher's flat stack-machine
// model (instruction pointer + value stack + locals array) onto koji's
// Frame/PC/Stack model: "the current instruction" is always the
// top-of-Frames frame's Proto.Instrs[PC], and breakpoints are keyed by
// that same PC.
type Debugger struct {
	vm          *VM
	breakpoints map[int]bool
	stepMode    bool
	enabled     bool
}

// NewDebugger creates a new debugger instance attached to vm.
func NewDebugger(vm *VM) *Debugger {
	return &Debugger{vm: vm, breakpoints: make(map[int]bool)}
}

// Enable activates the debugger.
func (d *Debugger) Enable() { d.enabled = true }

// Disable deactivates the debugger.
func (d *Debugger) Disable() { d.enabled = false }

// SetStepMode enables or disables step mode. In step mode, execution
// pauses before every instruction.
func (d *Debugger) SetStepMode(enabled bool) { d.stepMode = enabled }

// AddBreakpoint adds a breakpoint at the given instruction index within
// the currently executing prototype.
func (d *Debugger) AddBreakpoint(pc int) { d.breakpoints[pc] = true }

// RemoveBreakpoint removes a breakpoint at pc.
func (d *Debugger) RemoveBreakpoint(pc int) { delete(d.breakpoints, pc) }

// ClearBreakpoints removes every breakpoint.
func (d *Debugger) ClearBreakpoints() { d.breakpoints = make(map[int]bool) }

// currentFrame returns the frame currently executing, or nil if the VM
// has no active frame (not yet started, or already returned).
func (d *Debugger) currentFrame() *Frame {
	if len(d.vm.Frames) == 0 {
		return nil
	}
	return &d.vm.Frames[len(d.vm.Frames)-1]
}

// ShouldPause reports whether dispatch should stop and hand control to
// InteractivePrompt before executing the current frame's next
// instruction.
func (d *Debugger) ShouldPause() bool {
	if !d.enabled {
		return false
	}
	if d.stepMode {
		return true
	}
	frame := d.currentFrame()
	return frame != nil && d.breakpoints[frame.PC]
}

// ShowCurrentInstruction displays the instruction about to execute.
func (d *Debugger) ShowCurrentInstruction() {
	frame := d.currentFrame()
	if frame == nil || frame.PC >= len(frame.Proto.Instrs) {
		fmt.Println("No current instruction")
		return
	}
	instr := frame.Proto.Instrs[frame.PC]
	fmt.Printf("  %4d: %s\n", frame.PC, bytecode.FormatInstr(instr, frame.Proto, d.vm.Display))
}

// ShowStack displays the live portion of the VM's flat register stack,
// top to bottom.
func (d *Debugger) ShowStack() {
	fmt.Println("Stack (top to bottom):")
	if len(d.vm.Stack) == 0 {
		fmt.Println("  (empty)")
		return
	}
	for i := len(d.vm.Stack) - 1; i >= 0; i-- {
		fmt.Printf("  [%d] %s\n", i, d.vm.Display(d.vm.Stack[i]))
	}
}

// ShowLocals displays the current frame's register window.
func (d *Debugger) ShowLocals() {
	frame := d.currentFrame()
	fmt.Println("Locals (current frame):")
	if frame == nil || frame.Proto.NLocals == 0 {
		fmt.Println("  (none)")
		return
	}
	for i := 0; i < frame.Proto.NLocals; i++ {
		fmt.Printf("  R%d = %s\n", i, d.vm.Display(d.vm.Stack[frame.Base+i]))
	}
}

// ShowGlobals displays every global binding, walked the same way OPNEXT
// walks a table (there is no separate enumeration API).
func (d *Debugger) ShowGlobals() {
	fmt.Println("Globals:")
	if d.vm.Globals.Size() == 0 {
		fmt.Println("  (none)")
		return
	}
	prev := value.Nil()
	for {
		key, ok := d.vm.Globals.NextKey(d.vm, prev)
		if !ok {
			return
		}
		val := d.vm.Globals.Get(d.vm, key)
		fmt.Printf("  %s = %s\n", d.vm.Display(key), d.vm.Display(val))
		prev = key
	}
}

// ShowCallStack displays every active call frame, top to bottom.
func (d *Debugger) ShowCallStack() {
	fmt.Println("Call stack (top to bottom):")
	if len(d.vm.Frames) == 0 {
		fmt.Println("  (empty)")
		return
	}
	for i := len(d.vm.Frames) - 1; i >= 0; i-- {
		frame := d.vm.Frames[i]
		name := frame.Proto.Name
		if name == "" {
			name = "<anonymous>"
		}
		fmt.Printf("  %s", name)
		if frame.Selector != "" {
			fmt.Printf(" (method: %s)", frame.Selector)
		}
		fmt.Printf(" [pc %d]\n", frame.PC)
	}
}

// InteractivePrompt is called when execution pauses at a breakpoint or in
// step mode; it drives a small command loop and returns whether
// execution should continue.
func (d *Debugger) InteractivePrompt() (continueExecution bool) {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("\n=== Debugger Paused ===")
	d.ShowCurrentInstruction()

	for {
		fmt.Print("debug> ")
		if !scanner.Scan() {
			return false
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		command := parts[0]

		switch command {
		case "help", "h", "?":
			d.printHelp()

		case "continue", "c":
			d.SetStepMode(false)
			return true

		case "step", "s":
			d.SetStepMode(true)
			return true

		case "next", "n":
			d.SetStepMode(true)
			return true

		case "stack", "st":
			d.ShowStack()

		case "locals", "l":
			d.ShowLocals()

		case "globals", "g":
			d.ShowGlobals()

		case "callstack", "cs":
			d.ShowCallStack()

		case "instruction", "i":
			d.ShowCurrentInstruction()

		case "breakpoint", "b":
			if len(parts) < 2 {
				fmt.Println("Usage: breakpoint <pc>")
				continue
			}
			pc, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("Invalid instruction number")
				continue
			}
			d.AddBreakpoint(pc)
			fmt.Printf("Breakpoint added at pc %d\n", pc)

		case "delete", "d":
			if len(parts) < 2 {
				fmt.Println("Usage: delete <pc>")
				continue
			}
			pc, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("Invalid instruction number")
				continue
			}
			d.RemoveBreakpoint(pc)
			fmt.Printf("Breakpoint removed at pc %d\n", pc)

		case "list", "ls":
			d.listInstructions()

		case "quit", "q":
			return false

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", command)
		}
	}
}

func (d *Debugger) printHelp() {
	fmt.Println("Debugger Commands:")
	fmt.Println("  help, h, ?           Show this help")
	fmt.Println("  continue, c          Continue execution")
	fmt.Println("  step, s              Enable step mode (pause before each instruction)")
	fmt.Println("  next, n              Execute next instruction")
	fmt.Println("  stack, st            Show the VM's register stack")
	fmt.Println("  locals, l            Show the current frame's registers")
	fmt.Println("  globals, g           Show global variables")
	fmt.Println("  callstack, cs        Show the call stack")
	fmt.Println("  instruction, i       Show the current instruction")
	fmt.Println("  breakpoint <n>, b    Add a breakpoint at instruction n")
	fmt.Println("  delete <n>, d        Remove a breakpoint at instruction n")
	fmt.Println("  list, ls             List the current frame's instructions")
	fmt.Println("  quit, q              Quit debugging (abort execution)")
}

// listInstructions displays every instruction in the current frame's
// prototype, marking the current pc and any breakpoints.
func (d *Debugger) listInstructions() {
	frame := d.currentFrame()
	if frame == nil {
		fmt.Println("(no active frame)")
		return
	}
	fmt.Println("Instructions:")
	for i, instr := range frame.Proto.Instrs {
		marker := "  "
		if i == frame.PC {
			marker = "->"
		} else if d.breakpoints[i] {
			marker = "*"
		}
		fmt.Printf("%s %4d: %s\n", marker, i, bytecode.FormatInstr(instr, frame.Proto, d.vm.Display))
	}
}
