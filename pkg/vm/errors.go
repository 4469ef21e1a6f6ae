// Package vm - error handling with stack traces
package vm

import (
	"fmt"
	"strings"
)

// StackFrame captures where execution was within one call frame at the
// moment a runtime error was raised.
type StackFrame struct {
	Name     string // prototype name, or "" for an anonymous function
	Selector string // method name, set only for a frame entered via MCALL
	PC       int    // instruction index at the point of the call/throw
}

// RuntimeError is a koji runtime fault: THROW, an arity mismatch, an
// operator applied to the wrong type, or similar — everything pkg/koji's
// Run surfaces to the host as an error.
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	if len(e.StackTrace) > 0 {
		b.WriteString("\n\nStack trace:")
		for i := len(e.StackTrace) - 1; i >= 0; i-- {
			frame := e.StackTrace[i]
			name := frame.Name
			if name == "" {
				name = "<anonymous>"
			}
			b.WriteString(fmt.Sprintf("\n  at %s", name))
			if frame.Selector != "" {
				b.WriteString(fmt.Sprintf(" (method: %s)", frame.Selector))
			}
			b.WriteString(fmt.Sprintf(" [pc %d]", frame.PC))
		}
	}

	return b.String()
}

func newRuntimeError(message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, StackTrace: stack}
}
