package compiler

import (
	"fmt"

	"github.com/cmtristano/koji/pkg/lexer"
)

// Error is a compile-time fault: lexical, syntactic, or semantic. Compile
// reports it via panic/recover, the Go analogue of the reference
// implementation's longjmp-based issue handler (spec.md §4.6 "Errors").
type Error struct {
	Loc     lexer.SourceLoc
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Loc, e.Message) }

// fail aborts compilation with a formatted message at the current token's
// location.
func (c *Compiler) fail(format string, args ...any) {
	panic(&Error{Loc: c.cur.Loc, Message: fmt.Sprintf(format, args...)})
}

func (c *Compiler) failAt(loc lexer.SourceLoc, format string, args ...any) {
	panic(&Error{Loc: loc, Message: fmt.Sprintf(format, args...)})
}
