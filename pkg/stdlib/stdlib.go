// Package stdlib registers koji's builtin host functions against a
// koji.Context, the way the reference implementation's standard library
// ships a small, fixed set of host-backed globals (spec.md §6) rather
// than anything written in koji itself. print and len are the two every
// program expects in scope; extra.go adds the teacher's wider utility
// surface (hashing, encoding, compression, randomness, date/time,
// regular expressions, file I/O, HTTP).
package stdlib

import (
	"fmt"

	"github.com/cmtristano/koji/pkg/koji"
)

// Install registers every builtin into ctx. Call it once per Context
// before running any script that expects these to be in scope.
func Install(ctx *koji.Context) {
	ctx.StaticFunction("print", 0, -1, builtinPrint)
	ctx.StaticFunction("len", 1, 1, builtinLen)
	InstallExtra(ctx)
}

// builtinPrint writes every argument, space-separated, followed by a
// newline — the same rendering OP_DEBUG uses, so `print(x)` and
// `debug(x)` agree on how a value looks.
func builtinPrint(ctx *koji.Context) (int, error) {
	n := ctx.StackDepth()
	for i := n - 1; i >= 0; i-- {
		if i != n-1 {
			fmt.Print(" ")
		}
		fmt.Print(ctx.Display(i))
	}
	fmt.Println()
	return 0, nil
}

// builtinLen returns a string's byte length, or a table's live key count
// (spec.md §4.4 "length is not exposed via operators" — this is the one
// host-level escape hatch for it).
func builtinLen(ctx *koji.Context) (int, error) {
	switch ctx.ValueType(0) {
	case koji.TypeString:
		ctx.PushNumber(float64(ctx.StringLen(0)))
	case koji.TypeTable:
		ctx.PushNumber(float64(ctx.TableSize(0)))
	default:
		return 0, fmt.Errorf("len: expected a string or table, got %s", ctx.ValueType(0))
	}
	return 1, nil
}
