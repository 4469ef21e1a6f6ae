package main

import (
	"fmt"
	"os"

	"github.com/cmtristano/koji/pkg/koji"
	"github.com/cmtristano/koji/pkg/stdlib"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		runREPL()
		return
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("koji version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "repl":
		runREPL()
	case "run":
		if len(os.Args) < 3 {
			fmt.Println("Error: no file specified")
			printUsage()
			os.Exit(1)
		}
		runFile(os.Args[2])
	case "disasm", "disassemble":
		if len(os.Args) < 3 {
			fmt.Println("Error: no file specified")
			fmt.Println("\nUsage: koji disasm <file.koji>")
			os.Exit(1)
		}
		disassembleFile(os.Args[2])
	case "debug":
		if len(os.Args) < 3 {
			fmt.Println("Error: no file specified")
			fmt.Println("\nUsage: koji debug <file.koji>")
			os.Exit(1)
		}
		debugFile(os.Args[2])
	default:
		runFile(os.Args[1])
	}
}

func printUsage() {
	fmt.Println("koji - a small register-based scripting language")
	fmt.Println("\nUsage:")
	fmt.Println("  koji                  Start interactive REPL")
	fmt.Println("  koji [file]           Run a .koji file")
	fmt.Println("  koji run [file]       Run a .koji file")
	fmt.Println("  koji disasm [file]    Compile a .koji file and print its bytecode")
	fmt.Println("  koji debug [file]     Run a .koji file under the interactive debugger")
	fmt.Println("  koji repl             Start interactive REPL")
	fmt.Println("  koji version          Show version")
	fmt.Println("  koji help             Show this help")
}

func runFile(filename string) {
	ctx := koji.Open()
	defer ctx.Close()
	stdlib.Install(ctx)

	proto, err := ctx.LoadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compile error: %v\n", err)
		os.Exit(1)
	}
	if err := ctx.Run(proto); err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
		os.Exit(1)
	}
}

func debugFile(filename string) {
	ctx := koji.Open()
	defer ctx.Close()
	stdlib.Install(ctx)
	ctx.EnableDebugger()

	proto, err := ctx.LoadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compile error: %v\n", err)
		os.Exit(1)
	}
	if err := ctx.Run(proto); err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
		os.Exit(1)
	}
}

func disassembleFile(filename string) {
	ctx := koji.Open()
	defer ctx.Close()
	stdlib.Install(ctx)

	proto, err := ctx.LoadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compile error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("=== Bytecode Disassembly: %s ===\n\n", filename)
	fmt.Println(ctx.Disassemble(proto))
}

// runREPL starts an interactive read-eval-print loop: a line of input is
// compiled as its own fresh top-level program and run against a single
// persistent Context, so global assignments (but not `var` locals) carry
// over between lines — koji's compiler has no incremental-compile mode
// the way the teacher's did, so each line is its own complete program.
func runREPL() {
	fmt.Printf("koji REPL v%s\n", version)
	fmt.Println("Type ':help' for help, ':quit' or ':exit' to exit")
	fmt.Println()

	ctx := koji.Open()
	defer ctx.Close()
	stdlib.Install(ctx)

	read := newLineReader(os.Stdin)
	defer read.Close()

	count := 0
	for {
		line, ok := read.ReadLine("koji> ")
		if !ok {
			fmt.Println()
			break
		}

		switch line {
		case ":quit", ":exit":
			fmt.Println("Goodbye!")
			return
		case ":help":
			printREPLHelp()
			continue
		case "":
			continue
		}

		count++
		evalREPL(ctx, fmt.Sprintf("<repl:%d>", count), line)
	}
}

func evalREPL(ctx *koji.Context, name, input string) {
	proto, err := ctx.LoadString(name, input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Compile error: %v\n", err)
		return
	}
	if err := ctx.Run(proto); err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
	}
}

func printREPLHelp() {
	fmt.Println("koji REPL Help")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  :help     Show this help message")
	fmt.Println("  :quit     Exit the REPL")
	fmt.Println("  :exit     Exit the REPL")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  - Enter a complete koji statement and press Enter")
	fmt.Println("  - Statements end at a newline (or an explicit ';')")
	fmt.Println("  - Global assignments persist across lines; `var` locals do not")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  koji> x = 42;")
	fmt.Println("  koji> debug(x + 8);")
}

