package main

import (
	"bufio"
	"os"

	"golang.org/x/term"
)

// lineReader reads REPL input a line at a time. When stdin is a terminal
// it puts the terminal into raw mode and runs its own minimal line editor
// (printable characters, backspace, Ctrl-C to discard the current line,
// Ctrl-D to end the session); otherwise — input piped in from a file or
// another process — it falls back to a plain line scanner, since raw
// mode has no meaning against a non-terminal file descriptor.
type lineReader struct {
	f       *os.File
	fd      int
	raw     bool
	restore *term.State
	sc      *bufio.Scanner
}

func newLineReader(f *os.File) *lineReader {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return &lineReader{f: f, sc: bufio.NewScanner(f)}
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return &lineReader{f: f, sc: bufio.NewScanner(f)}
	}
	return &lineReader{f: f, fd: fd, raw: true, restore: state}
}

// Close restores the terminal's original mode, if it was put into raw
// mode.
func (r *lineReader) Close() {
	if r.raw {
		term.Restore(r.fd, r.restore)
	}
}

const (
	ctrlC     = 0x03
	ctrlD     = 0x04
	backspace = 0x7f
	bs        = 0x08
)

// ReadLine prompts and reads one line of input, returning ok=false once
// the session has ended (Ctrl-D on an empty line, or EOF on the
// non-terminal fallback path).
func (r *lineReader) ReadLine(prompt string) (string, bool) {
	if !r.raw {
		os.Stdout.WriteString(prompt)
		if !r.sc.Scan() {
			return "", false
		}
		return r.sc.Text(), true
	}
	return r.readLineRaw(prompt)
}

func (r *lineReader) readLineRaw(prompt string) (string, bool) {
	os.Stdout.WriteString(prompt)
	var buf []byte
	one := make([]byte, 1)
	for {
		n, err := r.f.Read(one)
		if err != nil || n == 0 {
			return "", false
		}
		c := one[0]
		switch {
		case c == '\r' || c == '\n':
			os.Stdout.WriteString("\r\n")
			return string(buf), true
		case c == ctrlD:
			if len(buf) == 0 {
				return "", false
			}
		case c == ctrlC:
			os.Stdout.WriteString("^C\r\n")
			buf = buf[:0]
			os.Stdout.WriteString(prompt)
		case c == backspace || c == bs:
			if len(buf) > 0 {
				buf = buf[:len(buf)-1]
				os.Stdout.WriteString("\b \b")
			}
		case c >= 0x20 && c < 0x7f:
			buf = append(buf, c)
			os.Stdout.Write(one)
		}
	}
}
