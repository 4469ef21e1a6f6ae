package compiler

import (
	"testing"

	"github.com/cmtristano/koji/pkg/class"
	"github.com/cmtristano/koji/pkg/kstring"
	"github.com/cmtristano/koji/pkg/ktable"
	"github.com/cmtristano/koji/pkg/lexer"
)

func compileSrc(t *testing.T, src string) *Compiler {
	t.Helper()
	cc := class.NewClassClass()
	classString := kstring.NewClass(cc)
	classTable := ktable.NewClass(cc)
	c := New(lexer.New("test", src), classString, classTable)
	return c
}

func TestCompileIntegerLiteral(t *testing.T) {
	c := compileSrc(t, "42;")
	proto, err := c.Compile("test")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(proto.Instrs) == 0 {
		t.Fatal("expected at least one instruction")
	}
	found := false
	for _, k := range proto.Consts {
		if k.IsNumber() && k.AsNumber() == 42 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected constant pool to contain 42, got %v", proto.Consts)
	}
}

func TestCompileStringLiteral(t *testing.T) {
	c := compileSrc(t, `"hello";`)
	proto, err := c.Compile("test")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(proto.Consts) == 0 {
		t.Fatal("expected the string literal to land in the constant pool")
	}
}

func TestCompileVarAndGlobalAssignment(t *testing.T) {
	c := compileSrc(t, `var x = 1; y = x + 2;`)
	proto, err := c.Compile("test")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if proto.NLocals < 1 {
		t.Errorf("expected at least one local register, got NLocals=%d", proto.NLocals)
	}
}

func TestCompileIfElse(t *testing.T) {
	c := compileSrc(t, `if (1 < 2) { x = 1; } else { x = 2; }`)
	if _, err := c.Compile("test"); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
}

func TestCompileWhileLoop(t *testing.T) {
	c := compileSrc(t, `var i = 0; while (i < 10) { i = i + 1; }`)
	if _, err := c.Compile("test"); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
}

func TestCompileForIn(t *testing.T) {
	c := compileSrc(t, `var t = {}; for (var k in t) { debug(k); }`)
	if _, err := c.Compile("test"); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
}

func TestCompileFunctionLiteral(t *testing.T) {
	c := compileSrc(t, `var add = func(a, b) { return a + b; }; debug(add(1, 2));`)
	if _, err := c.Compile("test"); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
}

func TestCompileSyntaxErrorReported(t *testing.T) {
	c := compileSrc(t, `var = ;`)
	_, err := c.Compile("test")
	if err == nil {
		t.Fatal("expected a compile error for malformed var declaration")
	}
	if _, ok := err.(*Error); !ok {
		t.Errorf("expected a *compiler.Error, got %T", err)
	}
}

func TestConstantPoolDeduplicatesNumbers(t *testing.T) {
	// Each occurrence of 7 here is its own statement (not combined via an
	// arithmetic operator), so none of them constant-fold into a single
	// different literal the way "7 + 7" would — this isolates interning
	// from folding.
	c := compileSrc(t, `x = 7; y = 7; z = 7;`)
	proto, err := c.Compile("test")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	count := 0
	for _, k := range proto.Consts {
		if k.IsNumber() && k.AsNumber() == 7 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected the literal 7 to be interned once, found %d entries", count)
	}
}
