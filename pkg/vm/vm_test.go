package vm

import (
	"strings"
	"testing"

	"github.com/cmtristano/koji/pkg/compiler"
	"github.com/cmtristano/koji/pkg/kstring"
	"github.com/cmtristano/koji/pkg/lexer"
	"github.com/cmtristano/koji/pkg/value"
)

// run compiles and executes src against a fresh VM, returning the VM so a
// test can inspect globals afterward.
func run(t *testing.T, src string) (*VM, error) {
	t.Helper()
	m := New()
	lex := lexer.New("test", src)
	c := compiler.New(lex, m.ClassString, m.ClassTable)
	proto, err := c.Compile("test")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return m, m.Run(proto)
}

func globalNumber(t *testing.T, m *VM, name string) float64 {
	t.Helper()
	key := kstring.New(m.ClassString, name).Value()
	v := m.Globals.Get(m, key)
	if !v.IsNumber() {
		t.Fatalf("global %q is not a number: %v", name, v)
	}
	return v.AsNumber()
}

func TestArithmetic(t *testing.T) {
	m, err := run(t, "x = 2 + 3 * 4;")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := globalNumber(t, m, "x"); got != 14 {
		t.Errorf("x = %v, want 14", got)
	}
}

func TestComparisonAndIf(t *testing.T) {
	m, err := run(t, "if (3 < 5) { x = 1; } else { x = 2; }")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := globalNumber(t, m, "x"); got != 1 {
		t.Errorf("x = %v, want 1", got)
	}
}

func TestWhileLoop(t *testing.T) {
	m, err := run(t, "var i = 0; var sum = 0; while (i < 5) { sum = sum + i; i = i + 1; } total = sum;")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := globalNumber(t, m, "total"); got != 10 {
		t.Errorf("total = %v, want 10", got)
	}
}

func TestFunctionCallAndReturn(t *testing.T) {
	m, err := run(t, "var add = func(a, b) { return a + b; }; result = add(3, 4);")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := globalNumber(t, m, "result"); got != 7 {
		t.Errorf("result = %v, want 7", got)
	}
}

func TestTableGetSet(t *testing.T) {
	m, err := run(t, `var t = {}; t["a"] = 10; x = t["a"];`)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := globalNumber(t, m, "x"); got != 10 {
		t.Errorf("x = %v, want 10", got)
	}
}

func TestForInVisitsEveryLiveKey(t *testing.T) {
	m, err := run(t, `
		var t = {};
		t["a"] = 1;
		t["b"] = 2;
		t["c"] = 3;
		var sum = 0;
		for (var k in t) {
			sum = sum + t[k];
		}
		total = sum;
	`)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := globalNumber(t, m, "total"); got != 6 {
		t.Errorf("total = %v, want 6", got)
	}
}

func TestThrowSurfacesAsRuntimeError(t *testing.T) {
	_, err := run(t, `throw "boom";`)
	if err == nil {
		t.Fatal("expected an error from throw")
	}
	if _, ok := err.(*RuntimeError); !ok {
		t.Errorf("error is %T, want *RuntimeError", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error %q does not mention the thrown message", err.Error())
	}
}

func TestUndefinedGlobalReadIsNil(t *testing.T) {
	m, err := run(t, "x = undefinedGlobal;")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	v := m.Globals.Get(m, kstring.New(m.ClassString, "x").Value())
	if !v.IsNil() {
		t.Errorf("x = %v, want nil", v)
	}
}

func TestRegisterFuncCallableFromScript(t *testing.T) {
	m := New()
	var seen float64
	m.RegisterFunc("double", 1, 1, func(m *VM, args []value.Value) value.Value {
		seen = args[0].AsNumber()
		return value.Number(args[0].AsNumber() * 2)
	})

	lex := lexer.New("test", "result = double(21);")
	c := compiler.New(lex, m.ClassString, m.ClassTable)
	proto, err := c.Compile("test")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if err := m.Run(proto); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if seen != 21 {
		t.Errorf("host function saw %v, want 21", seen)
	}
	if got := globalNumber(t, m, "result"); got != 42 {
		t.Errorf("result = %v, want 42", got)
	}
}
