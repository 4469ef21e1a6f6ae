// End-to-end tests driving koji the way an embedding host would: through
// pkg/koji's Context, not any package-internal API. Each TestScenario*
// case is one of the source -> expected-output pairs a complete run of
// the language is expected to satisfy; the rest exercise the round-trip
// properties alongside them (table laws, string ops, comparison totality)
// as narrower checks against the same surface.
package test

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/cmtristano/koji/pkg/koji"
	"github.com/cmtristano/koji/pkg/stdlib"
)

// captureOutput runs fn with os.Stdout redirected to a pipe and returns
// everything written to it. print/debug both write straight to stdout
// (pkg/vm/vm.go's OPDEBUG, pkg/stdlib's print), so this is the only way
// to observe a program's visible output from outside the package.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	w.Close()
	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func runSource(t *testing.T, src string) string {
	t.Helper()
	return captureOutput(t, func() {
		ctx := koji.Open()
		defer ctx.Close()
		stdlib.Install(ctx)

		proto, err := ctx.LoadString("test", src)
		if err != nil {
			t.Fatalf("compile error: %v", err)
		}
		if err := ctx.Run(proto); err != nil {
			t.Fatalf("runtime error: %v", err)
		}
	})
}

func TestScenario1_ConstantFoldedArithmetic(t *testing.T) {
	out := runSource(t, `var a = 1 + 2 * 3; debug(a);`)
	if strings.TrimSpace(out) != "7" {
		t.Errorf("output = %q, want \"7\"", out)
	}
}

func TestScenario2_StringConcat(t *testing.T) {
	out := runSource(t, `var s = "foo" + "bar"; debug(s);`)
	if strings.TrimSpace(out) != "foobar" {
		t.Errorf("output = %q, want \"foobar\"", out)
	}
}

func TestScenario3_TableFieldAccess(t *testing.T) {
	out := runSource(t, `var t = {}; t.x = 10; t.y = t.x + 5; debug(t.y);`)
	if strings.TrimSpace(out) != "15" {
		t.Errorf("output = %q, want \"15\"", out)
	}
}

func TestScenario4_ShortCircuitAndComparison(t *testing.T) {
	out := runSource(t, `if (1 < 2 && 3 > 2) { debug("ok"); } else { debug("no"); }`)
	if strings.TrimSpace(out) != "ok" {
		t.Errorf("output = %q, want \"ok\"", out)
	}
}

func TestScenario5_WhileLoopPrintsEachIteration(t *testing.T) {
	out := runSource(t, `var i = 0; while (i < 3) { debug(i); i = i + 1; }`)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	want := []string{"0", "1", "2"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines (%v), want %d", len(lines), lines, len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestScenario6_FunctionCallFramePushPop(t *testing.T) {
	out := runSource(t, `var add = func(a, b) { return a + b; }; debug(add(2, 40));`)
	if strings.TrimSpace(out) != "42" {
		t.Errorf("output = %q, want \"42\"", out)
	}
}

func TestTableLawsOverwriteKeepsSize(t *testing.T) {
	out := runSource(t, `
		var t = {};
		t.k = "v1";
		var sizeBefore = len(t);
		t.k = "v2";
		debug(t.k);
		debug(len(t) == sizeBefore);
	`)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || lines[0] != "v2" || lines[1] != "true" {
		t.Errorf("output = %q, want [\"v2\" \"true\"]", lines)
	}
}

func TestStringRepeatAndLen(t *testing.T) {
	out := runSource(t, `
		debug("ab" * 3);
		debug(len("hello"));
	`)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || lines[0] != "ababab" || lines[1] != "5" {
		t.Errorf("output = %q, want [\"ababab\" \"5\"]", lines)
	}
}

func TestComparisonTotality(t *testing.T) {
	out := runSource(t, `
		debug(3 < 5);
		debug(5 < 3);
		debug(3 < 3);
	`)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	want := []string{"true", "false", "false"}
	for i := range want {
		if i >= len(lines) || lines[i] != want[i] {
			t.Fatalf("output = %q, want %v", lines, want)
		}
	}
}

func TestUncaughtThrowSurfacesAsRunError(t *testing.T) {
	ctx := koji.Open()
	defer ctx.Close()
	stdlib.Install(ctx)

	proto, err := ctx.LoadString("test", `throw "something went wrong";`)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if err := ctx.Run(proto); err == nil {
		t.Fatal("expected a runtime error from the uncaught throw")
	} else if !strings.Contains(err.Error(), "something went wrong") {
		t.Errorf("error %q does not mention the thrown message", err.Error())
	}
}

func TestHostRegisteredStaticFunction(t *testing.T) {
	out := captureOutput(t, func() {
		ctx := koji.Open()
		defer ctx.Close()
		stdlib.Install(ctx)

		ctx.StaticFunction("greet", 1, 1, func(ctx *koji.Context) (int, error) {
			ctx.PushStringf("hello, %s", ctx.GetString(0))
			return 1, nil
		})

		proto, err := ctx.LoadString("test", `debug(greet("koji"));`)
		if err != nil {
			t.Fatalf("compile error: %v", err)
		}
		if err := ctx.Run(proto); err != nil {
			t.Fatalf("runtime error: %v", err)
		}
	})
	if strings.TrimSpace(out) != "hello, koji" {
		t.Errorf("output = %q, want \"hello, koji\"", out)
	}
}
