package bytecode

import "testing"

func TestEncodeDecodeABC(t *testing.T) {
	instr := EncodeABC(OPADD, 3, -5, 200)
	if instr.Op() != OPADD {
		t.Fatalf("Op() = %v, want OPADD", instr.Op())
	}
	if instr.A() != 3 {
		t.Fatalf("A() = %d, want 3", instr.A())
	}
	if instr.B() != -5 {
		t.Fatalf("B() = %d, want -5", instr.B())
	}
	if instr.C() != 200 {
		t.Fatalf("C() = %d, want 200", instr.C())
	}
}

func TestEncodeDecodeABx(t *testing.T) {
	instr := EncodeABx(OPGETGLOB, 1, -131072)
	if instr.Op() != OPGETGLOB {
		t.Fatalf("Op() = %v, want OPGETGLOB", instr.Op())
	}
	if instr.A() != 1 {
		t.Fatalf("A() = %d, want 1", instr.A())
	}
	if instr.Bx() != -131072 {
		t.Fatalf("Bx() = %d, want -131072", instr.Bx())
	}
}

func TestEncodeDecodeBx(t *testing.T) {
	instr := EncodeBx(OPJUMP, -12345)
	if instr.Op() != OPJUMP {
		t.Fatalf("Op() = %v, want OPJUMP", instr.Op())
	}
	if instr.BxJump() != -12345 {
		t.Fatalf("BxJump() = %d, want -12345", instr.BxJump())
	}
}

func TestConstBias(t *testing.T) {
	for _, idx := range []int{0, 1, 255} {
		loc := BiasConst(idx)
		if !IsConst(loc) {
			t.Fatalf("BiasConst(%d) = %d, not recognized as a constant", idx, loc)
		}
		if got := ConstIndex(loc); got != idx {
			t.Fatalf("ConstIndex(BiasConst(%d)) = %d", idx, got)
		}
	}
	if IsConst(0) {
		t.Fatalf("register 0 misidentified as a constant")
	}
}

func TestPrototypeRelease(t *testing.T) {
	child := New("child")
	parent := New("parent")
	parent.AddProto(child)
	child.Retain() // simulate a second owner, e.g. a closure value

	parent.Release()
	if child.Refs != 1 {
		t.Fatalf("child.Refs = %d after parent release, want 1", child.Refs)
	}
	child.Release()
	if child.Refs != 0 {
		t.Fatalf("child.Refs = %d after final release, want 0", child.Refs)
	}
}
