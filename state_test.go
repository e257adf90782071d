package symmem_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/symmem/symmem"
	"github.com/symmem/symmem/naive"
)

func TestState_LoadStore(t *testing.T) {
	state := symmem.NewState(naive.NewSolver(), NewMemory(symmem.MemoryOptions{}))

	addr := symmem.NewVarExpr("addr", 16)
	state.AddConstraint(symmem.NewBinaryExpr(symmem.EQ, addr, symmem.NewConstantExpr(0x40, 16)))

	if err := state.Store(addr, symmem.NewConstantExpr(0xBEEF, 16)); err != nil {
		t.Fatal(err)
	}
	value, err := state.Load(symmem.NewBinaryExpr(symmem.ADD, addr, symmem.NewConstantExpr(1, 16)), 8)
	if err != nil {
		t.Fatal(err)
	} else if diff := cmp.Diff(value, symmem.Expr(symmem.NewConstantExpr8(0xEF))); diff != "" {
		t.Fatal(diff)
	}

	if ok, err := state.Feasible(); err != nil {
		t.Fatal(err)
	} else if !ok {
		t.Fatal("expected feasible")
	}
}

func TestState_Fork(t *testing.T) {
	parent := symmem.NewState(naive.NewSolver(), NewMemory(symmem.MemoryOptions{}))
	x := symmem.NewVarExpr("x", 8)
	if err := parent.Store(symmem.NewConstantExpr(0x10, 16), x); err != nil {
		t.Fatal(err)
	}

	lt := parent.Fork(symmem.NewBinaryExpr(symmem.ULT, x, symmem.NewConstantExpr(0x80, 8)))
	ge := parent.Fork(symmem.NewBinaryExpr(symmem.UGE, x, symmem.NewConstantExpr(0x80, 8)))
	if lt.Parent() != parent || ge.Parent() != parent {
		t.Fatal("unexpected parent")
	} else if len(parent.Children()) != 2 {
		t.Fatalf("unexpected children: %d", len(parent.Children()))
	} else if lt.ID() == ge.ID() || lt.ID() == parent.ID() {
		t.Fatal("expected unique state ids")
	} else if len(parent.Constraints()) != 0 {
		t.Fatalf("unexpected parent constraints: %v", parent.Constraints())
	}

	// Writes in one child are not visible to the other or to the parent.
	if err := lt.Store(symmem.NewConstantExpr(0x10, 16), symmem.NewConstantExpr8(0)); err != nil {
		t.Fatal(err)
	}
	if value, err := ge.Load(symmem.NewConstantExpr(0x10, 16), 8); err != nil {
		t.Fatal(err)
	} else if value != symmem.Expr(x) {
		t.Fatalf("unexpected value: %s", value)
	} else if value, err := parent.Load(symmem.NewConstantExpr(0x10, 16), 8); err != nil {
		t.Fatal(err)
	} else if value != symmem.Expr(x) {
		t.Fatalf("unexpected value: %s", value)
	}

	t.Run("Model", func(t *testing.T) {
		vars, values, err := ge.Model()
		if err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(vars, []*symmem.VarExpr{x}); diff != "" {
			t.Fatal(diff)
		} else if values[0] < 0x80 {
			t.Fatalf("unexpected value: %#x", values[0])
		}
	})

	t.Run("Infeasible", func(t *testing.T) {
		child := lt.Fork(symmem.NewBinaryExpr(symmem.UGT, x, symmem.NewConstantExpr(0xF0, 8)))
		if ok, err := child.Feasible(); err != nil {
			t.Fatal(err)
		} else if ok {
			t.Fatal("expected infeasible")
		} else if _, _, err := child.Model(); err != symmem.ErrUnsat {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestState_AddConstraint(t *testing.T) {
	state := symmem.NewState(nil, NewMemory(symmem.MemoryOptions{}))
	a := symmem.NewBinaryExpr(symmem.EQ, symmem.NewVarExpr("a", 8), symmem.NewConstantExpr(1, 8))
	b := symmem.NewBinaryExpr(symmem.EQ, symmem.NewVarExpr("b", 8), symmem.NewConstantExpr(2, 8))

	state.AddConstraint(symmem.NewBoolConstantExpr(true))
	state.AddConstraint(symmem.NewAndExpr(a, b))
	if diff := cmp.Diff(state.Constraints(), []symmem.Expr{a, b}); diff != "" {
		t.Fatal(diff)
	}

	t.Run("ErrFalse", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic")
			}
		}()
		state.AddConstraint(symmem.NewBoolConstantExpr(false))
	})
}

func TestState_Dump(t *testing.T) {
	state := symmem.NewState(nil, NewMemory(symmem.MemoryOptions{}))
	state.Memory().WriteBytes(0x10, []byte{1})
	state.AddConstraint(symmem.NewBinaryExpr(symmem.EQ, symmem.NewVarExpr("a", 8), symmem.NewConstantExpr(1, 8)))

	s := state.Dump()
	if !strings.Contains(s, "== MEMORY\nid=mem bits=16 cells=1\n") {
		t.Fatalf("unexpected dump:\n%s", s)
	} else if !strings.Contains(s, "0. (eq (const 1 8) (var a 8))\n") {
		t.Fatalf("unexpected dump:\n%s", s)
	}
}
