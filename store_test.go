package symmem_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/symmem/symmem"
)

func TestStore_Read(t *testing.T) {
	t.Run("Fresh", func(t *testing.T) {
		s := symmem.NewStore("mem", nil, &symmem.NameAllocator{})

		a, b := s.Read(0x10), s.Read(0x11)
		if diff := cmp.Diff(a, symmem.Expr(symmem.NewVarExpr("mem_0", 8))); diff != "" {
			t.Fatal(diff)
		} else if diff := cmp.Diff(b, symmem.Expr(symmem.NewVarExpr("mem_1", 8))); diff != "" {
			t.Fatal(diff)
		}
	})

	// Repeated reads of an untouched address must return the identical cell.
	t.Run("Identity", func(t *testing.T) {
		s := symmem.NewStore("mem", nil, &symmem.NameAllocator{})
		if a, b := s.Read(0x10), s.Read(0x10); a != b {
			t.Fatalf("expected identical cells: %s != %s", a, b)
		} else if n := s.Len(); n != 1 {
			t.Fatalf("unexpected len: %d", n)
		}
	})

	t.Run("Image", func(t *testing.T) {
		s := symmem.NewStore("mem", symmem.ImageMap{0x10: 0xAB}, &symmem.NameAllocator{})
		if diff := cmp.Diff(s.Read(0x10), symmem.Expr(symmem.NewConstantExpr8(0xAB))); diff != "" {
			t.Fatal(diff)
		} else if _, ok := s.Read(0x11).(*symmem.VarExpr); !ok {
			t.Fatal("expected fresh variable outside of image")
		}
	})
}

func TestStore_Write(t *testing.T) {
	s := symmem.NewStore("mem", nil, &symmem.NameAllocator{})
	s.Write(0x10, symmem.NewConstantExpr8(0x42))
	if diff := cmp.Diff(s.Read(0x10), symmem.Expr(symmem.NewConstantExpr8(0x42))); diff != "" {
		t.Fatal(diff)
	}

	t.Run("ErrInvalidWidth", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic")
			}
		}()
		s.Write(0x10, symmem.NewConstantExpr(0x4242, 16))
	})
}

func TestStore_Branch(t *testing.T) {
	parent := symmem.NewStore("mem", nil, &symmem.NameAllocator{})
	parent.Write(0x10, symmem.NewConstantExpr8(1))
	x := parent.Read(0x20)

	child := parent.Branch()
	child.Write(0x10, symmem.NewConstantExpr8(2))
	parent.Write(0x11, symmem.NewConstantExpr8(3))

	// Existing cells are shared, including materialized variables.
	if y := child.Read(0x20); y != x {
		t.Fatalf("expected shared cell: %s != %s", y, x)
	}

	// Writes after the branch are not visible across generations.
	if diff := cmp.Diff(parent.Read(0x10), symmem.Expr(symmem.NewConstantExpr8(1))); diff != "" {
		t.Fatal(diff)
	} else if diff := cmp.Diff(child.Read(0x10), symmem.Expr(symmem.NewConstantExpr8(2))); diff != "" {
		t.Fatal(diff)
	} else if _, ok := child.Read(0x11).(*symmem.VarExpr); !ok {
		t.Fatal("expected fresh variable in child")
	}

	// Materialization in one generation does not leak into the other.
	z := child.Read(0x30)
	if w := parent.Read(0x30); w == z {
		t.Fatal("expected independent materialization")
	}
}

func TestStore_Cells(t *testing.T) {
	s := symmem.NewStore("mem", nil, &symmem.NameAllocator{})
	s.Write(0x30, symmem.NewConstantExpr8(3))
	s.Write(0x10, symmem.NewConstantExpr8(1))
	s.Write(0x20, symmem.NewConstantExpr8(2))

	var addrs []uint64
	s.Cells(func(addr uint64, cell symmem.Expr) bool {
		addrs = append(addrs, addr)
		return addr < 0x20
	})
	if diff := cmp.Diff(addrs, []uint64{0x10, 0x20}); diff != "" {
		t.Fatal(diff)
	}
}
