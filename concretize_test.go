package symmem_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/symmem/symmem"
	"github.com/symmem/symmem/naive"
)

func TestParseStrategies(t *testing.T) {
	if a, err := symmem.ParseStrategies("free, writeable,any"); err != nil {
		t.Fatal(err)
	} else if diff := cmp.Diff(a, symmem.WriteStrategies); diff != "" {
		t.Fatal(diff)
	}

	if a, err := symmem.ParseStrategies(""); err != nil {
		t.Fatal(err)
	} else if len(a) != 0 {
		t.Fatalf("unexpected strategies: %v", a)
	}

	if _, err := symmem.ParseStrategies("symbolic,bogus"); err == nil || err.Error() != `unknown concretization strategy: "bogus"` {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConcretizer_Concretize(t *testing.T) {
	x := symmem.NewVarExpr("addr", 16)

	t.Run("Constant", func(t *testing.T) {
		c := symmem.NewConcretizer()
		if addrs, err := c.Concretize(symmem.NewValue(nil, nil, symmem.NewConstantExpr(0x10, 16)), nil); err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(addrs, []uint64{0x10}); diff != "" {
			t.Fatal(diff)
		}
	})

	// A unique address is returned even when no strategy is given.
	t.Run("Unique", func(t *testing.T) {
		c := symmem.NewConcretizer()
		v := symmem.NewValue(naive.NewSolver(), []symmem.Expr{
			symmem.NewBinaryExpr(symmem.EQ, x, symmem.NewConstantExpr(0x10, 16)),
		}, x)
		if addrs, err := c.Concretize(v, nil); err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(addrs, []uint64{0x10}); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Symbolic", func(t *testing.T) {
		c := symmem.NewConcretizer()
		v := symmem.NewValue(naive.NewSolver(), []symmem.Expr{
			symmem.NewBinaryExpr(symmem.ULT, x, symmem.NewConstantExpr(501, 16)),
		}, x)
		if addrs, err := c.Concretize(v, symmem.ReadStrategies); err != nil {
			t.Fatal(err)
		} else if len(addrs) != 501 {
			t.Fatalf("unexpected address count: %d", len(addrs))
		} else if addrs[0] != 0 || addrs[500] != 500 {
			t.Fatalf("unexpected address range: %d-%d", addrs[0], addrs[500])
		}
	})

	// A range at or over the limit falls through to the next strategy.
	t.Run("SymbolicOverLimit", func(t *testing.T) {
		c := symmem.NewConcretizer()
		v := symmem.NewValue(naive.NewSolver(), []symmem.Expr{
			symmem.NewBinaryExpr(symmem.ULT, x, symmem.NewConstantExpr(2000, 16)),
		}, x)
		if addrs, err := c.Concretize(v, symmem.ReadStrategies); err != nil {
			t.Fatal(err)
		} else if len(addrs) != 1 || addrs[0] >= 2000 {
			t.Fatalf("unexpected addresses: %v", addrs)
		}

		if _, err := c.Concretize(v, []symmem.Strategy{symmem.StrategySymbolic}); err != symmem.ErrUnresolvableAddress {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("Limit", func(t *testing.T) {
		c := &symmem.Concretizer{Limit: 4}
		v := symmem.NewValue(naive.NewSolver(), []symmem.Expr{
			symmem.NewBinaryExpr(symmem.ULE, x, symmem.NewConstantExpr(3, 16)),
		}, x)
		if addrs, err := c.Concretize(v, symmem.ReadStrategies); err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(addrs, []uint64{0, 1, 2, 3}); diff != "" {
			t.Fatal(diff)
		}

		v = v.Map(symmem.NewBinaryExpr(symmem.ADD, x, symmem.NewConstantExpr(1, 16)))
		if addrs, err := c.Concretize(v, symmem.ReadStrategies); err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(addrs, []uint64{1, 2, 3, 4}); diff != "" {
			t.Fatal(diff)
		}

		v = symmem.NewValue(v.Solver(), []symmem.Expr{
			symmem.NewBinaryExpr(symmem.ULE, x, symmem.NewConstantExpr(4, 16)),
		}, x)
		if addrs, err := c.Concretize(v, symmem.ReadStrategies); err != nil {
			t.Fatal(err)
		} else if len(addrs) != 1 {
			t.Fatalf("unexpected addresses: %v", addrs)
		}
	})

	t.Run("Any", func(t *testing.T) {
		c := symmem.NewConcretizer()
		v := symmem.NewValue(naive.NewSolver(), []symmem.Expr{
			symmem.NewBinaryExpr(symmem.UGT, x, symmem.NewConstantExpr(0x100, 16)),
		}, x)
		if addrs, err := c.Concretize(v, []symmem.Strategy{symmem.StrategyAny}); err != nil {
			t.Fatal(err)
		} else if len(addrs) != 1 || addrs[0] <= 0x100 {
			t.Fatalf("unexpected addresses: %v", addrs)
		}
	})

	t.Run("ErrUnsatAddress", func(t *testing.T) {
		c := symmem.NewConcretizer()
		v := symmem.NewValue(naive.NewSolver(), []symmem.Expr{
			symmem.NewBinaryExpr(symmem.ULT, x, symmem.NewConstantExpr(4, 16)),
			symmem.NewBinaryExpr(symmem.UGT, x, symmem.NewConstantExpr(8, 16)),
		}, x)
		if _, err := c.Concretize(v, symmem.ReadStrategies); !errors.Is(err, symmem.ErrUnsatAddress) {
			t.Fatalf("unexpected error: %v", err)
		}

		v = symmem.NewValue(naive.NewSolver(), []symmem.Expr{symmem.NewBoolConstantExpr(false)}, x)
		if _, err := c.Concretize(v, symmem.ReadStrategies); !errors.Is(err, symmem.ErrUnsatAddress) {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("ErrUnresolvableAddress", func(t *testing.T) {
		c := symmem.NewConcretizer()
		v := symmem.NewValue(naive.NewSolver(), nil, x)
		if _, err := c.Concretize(v, nil); err != symmem.ErrUnresolvableAddress {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("ErrSolver", func(t *testing.T) {
		c := symmem.NewConcretizer()
		y := symmem.NewVarExpr("wide", 64)
		v := symmem.NewValue(naive.NewSolver(), []symmem.Expr{
			symmem.NewBinaryExpr(symmem.UGT, y, symmem.NewConstantExpr64(0x100)),
		}, y)
		if _, err := c.Concretize(v, symmem.ReadStrategies); errors.Cause(err) != symmem.ErrSolverResourceLimit {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

// The satisfiability check maps solver errors like every later query.
func TestConcretizer_SolverError(t *testing.T) {
	x := symmem.NewVarExpr("addr", 16)
	c := symmem.NewConcretizer()

	v := symmem.NewValue(&failingSolver{err: errors.Wrap(symmem.ErrUnsat, "check")}, nil, x)
	if _, err := c.Concretize(v, symmem.ReadStrategies); err != symmem.ErrUnsatAddress {
		t.Fatalf("unexpected error: %v", err)
	}

	v = symmem.NewValue(&failingSolver{err: symmem.ErrSolverTimeout}, nil, x)
	if _, err := c.Concretize(v, symmem.ReadStrategies); errors.Cause(err) != symmem.ErrSolverTimeout {
		t.Fatalf("unexpected error: %v", err)
	}
}

// failingSolver returns err from every call.
type failingSolver struct {
	err error
}

func (s *failingSolver) Solve(constraints []symmem.Expr, vars []*symmem.VarExpr) (bool, []uint64, error) {
	return false, nil, s.err
}

func TestConcretizer_Regions(t *testing.T) {
	x := symmem.NewVarExpr("addr", 16)
	regions, err := symmem.NewRegionTable(
		symmem.Region{Start: 0x0000, End: 0x0FFF, Perm: symmem.PermRead | symmem.PermExec},
		symmem.Region{Start: 0x4000, End: 0x4FFF, Perm: symmem.PermRead | symmem.PermWrite},
	)
	if err != nil {
		t.Fatal(err)
	}
	c := &symmem.Concretizer{Limit: symmem.DefaultLimit, Regions: regions}
	v := symmem.NewValue(naive.NewSolver(), nil, x)

	t.Run("Free", func(t *testing.T) {
		if addrs, err := c.Concretize(v, []symmem.Strategy{symmem.StrategyFree}); err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(addrs, []uint64{0x1000}); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Writeable", func(t *testing.T) {
		if addrs, err := c.Concretize(v, []symmem.Strategy{symmem.StrategyWriteable}); err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(addrs, []uint64{0x4000}); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Executable", func(t *testing.T) {
		if addrs, err := c.Concretize(v, []symmem.Strategy{symmem.StrategyExecutable}); err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(addrs, []uint64{0x0000}); diff != "" {
			t.Fatal(diff)
		}
	})

	// Strategies that cannot be satisfied fall through in order.
	t.Run("Fallthrough", func(t *testing.T) {
		v := v.With(symmem.NewBinaryExpr(symmem.UGE, x, symmem.NewConstantExpr(0x4000, 16)))
		v = v.With(symmem.NewBinaryExpr(symmem.ULE, x, symmem.NewConstantExpr(0x4FFF, 16)))
		if addrs, err := c.Concretize(v, symmem.WriteStrategies); err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(addrs, []uint64{0x4000}); diff != "" {
			t.Fatal(diff)
		}
	})

	// Without regions, only the generic strategies apply.
	t.Run("NoRegions", func(t *testing.T) {
		c := symmem.NewConcretizer()
		if _, err := c.Concretize(v, []symmem.Strategy{symmem.StrategyFree, symmem.StrategyWriteable}); err != symmem.ErrUnresolvableAddress {
			t.Fatalf("unexpected error: %v", err)
		} else if addrs, err := c.Concretize(v, symmem.WriteStrategies); err != nil {
			t.Fatal(err)
		} else if len(addrs) != 1 {
			t.Fatalf("unexpected addresses: %v", addrs)
		}
	})
}
