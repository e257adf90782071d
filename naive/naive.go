// Package naive implements a pure Go constraint solver that searches variable
// assignments exhaustively. It is intended for tests and for small address
// spaces where linking against Z3 is not possible.
package naive

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/symmem/symmem"
)

// Ensure type implements interface.
var (
	_ symmem.Solver     = (*Solver)(nil)
	_ symmem.Enumerator = (*Solver)(nil)
)

// DefaultMaxAssignments is the default search budget of a Solver.
const DefaultMaxAssignments = 1 << 22

// MaxFreeWidth is the widest variable searched over its full range when no
// explicit bound has been set.
const MaxFreeWidth = 16

// Solver is a backtracking solver over bounded variable domains.
//
// Constraints are evaluated under partial assignments so that a branch is
// pruned as soon as any constraint is known to be false. Variables wider than
// MaxFreeWidth must be given a domain with Bound() before the solver branches
// on them, otherwise ErrSolverResourceLimit is returned.
//
// Bound must not be called concurrently with Solve or Enumerate.
type Solver struct {
	bounds map[string]bound

	// Maximum number of assignments tried per call.
	MaxAssignments int
}

type bound struct {
	lo, hi uint64
}

// NewSolver returns a new instance of Solver.
func NewSolver() *Solver {
	return &Solver{
		bounds:         make(map[string]bound),
		MaxAssignments: DefaultMaxAssignments,
	}
}

// Bound restricts the variable with the given name to the inclusive range [lo, hi].
func (s *Solver) Bound(name string, lo, hi uint64) {
	if hi < lo {
		lo, hi = hi, lo
	}
	s.bounds[name] = bound{lo: lo, hi: hi}
}

// Solve returns the satisfiability of constraints and, if satisfiable, a
// value for each of vars. Variables that are left unconstrained take the low
// end of their domain.
func (s *Solver) Solve(constraints []symmem.Expr, vars []*symmem.VarExpr) (satisfiable bool, values []uint64, err error) {
	a := make(assignment)
	st := s.newSearch(constraints)
	if ok, err := st.search(constraints, a); err != nil {
		return false, nil, err
	} else if !ok {
		return false, nil, nil
	}

	values = make([]uint64, len(vars))
	for i, v := range vars {
		if value, ok := a[v.Name]; ok {
			values[i] = value
		} else {
			values[i] = s.domain(v).lo
		}
	}
	return true, values, nil
}

// Enumerate returns up to limit distinct values of expr under constraints in
// ascending order. Implements symmem.Enumerator.
func (s *Solver) Enumerate(constraints []symmem.Expr, expr symmem.Expr, limit int) ([]uint64, error) {
	if limit <= 0 {
		return nil, nil
	}

	st := s.newSearch(append([]symmem.Expr{expr}, constraints...))
	seen := make(map[uint64]struct{})
	var values []uint64

	projected := s.order(symmem.FindVars(expr))
	err := st.project(constraints, projected, assignment{}, func(a assignment) (bool, error) {
		value, ok := eval(expr, a)
		assert(ok, "projected expression not evaluable: %s", expr)
		if _, ok := seen[value.Value]; ok {
			return true, nil
		}

		// Verify the remaining variables can satisfy the constraints.
		if ok, err := st.search(constraints, a.clone()); err != nil {
			return false, err
		} else if !ok {
			return true, nil
		}

		seen[value.Value] = struct{}{}
		values = append(values, value.Value)
		return len(values) < limit, nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values, nil
}

// domain returns the range of values searched for v.
func (s *Solver) domain(v *symmem.VarExpr) bound {
	if b, ok := s.bounds[v.Name]; ok {
		return b
	}
	return bound{lo: 0, hi: bitmask(v.Width)}
}

// isSearchable returns true if v has a bounded domain.
func (s *Solver) isSearchable(v *symmem.VarExpr) bool {
	_, ok := s.bounds[v.Name]
	return ok || v.Width <= MaxFreeWidth
}

// order sorts vars so that explicitly bounded and narrow variables are
// branched on first.
func (s *Solver) order(vars []*symmem.VarExpr) []*symmem.VarExpr {
	a := make([]*symmem.VarExpr, len(vars))
	copy(a, vars)
	sort.SliceStable(a, func(i, j int) bool {
		_, bi := s.bounds[a[i].Name]
		_, bj := s.bounds[a[j].Name]
		if bi != bj {
			return bi
		}
		di, dj := s.domain(a[i]), s.domain(a[j])
		return di.hi-di.lo < dj.hi-dj.lo
	})
	return a
}

func (s *Solver) newSearch(exprs []symmem.Expr) *search {
	max := s.MaxAssignments
	if max <= 0 {
		max = DefaultMaxAssignments
	}
	return &search{
		solver: s,
		vars:   s.order(symmem.FindVars(exprs...)),
		max:    max,
	}
}

// search holds the state of a single Solve or Enumerate call.
type search struct {
	solver *Solver
	vars   []*symmem.VarExpr
	steps  int
	max    int
}

// search extends a until every constraint evaluates to true. On success, a
// holds the satisfying (possibly partial) assignment.
func (st *search) search(constraints []symmem.Expr, a assignment) (bool, error) {
	pending, ok := reduce(constraints, a)
	if !ok {
		return false, nil
	} else if len(pending) == 0 {
		return true, nil
	}

	next := st.nextVar(pending, a)
	assert(next != nil, "no unassigned variable for pending constraints")
	if !st.solver.isSearchable(next) {
		return false, errors.Wrapf(symmem.ErrSolverResourceLimit, "unbounded variable: %s", next.Name)
	}

	d := st.solver.domain(next)
	for x := d.lo; ; x++ {
		if st.steps++; st.steps > st.max {
			return false, errors.Wrapf(symmem.ErrSolverResourceLimit, "exceeded %d assignments", st.max)
		}

		a[next.Name] = x
		if ok, err := st.search(pending, a); err != nil {
			return false, err
		} else if ok {
			return true, nil
		}
		if x == d.hi {
			break
		}
	}
	delete(a, next.Name)
	return false, nil
}

// project calls fn for each assignment of vars that does not falsify
// constraints. Iteration stops when fn returns false.
func (st *search) project(constraints []symmem.Expr, vars []*symmem.VarExpr, a assignment, fn func(assignment) (bool, error)) error {
	_, err := st.projectN(constraints, vars, a, fn)
	return err
}

func (st *search) projectN(constraints []symmem.Expr, vars []*symmem.VarExpr, a assignment, fn func(assignment) (bool, error)) (bool, error) {
	pending, ok := reduce(constraints, a)
	if !ok {
		return true, nil
	} else if len(vars) == 0 {
		return fn(a)
	}

	v := vars[0]
	if !st.solver.isSearchable(v) {
		return false, errors.Wrapf(symmem.ErrSolverResourceLimit, "unbounded variable: %s", v.Name)
	}

	d := st.solver.domain(v)
	for x := d.lo; ; x++ {
		if st.steps++; st.steps > st.max {
			return false, errors.Wrapf(symmem.ErrSolverResourceLimit, "exceeded %d assignments", st.max)
		}

		a[v.Name] = x
		if more, err := st.projectN(pending, vars[1:], a, fn); err != nil || !more {
			return more, err
		}
		if x == d.hi {
			break
		}
	}
	delete(a, v.Name)
	return true, nil
}

// nextVar returns the first unassigned variable referenced by constraints.
func (st *search) nextVar(constraints []symmem.Expr, a assignment) *symmem.VarExpr {
	used := make(map[string]struct{})
	for _, v := range symmem.FindVars(constraints...) {
		used[v.Name] = struct{}{}
	}
	for _, v := range st.vars {
		if _, ok := a[v.Name]; ok {
			continue
		} else if _, ok := used[v.Name]; ok {
			return v
		}
	}
	return nil
}

// reduce returns the constraints that cannot be decided under a.
// Returns false if any constraint is known to be false.
func reduce(constraints []symmem.Expr, a assignment) ([]symmem.Expr, bool) {
	var pending []symmem.Expr
	for _, c := range constraints {
		value, ok := eval(c, a)
		if !ok {
			pending = append(pending, c)
		} else if value.IsFalse() {
			return nil, false
		}
	}
	return pending, true
}

// assignment maps variable names to values.
type assignment map[string]uint64

func (a assignment) clone() assignment {
	other := make(assignment, len(a))
	for k, v := range a {
		other[k] = v
	}
	return other
}

// eval evaluates expr under a partial assignment. Returns false if the value
// depends on an unassigned variable. Boolean AND & OR short-circuit.
func eval(expr symmem.Expr, a assignment) (*symmem.ConstantExpr, bool) {
	switch expr := expr.(type) {
	case *symmem.ConstantExpr:
		return expr, true

	case *symmem.VarExpr:
		value, ok := a[expr.Name]
		if !ok {
			return nil, false
		}
		return symmem.NewConstantExpr(value, expr.Width), true

	case *symmem.BinaryExpr:
		lhs, lok := eval(expr.LHS, a)
		if symmem.ExprWidth(expr) == symmem.WidthBool {
			switch expr.Op {
			case symmem.AND:
				if lok && lhs.IsFalse() {
					return lhs, true
				}
			case symmem.OR:
				if lok && lhs.IsTrue() {
					return lhs, true
				}
			}
		}

		rhs, rok := eval(expr.RHS, a)
		if symmem.ExprWidth(expr) == symmem.WidthBool {
			switch expr.Op {
			case symmem.AND:
				if rok && rhs.IsFalse() {
					return rhs, true
				}
			case symmem.OR:
				if rok && rhs.IsTrue() {
					return rhs, true
				}
			}
		}

		if !lok || !rok {
			return nil, false
		}
		return symmem.NewBinaryExpr(expr.Op, lhs, rhs).(*symmem.ConstantExpr), true

	case *symmem.CastExpr:
		src, ok := eval(expr.Src, a)
		if !ok {
			return nil, false
		}
		return src.ZExt(expr.Width), true

	case *symmem.ConcatExpr:
		msb, ok := eval(expr.MSB, a)
		if !ok {
			return nil, false
		}
		lsb, ok := eval(expr.LSB, a)
		if !ok {
			return nil, false
		}
		return msb.Concat(lsb), true

	case *symmem.ExtractExpr:
		src, ok := eval(expr.Expr, a)
		if !ok {
			return nil, false
		}
		return src.Extract(expr.Offset, expr.Width), true

	case *symmem.NotExpr:
		src, ok := eval(expr.Expr, a)
		if !ok {
			return nil, false
		}
		return src.Not(), true

	default:
		panic(errors.Errorf("naive: unexpected expression type: %T", expr))
	}
}

func bitmask(width uint) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(errors.Errorf("assert: "+format, args...))
	}
}
