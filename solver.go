package symmem

import (
	"github.com/pkg/errors"
)

// ErrUnsat is returned when a value is requested from unsatisfiable constraints.
var ErrUnsat = errors.New("Unsatisfiable constraints")

// Solver represents a logical constraint solver.
type Solver interface {
	// Returns the satisfiability of the set of constraints. If the formula
	// is satisfiable, a valid value is returned for each variable passed in.
	Solve(constraints []Expr, vars []*VarExpr) (satisfiable bool, values []uint64, err error)
}

// Enumerator is implemented by solvers that can list the distinct values of
// an expression more efficiently than repeated calls to Solve().
type Enumerator interface {
	// Returns up to limit distinct values of expr under the constraints.
	Enumerate(constraints []Expr, expr Expr, limit int) ([]uint64, error)
}

// Value represents an expression bound to a solver and the path constraints
// under which it is evaluated.
type Value struct {
	Expr Expr

	solver      Solver
	constraints []Expr
}

// NewValue returns a new instance of Value.
func NewValue(solver Solver, constraints []Expr, expr Expr) *Value {
	return &Value{
		Expr:        expr,
		solver:      solver,
		constraints: constraints,
	}
}

// Solver returns the solver used to evaluate the value.
func (v *Value) Solver() Solver { return v.solver }

// Constraints returns the constraints the value is evaluated under.
func (v *Value) Constraints() []Expr { return v.constraints }

// Width returns the bit width of the underlying expression.
func (v *Value) Width() uint { return ExprWidth(v.Expr) }

// IsSymbolic returns true if the expression is not a constant.
func (v *Value) IsSymbolic() bool { return !IsConstantExpr(v.Expr) }

// With returns a copy of v evaluated under additional constraints.
func (v *Value) With(constraints ...Expr) *Value {
	other := make([]Expr, 0, len(v.constraints)+len(constraints))
	other = append(other, v.constraints...)
	other = append(other, constraints...)
	return NewValue(v.solver, other, v.Expr)
}

// Map returns a value with the same solver & constraints for a different expression.
func (v *Value) Map(expr Expr) *Value {
	return NewValue(v.solver, v.constraints, expr)
}

// IsSatisfiable returns true if the constraints have at least one solution.
func (v *Value) IsSatisfiable() (bool, error) {
	for _, c := range v.constraints {
		if IsConstantFalse(c) {
			return false, nil
		}
	}
	if v.solver == nil {
		if len(FindVars(v.constraints...)) != 0 {
			return false, errors.New("symbolic constraints require a solver")
		}
		return true, nil
	}

	satisfiable, _, err := v.solver.Solve(v.constraints, nil)
	if err != nil {
		return false, errors.Wrap(err, "solve")
	}
	return satisfiable, nil
}

// Any returns one possible value of the expression.
func (v *Value) Any() (uint64, error) {
	if expr, ok := v.Expr.(*ConstantExpr); ok {
		return expr.Value, nil
	}
	value, ok, err := v.solveValue()
	if err != nil {
		return 0, err
	} else if !ok {
		return 0, ErrUnsat
	}
	return value, nil
}

// IsUnique returns true if the expression can only take a single value.
func (v *Value) IsUnique() (bool, error) {
	if !v.IsSymbolic() {
		return true, nil
	}

	value, err := v.Any()
	if err != nil {
		return false, err
	}
	_, ok, err := v.solveValue(NewBinaryExpr(NE, v.Expr, NewConstantExpr(value, v.Width())))
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Min returns the smallest unsigned value the expression can take.
func (v *Value) Min() (uint64, error) {
	hi, err := v.Any()
	if err != nil || !v.IsSymbolic() {
		return hi, err
	}

	// Binary search down from a known solution, tightening to the model value.
	lo := uint64(0)
	for lo < hi {
		mid := lo + (hi-lo)/2
		value, ok, err := v.solveValue(NewBinaryExpr(ULE, v.Expr, NewConstantExpr(mid, v.Width())))
		if err != nil {
			return 0, err
		} else if ok {
			hi = value
		} else {
			lo = mid + 1
		}
	}
	return lo, nil
}

// Max returns the largest unsigned value the expression can take.
func (v *Value) Max() (uint64, error) {
	lo, err := v.Any()
	if err != nil || !v.IsSymbolic() {
		return lo, err
	}

	hi := bitmask(v.Width())
	for lo < hi {
		mid := lo + (hi-lo)/2 + 1
		value, ok, err := v.solveValue(NewBinaryExpr(UGE, v.Expr, NewConstantExpr(mid, v.Width())))
		if err != nil {
			return 0, err
		} else if ok {
			lo = value
		} else {
			hi = mid - 1
		}
	}
	return hi, nil
}

// AnyN returns up to limit distinct values of the expression.
func (v *Value) AnyN(limit int) ([]uint64, error) {
	if expr, ok := v.Expr.(*ConstantExpr); ok {
		return []uint64{expr.Value}, nil
	} else if limit <= 0 {
		return nil, nil
	}

	if e, ok := v.solver.(Enumerator); ok {
		values, err := e.Enumerate(v.constraints, v.Expr, limit)
		if err != nil {
			return nil, errors.Wrap(err, "enumerate")
		}
		return values, nil
	}

	// Otherwise block each solution until exhausted or the limit is reached.
	var values []uint64
	var extra []Expr
	for len(values) < limit {
		value, ok, err := v.solveValue(extra...)
		if err != nil {
			return nil, err
		} else if !ok {
			break
		}
		values = append(values, value)
		extra = append(extra, NewBinaryExpr(NE, v.Expr, NewConstantExpr(value, v.Width())))
	}
	return values, nil
}

// solveValue returns the value of the expression in a model of the constraints
// plus any extra constraints. Returns false if no model exists.
func (v *Value) solveValue(extra ...Expr) (value uint64, ok bool, err error) {
	if v.solver == nil {
		return 0, false, errors.New("symbolic value requires a solver")
	}

	constraints := make([]Expr, 0, len(v.constraints)+len(extra))
	constraints = append(constraints, v.constraints...)
	constraints = append(constraints, extra...)

	vars := FindVars(append([]Expr{v.Expr}, constraints...)...)
	satisfiable, values, err := v.solver.Solve(constraints, vars)
	if err != nil {
		return 0, false, errors.Wrap(err, "solve")
	} else if !satisfiable {
		return 0, false, nil
	}

	result, err := NewExprEvaluator(vars, values).Evaluate(v.Expr)
	if err != nil {
		return 0, false, err
	}
	return result.Value, true, nil
}
