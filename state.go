package symmem

import (
	"bytes"
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
)

var stateIDSeq atomic.Int64

// State represents a path under exploration: a memory plus the constraints
// collected along the path.
type State struct {
	id int

	// Execution hierarchy.
	parent   *State
	children []*State

	solver      Solver
	mem         *Memory
	constraints []Expr
}

// NewState returns a root state for mem.
func NewState(solver Solver, mem *Memory) *State {
	return &State{
		id:     int(stateIDSeq.Add(1)),
		solver: solver,
		mem:    mem,
	}
}

// ID returns an autoincrementing ID assigned on creation.
func (s *State) ID() int { return s.id }

// Parent returns the state this state was forked from.
func (s *State) Parent() *State { return s.parent }

// Children returns the states forked from this state.
func (s *State) Children() []*State { return s.children }

// Memory returns the memory owned by the state.
func (s *State) Memory() *Memory { return s.mem }

// Constraints returns the path constraints.
func (s *State) Constraints() []Expr { return s.constraints }

// Value returns expr bound to the current path constraints.
func (s *State) Value(expr Expr) *Value {
	return NewValue(s.solver, s.constraints, expr)
}

// Store writes value to addr and records the resulting constraints.
func (s *State) Store(addr, value Expr) error {
	constraints, err := s.mem.Store(s.Value(addr), value)
	if err != nil {
		return err
	}
	for _, c := range constraints {
		s.AddConstraint(c)
	}
	return nil
}

// Load reads width bits from addr and records the resulting constraints.
func (s *State) Load(addr Expr, width uint) (Expr, error) {
	value, constraints, err := s.mem.Load(s.Value(addr), width)
	if err != nil {
		return nil, err
	}
	for _, c := range constraints {
		s.AddConstraint(c)
	}
	return value, nil
}

// Fork returns a child copy of the state with the additional constraint.
// The child's memory is a branch of the parent's.
func (s *State) Fork(constraint Expr) *State {
	constraints := make([]Expr, len(s.constraints))
	copy(constraints, s.constraints)

	child := &State{
		id:          int(stateIDSeq.Add(1)),
		parent:      s,
		solver:      s.solver,
		mem:         s.mem.Branch(),
		constraints: constraints,
	}
	if constraint != nil {
		child.AddConstraint(constraint)
	}
	s.children = append(s.children, child)
	return child
}

// AddConstraint adds a constraint to the state. Constant true constraints
// are dropped. Panic if expr is a constant false.
func (s *State) AddConstraint(expr Expr) {
	if expr, ok := expr.(*ConstantExpr); ok {
		assert(expr.IsTrue(), "invalid false constraint")
		return
	}
	s.constraints = AddConstraint(s.constraints, expr)
}

// AddConstraint adds expr to constraints and returns the new constraint list.
// If expr is a binary AND expression then its LHS & RHS are split into
// independent constraints.
func AddConstraint(a []Expr, expr Expr) []Expr {
	if expr, ok := expr.(*BinaryExpr); ok && expr.Op == AND && ExprWidth(expr) == WidthBool {
		a = AddConstraint(a, expr.LHS)
		a = AddConstraint(a, expr.RHS)
		return a
	}
	return append(a, expr)
}

// Feasible returns true if the path constraints are satisfiable.
func (s *State) Feasible() (bool, error) {
	return s.Value(NewBoolConstantExpr(true)).IsSatisfiable()
}

// Model computes values for all variables in the path constraints.
func (s *State) Model() ([]*VarExpr, []uint64, error) {
	vars := FindVars(s.constraints...)

	satisfiable, values, err := s.solver.Solve(s.constraints, vars)
	if err != nil {
		return nil, nil, errors.Wrap(err, "solve")
	} else if !satisfiable {
		return nil, nil, ErrUnsat
	}
	return vars, values, nil
}

// Dump returns the contents of the state as a string.
func (s *State) Dump() string {
	var buf bytes.Buffer

	fmt.Fprintln(&buf, "STATE")
	fmt.Fprintln(&buf, "=====")
	fmt.Fprintf(&buf, "id=%d\n", s.id)
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== MEMORY")
	fmt.Fprintln(&buf, s.mem.Dump())

	fmt.Fprintln(&buf, "== CONSTRAINTS")
	for i, expr := range s.constraints {
		fmt.Fprintf(&buf, "%d. %s\n", i, expr.String())
	}
	return buf.String()
}
