package z3

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/symmem/symmem"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdint.h>
#include <stdlib.h>
*/
import "C"

// Ensure solver implements interface.
var (
	_ symmem.Solver     = (*Solver)(nil)
	_ symmem.Enumerator = (*Solver)(nil)
)

// Solver represents a solver that uses an embedded Z3 solver.
//
// A Z3 context is not safe for concurrent use so calls are serialized.
type Solver struct {
	mu    sync.Mutex
	ctx   *Context
	stats Stats
}

// NewSolver returns a new instance of Solver.
func NewSolver() *Solver {
	return &Solver{
		ctx: NewContext(),
	}
}

// Close deletes the underlying Z3 context.
func (s *Solver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx.Close()
}

// Stats returns statistics for the solver.
func (s *Solver) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Solve returns the satisfiability of constraints and, if satisfiable, a
// model value for each of vars.
func (s *Solver) Solve(constraints []symmem.Expr, vars []*symmem.VarExpr) (satisfiable bool, values []uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := time.Now()
	defer func() {
		s.stats.SolveN++
		s.stats.SolveTime += time.Since(t)
	}()

	solver, err := s.ctx.newSolver(constraints)
	if err != nil {
		return false, nil, err
	}
	defer C.Z3_solver_dec_ref(s.ctx.raw, solver)

	// Exit immediately if unsatisfiable or the solver encountered an error.
	if ok, err := s.ctx.check(solver); err != nil || !ok {
		return false, nil, err
	} else if len(vars) == 0 {
		return true, nil, nil // no symbolics, ignore model
	}

	model := C.Z3_solver_get_model(s.ctx.raw, solver)
	if err := s.ctx.err("Z3_solver_get_model"); err != nil {
		return true, nil, err
	}
	C.Z3_model_inc_ref(s.ctx.raw, model)
	defer C.Z3_model_dec_ref(s.ctx.raw, model)

	values = make([]uint64, len(vars))
	for i, v := range vars {
		if values[i], err = s.ctx.eval(model, v); err != nil {
			return true, nil, err
		}
	}
	return true, values, nil
}

// Enumerate returns up to limit distinct values of expr under constraints in
// ascending order. Each model found is blocked on the same incremental solver.
func (s *Solver) Enumerate(constraints []symmem.Expr, expr symmem.Expr, limit int) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := time.Now()
	defer func() {
		s.stats.EnumerateN++
		s.stats.SolveTime += time.Since(t)
	}()

	solver, err := s.ctx.newSolver(constraints)
	if err != nil {
		return nil, err
	}
	defer C.Z3_solver_dec_ref(s.ctx.raw, solver)

	target, err := s.ctx.toAST(expr)
	if err != nil {
		return nil, err
	}

	var values []uint64
	for len(values) < limit {
		s.stats.SolveN++
		if ok, err := s.ctx.check(solver); err != nil {
			return nil, err
		} else if !ok {
			break
		}

		model := C.Z3_solver_get_model(s.ctx.raw, solver)
		if err := s.ctx.err("Z3_solver_get_model"); err != nil {
			return nil, err
		}
		C.Z3_model_inc_ref(s.ctx.raw, model)
		value, err := s.ctx.evalAST(model, target, symmem.ExprWidth(expr))
		C.Z3_model_dec_ref(s.ctx.raw, model)
		if err != nil {
			return nil, err
		}
		values = append(values, value)

		// Block the value from future models.
		block, err := s.ctx.toAST(symmem.NewBinaryExpr(symmem.NE, expr, symmem.NewConstantExpr(value, symmem.ExprWidth(expr))))
		if err != nil {
			return nil, err
		}
		C.Z3_solver_assert(s.ctx.raw, solver, block)
		if err := s.ctx.err("Z3_solver_assert"); err != nil {
			return nil, err
		}
	}

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values, nil
}

// Context represents a Z3 context object that is used for constructing expressions.
type Context struct {
	raw C.Z3_context
}

// NewContext returns a new instance of Context.
func NewContext() *Context {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	C.Z3_set_ast_print_mode(raw, C.Z3_PRINT_SMTLIB2_COMPLIANT)
	return &Context{raw: raw}
}

// Close deletes the underlying Z3 context.
func (ctx *Context) Close() error {
	C.Z3_del_context(ctx.raw)
	return nil
}

// err returns the error for the last API call. Returns nil if last call was successful.
func (ctx *Context) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

// newSolver returns a referenced solver with constraints asserted.
// The caller must release it with Z3_solver_dec_ref.
func (ctx *Context) newSolver(constraints []symmem.Expr) (C.Z3_solver, error) {
	solver := C.Z3_mk_solver(ctx.raw)
	if err := ctx.err("Z3_mk_solver"); err != nil {
		return nil, err
	}
	C.Z3_solver_inc_ref(ctx.raw, solver)

	for _, constraint := range constraints {
		ast, err := ctx.toAST(constraint)
		if err != nil {
			C.Z3_solver_dec_ref(ctx.raw, solver)
			return nil, err
		}
		C.Z3_solver_assert(ctx.raw, solver, ast)
		if err := ctx.err("Z3_solver_assert"); err != nil {
			C.Z3_solver_dec_ref(ctx.raw, solver)
			return nil, err
		}
	}
	return solver, nil
}

// check runs the solver and maps an undetermined result to a solver error.
func (ctx *Context) check(solver C.Z3_solver) (bool, error) {
	ret := C.Z3_solver_check(ctx.raw, solver)
	if err := ctx.err("Z3_solver_check"); err != nil {
		return false, err
	}

	switch ret {
	case C.Z3_L_TRUE:
		return true, nil
	case C.Z3_L_FALSE:
		return false, nil
	}

	reason := C.GoString(C.Z3_solver_get_reason_unknown(ctx.raw, solver))
	switch {
	case strings.Contains(reason, "timeout"):
		return false, symmem.ErrSolverTimeout
	case strings.Contains(reason, "canceled"):
		return false, symmem.ErrSolverCanceled
	case strings.Contains(reason, "(resource limits reached)"):
		return false, symmem.ErrSolverResourceLimit
	case strings.Contains(reason, "unknown"):
		return false, symmem.ErrSolverUnknown
	default:
		return false, errors.Errorf("z3: %s", reason)
	}
}

// eval returns the model value of a variable. Unconstrained variables are
// completed with an arbitrary value by Z3.
func (ctx *Context) eval(model C.Z3_model, v *symmem.VarExpr) (uint64, error) {
	ast, err := ctx.toVarAST(v)
	if err != nil {
		return 0, err
	}
	return ctx.evalAST(model, ast, v.Width)
}

// evalAST evaluates ast against model and returns it as an integer.
func (ctx *Context) evalAST(model C.Z3_model, ast C.Z3_ast, width uint) (uint64, error) {
	var result C.Z3_ast
	if !C.Z3_model_eval(ctx.raw, model, ast, C.bool(true), &result) {
		return 0, errors.New("z3: model evaluation failed")
	} else if err := ctx.err("Z3_model_eval"); err != nil {
		return 0, err
	}

	if width == symmem.WidthBool {
		switch C.Z3_get_bool_value(ctx.raw, result) {
		case C.Z3_L_TRUE:
			return 1, nil
		case C.Z3_L_FALSE:
			return 0, nil
		default:
			return 0, errors.Errorf("z3: undetermined boolean: %s", ctx.astToString(result))
		}
	}

	var value C.uint64_t
	if !C.Z3_get_numeral_uint64(ctx.raw, result, &value) {
		return 0, errors.Errorf("z3: not a numeral: %s", ctx.astToString(result))
	}
	return uint64(value), ctx.err("Z3_get_numeral_uint64")
}

// toAST returns a new instance of Z3_ast from an expression. Width 1
// expressions are represented with the boolean sort.
func (ctx *Context) toAST(expr symmem.Expr) (C.Z3_ast, error) {
	switch expr := expr.(type) {
	case *symmem.ConstantExpr:
		return ctx.toConstantAST(expr)
	case *symmem.VarExpr:
		return ctx.toVarAST(expr)
	case *symmem.ConcatExpr:
		return ctx.toConcatAST(expr)
	case *symmem.ExtractExpr:
		return ctx.toExtractAST(expr)
	case *symmem.CastExpr:
		return ctx.toCastAST(expr)
	case *symmem.NotExpr:
		return ctx.toNotAST(expr)
	case *symmem.BinaryExpr:
		return ctx.toBinaryAST(expr)
	default:
		return nil, fmt.Errorf("z3.Context.toAST: invalid expression type: %T", expr)
	}
}

func (ctx *Context) toConstantAST(expr *symmem.ConstantExpr) (C.Z3_ast, error) {
	if expr.Width == symmem.WidthBool {
		if expr.IsTrue() {
			return C.Z3_mk_true(ctx.raw), ctx.err("Z3_mk_true")
		}
		return C.Z3_mk_false(ctx.raw), ctx.err("Z3_mk_false")
	}
	return ctx.makeUint64(expr.Width, expr.Value)
}

func (ctx *Context) toVarAST(expr *symmem.VarExpr) (C.Z3_ast, error) {
	var t C.Z3_sort
	if expr.Width == symmem.WidthBool {
		t = C.Z3_mk_bool_sort(ctx.raw)
	} else {
		t = C.Z3_mk_bv_sort(ctx.raw, C.uint(expr.Width))
	}
	if err := ctx.err("Z3_mk_sort"); err != nil {
		return nil, err
	}

	cname := C.CString(expr.Name)
	defer C.free(unsafe.Pointer(cname))
	symbol := C.Z3_mk_string_symbol(ctx.raw, cname)

	return C.Z3_mk_const(ctx.raw, symbol, t), ctx.err("Z3_mk_const")
}

func (ctx *Context) toConcatAST(expr *symmem.ConcatExpr) (C.Z3_ast, error) {
	msb, err := ctx.toBVAST(expr.MSB)
	if err != nil {
		return nil, err
	}
	lsb, err := ctx.toBVAST(expr.LSB)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_concat(ctx.raw, msb, lsb), ctx.err("Z3_mk_concat")
}

func (ctx *Context) toExtractAST(expr *symmem.ExtractExpr) (C.Z3_ast, error) {
	src, err := ctx.toBVAST(expr.Expr)
	if err != nil {
		return nil, err
	}

	hi, lo := C.uint(expr.Offset+expr.Width-1), C.uint(expr.Offset)
	ast := C.Z3_mk_extract(ctx.raw, hi, lo, src)
	if err := ctx.err("Z3_mk_extract"); err != nil {
		return nil, err
	} else if expr.Width == symmem.WidthBool {
		return ctx.toBoolAST(ast)
	}
	return ast, nil
}

func (ctx *Context) toCastAST(expr *symmem.CastExpr) (C.Z3_ast, error) {
	src, err := ctx.toBVAST(expr.Src)
	if err != nil {
		return nil, err
	}
	n := expr.Width - symmem.ExprWidth(expr.Src)
	return C.Z3_mk_zero_ext(ctx.raw, C.uint(n), src), ctx.err("Z3_mk_zero_ext")
}

func (ctx *Context) toNotAST(expr *symmem.NotExpr) (C.Z3_ast, error) {
	src, err := ctx.toAST(expr.Expr)
	if err != nil {
		return nil, err
	}

	// If boolean, use boolean NOT operation.
	if symmem.ExprWidth(expr.Expr) == symmem.WidthBool {
		return C.Z3_mk_not(ctx.raw, src), ctx.err("Z3_mk_not")
	}
	return C.Z3_mk_bvnot(ctx.raw, src), ctx.err("Z3_mk_bvnot")
}

func (ctx *Context) toBinaryAST(expr *symmem.BinaryExpr) (C.Z3_ast, error) {
	lhs, err := ctx.toAST(expr.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toAST(expr.RHS)
	if err != nil {
		return nil, err
	}

	// Boolean connectives operate directly on the boolean sort.
	if symmem.ExprWidth(expr.LHS) == symmem.WidthBool {
		args := [2]C.Z3_ast{lhs, rhs}
		switch expr.Op {
		case symmem.AND:
			return C.Z3_mk_and(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_and")
		case symmem.OR:
			return C.Z3_mk_or(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_or")
		case symmem.XOR:
			return C.Z3_mk_xor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_xor")
		case symmem.EQ:
			return C.Z3_mk_iff(ctx.raw, lhs, rhs), ctx.err("Z3_mk_iff")
		case symmem.NE:
			return C.Z3_mk_xor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_xor")
		}

		// Everything else is computed on 1-bit vectors.
		if lhs, err = ctx.boolToBV(lhs); err != nil {
			return nil, err
		} else if rhs, err = ctx.boolToBV(rhs); err != nil {
			return nil, err
		}
	}

	var ast C.Z3_ast
	switch expr.Op {
	case symmem.ADD:
		ast = C.Z3_mk_bvadd(ctx.raw, lhs, rhs)
	case symmem.SUB:
		ast = C.Z3_mk_bvsub(ctx.raw, lhs, rhs)
	case symmem.MUL:
		ast = C.Z3_mk_bvmul(ctx.raw, lhs, rhs)
	case symmem.UDIV:
		ast = C.Z3_mk_bvudiv(ctx.raw, lhs, rhs)
	case symmem.UREM:
		ast = C.Z3_mk_bvurem(ctx.raw, lhs, rhs)
	case symmem.AND:
		ast = C.Z3_mk_bvand(ctx.raw, lhs, rhs)
	case symmem.OR:
		ast = C.Z3_mk_bvor(ctx.raw, lhs, rhs)
	case symmem.XOR:
		ast = C.Z3_mk_bvxor(ctx.raw, lhs, rhs)
	case symmem.SHL:
		ast = C.Z3_mk_bvshl(ctx.raw, lhs, rhs)
	case symmem.LSHR:
		ast = C.Z3_mk_bvlshr(ctx.raw, lhs, rhs)
	case symmem.EQ:
		return C.Z3_mk_eq(ctx.raw, lhs, rhs), ctx.err("Z3_mk_eq")
	case symmem.NE:
		eq := C.Z3_mk_eq(ctx.raw, lhs, rhs)
		return C.Z3_mk_not(ctx.raw, eq), ctx.err("Z3_mk_not")
	case symmem.ULT:
		return C.Z3_mk_bvult(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvult")
	case symmem.ULE:
		return C.Z3_mk_bvule(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvule")
	case symmem.UGT:
		return C.Z3_mk_bvugt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvugt")
	case symmem.UGE:
		return C.Z3_mk_bvuge(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvuge")
	default:
		return nil, fmt.Errorf("z3.Context.toBinaryAST: unexpected operation: %s", expr.Op)
	}
	if err := ctx.err("Z3_mk_" + expr.Op.String()); err != nil {
		return nil, err
	}

	// Arithmetic on booleans is converted back to the boolean sort.
	if symmem.ExprWidth(expr) == symmem.WidthBool {
		return ctx.toBoolAST(ast)
	}
	return ast, nil
}

// toBVAST returns expr as a bit-vector, converting booleans to 1-bit vectors.
func (ctx *Context) toBVAST(expr symmem.Expr) (C.Z3_ast, error) {
	ast, err := ctx.toAST(expr)
	if err != nil {
		return nil, err
	} else if symmem.ExprWidth(expr) == symmem.WidthBool {
		return ctx.boolToBV(ast)
	}
	return ast, nil
}

// boolToBV converts a boolean-sorted ast to a 1-bit vector.
func (ctx *Context) boolToBV(ast C.Z3_ast) (C.Z3_ast, error) {
	one, err := ctx.makeUint64(1, 1)
	if err != nil {
		return nil, err
	}
	zero, err := ctx.makeUint64(1, 0)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_ite(ctx.raw, ast, one, zero), ctx.err("Z3_mk_ite")
}

// toBoolAST converts a 1-bit vector to the boolean sort.
func (ctx *Context) toBoolAST(ast C.Z3_ast) (C.Z3_ast, error) {
	one, err := ctx.makeUint64(1, 1)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_eq(ctx.raw, ast, one), ctx.err("Z3_mk_eq")
}

func (ctx *Context) makeUint64(width uint, value uint64) (C.Z3_ast, error) {
	t := C.Z3_mk_bv_sort(ctx.raw, C.uint(width))
	if err := ctx.err("Z3_mk_bv_sort"); err != nil {
		return nil, err
	}
	return C.Z3_mk_unsigned_int64(ctx.raw, C.uint64_t(value), t), ctx.err("Z3_mk_unsigned_int64")
}

func (ctx *Context) astToString(ast C.Z3_ast) string {
	return C.GoString(C.Z3_ast_to_string(ctx.raw, ast))
}

// Error represents an error from the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}

// Possible error codes.
const (
	ErrorCodeOK = iota
	ErrorCodeSortError
	ErrorCodeIOB
	ErrorCodeInvalidArg
	ErrorCodeParserError
	ErrorCodeNoParser
	ErrorCodeInvalidPattern
	ErrorCodeMemoutFail
	ErrorCodeFileAccessError
	ErrorCodeInternalFatal
	ErrorCodeInvalidUsage
	ErrorCodeDecRefError
	ErrorCodeException
)

// Stats holds counters for solver usage.
type Stats struct {
	SolveN     int
	EnumerateN int
	SolveTime  time.Duration
}
