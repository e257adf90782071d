package symmem

import (
	"fmt"

	"github.com/pkg/errors"
)

// Standard widths.
const (
	WidthBool = 1
	Width8    = 8
	Width16   = 16
	Width32   = 32
	Width64   = 64
)

// Memory defaults.
const (
	DefaultBits  = 64
	DefaultID    = "mem"
	DefaultLimit = 1024
)

var (
	ErrUnsatAddress        = errors.New("Address is unsatisfiable under current constraints")
	ErrUnresolvableAddress = errors.New("Unable to concretize address with the provided strategies")
)

var (
	ErrSolverTimeout       = errors.New("Solver timeout")
	ErrSolverCanceled      = errors.New("Solver canceled")
	ErrSolverResourceLimit = errors.New("Solver resource limit")
	ErrSolverUnknown       = errors.New("Solver unknown error")
)

// AddressError reports the memory operation and address expression that failed.
type AddressError struct {
	Op   string
	Addr Expr
	Err  error
}

// Error returns the error as a string.
func (e *AddressError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying error.
func (e *AddressError) Unwrap() error { return e.Err }

// Cause returns the underlying error. Implements the pkg/errors causer.
func (e *AddressError) Cause() error { return e.Err }

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}
