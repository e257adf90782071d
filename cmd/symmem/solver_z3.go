//go:build z3

package main

import (
	"github.com/symmem/symmem"
	"github.com/symmem/symmem/z3"
)

func init() {
	solvers["z3"] = func() symmem.Solver { return z3.NewSolver() }
}
