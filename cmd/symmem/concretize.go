package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/symmem/symmem"
)

// bounder is implemented by solvers that accept explicit variable domains.
type bounder interface {
	Bound(name string, lo, hi uint64)
}

func newConcretizeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "concretize",
		Short: "concretize a symbolic address bounded to a range.",
		Long: `Concretize a fresh address variable constrained to [lo, hi] using
the given strategies and print the resulting addresses, one per line.`,
		Args: cobra.NoArgs,
		RunE: runConcretize,
	}
	cmd.Flags().Uint64("lo", 0, "lowest address")
	cmd.Flags().Uint64("hi", 0, "highest address")
	cmd.Flags().String("strategies", "symbolic,any", "comma-separated concretization strategies")
	cmd.Flags().Int("limit", 0, "enumeration limit (defaults to the configured limit)")
	cmd.Flags().String("solver", "naive", "solver backend")
	return cmd
}

func runConcretize(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	lo, hi := GetUint64(cmd, "lo"), GetUint64(cmd, "hi")
	if hi < lo {
		return fmt.Errorf("invalid range: %#x-%#x", lo, hi)
	} else if config.Bits < symmem.Width64 && hi >= 1<<config.Bits {
		return fmt.Errorf("address %#x exceeds %d-bit address space", hi, config.Bits)
	}

	strategies, err := symmem.ParseStrategies(GetString(cmd, "strategies"))
	if err != nil {
		return err
	}

	solver, err := newSolver(GetString(cmd, "solver"))
	if err != nil {
		return err
	}
	defer closeSolver(solver)

	c := symmem.NewConcretizer()
	if c.Regions, err = config.RegionTable(); err != nil {
		return err
	}
	c.Limit = config.Limit
	if limit := GetInt(cmd, "limit"); limit > 0 {
		c.Limit = limit
	}

	addr := symmem.NewVarExpr("addr", config.Bits)
	if b, ok := solver.(bounder); ok {
		b.Bound(addr.Name, lo, hi)
	}
	v := symmem.NewValue(solver, []symmem.Expr{
		symmem.NewBinaryExpr(symmem.UGE, addr, symmem.NewConstantExpr(lo, config.Bits)),
		symmem.NewBinaryExpr(symmem.ULE, addr, symmem.NewConstantExpr(hi, config.Bits)),
	}, addr)

	log.WithFields(log.Fields{"lo": lo, "hi": hi, "strategies": strategies}).Debug("concretizing")
	addrs, err := c.Concretize(v, strategies)
	if err != nil {
		return &symmem.AddressError{Op: "concretize", Addr: addr, Err: err}
	}

	w := cmd.OutOrStdout()
	for _, a := range addrs {
		fmt.Fprintf(w, "%#x\n", a)
	}
	return nil
}
