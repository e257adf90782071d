package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/symmem/symmem"
	"golang.org/x/sync/errgroup"
)

func newForkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fork",
		Short: "branch a memory and write to each branch concurrently.",
		Long: `Branch a configured memory n times, store the branch index at addr
in every branch from its own goroutine, then print the byte each
branch and the parent memory observe at addr.`,
		Args: cobra.NoArgs,
		RunE: runFork,
	}
	cmd.Flags().Int("n", 4, "number of branches")
	cmd.Flags().Uint64("addr", 0, "address written in each branch")
	return cmd
}

func runFork(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	n := GetInt(cmd, "n")
	if n <= 0 || n > 256 {
		return fmt.Errorf("invalid branch count: %d", n)
	}

	base, err := config.NewMemory(&symmem.NameAllocator{})
	if err != nil {
		return err
	}
	addr := symmem.NewValue(nil, nil, symmem.NewConstantExpr(GetUint64(cmd, "addr"), config.Bits))

	// Branching only reads the parent so it happens up front; each branch
	// is then owned by a single goroutine.
	branches := make([]*symmem.Memory, n)
	for i := range branches {
		branches[i] = base.Branch()
	}

	views := make([]symmem.Expr, n)
	g, ctx := errgroup.WithContext(cmd.Context())
	for i, mem := range branches {
		i, mem := i, mem
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := mem.Store(addr, symmem.NewConstantExpr8(uint64(i))); err != nil {
				return fmt.Errorf("branch %d: %w", i, err)
			}
			value, _, err := mem.Load(addr, symmem.Width8)
			if err != nil {
				return fmt.Errorf("branch %d: %w", i, err)
			}
			views[i] = value
			log.WithFields(log.Fields{"branch": i, "value": value}).Debug("branch written")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for i, value := range views {
		fmt.Fprintf(w, "branch %d: %s\n", i, value)
	}
	value, _, err := base.Load(addr, symmem.Width8)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "base: %s\n", value)
	return nil
}
