package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/symmem/symmem"
	"github.com/symmem/symmem/naive"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// solvers maps a --solver name to a constructor. Backends that need cgo
// register themselves from build-tagged files.
var solvers = map[string]func() symmem.Solver{
	"naive": func() symmem.Solver { return naive.NewSolver() },
}

// newSolver returns the named solver backend.
func newSolver(name string) (symmem.Solver, error) {
	fn := solvers[name]
	if fn == nil {
		return nil, fmt.Errorf("unknown solver: %q (available: %s)", name, strings.Join(solverNames(), ", "))
	}
	return fn(), nil
}

func solverNames() []string {
	a := make([]string, 0, len(solvers))
	for name := range solvers {
		a = append(a, name)
	}
	sort.Strings(a)
	return a
}

// closeSolver releases solvers that hold native resources.
func closeSolver(s symmem.Solver) {
	if c, ok := s.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("close solver")
		}
	}
}

// newRootCommand returns the symmem command tree.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "symmem",
		Short: "Inspect and exercise a branching symbolic memory.",
		Long: `symmem builds a byte-addressable symbolic memory from a YAML
configuration and exposes its address concretization, dumping and
branching behavior on the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if GetFlag(cmd, "verbose") {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "increase logging verbosity")
	root.PersistentFlags().String("config", "", "memory configuration file")

	root.AddCommand(newConcretizeCommand())
	root.AddCommand(newDumpCommand())
	root.AddCommand(newForkCommand())
	return root
}

// loadConfig reads the file named by --config, or returns the defaults.
func loadConfig(cmd *cobra.Command) (*symmem.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	} else if path == "" {
		return symmem.DefaultConfig(), nil
	}

	config, err := symmem.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"path": path, "id": config.ID, "bits": config.Bits}).Debug("configuration loaded")
	return config, nil
}

// GetFlag gets an expected boolean flag, or panics if an error arises.
func GetFlag(cmd *cobra.Command, flag string) bool {
	r, err := cmd.Flags().GetBool(flag)
	if err != nil {
		panic(errors.Wrapf(err, "flag %q", flag))
	}
	return r
}

// GetInt gets an expected int flag, or panics if an error arises.
func GetInt(cmd *cobra.Command, flag string) int {
	r, err := cmd.Flags().GetInt(flag)
	if err != nil {
		panic(errors.Wrapf(err, "flag %q", flag))
	}
	return r
}

// GetUint64 gets an expected uint64 flag, or panics if an error arises.
func GetUint64(cmd *cobra.Command, flag string) uint64 {
	r, err := cmd.Flags().GetUint64(flag)
	if err != nil {
		panic(errors.Wrapf(err, "flag %q", flag))
	}
	return r
}

// GetString gets an expected string flag, or panics if an error arises.
func GetString(cmd *cobra.Command, flag string) string {
	r, err := cmd.Flags().GetString(flag)
	if err != nil {
		panic(errors.Wrapf(err, "flag %q", flag))
	}
	return r
}
