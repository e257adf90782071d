package main

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"github.com/symmem/symmem"
)

func newDumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "print the contents of a configured memory.",
		Long: `Build a memory from the configuration, read size bytes at addr
and print every materialized cell. With --raw the byte expressions
that were read are printed in full instead.`,
		Args: cobra.NoArgs,
		RunE: runDump,
	}
	cmd.Flags().Uint64("addr", 0, "first address to read")
	cmd.Flags().Int("size", 0, "number of bytes to read")
	cmd.Flags().Bool("raw", false, "print the expression structure of each byte read")
	return cmd
}

func runDump(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	size := GetInt(cmd, "size")
	if size < 0 {
		return fmt.Errorf("invalid size: %d", size)
	}

	mem, err := config.NewMemory(&symmem.NameAllocator{})
	if err != nil {
		return err
	}
	cells := mem.ReadBytes(GetUint64(cmd, "addr"), size)

	w := cmd.OutOrStdout()
	if GetFlag(cmd, "raw") {
		fmt.Fprint(w, spew.Sdump(cells))
		return nil
	}
	fmt.Fprint(w, mem.Dump())
	return nil
}
