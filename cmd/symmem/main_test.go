package main

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/symmem/symmem"
)

// execute runs the command tree with args and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&buf)
	cmd.SetErr(ioutil.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeConfig writes a configuration and a two byte image into a temporary directory.
func writeConfig(t *testing.T, data string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "rom.bin"), []byte{0xDE, 0xAD}, 0666))
	path := filepath.Join(dir, "symmem.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(data), 0666))
	return path
}

func TestConcretizeCommand(t *testing.T) {
	t.Run("Symbolic", func(t *testing.T) {
		out, err := execute(t, "concretize", "--lo", "16", "--hi", "19")
		require.NoError(t, err)
		assert.Equal(t, "0x10\n0x11\n0x12\n0x13\n", out)
	})

	t.Run("Unique", func(t *testing.T) {
		out, err := execute(t, "concretize", "--lo", "0x40", "--hi", "0x40", "--strategies", "")
		require.NoError(t, err)
		assert.Equal(t, "0x40\n", out)
	})

	t.Run("Any", func(t *testing.T) {
		out, err := execute(t, "concretize", "--lo", "0", "--hi", "0x100", "--limit", "4")
		require.NoError(t, err)
		assert.Regexp(t, `^0x[0-9a-f]+\n$`, out)
	})

	t.Run("Writeable", func(t *testing.T) {
		path := writeConfig(t, `
bits: 16
regions:
  - {start: 0x0000, end: 0x0fff, perm: r-x}
  - {start: 0x4000, end: 0x4fff, perm: rw-}
`)
		out, err := execute(t, "--config", path, "concretize", "--lo", "0x3000", "--hi", "0x5000", "--strategies", "writeable")
		require.NoError(t, err)
		assert.Equal(t, "0x4000\n", out)
	})

	t.Run("ErrUnresolvableAddress", func(t *testing.T) {
		_, err := execute(t, "concretize", "--lo", "0", "--hi", "5000", "--strategies", "symbolic")
		require.Error(t, err)
		assert.True(t, errors.Is(err, symmem.ErrUnresolvableAddress), "unexpected error: %v", err)

		var e *symmem.AddressError
		require.True(t, errors.As(err, &e))
		assert.Equal(t, "concretize", e.Op)
	})

	t.Run("ErrRange", func(t *testing.T) {
		_, err := execute(t, "concretize", "--lo", "8", "--hi", "4")
		assert.EqualError(t, err, "invalid range: 0x8-0x4")
	})

	t.Run("ErrAddressSpace", func(t *testing.T) {
		path := writeConfig(t, "bits: 16\n")
		_, err := execute(t, "--config", path, "concretize", "--hi", "0x10000")
		assert.EqualError(t, err, "address 0x10000 exceeds 16-bit address space")
	})

	t.Run("ErrStrategy", func(t *testing.T) {
		_, err := execute(t, "concretize", "--strategies", "bogus")
		assert.EqualError(t, err, `unknown concretization strategy: "bogus"`)
	})

	t.Run("ErrSolver", func(t *testing.T) {
		_, err := execute(t, "concretize", "--solver", "bogus")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown solver: "bogus"`)
	})
}

func TestDumpCommand(t *testing.T) {
	path := writeConfig(t, `
bits: 16
id: rom
image: rom.bin
image_base: 0x100
`)

	t.Run("Image", func(t *testing.T) {
		out, err := execute(t, "--config", path, "dump", "--addr", "0x100", "--size", "3")
		require.NoError(t, err)
		assert.Equal(t, "id=rom bits=16 cells=3\n"+
			"0000000000000100 (const 222 8)\n"+
			"0000000000000101 (const 173 8)\n"+
			"0000000000000102 (var rom_0 8)\n", out)
	})

	t.Run("Empty", func(t *testing.T) {
		out, err := execute(t, "dump")
		require.NoError(t, err)
		assert.Equal(t, "id=mem bits=64 cells=0\n", out)
	})

	t.Run("Raw", func(t *testing.T) {
		out, err := execute(t, "--config", path, "dump", "--addr", "0x100", "--size", "1", "--raw")
		require.NoError(t, err)
		assert.Contains(t, out, "*symmem.ConstantExpr")
		assert.Contains(t, out, "(const 222 8)")
	})

	t.Run("ErrConfig", func(t *testing.T) {
		_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "dump")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config")
	})
}

func TestForkCommand(t *testing.T) {
	path := writeConfig(t, "bits: 16\n")

	out, err := execute(t, "--config", path, "fork", "--n", "3", "--addr", "0x20")
	require.NoError(t, err)
	assert.Equal(t, "branch 0: (const 0 8)\n"+
		"branch 1: (const 1 8)\n"+
		"branch 2: (const 2 8)\n"+
		"base: (var mem_0 8)\n", out)

	t.Run("ErrCount", func(t *testing.T) {
		_, err := execute(t, "fork", "--n", "0")
		assert.EqualError(t, err, "invalid branch count: 0")
	})
}
