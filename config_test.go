package symmem_test

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/symmem/symmem"
)

func TestParseConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		c, err := symmem.ParseConfig([]byte(``))
		require.NoError(t, err)
		assert.Equal(t, uint(symmem.DefaultBits), c.Bits)
		assert.Equal(t, symmem.DefaultID, c.ID)
		assert.Equal(t, symmem.DefaultLimit, c.Limit)
		assert.False(t, c.LittleEndian)
		assert.Empty(t, c.Regions)
	})

	t.Run("Full", func(t *testing.T) {
		c, err := symmem.ParseConfig([]byte(`
bits: 32
id: stack
limit: 64
little_endian: true
regions:
  - {start: 0x1000, end: 0x1fff, perm: r-x}
  - {start: 0x8000, end: 0x8fff, perm: rw-}
`))
		require.NoError(t, err)
		assert.Equal(t, uint(32), c.Bits)
		assert.Equal(t, "stack", c.ID)
		assert.Equal(t, 64, c.Limit)
		assert.True(t, c.LittleEndian)

		table, err := c.RegionTable()
		require.NoError(t, err)
		assert.Equal(t, []symmem.Region{
			{Start: 0x1000, End: 0x1FFF, Perm: symmem.PermRead | symmem.PermExec},
			{Start: 0x8000, End: 0x8FFF, Perm: symmem.PermRead | symmem.PermWrite},
		}, table.Regions())
	})

	t.Run("ErrInvalid", func(t *testing.T) {
		for _, tt := range []struct {
			name string
			data string
			err  string
		}{
			{"Bits", "bits: 65", "invalid address width: 65"},
			{"ID", "id: ''", "memory id required"},
			{"Limit", "limit: -1", "invalid enumeration limit: -1"},
			{"Perm", "regions: [{start: 0, end: 1, perm: rwq}]", `invalid permission 'q' in "rwq"`},
			{"RegionWidth", "bits: 16\nregions: [{start: 0, end: 0x10000, perm: r}]", "region [0x0-0x10000] exceeds 16-bit address space"},
			{"Overlap", "regions: [{start: 0, end: 16, perm: r}, {start: 8, end: 32, perm: r}]", "regions overlap: [0x0-0x10 r--] and [0x8-0x20 r--]"},
		} {
			t.Run(tt.name, func(t *testing.T) {
				_, err := symmem.ParseConfig([]byte(tt.data))
				require.Error(t, err)
				assert.Equal(t, tt.err, err.Error())
			})
		}
	})

	t.Run("ErrSyntax", func(t *testing.T) {
		_, err := symmem.ParseConfig([]byte(`bits: [`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config")
	})
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "rom.bin"), []byte{0xDE, 0xAD}, 0666))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "symmem.yaml"), []byte(`
bits: 16
image: rom.bin
image_base: 0x100
regions:
  - {start: 0x100, end: 0x1ff, perm: r-x}
`), 0666))

	c, err := symmem.LoadConfig(filepath.Join(dir, "symmem.yaml"))
	require.NoError(t, err)

	mem, err := c.NewMemory(&symmem.NameAllocator{})
	require.NoError(t, err)
	assert.Equal(t, uint(16), mem.Bits())
	assert.Equal(t, "mem", mem.ID())
	assert.Equal(t, 1, mem.Concretizer().Regions.Len())
	assert.Equal(t, []symmem.Expr{symmem.NewConstantExpr8(0xDE), symmem.NewConstantExpr8(0xAD)}, mem.ReadBytes(0x100, 2))

	t.Run("ErrNotExist", func(t *testing.T) {
		_, err := symmem.LoadConfig(filepath.Join(dir, "missing.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config")
	})

	t.Run("ErrMissingImage", func(t *testing.T) {
		c, err := symmem.ParseConfig([]byte(`image: ` + filepath.Join(dir, "missing.bin")))
		require.NoError(t, err)
		_, err = c.NewMemory(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read image")
	})
}
