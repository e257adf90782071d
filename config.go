package symmem

import (
	"io/ioutil"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config describes a memory in a YAML file.
//
//	bits: 32
//	id: mem
//	limit: 256
//	image: firmware.bin
//	image_base: 0x1000
//	regions:
//	  - {start: 0x1000, end: 0x1fff, perm: r-x}
//	  - {start: 0x8000, end: 0x8fff, perm: rw-}
type Config struct {
	Bits         uint           `yaml:"bits"`
	ID           string         `yaml:"id"`
	Limit        int            `yaml:"limit"`
	LittleEndian bool           `yaml:"little_endian"`
	Image        string         `yaml:"image"`
	ImageBase    uint64         `yaml:"image_base"`
	Regions      []RegionConfig `yaml:"regions"`

	// Directory used to resolve a relative image path.
	dir string
}

// RegionConfig describes a single region of the address space.
type RegionConfig struct {
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
	Perm  string `yaml:"perm"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Bits:  DefaultBits,
		ID:    DefaultID,
		Limit: DefaultLimit,
	}
}

// ParseConfig parses a YAML configuration. Unset fields keep their defaults.
func ParseConfig(data []byte) (*Config, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "parse config")
	} else if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	c, err := ParseConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	c.dir = filepath.Dir(path)
	return c, nil
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.Bits == 0 || c.Bits > Width64 {
		return errors.Errorf("invalid address width: %d", c.Bits)
	} else if c.ID == "" {
		return errors.New("memory id required")
	} else if c.Limit <= 0 {
		return errors.Errorf("invalid enumeration limit: %d", c.Limit)
	}

	for _, r := range c.Regions {
		if r.End > bitmask(c.Bits) {
			return errors.Errorf("region [%#x-%#x] exceeds %d-bit address space", r.Start, r.End, c.Bits)
		} else if _, err := ParsePerm(r.Perm); err != nil {
			return err
		}
	}
	_, err := c.RegionTable()
	return err
}

// RegionTable returns the configured regions as a table.
func (c *Config) RegionTable() (*RegionTable, error) {
	regions := make([]Region, 0, len(c.Regions))
	for _, r := range c.Regions {
		perm, err := ParsePerm(r.Perm)
		if err != nil {
			return nil, err
		}
		regions = append(regions, Region{Start: r.Start, End: r.End, Perm: perm})
	}
	return NewRegionTable(regions...)
}

// LoadImage returns the configured backing image, or nil if none is set.
func (c *Config) LoadImage() (Image, error) {
	if c.Image == "" {
		return nil, nil
	}

	path := c.Image
	if !filepath.IsAbs(path) && c.dir != "" {
		path = filepath.Join(c.dir, path)
	}
	segment, err := ReadImageFile(path, c.ImageBase)
	if err != nil {
		return nil, err
	}
	return segment, nil
}

// NewMemory returns a memory built from the configuration.
func (c *Config) NewMemory(names *NameAllocator) (*Memory, error) {
	regions, err := c.RegionTable()
	if err != nil {
		return nil, err
	}
	image, err := c.LoadImage()
	if err != nil {
		return nil, err
	}

	return NewMemory(MemoryOptions{
		ID:           c.ID,
		Bits:         c.Bits,
		Limit:        c.Limit,
		LittleEndian: c.LittleEndian,
		Image:        image,
		Regions:      regions,
		Names:        names,
	}), nil
}
