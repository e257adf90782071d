package symmem

import (
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Memory represents a symbolic, byte-addressable address space owned by a
// single execution state. Use Branch() when the owning state forks.
type Memory struct {
	id           string
	bits         uint
	littleEndian bool

	concretizer *Concretizer
	names       *NameAllocator
	logger      logrus.FieldLogger

	store *Store
}

// MemoryOptions holds construction parameters for a Memory.
// Zero values are replaced by defaults.
type MemoryOptions struct {
	ID           string // variable namespace, defaults to "mem"
	Bits         uint   // address width, defaults to 64
	Limit        int    // symbolic read enumeration limit, defaults to 1024
	LittleEndian bool   // byte order of multi-byte values, defaults to big-endian

	Image   Image          // optional backing image
	Regions *RegionTable   // optional address-space layout
	Names   *NameAllocator // defaults to DefaultNames
	Logger  logrus.FieldLogger
}

// NewMemory returns a new, empty memory.
func NewMemory(opts MemoryOptions) *Memory {
	if opts.ID == "" {
		opts.ID = DefaultID
	}
	if opts.Bits == 0 {
		opts.Bits = DefaultBits
	}
	if opts.Limit == 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Names == nil {
		opts.Names = DefaultNames
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	assert(opts.Bits <= Width64, "invalid address width: %d", opts.Bits)

	return &Memory{
		id:           opts.ID,
		bits:         opts.Bits,
		littleEndian: opts.LittleEndian,
		concretizer: &Concretizer{
			Limit:   opts.Limit,
			Regions: opts.Regions,
			Logger:  opts.Logger,
		},
		names:  opts.Names,
		logger: opts.Logger,
		store:  NewStore(opts.ID, opts.Image, opts.Names),
	}
}

// ID returns the namespace used for fresh variable names.
func (m *Memory) ID() string { return m.id }

// Bits returns the address width.
func (m *Memory) Bits() uint { return m.bits }

// IsLittleEndian returns true if multi-byte values are stored least significant byte first.
func (m *Memory) IsLittleEndian() bool { return m.littleEndian }

// Concretizer returns the concretizer used to resolve addresses.
func (m *Memory) Concretizer() *Concretizer { return m.concretizer }

// Store writes value at the address dst and returns the constraint binding
// dst to the concrete address that was written.
//
// The value width must be a multiple of 8. No bytes are written on error.
func (m *Memory) Store(dst *Value, value Expr) ([]Expr, error) {
	accessesTotal.WithLabelValues("store").Inc()

	width := ExprWidth(value)
	assert(width > 0 && width%8 == 0, "store: invalid value width: %d", width)

	dst = m.addrValue(dst)
	addrs, err := m.concretizer.Concretize(dst, WriteStrategies)
	if err != nil {
		return nil, &AddressError{Op: "store", Addr: dst.Expr, Err: err}
	}

	addr := addrs[0]
	m.write(addr, value)
	return []Expr{NewBinaryExpr(EQ, dst.Expr, m.addrExpr(addr))}, nil
}

// Load reads width bits from the address src.
//
// If src resolves to a single address, the bytes at that address are
// returned with a constraint binding src to it. Otherwise a fresh variable is
// returned with a single disjunctive constraint pairing each candidate
// address with the value read from it.
func (m *Memory) Load(src *Value, width uint) (Expr, []Expr, error) {
	accessesTotal.WithLabelValues("load").Inc()
	assert(width > 0 && width%8 == 0 && width <= Width64, "load: invalid width: %d", width)

	src = m.addrValue(src)
	addrs, err := m.concretizer.Concretize(src, ReadStrategies)
	if err != nil {
		return nil, nil, &AddressError{Op: "load", Addr: src.Expr, Err: err}
	}

	if len(addrs) == 1 {
		return m.read(addrs[0], width/8), []Expr{NewBinaryExpr(EQ, src.Expr, m.addrExpr(addrs[0]))}, nil
	}

	result := NewVarExpr(m.names.NextAddr(m.id), width)
	clauses := make([]Expr, 0, len(addrs))
	for _, addr := range addrs {
		clauses = append(clauses, NewAndExpr(
			NewBinaryExpr(EQ, result, m.read(addr, width/8)),
			NewBinaryExpr(EQ, src.Expr, m.addrExpr(addr)),
		))
	}

	m.logger.WithFields(logrus.Fields{
		"id":         m.id,
		"var":        result.Name,
		"candidates": len(addrs),
	}).Debug("load from multiple addresses")

	return result, []Expr{NewOrExpr(clauses...)}, nil
}

// Branch returns a copy of the memory that shares all existing content but
// whose subsequent writes and concretizer settings are independent of m.
func (m *Memory) Branch() *Memory {
	m.logger.WithFields(logrus.Fields{
		"id":    m.id,
		"bytes": m.store.Len(),
	}).Debug("branching memory")

	concretizer := *m.concretizer
	other := *m
	other.concretizer = &concretizer
	other.store = m.store.Branch()
	return &other
}

// ReadBytes returns the byte cells for n bytes starting at a concrete address.
func (m *Memory) ReadBytes(addr uint64, n int) []Expr {
	a := make([]Expr, n)
	for i := range a {
		a[i] = m.store.Read(m.wrap(addr + uint64(i)))
	}
	return a
}

// WriteBytes writes concrete bytes starting at a concrete address.
func (m *Memory) WriteBytes(addr uint64, data []byte) {
	for i, b := range data {
		m.store.Write(m.wrap(addr+uint64(i)), NewConstantExpr8(uint64(b)))
	}
}

// Dump returns the materialized contents of the memory as a string.
func (m *Memory) Dump() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "id=%s bits=%d cells=%d\n", m.id, m.bits, m.store.Len())
	m.store.Cells(func(addr uint64, cell Expr) bool {
		fmt.Fprintf(&buf, "%016x %s\n", addr, cell)
		return true
	})
	return buf.String()
}

// read concatenates n bytes starting at addr into a single value.
func (m *Memory) read(addr uint64, n uint) Expr {
	var result Expr
	for k := uint(0); k < n; k++ {
		b := m.store.Read(m.wrap(addr + uint64(k)))
		if k == 0 {
			result = b
		} else if m.littleEndian {
			result = NewConcatExpr(b, result)
		} else {
			result = NewConcatExpr(result, b)
		}
	}
	return result
}

// write splits value into bytes and writes them starting at addr.
func (m *Memory) write(addr uint64, value Expr) {
	width := ExprWidth(value)
	for k, n := uint(0), width/8; k < n; k++ {
		offset := width - (k+1)*8
		if m.littleEndian {
			offset = k * 8
		}
		m.store.Write(m.wrap(addr+uint64(k)), NewExtractExpr(value, offset, Width8))
	}
}

// addrValue returns v with its expression sized to the address width.
func (m *Memory) addrValue(v *Value) *Value {
	if ExprWidth(v.Expr) == m.bits {
		return v
	}
	return v.Map(NewZExtExpr(v.Expr, m.bits))
}

func (m *Memory) addrExpr(addr uint64) *ConstantExpr {
	return NewConstantExpr(addr, m.bits)
}

// wrap returns addr reduced to the address space.
func (m *Memory) wrap(addr uint64) uint64 {
	return addr & bitmask(m.bits)
}
