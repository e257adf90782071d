package symmem

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Perm represents a set of access permissions on a region.
type Perm uint8

// Region permissions.
const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

// ParsePerm parses a permission string made of the letters "r", "w" and "x".
// A "-" is ignored so that "r-x" style strings are accepted.
func ParsePerm(s string) (Perm, error) {
	var p Perm
	for _, ch := range s {
		switch ch {
		case 'r':
			p |= PermRead
		case 'w':
			p |= PermWrite
		case 'x':
			p |= PermExec
		case '-':
		default:
			return 0, errors.Errorf("invalid permission %q in %q", ch, s)
		}
	}
	return p, nil
}

// String returns the permission in "rwx" notation.
func (p Perm) String() string {
	var buf strings.Builder
	for _, x := range []struct {
		perm Perm
		ch   byte
	}{{PermRead, 'r'}, {PermWrite, 'w'}, {PermExec, 'x'}} {
		if p&x.perm != 0 {
			buf.WriteByte(x.ch)
		} else {
			buf.WriteByte('-')
		}
	}
	return buf.String()
}

// Region represents an inclusive range of addresses with a set of permissions.
type Region struct {
	Start uint64
	End   uint64
	Perm  Perm
}

// Contains returns true if addr lies within the region.
func (r Region) Contains(addr uint64) bool {
	return addr >= r.Start && addr <= r.End
}

// String returns the string representation of the region.
func (r Region) String() string {
	return fmt.Sprintf("[%#x-%#x %s]", r.Start, r.End, r.Perm)
}

// RegionTable maps address ranges to permissions. It is consulted by the
// free, writeable and executable concretization strategies.
type RegionTable struct {
	regions []Region // sorted by start
}

// NewRegionTable returns a table of non-overlapping regions.
func NewRegionTable(regions ...Region) (*RegionTable, error) {
	a := make([]Region, len(regions))
	copy(a, regions)
	sort.Slice(a, func(i, j int) bool { return a[i].Start < a[j].Start })

	for i, r := range a {
		if r.End < r.Start {
			return nil, errors.Errorf("invalid region %s: end before start", r)
		} else if i > 0 && a[i-1].End >= r.Start {
			return nil, errors.Errorf("regions overlap: %s and %s", a[i-1], r)
		}
	}
	return &RegionTable{regions: a}, nil
}

// Len returns the number of regions in the table.
func (t *RegionTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.regions)
}

// Regions returns a copy of the regions in address order.
func (t *RegionTable) Regions() []Region {
	if t == nil || len(t.regions) == 0 {
		return nil
	}
	return append([]Region(nil), t.regions...)
}

// Lookup returns the region containing addr.
func (t *RegionTable) Lookup(addr uint64) (Region, bool) {
	if t == nil {
		return Region{}, false
	}
	i := sort.Search(len(t.regions), func(i int) bool { return t.regions[i].End >= addr })
	if i < len(t.regions) && t.regions[i].Contains(addr) {
		return t.regions[i], true
	}
	return Region{}, false
}

// WithPerm returns all regions that carry every permission in p.
func (t *RegionTable) WithPerm(p Perm) []Region {
	var a []Region
	for _, r := range t.Regions() {
		if r.Perm&p == p {
			a = append(a, r)
		}
	}
	return a
}

// inRegionExpr returns a boolean expression stating that addr lies within r.
func inRegionExpr(addr Expr, r Region) Expr {
	w := ExprWidth(addr)
	return NewAndExpr(
		NewBinaryExpr(UGE, addr, NewConstantExpr(r.Start, w)),
		NewBinaryExpr(ULE, addr, NewConstantExpr(r.End, w)),
	)
}
