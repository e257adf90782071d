package symmem

import (
	"github.com/benbjohnson/immutable"
)

// Store represents one generation of a persistent byte-addressable store.
//
// Cells are kept in an immutable sorted map so a branch is a copy of the root
// pointer. Writes, including materialization of untouched addresses, replace
// only this generation's map and are never observed by other generations.
// A Store must not be used concurrently; use Branch() to hand a copy to
// another goroutine.
type Store struct {
	id    string
	image Image
	names *NameAllocator
	cells *immutable.SortedMap
}

// NewStore returns an empty store backed by an optional image.
// Fresh variables are named within the id namespace using names.
func NewStore(id string, image Image, names *NameAllocator) *Store {
	if names == nil {
		names = DefaultNames
	}
	return &Store{
		id:    id,
		image: image,
		names: names,
		cells: immutable.NewSortedMap(&uint64Comparer{}),
	}
}

// Read returns the byte cell at addr, materializing it on first access.
//
// Repeated reads of an address without an intervening write return the
// identical expression.
func (s *Store) Read(addr uint64) Expr {
	if v, ok := s.cells.Get(addr); ok {
		return v.(Expr)
	}

	var cell Expr
	if b, ok := s.imageByteAt(addr); ok {
		cell = NewConstantExpr8(uint64(b))
		bytesMaterialized.WithLabelValues("image").Inc()
	} else {
		cell = NewVarExpr(s.names.NextVar(s.id), Width8)
		bytesMaterialized.WithLabelValues("fresh").Inc()
	}
	s.cells = s.cells.Set(addr, cell)
	return cell
}

// Write replaces the byte cell at addr in this generation.
func (s *Store) Write(addr uint64, cell Expr) {
	assert(ExprWidth(cell) == Width8, "store write: invalid cell width: %d", ExprWidth(cell))
	s.cells = s.cells.Set(addr, cell)
}

// Branch returns a new generation that shares all existing cells with s.
func (s *Store) Branch() *Store {
	branchesTotal.Inc()
	other := *s
	return &other
}

// Len returns the number of materialized or written cells.
func (s *Store) Len() int {
	return s.cells.Len()
}

// Cells calls fn for each cell in address order until fn returns false.
func (s *Store) Cells(fn func(addr uint64, cell Expr) bool) {
	itr := s.cells.Iterator()
	for !itr.Done() {
		k, v := itr.Next()
		if !fn(k.(uint64), v.(Expr)) {
			return
		}
	}
}

func (s *Store) imageByteAt(addr uint64) (byte, bool) {
	if s.image == nil {
		return 0, false
	}
	return s.image.ByteAt(addr)
}

// uint64Comparer compares two 64-bit unsigned integers. Implements immutable.Comparer.
type uint64Comparer struct{}

// Compare returns -1 if a is less than b, returns 1 if a is greater than b, and
// returns 0 if a is equal to b. Panic if a or b is not an uint64.
func (c *uint64Comparer) Compare(a, b interface{}) int {
	if i, j := a.(uint64), b.(uint64); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}
