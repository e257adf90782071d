package symmem

import (
	"fmt"
	"sync/atomic"
)

// NameAllocator hands out unique names for fresh symbolic variables.
//
// A memory and all of its branches share one allocator so names stay unique
// across forked states, including states advanced on separate goroutines.
// Only uniqueness is guaranteed, not the order of the numeric suffixes.
type NameAllocator struct {
	vars  atomic.Uint64 // per-byte variables
	addrs atomic.Uint64 // address disambiguation variables
}

// DefaultNames is the process-wide allocator used when none is configured.
var DefaultNames = &NameAllocator{}

// NextVar returns a new byte variable name within the id namespace: "{id}_{n}".
func (a *NameAllocator) NextVar(id string) string {
	return fmt.Sprintf("%s_%d", id, a.vars.Add(1)-1)
}

// NextAddr returns a new address variable name within the id namespace: "{id}_addr_{n}".
func (a *NameAllocator) NextAddr(id string) string {
	return fmt.Sprintf("%s_addr_%d", id, a.addrs.Add(1)-1)
}
