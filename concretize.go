package symmem

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Strategy names a way of narrowing a symbolic address to concrete addresses.
type Strategy string

// Concretization strategies.
const (
	StrategyFree       = Strategy("free")       // an address outside every mapped region
	StrategyWriteable  = Strategy("writeable")  // an address within a writeable region
	StrategyExecutable = Strategy("executable") // an address within an executable region
	StrategySymbolic   = Strategy("symbolic")   // every address, if the range is small
	StrategyAny        = Strategy("any")        // a single satisfying address
)

// Strategy orders used by memory writes and reads.
var (
	WriteStrategies = []Strategy{StrategyFree, StrategyWriteable, StrategyAny}
	ReadStrategies  = []Strategy{StrategySymbolic, StrategyAny}
)

// ParseStrategies parses a comma-separated list of strategy names.
func ParseStrategies(s string) ([]Strategy, error) {
	var a []Strategy
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		switch strategy := Strategy(name); strategy {
		case StrategyFree, StrategyWriteable, StrategyExecutable, StrategySymbolic, StrategyAny:
			a = append(a, strategy)
		default:
			return nil, errors.Errorf("unknown concretization strategy: %q", name)
		}
	}
	return a, nil
}

// Concretizer resolves address expressions to concrete addresses.
type Concretizer struct {
	// Maximum range (max-min) for the symbolic strategy and the maximum
	// number of addresses it returns.
	Limit int

	// Optional address-space layout. The free, writeable and executable
	// strategies produce no result when the table is empty.
	Regions *RegionTable

	Logger logrus.FieldLogger
}

// NewConcretizer returns a new instance of Concretizer with the default limit.
func NewConcretizer() *Concretizer {
	return &Concretizer{
		Limit:  DefaultLimit,
		Logger: logrus.StandardLogger(),
	}
}

// Concretize returns a non-empty list of concrete addresses for v.
//
// Returns ErrUnsatAddress if the constraints on v have no solution and
// ErrUnresolvableAddress if no strategy produced an address. A unique
// address is returned without consulting the strategies.
func (c *Concretizer) Concretize(v *Value, strategies []Strategy) ([]uint64, error) {
	if v.IsSymbolic() {
		if ok, err := v.IsSatisfiable(); err != nil {
			return nil, c.solverError(err)
		} else if !ok {
			return nil, ErrUnsatAddress
		}
	}

	if unique, err := v.IsUnique(); err != nil {
		return nil, c.solverError(err)
	} else if unique {
		addr, err := v.Any()
		if err != nil {
			return nil, c.solverError(err)
		}
		c.observe("unique", 1)
		return []uint64{addr}, nil
	}

	for _, strategy := range strategies {
		addrs, err := c.apply(v, strategy)
		if err != nil {
			return nil, c.solverError(err)
		} else if len(addrs) > 0 {
			c.observe(strategy, len(addrs))
			return addrs, nil
		}
	}
	return nil, ErrUnresolvableAddress
}

// apply returns the addresses produced by a single strategy, if any.
func (c *Concretizer) apply(v *Value, strategy Strategy) ([]uint64, error) {
	switch strategy {
	case StrategyFree:
		return c.concretizeFree(v)
	case StrategyWriteable:
		return c.concretizeInRegion(v, PermWrite)
	case StrategyExecutable:
		return c.concretizeInRegion(v, PermExec)
	case StrategySymbolic:
		return c.concretizeSymbolic(v)
	case StrategyAny:
		addr, err := v.Any()
		if err != nil {
			return nil, err
		}
		return []uint64{addr}, nil
	default:
		return nil, errors.Errorf("unknown concretization strategy: %q", strategy)
	}
}

// concretizeSymbolic enumerates every address when the range is below the limit.
func (c *Concretizer) concretizeSymbolic(v *Value) ([]uint64, error) {
	min, err := v.Min()
	if err != nil {
		return nil, err
	}
	max, err := v.Max()
	if err != nil {
		return nil, err
	}

	if max-min >= uint64(c.limit()) {
		c.logger().WithFields(logrus.Fields{
			"min":   min,
			"max":   max,
			"limit": c.limit(),
		}).Debug("symbolic address range exceeds limit")
		return nil, nil
	}
	return v.AnyN(c.limit())
}

// concretizeInRegion returns one address within the first region carrying perm.
func (c *Concretizer) concretizeInRegion(v *Value, perm Perm) ([]uint64, error) {
	for _, r := range c.Regions.WithPerm(perm) {
		addrs, err := c.anyUnder(v, inRegionExpr(v.Expr, r))
		if err != nil || len(addrs) > 0 {
			return addrs, err
		}
	}
	return nil, nil
}

// concretizeFree returns one address outside of every mapped region.
func (c *Concretizer) concretizeFree(v *Value) ([]uint64, error) {
	if c.Regions.Len() == 0 {
		return nil, nil
	}

	var conds []Expr
	for _, r := range c.Regions.Regions() {
		conds = append(conds, NewNotExpr(inRegionExpr(v.Expr, r)))
	}
	return c.anyUnder(v, NewAndExpr(conds...))
}

// anyUnder returns a single address satisfying cond, or nil if there is none.
func (c *Concretizer) anyUnder(v *Value, cond Expr) ([]uint64, error) {
	if IsConstantFalse(cond) {
		return nil, nil
	}
	addr, err := v.With(cond).Any()
	if errors.Cause(err) == ErrUnsat {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return []uint64{addr}, nil
}

func (c *Concretizer) observe(strategy Strategy, n int) {
	concretizationsTotal.WithLabelValues(string(strategy)).Inc()
	c.logger().WithFields(logrus.Fields{
		"strategy": strategy,
		"n":        n,
	}).Debug("concretized address")
}

func (c *Concretizer) solverError(err error) error {
	if errors.Cause(err) == ErrUnsat {
		return ErrUnsatAddress
	}
	return err
}

func (c *Concretizer) limit() int {
	if c.Limit <= 0 {
		return DefaultLimit
	}
	return c.Limit
}

func (c *Concretizer) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}
