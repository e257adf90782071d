package symmem

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bytesMaterialized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symmem_bytes_materialized_total",
		Help: "Byte cells created on first access, by source (image or fresh).",
	}, []string{"source"})

	branchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "symmem_branches_total",
		Help: "Number of store branches.",
	})

	concretizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symmem_concretizations_total",
		Help: "Address concretizations, by the strategy that produced the result.",
	}, []string{"strategy"})

	accessesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symmem_accesses_total",
		Help: "Memory accesses, by operation (load or store).",
	}, []string{"op"})
)
