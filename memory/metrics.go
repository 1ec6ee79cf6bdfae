package memory

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are noops until EnableMetrics swaps in prometheus collectors, so
// programs that don't scrape pay nothing. Enable before the workload
// starts; the stat variables are not swapped under a lock.

type statCounter interface {
	Inc()
	Add(float64)
}

type statGauge interface {
	Inc()
	Dec()
	Add(float64)
	Sub(float64)
}

type noopStat struct{}

func (noopStat) Inc()        {}
func (noopStat) Dec()        {}
func (noopStat) Add(float64) {}
func (noopStat) Sub(float64) {}

var (
	statAllocs        statCounter = noopStat{}
	statFrees         statCounter = noopStat{}
	statResizeInPlace statCounter = noopStat{}
	statResizeMoved   statCounter = noopStat{}
	statLiveBytes     statGauge   = noopStat{}
	statLiveBlocks    statGauge   = noopStat{}
)

var metricsOnce sync.Once

// EnableMetrics registers allocation metrics with reg and starts recording.
// Pass prometheus.DefaultRegisterer for the usual global registry. Calling
// it more than once is a no-op.
func EnableMetrics(reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		allocs := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memkit", Name: "allocations_total",
			Help: "Allocations served through the orchestrator.",
		})
		frees := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memkit", Name: "frees_total",
			Help: "Blocks freed through the orchestrator.",
		})
		inPlace := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memkit", Name: "resizes_in_place_total",
			Help: "Reallocations satisfied without moving the block.",
		})
		moved := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memkit", Name: "resizes_moved_total",
			Help: "Reallocations that had to allocate, copy and free.",
		})
		liveBytes := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memkit", Name: "live_bytes",
			Help: "User bytes currently allocated.",
		})
		liveBlocks := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memkit", Name: "live_blocks",
			Help: "Allocations currently live.",
		})

		reg.MustRegister(allocs, frees, inPlace, moved, liveBytes, liveBlocks)

		statAllocs = allocs
		statFrees = frees
		statResizeInPlace = inPlace
		statResizeMoved = moved
		statLiveBytes = liveBytes
		statLiveBlocks = liveBlocks
	})
}
