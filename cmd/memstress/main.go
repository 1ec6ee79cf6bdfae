// memstress exercises the allocation core against a configurable backing
// allocator: a randomized loop of allocations, reallocations, and frees,
// followed by a full heap verification and leak report. It exists to shake
// out header, guard, and registry bugs under realistic interleavings.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/memkit/memkit/arena"
	"github.com/memkit/memkit/memory"
	"github.com/memkit/memkit/pool"
	"github.com/memkit/memkit/vmem"
)

var (
	configPath = flag.String("config", "", "path to a TOML workload file")
	trace      = flag.Bool("trace", false, "log every allocation operation")
	verbose    = flag.Bool("verbose", false, "enable debug logging")
)

// workload describes one stress run.
type workload struct {
	Allocator  string `toml:"allocator"`  // malloc, arena, pool, vmem
	Iterations int    `toml:"iterations"` // operations to perform
	MinSize    int    `toml:"min_size"`   // smallest allocation in bytes
	MaxSize    int    `toml:"max_size"`   // largest allocation in bytes
	Alignment  int    `toml:"alignment"`  // 0 means the package default
	ZeroInit   bool   `toml:"zero_init"`  // request zeroed blocks
	Seed       int64  `toml:"seed"`       // 0 means time-derived
}

func defaultWorkload() workload {
	return workload{
		Allocator:  "malloc",
		Iterations: 100_000,
		MinSize:    8,
		MaxSize:    4096,
	}
}

func (w *workload) validate() error {
	switch w.Allocator {
	case "malloc", "arena", "pool", "vmem":
	default:
		return fmt.Errorf("unknown allocator %q", w.Allocator)
	}
	if w.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", w.Iterations)
	}
	if w.MinSize <= 0 || w.MaxSize < w.MinSize {
		return fmt.Errorf("invalid size range [%d, %d]", w.MinSize, w.MaxSize)
	}
	if w.Alignment != 0 && (w.Alignment&(w.Alignment-1) != 0 || w.Alignment > memory.MaxAlignment) {
		return fmt.Errorf("alignment must be a power of two at most %d, got %d",
			memory.MaxAlignment, w.Alignment)
	}
	return nil
}

func (w *workload) backing() memory.Allocator {
	switch w.Allocator {
	case "arena":
		return arena.New()
	case "pool":
		// Slots must fit the orchestrator's request, not just the user size.
		slot := int64(w.MaxSize + memory.BlockOverhead(w.Alignment))
		return pool.New(slot, 4096)
	case "vmem":
		return vmem.New()
	default:
		return memory.Malloc
	}
}

func main() {
	flag.Parse()

	w := defaultWorkload()
	if *configPath != "" {
		if _, err := toml.DecodeFile(*configPath, &w); err != nil {
			fmt.Fprintf(os.Stderr, "memstress: %v\n", err)
			os.Exit(1)
		}
	}
	if err := w.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "memstress: %v\n", err)
		os.Exit(1)
	}

	gLog := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	log.Logger = gLog.Level(zerolog.InfoLevel)
	if *verbose || *trace {
		log.Logger = gLog.Level(zerolog.TraceLevel)
	}
	memory.SetTraceAllocations(*trace)

	seed := w.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Info().
		Str("allocator", w.Allocator).
		Int("iterations", w.Iterations).
		Int64("seed", seed).
		Msg("starting stress run")

	start := time.Now()
	stats := run(&w, rand.New(rand.NewSource(seed)))
	elapsed := time.Since(start)

	if err := memory.VerifyHeap(); err != nil {
		log.Error().Err(err).Msg("heap verification failed")
		os.Exit(1)
	}
	if n := memory.ReportLeaks(); n > 0 {
		os.Exit(1)
	}

	log.Info().
		Int64("allocs", stats.allocs).
		Int64("reallocs", stats.reallocs).
		Int64("frees", stats.frees).
		Str("allocated", humanize.IBytes(uint64(stats.bytes))).
		Dur("elapsed", elapsed).
		Msg("stress run clean")
}

type runStats struct {
	allocs   int64
	reallocs int64
	frees    int64
	bytes    int64
}

// run performs the operation loop: a weighted mix of alloc, realloc, and
// free against a bounded set of live blocks, each block carrying a fill
// byte that is checked before every mutation.
func run(w *workload, rng *rand.Rand) runStats {
	backing := w.backing()
	restore := memory.Use(backing)
	defer restore()

	var opts memory.Options
	if w.ZeroInit {
		opts |= memory.ZeroInit
	}

	type live struct {
		b    []byte
		fill byte
	}
	blocks := make([]live, 0, 1024)
	var stats runStats

	check := func(l live) {
		for i, c := range l.b {
			if c != l.fill {
				log.Fatal().
					Int("offset", i).
					Uint8("want", l.fill).
					Uint8("got", c).
					Msg("block content corrupted")
			}
		}
	}

	for i := 0; i < w.Iterations; i++ {
		switch op := rng.Intn(10); {
		case op < 5 || len(blocks) == 0: // allocate
			size := w.MinSize + rng.Intn(w.MaxSize-w.MinSize+1)
			b := memory.AllocOpts(size, w.Alignment, opts)
			fill := byte(rng.Intn(255) + 1)
			for j := range b {
				b[j] = fill
			}
			blocks = append(blocks, live{b: b, fill: fill})
			stats.allocs++
			stats.bytes += int64(size)

		case op < 7: // reallocate
			j := rng.Intn(len(blocks))
			check(blocks[j])
			oldLen := len(blocks[j].b)
			size := w.MinSize + rng.Intn(w.MaxSize-w.MinSize+1)
			b := memory.Realloc(blocks[j].b, size)
			if w.ZeroInit {
				// Grown tail arrives zeroed; refill so check stays uniform.
				for k := oldLen; k < len(b); k++ {
					b[k] = blocks[j].fill
				}
			} else {
				for k := range b {
					b[k] = blocks[j].fill
				}
			}
			blocks[j].b = b
			stats.reallocs++
			if size > oldLen {
				stats.bytes += int64(size - oldLen)
			}

		default: // free
			j := rng.Intn(len(blocks))
			check(blocks[j])
			memory.Free(blocks[j].b)
			blocks[j] = blocks[len(blocks)-1]
			blocks = blocks[:len(blocks)-1]
			stats.frees++
		}

		// Keep the live set bounded so pool runs don't just exhaust slots.
		for len(blocks) > 512 {
			memory.Free(blocks[len(blocks)-1].b)
			blocks = blocks[:len(blocks)-1]
			stats.frees++
		}
	}

	for _, l := range blocks {
		check(l)
		memory.Free(l.b)
		stats.frees++
	}
	if w.Allocator == "arena" {
		memory.FreeAll(backing)
	}
	return stats
}
