package memory

import (
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Leak reporting. The OS reclaims everything at process exit anyway; the
// report exists so long-running programs and tests can prove that a
// workload returned what it took.

// leak is a snapshot of one unfreed allocation, copied out under the
// registry lock so reporting can log without holding it.
type leak struct {
	file string
	line int
	size int64
	id   uint64
	rid  uint32
}

// ReportLeaks logs every live allocation that is not marked leak-exempt and
// returns the count. The heap is verified first; a corrupted heap is logged
// and still reported as best it can be. Always returns zero with debug
// instrumentation compiled out.
func ReportLeaks() int {
	if !debugMemory {
		return 0
	}

	if err := VerifyHeap(); err != nil {
		log.Error().Err(err).Msg("heap verification failed before leak report")
	}

	var (
		leaks []leak
		total int64
	)
	_ = regWalk(func(r *record) error {
		if r.hdr.leakExempt() {
			return nil
		}
		leaks = append(leaks, leak{
			file: r.file,
			line: r.line,
			size: r.hdr.size,
			id:   r.hdr.id,
			rid:  r.hdr.rid,
		})
		total += r.hdr.size
		return nil
	})

	if len(leaks) == 0 {
		return 0
	}

	p := message.NewPrinter(language.English)
	log.Warn().
		Int("count", len(leaks)).
		Str("total", humanize.IBytes(uint64(total))).
		Msg(p.Sprintf("%d allocations were never freed", len(leaks)))

	for _, l := range leaks {
		log.Warn().
			Str("origin", callSite(l.file, l.line)).
			Str("size", p.Sprintf("%d bytes", l.size)).
			Uint64("id", l.id).
			Uint32("rid", l.rid).
			Msg("leaked allocation")
	}
	return len(leaks)
}
