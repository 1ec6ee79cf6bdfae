// Package vmem is a backing allocator over the operating system's virtual
// memory, one anonymous mapping per block. It bypasses the Go heap
// entirely, which makes it the right backing for giant, long-lived or
// page-aligned blocks that would otherwise distort garbage-collector
// pacing. Requests are rounded up to whole pages, so it is a poor fit for
// small allocations.
package vmem

import "errors"

// ErrNotMapped is returned when Free or Resize is handed a block this
// allocator never mapped.
var ErrNotMapped = errors.New("vmem: block was not mapped by this allocator")
