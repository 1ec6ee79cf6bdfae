//go:build !memnodebug

package memory

// debugMemory gates the extra work done to make memory bugs obvious: guard
// bytes, fill patterns, the live-allocation registry, call-site capture and
// leak accounting. It is measurable in performance, so production builds
// can compile it out with -tags memnodebug. The compiler folds the branches
// away entirely in that configuration.
const debugMemory = true
