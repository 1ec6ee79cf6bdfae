//go:build memnodebug

package memory

// Debug instrumentation compiled out. See debug_on.go.
const debugMemory = false
