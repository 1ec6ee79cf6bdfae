package memory

import "sync"

// The current allocator is process-wide state with push/pop scoping: a
// scope may temporarily redirect all default allocation calls to a specific
// allocator, while explicit-allocator entry points always win over the
// scope. There is no per-goroutine context in Go worth faking, so code that
// must not depend on ambient state should use AllocFrom.

var scope struct {
	mu    sync.Mutex
	base  Allocator // nil means Malloc
	stack []Allocator
}

// Current returns the allocator that default allocation calls resolve to:
// the innermost Use scope, else the SetDefault allocator, else Malloc.
func Current() Allocator {
	scope.mu.Lock()
	defer scope.mu.Unlock()
	if n := len(scope.stack); n > 0 {
		return scope.stack[n-1]
	}
	if scope.base != nil {
		return scope.base
	}
	return Malloc
}

// SetDefault replaces the process-wide default allocator. A nil a restores
// Malloc.
func SetDefault(a Allocator) {
	scope.mu.Lock()
	scope.base = a
	scope.mu.Unlock()
}

// Use pushes a as the current allocator for a dynamic scope and returns the
// restore function:
//
//	restore := memory.Use(frameArena)
//	defer restore()
//
// Restores must nest; restoring an outer scope while an inner one is still
// active also discards the inner one.
func Use(a Allocator) (restore func()) {
	scope.mu.Lock()
	scope.stack = append(scope.stack, a)
	depth := len(scope.stack)
	scope.mu.Unlock()

	return func() {
		scope.mu.Lock()
		if len(scope.stack) >= depth {
			scope.stack = scope.stack[:depth-1]
		}
		scope.mu.Unlock()
	}
}
