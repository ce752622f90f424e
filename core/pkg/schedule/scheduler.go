// Package schedule provides keyed, cancellable timers. Every background task of
// the engine is registered under a string key so that it can be replaced or
// cancelled without holding on to closures.
package schedule

import "time"

type Scheduler interface {
	// AfterFunc runs fn once after d. An existing task under key is replaced.
	AfterFunc(key string, d time.Duration, fn func())
	// Every runs fn each d until cancelled. An existing task under key is replaced.
	Every(key string, d time.Duration, fn func())
	// Cancel removes the task under key and reports whether one was pending.
	Cancel(key string) bool
	Pending(key string) bool
	// Stop cancels every task.
	Stop()
}
