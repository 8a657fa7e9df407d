// Package result provides the single-assignment synchronization handle used
// to observe completion of asynchronous work. A Result settles exactly once
// as succeeded, failed, or timed out; callbacks registered before settlement
// fire on the resolving goroutine, and Join composes handles with
// first-failure-wins semantics.
package result
