// Package syncx provides the small synchronization helpers shared by the
// wait-set engine: an edge-triggered broadcast notifier and an atomic
// sequence counter.
package syncx
