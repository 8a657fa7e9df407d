// Package dispatch provides the dispatch-queue implementations that execute
// units of work for the framework: an elastic self-sizing worker pool, a
// fixed-capacity fallback pool, and typed scheduling helpers that settle
// result handles. The Runtime ties the pools together with the process-wide
// configuration and exposes capacity introspection.
package dispatch
