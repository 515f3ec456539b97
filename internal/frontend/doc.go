// Package frontend is sluice's wire-protocol front end, kept separate from
// the storage core it fronts. It exposes internal/queue.Queue's public
// contract (push, pop_open, pop_close, stats) over plain HTTP, plus a
// WebSocket endpoint that lets a consumer hold one connection open and
// receive a push the moment Queue.Wait fires instead of polling.
//
// # Single-writer discipline
//
// internal/queue.Queue is deliberately not safe for concurrent use — see
// its package doc's Concurrency section, which models the core on a single
// cooperative event loop. Every HTTP handler and WebSocket connection here
// is itself a separate goroutine, so this package reintroduces that single
// event loop explicitly: Loop owns the Queue and runs on its own
// goroutine, and every operation — from any handler, on any connection —
// is submitted to it as a closure and awaited. This is the same
// serialize-onto-one-goroutine shape Go servers commonly use to guard a
// non-thread-safe resource without a mutex (see Loop in loop.go).
package frontend
