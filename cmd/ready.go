package main

import "sync/atomic"

// readiness reports whether tiles can be served. Static servers become
// ready once every tile is prebaked.
type readiness struct {
	ready atomic.Bool
}

func (r *readiness) set() {
	r.ready.Store(true)
}

func (r *readiness) get() bool {
	return r.ready.Load()
}
