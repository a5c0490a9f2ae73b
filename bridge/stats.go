package bridge

import "sync/atomic"

// Stats counts calls across the bridge. All counters only grow.
type Stats struct {
	queries       atomic.Uint64
	subscriptions atomic.Uint64
	cancels       atomic.Uint64
	failures      atomic.Uint64
	events        atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Queries       uint64
	Subscriptions uint64
	Cancels       uint64
	Failures      uint64 // query or subscribe calls that returned an error
	Events        uint64 // events handed to stream consumers
}

// Snapshot reads every counter.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Queries:       s.queries.Load(),
		Subscriptions: s.subscriptions.Load(),
		Cancels:       s.cancels.Load(),
		Failures:      s.failures.Load(),
		Events:        s.events.Load(),
	}
}
