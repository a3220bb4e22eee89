// Package aggregator accumulates connection records and renders the
// grouped per-source report.
package aggregator

import (
	"net/netip"

	"firestige.xyz/pulso/internal/core"
)

// key identifies one (source address, destination port) counter.
type key struct {
	src  netip.Addr
	port uint16
}

// Aggregator counts connection attempts per source address and destination
// port. It is owned by a single goroutine and carries no locking.
type Aggregator struct {
	counts   map[key]uint64
	total    uint64
	consumed bool
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{counts: make(map[key]uint64)}
}

// Process records one connection attempt and returns the updated running total.
// Records arriving after Render are dropped and the total stays unchanged.
func (a *Aggregator) Process(rec core.ConnectionRecord) uint64 {
	if a.consumed {
		return a.total
	}
	a.counts[key{src: rec.SrcIP, port: rec.DstPort}]++
	a.total++
	return a.total
}

// Total returns the number of records processed so far.
func (a *Aggregator) Total() uint64 {
	return a.total
}

// Len returns the number of distinct (address, port) keys.
func (a *Aggregator) Len() int {
	return len(a.counts)
}
