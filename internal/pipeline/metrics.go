package pipeline

import (
	"sync/atomic"
)

// Metrics contains per-run counters.
type Metrics struct {
	Received      atomic.Uint64
	Decoded       atomic.Uint64
	DecodeErrors  atomic.Uint64
	CaptureErrors atomic.Uint64
	Counted       atomic.Uint64
}
