// Package capture opens capture handles, installs the SYN filter and
// delivers raw frames to the runtime loop.
package capture

import (
	"fmt"
	"time"

	"github.com/google/gopacket/layers"

	"firestige.xyz/pulso/internal/core"
)

// Engine names accepted by Open.
const (
	EnginePcap     = "pcap"
	EngineAFPacket = "afpacket"
)

const (
	defaultSnapLen      = 96
	defaultPollTimeout  = 100 * time.Millisecond
	defaultBufferSizeMB = 2
)

// Source yields raw frames from a capture handle.
//
// ReadFrame returns core.ErrNoFrame when the poll timeout expired without a
// frame, core.ErrStreamClosed once the handle has no more frames, and an
// error wrapping core.ErrCapture for any other read failure.
type Source interface {
	ReadFrame() (core.RawFrame, error)
	LinkType() layers.LinkType
	Stats() (Stats, error)
	Close()
}

// Stats are the capture handle counters.
type Stats struct {
	Received  uint64
	Dropped   uint64
	IfDropped uint64
}

// Options configures how a handle is opened.
type Options struct {
	Engine       string
	SnapLen      int
	PollTimeout  time.Duration
	BufferSizeMB int
	Promiscuous  bool
	// Filter is the BPF expression installed on the handle; empty installs none.
	Filter string
	// InboundOnly drops frames the host sent itself.
	InboundOnly bool
}

// DefaultOptions returns options for a header-only inbound SYN capture.
func DefaultOptions() Options {
	return Options{
		Engine:       EnginePcap,
		SnapLen:      defaultSnapLen,
		PollTimeout:  defaultPollTimeout,
		BufferSizeMB: defaultBufferSizeMB,
		Filter:       SYNFilter,
		InboundOnly:  true,
	}
}

func (o Options) withDefaults() Options {
	if o.Engine == "" {
		o.Engine = EnginePcap
	}
	if o.SnapLen <= 0 {
		o.SnapLen = defaultSnapLen
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = defaultPollTimeout
	}
	if o.BufferSizeMB <= 0 {
		o.BufferSizeMB = defaultBufferSizeMB
	}
	return o
}

// Open opens a file replay when path is set, otherwise the live device with
// the configured engine.
func Open(device, path string, opts Options) (Source, error) {
	opts = opts.withDefaults()
	if path != "" {
		src, err := OpenFile(path, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	}

	switch opts.Engine {
	case EnginePcap:
		src, err := OpenLive(device, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	case EngineAFPacket:
		src, err := OpenAFPacket(device, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("%w: unknown capture engine %q", core.ErrConfigInvalid, opts.Engine)
	}
}
