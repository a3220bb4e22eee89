// Package pipeline implements the counting runtime loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"firestige.xyz/pulso/internal/aggregator"
	"firestige.xyz/pulso/internal/capture"
	"firestige.xyz/pulso/internal/core"
	"firestige.xyz/pulso/internal/core/decoder"
	"firestige.xyz/pulso/internal/metrics"
	"firestige.xyz/pulso/internal/privacy"
)

// Reason tells why a run finished.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonConnectionLimit
	ReasonTimeLimit
	ReasonStreamClosed
	ReasonInterrupted
)

func (r Reason) String() string {
	switch r {
	case ReasonConnectionLimit:
		return "connection_limit_reached"
	case ReasonTimeLimit:
		return "time_limit_reached"
	case ReasonStreamClosed:
		return "stream_closed"
	case ReasonInterrupted:
		return "interrupted"
	default:
		return "running"
	}
}

// Config contains pipeline configuration.
type Config struct {
	Device    string
	Source    capture.Source
	Decoder   decoder.Decoder // defaults to an Extractor for Source's link type
	Protector privacy.Protector
	// ConnectionLimit stops the run once this many attempts were counted; 0 disables it.
	ConnectionLimit uint64
	// TimeLimit stops the run after this much wall-clock time; 0 disables it.
	TimeLimit time.Duration
}

// Result is what a finished run hands to the output layer.
type Result struct {
	Reason  Reason
	Report  aggregator.Report
	Stats   Stats
	Capture capture.Stats
	Elapsed time.Duration
}

// Pipeline owns one source, one aggregator and the loop between them.
type Pipeline struct {
	device    string
	source    capture.Source
	decoder   decoder.Decoder
	protector privacy.Protector
	agg       *aggregator.Aggregator
	metrics   *Metrics

	connLimit uint64
	timeLimit time.Duration
}

// New creates a new pipeline.
func New(cfg Config) *Pipeline {
	dec := cfg.Decoder
	if dec == nil {
		dec = decoder.New(cfg.Source.LinkType())
	}
	prot := cfg.Protector
	if prot == nil {
		prot = privacy.Plain{}
	}
	return &Pipeline{
		device:    cfg.Device,
		source:    cfg.Source,
		decoder:   dec,
		protector: prot,
		agg:       aggregator.New(),
		metrics:   &Metrics{},
		connLimit: cfg.ConnectionLimit,
		timeLimit: cfg.TimeLimit,
	}
}

// Run polls the source until the connection limit, the time limit, the end
// of the stream or cancellation of ctx, then renders the report. A Pipeline
// runs once. The source is left open; close it after Run returns.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	slog.Info("pipeline starting",
		"device", p.device,
		"connection_limit", p.connLimit,
		"time_limit", p.timeLimit)

	streamCtx, stop := context.WithCancel(ctx)
	deliveries := capture.Stream(streamCtx, p.source)

	var deadline <-chan time.Time
	if p.timeLimit > 0 {
		timer := time.NewTimer(p.timeLimit)
		defer timer.Stop()
		deadline = timer.C
	}

	reason := ReasonNone
	for reason == ReasonNone {
		select {
		case d, ok := <-deliveries:
			if !ok {
				// The poller only stops on its own after cancellation.
				reason = ReasonInterrupted
				continue
			}
			reason = p.handle(d)
		case <-deadline:
			reason = ReasonTimeLimit
		case <-ctx.Done():
			reason = ReasonInterrupted
		}
	}

	stop()
	for range deliveries {
		// Wait for the poller to exit before anyone closes the source.
	}

	res := Result{Reason: reason, Stats: p.Stats(), Elapsed: time.Since(start)}
	p.recordCaptureStats(&res)

	keys := p.agg.Len()

	report, err := p.agg.Render(p.protector)
	if err != nil {
		return res, fmt.Errorf("render report: %w", err)
	}
	res.Report = report

	metrics.RunsTotal.WithLabelValues(reason.String()).Inc()
	metrics.RunDurationSeconds.Observe(res.Elapsed.Seconds())
	metrics.ReportGroups.Set(float64(len(report.Groups)))

	slog.Info("pipeline finished",
		"device", p.device,
		"reason", reason.String(),
		"connections", report.Total,
		"groups", len(report.Groups),
		"keys", keys,
		"elapsed", res.Elapsed)
	return res, nil
}

// handle processes one delivery and returns a non-zero Reason when the run
// must finish.
func (p *Pipeline) handle(d capture.Delivery) Reason {
	if d.Err != nil {
		if errors.Is(d.Err, core.ErrStreamClosed) {
			return ReasonStreamClosed
		}
		p.metrics.CaptureErrors.Add(1)
		metrics.FramesTotal.WithLabelValues(p.device, metrics.ResultCaptureError).Inc()
		slog.Warn("capture error", "device", p.device, "error", d.Err)
		return ReasonNone
	}

	p.metrics.Received.Add(1)
	rec, err := p.decoder.Decode(d.Frame)
	if err != nil {
		p.metrics.DecodeErrors.Add(1)
		metrics.FramesTotal.WithLabelValues(p.device, metrics.ResultUnparsed).Inc()
		slog.Debug("unparsed packet", "device", p.device, "ts", d.Frame.Timestamp, "error", err)
		return ReasonNone
	}
	p.metrics.Decoded.Add(1)
	metrics.FramesTotal.WithLabelValues(p.device, metrics.ResultDecoded).Inc()

	total := p.agg.Process(rec)
	p.metrics.Counted.Add(1)
	metrics.ConnectionsTotal.WithLabelValues(p.device).Inc()

	if p.connLimit > 0 && total >= p.connLimit {
		return ReasonConnectionLimit
	}
	return ReasonNone
}

func (p *Pipeline) recordCaptureStats(res *Result) {
	st, err := p.source.Stats()
	if err != nil {
		slog.Warn("failed to read capture stats", "device", p.device, "error", err)
		return
	}
	res.Capture = st
	metrics.CapturePackets.WithLabelValues(p.device, "received").Set(float64(st.Received))
	metrics.CapturePackets.WithLabelValues(p.device, "dropped").Set(float64(st.Dropped))
	metrics.CapturePackets.WithLabelValues(p.device, "if_dropped").Set(float64(st.IfDropped))
	slog.Info("pcap stats",
		"device", p.device,
		"received", st.Received,
		"dropped", st.Dropped,
		"if_dropped", st.IfDropped)
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:      p.metrics.Received.Load(),
		Decoded:       p.metrics.Decoded.Load(),
		DecodeErrors:  p.metrics.DecodeErrors.Load(),
		CaptureErrors: p.metrics.CaptureErrors.Load(),
		Counted:       p.metrics.Counted.Load(),
	}
}

// Stats represents pipeline statistics.
type Stats struct {
	Received      uint64
	Decoded       uint64
	DecodeErrors  uint64
	CaptureErrors uint64
	Counted       uint64
}
