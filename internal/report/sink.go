package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Sink receives the encoded report once per run.
type Sink interface {
	Emit(ctx context.Context, payload []byte) error
	Close() error
}

// WriterSink writes the report to an io.Writer, normally stdout.
type WriterSink struct {
	W io.Writer
}

// Emit writes payload. An empty payload writes nothing.
func (s WriterSink) Emit(_ context.Context, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if _, err := s.W.Write(payload); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func (WriterSink) Close() error { return nil }

// NATSSink publishes the report on a NATS subject.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// NewNATSSink connects to url. The connection is held until Close.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("pulso"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(0),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	slog.Info("connected to nats", "url", url, "subject", subject)
	return &NATSSink{nc: nc, subject: subject}, nil
}

// Emit publishes payload and waits for the server to acknowledge the flush.
func (s *NATSSink) Emit(ctx context.Context, payload []byte) error {
	if err := s.nc.Publish(s.subject, payload); err != nil {
		return fmt.Errorf("publish report to %s: %w", s.subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := s.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush report to %s: %w", s.subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	if err := s.nc.Drain(); err != nil {
		return fmt.Errorf("drain nats connection: %w", err)
	}
	slog.Debug("nats connection drained")
	return nil
}

// Publish encodes doc once and emits it to every sink. All sinks are tried;
// the first error is returned.
func Publish(ctx context.Context, enc Encoder, doc Document, sinks ...Sink) error {
	payload, err := enc.Encode(doc)
	if err != nil {
		return err
	}

	var first error
	for _, s := range sinks {
		if err := s.Emit(ctx, payload); err != nil {
			slog.Error("report sink failed", "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
