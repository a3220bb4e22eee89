package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"firestige.xyz/pulso/internal/capture"
	"firestige.xyz/pulso/internal/config"
	"firestige.xyz/pulso/internal/core"
	"firestige.xyz/pulso/internal/log"
	"firestige.xyz/pulso/internal/metrics"
	"firestige.xyz/pulso/internal/pipeline"
	"firestige.xyz/pulso/internal/privacy"
	"firestige.xyz/pulso/internal/report"
)

// runCount loads configuration, runs one counting pipeline and writes the
// report to out. Configuration and device errors are returned before any
// capture starts.
func runCount(ctx context.Context, opts *options, out io.Writer) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.format != "" {
		cfg.Report.Format = opts.format
	}
	if opts.plain {
		cfg.Privacy.Anonymize = false
	}
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return err
	}

	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}

	rc := opts.runConfig()
	if err := rc.Validate(); err != nil {
		return err
	}

	protector, err := privacy.New(cfg.Privacy.Anonymize, cfg.Privacy.Secret)
	if err != nil {
		if errors.Is(err, core.ErrSecretMissing) {
			return fmt.Errorf("%w: set %s or pass --plain", err, config.SecretEnv)
		}
		return err
	}

	enc, err := report.NewEncoder(cfg.Report.Format)
	if err != nil {
		return err
	}

	sinks := []report.Sink{report.WriterSink{W: out}}
	if cfg.Report.NATS.Enabled {
		ns, err := report.NewNATSSink(cfg.Report.NATS.URL, cfg.Report.NATS.Subject)
		if err != nil {
			return err
		}
		defer closeSink(ns, "nats")
		sinks = append(sinks, ns)
	}

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := srv.Stop(context.Background()); err != nil {
				slog.Warn("metrics server stop failed", "error", err)
			}
		}()
	}

	src, err := capture.Open(rc.Device, rc.File, captureOptions(cfg.Capture))
	if err != nil {
		return err
	}

	res, err := pipeline.New(pipeline.Config{
		Device:          rc.Source(),
		Source:          src,
		Protector:       protector,
		ConnectionLimit: rc.ConnectionLimit,
		TimeLimit:       rc.TimeLimit,
	}).Run(ctx)
	src.Close()
	if err != nil {
		return err
	}

	// An empty text report prints nothing; structured formats always emit a document.
	if res.Report.Empty() && cfg.Report.Format == report.FormatText {
		slog.Info("no connections observed", "device", rc.Source())
		return nil
	}
	return report.Publish(context.WithoutCancel(ctx), enc, report.NewDocument(rc.Source(), res), sinks...)
}

func captureOptions(cc config.CaptureConfig) capture.Options {
	opts := capture.DefaultOptions()
	opts.Engine = cc.Engine
	opts.SnapLen = cc.SnapLen
	opts.PollTimeout = cc.PollTimeout
	opts.BufferSizeMB = cc.BufferSizeMB
	opts.Promiscuous = cc.Promiscuous
	return opts
}

func closeSink(s report.Sink, name string) {
	if err := s.Close(); err != nil {
		slog.Warn("report sink close failed", "sink", name, "error", err)
	}
}
