// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/pulso/internal/config"
)

// options holds the flags of the root command.
type options struct {
	configFile      string
	device          string
	readFile        string
	connectionLimit uint64
	timeLimit       uint
	plain           bool
	format          string
	logLevel        string
}

// UsageError marks a command-line mistake; main exits with status 2 for it.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

// IsUsageError reports whether err came from invalid command-line usage.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "pulso",
		Short: "TCP connection counter",
		Long: `pulso passively counts inbound TCP connection attempts (SYN segments) on a
network device and prints one line per source address when it stops:

  <source>:<total> <port>:<count> <port>:<count> ...

Source addresses are replaced by a keyed 16 character token unless --plain is
given. The key is read from the PULSO_SECRET environment variable (or a .env
file in the working directory) and is required when anonymizing.

The run stops when the connection limit or the time limit is reached, when a
replayed capture file ends, or on SIGINT/SIGTERM.

Examples:
  PULSO_SECRET=s3cret pulso -d eth0 -t 60     # Count for one minute
  pulso -d lo -c 2 --plain                    # Stop after two connections, print raw addresses
  pulso -r trace.pcap --plain --format json   # Replay a capture file`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageErrorf("unexpected arguments: %v", args)
			}
			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.validate(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	f := cmd.Flags()
	f.StringVarP(&opts.device, "device", "d", "", "network device to capture on")
	f.StringVarP(&opts.readFile, "read-file", "r", "", "replay a pcap file instead of a live device")
	f.Uint64VarP(&opts.connectionLimit, "connection-limit", "c", 0, "stop after this many connection attempts")
	f.UintVarP(&opts.timeLimit, "time-limit", "t", 0, "stop after this many seconds")
	f.BoolVar(&opts.plain, "plain", false, "print raw source addresses instead of tokens")
	f.StringVar(&opts.format, "format", "", "report format: text, json or yaml (default from config)")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (default from config)")
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path")

	cmd.AddCommand(newDevicesCmd())
	return cmd
}

func (o *options) validate(cmd *cobra.Command) error {
	if o.device == "" && o.readFile == "" {
		return usageErrorf("required flag \"device\" not set")
	}
	if o.device != "" && o.readFile != "" {
		return usageErrorf("--device and --read-file are mutually exclusive")
	}
	if cmd.Flags().Changed("connection-limit") && o.connectionLimit == 0 {
		return usageErrorf("--connection-limit must be positive")
	}
	if cmd.Flags().Changed("time-limit") && o.timeLimit == 0 {
		return usageErrorf("--time-limit must be positive")
	}
	return nil
}

func (o *options) runConfig() config.RunConfig {
	return config.RunConfig{
		Device:          o.device,
		File:            o.readFile,
		ConnectionLimit: o.connectionLimit,
		TimeLimit:       time.Duration(o.timeLimit) * time.Second,
	}
}

// Execute runs the root command with a context cancelled by SIGINT or SIGTERM.
// This is called by main.main().
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}
