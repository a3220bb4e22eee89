package config

import (
	"fmt"
	"time"

	"firestige.xyz/pulso/internal/core"
)

// RunConfig is one counting run as requested on the command line.
// Zero limits mean "no limit"; the CLI rejects explicit zeros before a
// RunConfig is built.
type RunConfig struct {
	Device          string
	File            string
	ConnectionLimit uint64
	TimeLimit       time.Duration
}

// Validate checks that the run has something to read from.
func (rc RunConfig) Validate() error {
	if rc.Device == "" && rc.File == "" {
		return fmt.Errorf("%w: a device or a capture file is required", core.ErrConfigInvalid)
	}
	if rc.TimeLimit < 0 {
		return fmt.Errorf("%w: negative time limit %s", core.ErrConfigInvalid, rc.TimeLimit)
	}
	return nil
}

// Source names what the run reads from, for logs and reports.
func (rc RunConfig) Source() string {
	if rc.File != "" {
		return rc.File
	}
	return rc.Device
}
