// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers classify with errors.Is; producers wrap with %w.
var (
	// Capture device errors, fatal at startup
	ErrDeviceNotFound = errors.New("pulso: device not found")
	ErrOpenFailure    = errors.New("pulso: device open failed")
	ErrFilterRejected = errors.New("pulso: capture filter rejected")

	// Capture stream conditions
	ErrNoFrame      = errors.New("pulso: no frame available yet")
	ErrCapture      = errors.New("pulso: capture error")
	ErrStreamClosed = errors.New("pulso: capture stream closed")

	// Per-packet decoding errors
	ErrUnparsedPacket = errors.New("pulso: unparsed packet")

	// Aggregation errors
	ErrReportConsumed = errors.New("pulso: report already rendered")

	// Configuration errors
	ErrConfigInvalid = errors.New("pulso: invalid configuration")
	ErrSecretMissing = errors.New("pulso: secret is required when anonymization is enabled")
)
