// Package core defines core data structures with zero external dependencies.
package core

import (
	"net/netip"
	"time"
)

// RawFrame is one link-layer frame delivered by a capture source.
// Data is truncated to the source snap length and is never retained past
// the extraction step.
type RawFrame struct {
	Data           []byte    // Raw frame data
	Timestamp      time.Time // Capture timestamp
	CaptureLen     uint32    // Captured length
	OrigLen        uint32    // Original frame length on the wire
	InterfaceIndex int       // Network interface index
}

// ConnectionRecord identifies one observed connection attempt.
//
// SrcIP keeps the address family of the header it was read from: an IPv4
// header yields a 4-byte address, an IPv6 header a 16-byte one (including
// v4-mapped forms). Equality and map hashing work on those bytes.
type ConnectionRecord struct {
	SrcIP     netip.Addr
	DstPort   uint16
	Timestamp time.Time
}
