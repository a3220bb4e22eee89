// Package decoder extracts connection records from captured frames.
package decoder

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/pulso/internal/core"
)

// Decoder decodes raw frames into connection records.
type Decoder interface {
	Decode(raw core.RawFrame) (core.ConnectionRecord, error)
}

// UnparsedError reports a frame that did not decode as TCP over IPv4/IPv6.
// It matches core.ErrUnparsedPacket under errors.Is.
type UnparsedError struct {
	Timestamp time.Time
	Reason    string
	Err       error
}

func (e *UnparsedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unparsed packet at %s: %s: %v", e.Timestamp.Format(time.RFC3339Nano), e.Reason, e.Err)
	}
	return fmt.Sprintf("unparsed packet at %s: %s", e.Timestamp.Format(time.RFC3339Nano), e.Reason)
}

func (e *UnparsedError) Is(target error) bool { return target == core.ErrUnparsedPacket }

func (e *UnparsedError) Unwrap() error { return e.Err }

// Extractor is a Decoder backed by a gopacket DecodingLayerParser.
// Layer structs are reused between calls, so an Extractor must not be
// shared between goroutines.
type Extractor struct {
	linkType layers.LinkType

	eth   layers.Ethernet
	dot1q layers.Dot1Q
	sll   layers.LinuxSLL
	loop  layers.Loopback
	ip4   layers.IPv4
	ip6   layers.IPv6
	tcp   layers.TCP

	parsers map[gopacket.LayerType]*gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

// New creates an Extractor for frames of the given link type.
func New(linkType layers.LinkType) *Extractor {
	x := &Extractor{
		linkType: linkType,
		parsers:  make(map[gopacket.LayerType]*gopacket.DecodingLayerParser),
		decoded:  make([]gopacket.LayerType, 0, 8),
	}
	for _, first := range []gopacket.LayerType{
		layers.LayerTypeEthernet,
		layers.LayerTypeLinuxSLL,
		layers.LayerTypeLoopback,
		layers.LayerTypeIPv4,
		layers.LayerTypeIPv6,
	} {
		p := gopacket.NewDecodingLayerParser(first,
			&x.eth, &x.dot1q, &x.sll, &x.loop, &x.ip4, &x.ip6, &x.tcp)
		p.IgnoreUnsupported = true
		x.parsers[first] = p
	}
	return x
}

// Decode parses link, network and transport headers and returns the source
// address, destination port and capture timestamp.
func (x *Extractor) Decode(raw core.RawFrame) (core.ConnectionRecord, error) {
	parser, err := x.parserFor(raw.Data)
	if err != nil {
		return core.ConnectionRecord{}, &UnparsedError{Timestamp: raw.Timestamp, Reason: "unsupported link layer", Err: err}
	}

	x.decoded = x.decoded[:0]
	if err := parser.DecodeLayers(raw.Data, &x.decoded); err != nil {
		return core.ConnectionRecord{}, &UnparsedError{Timestamp: raw.Timestamp, Reason: "decode failed", Err: err}
	}

	var (
		src     netip.Addr
		haveIP  bool
		haveTCP bool
	)
	// The innermost network header preceding TCP wins.
	for _, lt := range x.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			src, haveIP = netip.AddrFromSlice(x.ip4.SrcIP.To4())
		case layers.LayerTypeIPv6:
			src, haveIP = netip.AddrFromSlice(x.ip6.SrcIP.To16())
		case layers.LayerTypeTCP:
			haveTCP = true
		}
	}

	switch {
	case !haveIP:
		return core.ConnectionRecord{}, &UnparsedError{Timestamp: raw.Timestamp, Reason: fmt.Sprintf("no network layer in %v", x.decoded)}
	case !haveTCP:
		return core.ConnectionRecord{}, &UnparsedError{Timestamp: raw.Timestamp, Reason: fmt.Sprintf("no tcp layer in %v", x.decoded)}
	}

	return core.ConnectionRecord{
		SrcIP:     src,
		DstPort:   uint16(x.tcp.DstPort),
		Timestamp: raw.Timestamp,
	}, nil
}

// parserFor picks the parser whose first layer matches the link type.
// Raw IP link types are dispatched on the version nibble.
func (x *Extractor) parserFor(data []byte) (*gopacket.DecodingLayerParser, error) {
	switch x.linkType {
	case layers.LinkTypeEthernet:
		return x.parsers[layers.LayerTypeEthernet], nil
	case layers.LinkTypeLinuxSLL:
		return x.parsers[layers.LayerTypeLinuxSLL], nil
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		return x.parsers[layers.LayerTypeLoopback], nil
	case layers.LinkTypeIPv4:
		return x.parsers[layers.LayerTypeIPv4], nil
	case layers.LinkTypeIPv6:
		return x.parsers[layers.LayerTypeIPv6], nil
	case layers.LinkTypeRaw:
		if len(data) == 0 {
			return nil, fmt.Errorf("empty frame")
		}
		switch data[0] >> 4 {
		case 4:
			return x.parsers[layers.LayerTypeIPv4], nil
		case 6:
			return x.parsers[layers.LayerTypeIPv6], nil
		}
		return nil, fmt.Errorf("raw frame with ip version %d", data[0]>>4)
	default:
		return nil, fmt.Errorf("link type %v", x.linkType)
	}
}
