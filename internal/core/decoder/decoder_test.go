package decoder

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket/layers"

	"firestige.xyz/pulso/internal/core"
	"firestige.xyz/pulso/internal/testutil"
)

var (
	client4 = netip.MustParseAddr("192.168.1.1")
	server4 = netip.MustParseAddr("192.168.1.2")
	client6 = netip.MustParseAddr("2001:db8::1")
	server6 = netip.MustParseAddr("2001:db8::2")
)

func syn(src, dst netip.Addr, dstPort uint16) testutil.Segment {
	return testutil.Segment{Src: src, Dst: dst, SrcPort: 40000, DstPort: dstPort, Flags: testutil.SYN}
}

func frame(data []byte) core.RawFrame {
	return core.RawFrame{
		Data:       data,
		Timestamp:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		CaptureLen: uint32(len(data)),
		OrigLen:    uint32(len(data)),
	}
}

func TestExtractorDecodeIPv4(t *testing.T) {
	x := New(layers.LinkTypeEthernet)
	raw := frame(testutil.Ethernet(t, syn(client4, server4, 443)))

	rec, err := x.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if rec.SrcIP != client4 {
		t.Errorf("Expected SrcIP %v, got %v", client4, rec.SrcIP)
	}
	if !rec.SrcIP.Is4() {
		t.Errorf("Expected 4-byte address, got %v", rec.SrcIP)
	}
	if rec.DstPort != 443 {
		t.Errorf("Expected DstPort 443, got %d", rec.DstPort)
	}
	if !rec.Timestamp.Equal(raw.Timestamp) {
		t.Errorf("Expected timestamp %v, got %v", raw.Timestamp, rec.Timestamp)
	}
}

func TestExtractorDecodeIPv6(t *testing.T) {
	x := New(layers.LinkTypeEthernet)

	rec, err := x.Decode(frame(testutil.Ethernet(t, syn(client6, server6, 22))))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if rec.SrcIP != client6 {
		t.Errorf("Expected SrcIP %v, got %v", client6, rec.SrcIP)
	}
	if !rec.SrcIP.Is6() {
		t.Errorf("Expected 16-byte address, got %v", rec.SrcIP)
	}
	if rec.DstPort != 22 {
		t.Errorf("Expected DstPort 22, got %d", rec.DstPort)
	}
}

func TestExtractorDecodeLinkTypes(t *testing.T) {
	tests := []struct {
		name     string
		linkType layers.LinkType
		build    func(testing.TB, testutil.Segment) []byte
		seg      testutil.Segment
	}{
		{"vlan", layers.LinkTypeEthernet, func(tb testing.TB, s testutil.Segment) []byte { return testutil.VLAN(tb, s, 100) }, syn(client4, server4, 8080)},
		{"linux sll v4", layers.LinkTypeLinuxSLL, testutil.LinuxSLL, syn(client4, server4, 8080)},
		{"linux sll v6", layers.LinkTypeLinuxSLL, testutil.LinuxSLL, syn(client6, server6, 8080)},
		{"loopback v4", layers.LinkTypeNull, testutil.Loopback, syn(client4, server4, 8080)},
		{"loopback v6", layers.LinkTypeNull, testutil.Loopback, syn(client6, server6, 8080)},
		{"raw v4", layers.LinkTypeRaw, testutil.RawIP, syn(client4, server4, 8080)},
		{"raw v6", layers.LinkTypeRaw, testutil.RawIP, syn(client6, server6, 8080)},
		{"ipv4 link", layers.LinkTypeIPv4, testutil.RawIP, syn(client4, server4, 8080)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := New(tt.linkType)
			rec, err := x.Decode(frame(tt.build(t, tt.seg)))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if rec.SrcIP != tt.seg.Src {
				t.Errorf("Expected SrcIP %v, got %v", tt.seg.Src, rec.SrcIP)
			}
			if rec.DstPort != tt.seg.DstPort {
				t.Errorf("Expected DstPort %d, got %d", tt.seg.DstPort, rec.DstPort)
			}
		})
	}
}

func TestExtractorReusesLayers(t *testing.T) {
	x := New(layers.LinkTypeEthernet)

	first, err := x.Decode(frame(testutil.Ethernet(t, syn(client6, server6, 1))))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	second, err := x.Decode(frame(testutil.Ethernet(t, syn(client4, server4, 2))))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if first.SrcIP != client6 || first.DstPort != 1 {
		t.Errorf("first record changed after reuse: %+v", first)
	}
	if second.SrcIP != client4 || second.DstPort != 2 {
		t.Errorf("unexpected second record: %+v", second)
	}
}

func TestExtractorUnparsed(t *testing.T) {
	tests := []struct {
		name     string
		linkType layers.LinkType
		data     func(testing.TB) []byte
	}{
		{"udp", layers.LinkTypeEthernet, func(tb testing.TB) []byte { return testutil.UDP(tb, client4, server4, 5000, 53) }},
		{"arp", layers.LinkTypeEthernet, testutil.ARP},
		{"empty", layers.LinkTypeEthernet, func(testing.TB) []byte { return nil }},
		{"truncated ethernet", layers.LinkTypeEthernet, func(testing.TB) []byte { return []byte{0x00, 0x11, 0x22} }},
		{"truncated tcp", layers.LinkTypeEthernet, func(tb testing.TB) []byte {
			data := testutil.Ethernet(tb, syn(client4, server4, 80))
			return data[:14+20+8]
		}},
		{"raw garbage", layers.LinkTypeRaw, func(testing.TB) []byte { return []byte{0x00, 0x01, 0x02} }},
		{"unknown link type", layers.LinkTypeFDDI, func(tb testing.TB) []byte { return testutil.Ethernet(tb, syn(client4, server4, 80)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := New(tt.linkType)
			raw := frame(tt.data(t))

			_, err := x.Decode(raw)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, core.ErrUnparsedPacket) {
				t.Errorf("Expected ErrUnparsedPacket, got %v", err)
			}

			var unparsed *UnparsedError
			if !errors.As(err, &unparsed) {
				t.Fatalf("Expected *UnparsedError, got %T", err)
			}
			if !unparsed.Timestamp.Equal(raw.Timestamp) {
				t.Errorf("Expected timestamp %v, got %v", raw.Timestamp, unparsed.Timestamp)
			}
		})
	}
}
