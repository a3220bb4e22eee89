// Package testutil builds link-layer frames and pcap fixtures for tests.
package testutil

import (
	"encoding/binary"
	"net"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Flags selects the TCP control bits of a built segment.
type Flags struct {
	SYN, ACK, RST, FIN, PSH bool
}

// Common handshake flag sets.
var (
	SYN    = Flags{SYN: true}
	SYNACK = Flags{SYN: true, ACK: true}
	ACK    = Flags{ACK: true}
	RST    = Flags{RST: true}
)

var (
	srcMAC = net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	dstMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
)

// Segment describes a TCP segment between two endpoints.
type Segment struct {
	Src     netip.Addr
	Dst     netip.Addr
	SrcPort uint16
	DstPort uint16
	Flags   Flags
}

// Ethernet returns the segment framed in Ethernet II.
func Ethernet(tb testing.TB, s Segment) []byte {
	tb.Helper()
	network, tcp, etherType := s.build()
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: etherType}
	return serialize(tb, eth, network, tcp)
}

// VLAN returns the segment framed in Ethernet with one 802.1Q tag.
func VLAN(tb testing.TB, s Segment, vlanID uint16) []byte {
	tb.Helper()
	network, tcp, etherType := s.build()
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeDot1Q}
	tag := &layers.Dot1Q{VLANIdentifier: vlanID, Type: etherType}
	return serialize(tb, eth, tag, network, tcp)
}

// Loopback returns the segment with a BSD loopback (DLT_NULL) header.
func Loopback(tb testing.TB, s Segment) []byte {
	tb.Helper()
	network, tcp, _ := s.build()
	family := layers.ProtocolFamilyIPv4
	if s.Src.Is6() {
		family = layers.ProtocolFamilyIPv6BSD
	}
	return serialize(tb, &layers.Loopback{Family: family}, network, tcp)
}

// LinuxSLL returns the segment with a Linux cooked-capture header.
func LinuxSLL(tb testing.TB, s Segment) []byte {
	tb.Helper()
	network, tcp, etherType := s.build()
	body := serialize(tb, network, tcp)

	hdr := make([]byte, 16)
	binary.BigEndian.PutUint16(hdr[0:2], 0) // packet type: to us
	binary.BigEndian.PutUint16(hdr[2:4], 1) // ARPHRD_ETHER
	binary.BigEndian.PutUint16(hdr[4:6], 6) // address length
	copy(hdr[6:12], srcMAC)                 // link-layer address
	binary.BigEndian.PutUint16(hdr[14:16], uint16(etherType))
	return append(hdr, body...)
}

// RawIP returns the segment without any link-layer header.
func RawIP(tb testing.TB, s Segment) []byte {
	tb.Helper()
	network, tcp, _ := s.build()
	return serialize(tb, network, tcp)
}

// UDP returns an Ethernet/IPv4/UDP datagram.
func UDP(tb testing.TB, src, dst netip.Addr, srcPort, dstPort uint16) []byte {
	tb.Helper()
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP(src.AsSlice()),
		DstIP:    net.IP(dst.AsSlice()),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		tb.Fatalf("udp checksum layer: %v", err)
	}
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	return serialize(tb, eth, ip, udp, gopacket.Payload([]byte("ping")))
}

// ARP returns an Ethernet ARP request.
func ARP(tb testing.TB) []byte {
	tb.Helper()
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: []byte{192, 0, 2, 1},
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte{192, 0, 2, 2},
	}
	return serialize(tb, eth, arp)
}

// WritePcap writes frames into a pcap file at path, one millisecond apart.
func WritePcap(tb testing.TB, path string, linkType layers.LinkType, frames ...[]byte) {
	tb.Helper()
	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create pcap: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, linkType); err != nil {
		tb.Fatalf("write pcap header: %v", err)
	}
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := w.WritePacket(ci, frame); err != nil {
			tb.Fatalf("write pcap packet %d: %v", i, err)
		}
	}
}

func (s Segment) build() (gopacket.SerializableLayer, *layers.TCP, layers.EthernetType) {
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(s.SrcPort),
		DstPort: layers.TCPPort(s.DstPort),
		Seq:     1000,
		SYN:     s.Flags.SYN,
		ACK:     s.Flags.ACK,
		RST:     s.Flags.RST,
		FIN:     s.Flags.FIN,
		PSH:     s.Flags.PSH,
		Window:  65535,
	}
	if s.Flags.ACK {
		tcp.Ack = 2000
	}

	if s.Src.Is4() {
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    net.IP(s.Src.AsSlice()),
			DstIP:    net.IP(s.Dst.AsSlice()),
		}
		_ = tcp.SetNetworkLayerForChecksum(ip)
		return ip, tcp, layers.EthernetTypeIPv4
	}

	ip := &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: layers.IPProtocolTCP,
		SrcIP:      net.IP(s.Src.AsSlice()),
		DstIP:      net.IP(s.Dst.AsSlice()),
	}
	_ = tcp.SetNetworkLayerForChecksum(ip)
	return ip, tcp, layers.EthernetTypeIPv6
}

func serialize(tb testing.TB, ls ...gopacket.SerializableLayer) []byte {
	tb.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		tb.Fatalf("serialize layers: %v", err)
	}
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}
