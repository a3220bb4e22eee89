package capture

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"firestige.xyz/pulso/internal/core"
)

// SYNFilter selects TCP segments with SYN set and ACK clear for IPv4 and IPv6.
// IPv6 flags are read at a fixed offset, so segments behind extension
// headers are not matched.
const SYNFilter = `(ip6 and proto \tcp and ip6[40+13]&0x2 != 0 and ip6[40+13]&0x10 = 0) or ` +
	`(ip and tcp[tcpflags] & (tcp-syn) != 0 and tcp[tcpflags] & (tcp-ack) = 0)`

// packetOutgoing is the kernel packet type of frames sent by this host.
const packetOutgoing = 4

// CompileFilter compiles expr with libpcap into a classic BPF program.
func CompileFilter(linkType layers.LinkType, snapLen int, expr string) ([]bpf.RawInstruction, error) {
	insns, err := pcap.CompileBPFFilter(linkType, snapLen, expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", core.ErrFilterRejected, expr, err)
	}

	raw := make([]bpf.RawInstruction, len(insns))
	for i, ins := range insns {
		raw[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return raw, nil
}

// InboundOnly prepends a check on the kernel packet type that rejects frames
// sent by this host. Only sockets that expose SKF_AD_PKTTYPE can run it.
func InboundOnly(prog []bpf.RawInstruction) ([]bpf.RawInstruction, error) {
	prelude, err := bpf.Assemble([]bpf.Instruction{
		bpf.LoadExtension{Num: bpf.ExtType},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: packetOutgoing, SkipTrue: 1},
		bpf.RetConstant{Val: 0},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: inbound prelude: %v", core.ErrFilterRejected, err)
	}
	return append(prelude, prog...), nil
}
