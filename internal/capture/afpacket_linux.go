//go:build linux

package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/net/bpf"

	"firestige.xyz/pulso/internal/core"
)

// AFPacketSource reads frames from a TPACKET_V3 ring.
type AFPacketSource struct {
	device string
	handle *afpacket.TPacket
}

// OpenAFPacket opens device through an AF_PACKET ring sized from
// opts.BufferSizeMB and installs the filter in the kernel.
func OpenAFPacket(device string, opts Options) (*AFPacketSource, error) {
	opts = opts.withDefaults()
	if err := lookupDevice(device); err != nil {
		return nil, err
	}

	frameSize, blockSize, numBlocks, err := recomputeSize(opts.BufferSizeMB, opts.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}

	handle, err := afpacket.NewTPacket(
		afpacket.OptInterface(device),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(opts.PollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrOpenFailure, device, err)
	}

	if err := applyFilter(handle, opts); err != nil {
		handle.Close()
		return nil, err
	}

	if err := handle.InitSocketStats(); err != nil {
		slog.Warn("failed to init socket stats", "device", device, "error", err)
	}

	slog.Info("afpacket capture opened",
		"device", device,
		"frame_size", frameSize,
		"block_size", blockSize,
		"num_blocks", numBlocks)

	return &AFPacketSource{device: device, handle: handle}, nil
}

func applyFilter(handle *afpacket.TPacket, opts Options) error {
	if opts.Filter == "" && !opts.InboundOnly {
		return nil
	}

	var prog []bpf.RawInstruction
	if opts.Filter != "" {
		compiled, err := CompileFilter(layers.LinkTypeEthernet, opts.SnapLen, opts.Filter)
		if err != nil {
			return err
		}
		prog = compiled
	} else {
		accept, err := bpf.RetConstant{Val: uint32(opts.SnapLen)}.Assemble()
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrFilterRejected, err)
		}
		prog = []bpf.RawInstruction{accept}
	}

	if opts.InboundOnly {
		withPrelude, err := InboundOnly(prog)
		if err != nil {
			return err
		}
		prog = withPrelude
	}

	if err := handle.SetBPF(prog); err != nil {
		return fmt.Errorf("%w: set bpf: %v", core.ErrFilterRejected, err)
	}
	return nil
}

// ReadFrame copies the next frame out of the ring.
func (s *AFPacketSource) ReadFrame() (core.RawFrame, error) {
	data, ci, err := s.handle.ReadPacketData()
	switch {
	case err == nil:
		return rawFrame(data, ci), nil
	case errors.Is(err, afpacket.ErrTimeout), errors.Is(err, syscall.EINTR):
		return core.RawFrame{}, core.ErrNoFrame
	case errors.Is(err, syscall.EBADF):
		return core.RawFrame{}, core.ErrStreamClosed
	default:
		return core.RawFrame{}, fmt.Errorf("%w: %s: %v", core.ErrCapture, s.device, err)
	}
}

// LinkType is Ethernet for raw AF_PACKET sockets.
func (s *AFPacketSource) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

// Stats returns the accumulated socket counters.
func (s *AFPacketSource) Stats() (Stats, error) {
	_, v3, err := s.handle.SocketStats()
	if err != nil {
		return Stats{}, fmt.Errorf("%w: socket stats: %v", core.ErrCapture, err)
	}
	return Stats{
		Received: uint64(v3.Packets()),
		Dropped:  uint64(v3.Drops()),
	}, nil
}

// Close releases the ring. It must not race with ReadFrame.
func (s *AFPacketSource) Close() {
	s.handle.Close()
}
