package capture

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/pulso/internal/core"
)

// PcapSource reads frames from a libpcap handle, live or offline.
type PcapSource struct {
	name    string
	handle  *pcap.Handle
	offline bool
}

// OpenLive opens device for a header-only capture in immediate mode.
func OpenLive(device string, opts Options) (*PcapSource, error) {
	opts = opts.withDefaults()
	if err := lookupDevice(device); err != nil {
		return nil, err
	}

	inactive, err := pcap.NewInactiveHandle(device)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrOpenFailure, device, err)
	}
	defer inactive.CleanUp()

	for _, set := range []func() error{
		func() error { return inactive.SetSnapLen(opts.SnapLen) },
		func() error { return inactive.SetPromisc(opts.Promiscuous) },
		func() error { return inactive.SetImmediateMode(true) },
		func() error { return inactive.SetTimeout(opts.PollTimeout) },
	} {
		if err := set(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", core.ErrOpenFailure, device, err)
		}
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrOpenFailure, device, err)
	}

	if opts.InboundOnly {
		if err := handle.SetDirection(pcap.DirectionIn); err != nil {
			handle.Close()
			return nil, fmt.Errorf("%w: %s: set direction: %v", core.ErrOpenFailure, device, err)
		}
	}

	if opts.Filter != "" {
		if err := handle.SetBPFFilter(opts.Filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("%w: %q: %v", core.ErrFilterRejected, opts.Filter, err)
		}
	}

	slog.Info("pcap capture opened",
		"device", device,
		"snap_len", opts.SnapLen,
		"link_type", handle.LinkType().String(),
		"promiscuous", opts.Promiscuous)

	return &PcapSource{name: device, handle: handle}, nil
}

// OpenFile replays a pcap file through the same filter as a live capture.
func OpenFile(path string, opts Options) (*PcapSource, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrOpenFailure, path, err)
	}

	if opts.Filter != "" {
		if err := handle.SetBPFFilter(opts.Filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("%w: %q: %v", core.ErrFilterRejected, opts.Filter, err)
		}
	}

	slog.Info("pcap file opened", "path", path, "link_type", handle.LinkType().String())
	return &PcapSource{name: path, handle: handle, offline: true}, nil
}

// ReadFrame returns the next frame, copied out of the libpcap buffer.
func (s *PcapSource) ReadFrame() (core.RawFrame, error) {
	data, ci, err := s.handle.ReadPacketData()
	switch {
	case err == nil:
		return rawFrame(data, ci), nil
	case errors.Is(err, pcap.NextErrorTimeoutExpired):
		return core.RawFrame{}, core.ErrNoFrame
	case errors.Is(err, io.EOF), errors.Is(err, pcap.NextErrorNoMorePackets):
		return core.RawFrame{}, core.ErrStreamClosed
	default:
		return core.RawFrame{}, fmt.Errorf("%w: %s: %v", core.ErrCapture, s.name, err)
	}
}

// LinkType returns the data link type of the handle.
func (s *PcapSource) LinkType() layers.LinkType {
	return s.handle.LinkType()
}

// Stats returns the libpcap counters. Offline handles have none.
func (s *PcapSource) Stats() (Stats, error) {
	if s.offline {
		return Stats{}, nil
	}
	st, err := s.handle.Stats()
	if err != nil {
		return Stats{}, fmt.Errorf("%w: stats: %v", core.ErrCapture, err)
	}
	return Stats{
		Received:  uint64(st.PacketsReceived),
		Dropped:   uint64(st.PacketsDropped),
		IfDropped: uint64(st.PacketsIfDropped),
	}, nil
}

// Close releases the handle.
func (s *PcapSource) Close() {
	s.handle.Close()
}

// Devices lists the capture devices libpcap can open.
func Devices() ([]pcap.Interface, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("%w: list devices: %v", core.ErrOpenFailure, err)
	}
	return devs, nil
}

// lookupDevice checks device against the libpcap device list, falling back
// to the OS interface table when libpcap cannot enumerate.
func lookupDevice(device string) error {
	devs, err := pcap.FindAllDevs()
	if err == nil {
		for _, d := range devs {
			if d.Name == device {
				return nil
			}
		}
		return fmt.Errorf("%w: %s", core.ErrDeviceNotFound, device)
	}

	slog.Debug("pcap device enumeration failed", "error", err)
	if _, ierr := net.InterfaceByName(device); ierr != nil {
		return fmt.Errorf("%w: %s", core.ErrDeviceNotFound, device)
	}
	return nil
}

func rawFrame(data []byte, ci gopacket.CaptureInfo) core.RawFrame {
	return core.RawFrame{
		Data:           data,
		Timestamp:      ci.Timestamp,
		CaptureLen:     uint32(ci.CaptureLength),
		OrigLen:        uint32(ci.Length),
		InterfaceIndex: ci.InterfaceIndex,
	}
}
