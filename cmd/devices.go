package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/gopacket/pcap"
	"github.com/spf13/cobra"

	"firestige.xyz/pulso/internal/capture"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageErrorf("unexpected arguments: %v", args)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			devs, err := capture.Devices()
			if err != nil {
				return err
			}
			return writeDevices(cmd.OutOrStdout(), devs)
		},
	}
}

// writeDevices prints one device per line: name, addresses and description.
func writeDevices(out io.Writer, devs []pcap.Interface) error {
	for _, d := range devs {
		addrs := make([]string, 0, len(d.Addresses))
		for _, a := range d.Addresses {
			addrs = append(addrs, a.IP.String())
		}
		line := d.Name
		if len(addrs) > 0 {
			line += "\t" + strings.Join(addrs, ",")
		}
		if d.Description != "" {
			line += "\t(" + d.Description + ")"
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}
