//go:build !linux

package capture

import (
	"fmt"

	"firestige.xyz/pulso/internal/core"
)

// OpenAFPacket is only available on Linux.
func OpenAFPacket(device string, _ Options) (Source, error) {
	return nil, fmt.Errorf("%w: %s: afpacket engine requires linux", core.ErrOpenFailure, device)
}
